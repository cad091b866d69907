package emu

import (
	"fmt"
	"sort"
)

const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// Memory is a sparse, byte-addressable, little-endian data memory.
// Bytes that were never written read as zero. Pages are allocated on the
// first write, so any address is writable.
type Memory struct {
	pages map[uint64]*[pageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64]*[pageSize]byte)}
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint64) uint8 {
	page, ok := m.pages[addr>>pageBits]
	if !ok {
		return 0
	}
	return page[addr&pageMask]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	key := addr >> pageBits
	page, ok := m.pages[key]
	if !ok {
		page = new([pageSize]byte)
		m.pages[key] = page
	}
	page[addr&pageMask] = value
}

func (m *Memory) read(addr uint64, width int) uint64 {
	var value uint64
	for i := 0; i < width; i++ {
		value |= uint64(m.Read8(addr+uint64(i))) << (8 * i)
	}
	return value
}

func (m *Memory) write(addr uint64, width int, value uint64) {
	for i := 0; i < width; i++ {
		m.Write8(addr+uint64(i), uint8(value>>(8*i)))
	}
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint64) uint16 { return uint16(m.read(addr, 2)) }

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint64) uint32 { return uint32(m.read(addr, 4)) }

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint64) uint64 { return m.read(addr, 8) }

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint64, value uint16) { m.write(addr, 2, uint64(value)) }

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint64, value uint32) { m.write(addr, 4, uint64(value)) }

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint64, value uint64) { m.write(addr, 8, value) }

func checkWidth(width int) {
	switch width {
	case 1, 2, 4, 8:
	default:
		panic(fmt.Sprintf("emu: invalid access width %d", width))
	}
}

// Load reads width bytes at addr. Signed loads sign-extend to 64 bits,
// unsigned loads zero-extend.
func (m *Memory) Load(addr uint64, width int, signed bool) uint64 {
	checkWidth(width)
	value := m.read(addr, width)
	if !signed || width == 8 {
		return value
	}
	shift := uint(64 - 8*width)
	return uint64(int64(value<<shift) >> shift)
}

// Store writes the low width bytes of value at addr.
func (m *Memory) Store(addr uint64, width int, value uint64) {
	checkWidth(width)
	m.write(addr, width, value)
}

// Word is one aligned 32-bit word of memory.
type Word struct {
	Addr  uint64
	Value uint32
}

// Words returns every aligned word that holds a non-zero byte, sorted by
// address. The result does not alias the memory.
func (m *Memory) Words() []Word {
	keys := make([]uint64, 0, len(m.pages))
	for k := range m.pages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var words []Word
	for _, k := range keys {
		base := k << pageBits
		for off := uint64(0); off < pageSize; off += 4 {
			value := m.Read32(base + off)
			if value != 0 {
				words = append(words, Word{Addr: base + off, Value: value})
			}
		}
	}
	return words
}

// Clone returns a deep copy of the memory.
func (m *Memory) Clone() *Memory {
	clone := NewMemory()
	for k, page := range m.pages {
		copied := *page
		clone.pages[k] = &copied
	}
	return clone
}
