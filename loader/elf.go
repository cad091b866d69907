// Package loader reads program images from .mc text dumps and RISC-V ELF
// executables and turns them into the (address, word) lists the core loads.
package loader

import (
	"debug/elf"
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/timing/pipeline"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded ELF program.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
}

// Code returns the words of the executable segments in address order.
func (p *Program) Code() []pipeline.ImageEntry {
	var entries []pipeline.ImageEntry
	for _, seg := range p.Segments {
		if seg.Flags&SegmentFlagExecute != 0 {
			entries = append(entries, words(seg, false)...)
		}
	}
	return entries
}

// Data returns the non-zero words of the other segments in address order.
// BSS needs no entries since unwritten memory reads as zero.
func (p *Program) Data() []pipeline.ImageEntry {
	var entries []pipeline.ImageEntry
	for _, seg := range p.Segments {
		if seg.Flags&SegmentFlagExecute == 0 {
			entries = append(entries, words(seg, true)...)
		}
	}
	return entries
}

// words splits a segment into aligned little-endian words. A segment that
// does not start or end on a word boundary is padded with zero bytes.
func words(seg Segment, skipZero bool) []pipeline.ImageEntry {
	start := seg.VirtAddr &^ 3
	end := (seg.VirtAddr + uint64(len(seg.Data)) + 3) &^ 3

	var entries []pipeline.ImageEntry
	for addr := start; addr < end; addr += 4 {
		var buf [4]byte
		for i := uint64(0); i < 4; i++ {
			off := addr + i - seg.VirtAddr
			if addr+i >= seg.VirtAddr && off < uint64(len(seg.Data)) {
				buf[i] = seg.Data[off]
			}
		}

		word := binary.LittleEndian.Uint32(buf[:])
		if skipZero && word == 0 {
			continue
		}
		entries = append(entries, pipeline.ImageEntry{Addr: addr, Word: word})
	}
	return entries
}

// LoadELF parses a 64-bit RISC-V ELF executable. Execution starts at the
// lowest code address, so the entry point must be the start of the first
// executable segment.
func LoadELF(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ELF file")
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, ErrNotELF64
	}

	if f.Machine != elf.EM_RISCV {
		return nil, errors.Wrapf(ErrNotRISCV, "machine type %v", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, errors.Wrapf(err, "failed to read segment at 0x%x", phdr.Vaddr)
			}
			if uint64(n) != phdr.Filesz {
				return nil, errors.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	sort.SliceStable(prog.Segments, func(i, j int) bool {
		return prog.Segments[i].VirtAddr < prog.Segments[j].VirtAddr
	})

	if code := prog.Code(); len(code) > 0 && code[0].Addr != prog.EntryPoint {
		return nil, errors.Wrapf(ErrEntryNotFirst,
			"entry 0x%x, first code address 0x%x", prog.EntryPoint, code[0].Addr)
	}

	return prog, nil
}
