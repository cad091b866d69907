package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/loader"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

const (
	machineRISCV = 243
	machineX8664 = 62
)

type testSegment struct {
	typ     uint32
	flags   uint32
	addr    uint64
	data    []byte
	memSize uint64
}

// writeELF writes a minimal 64-bit little-endian executable with one program
// header per segment and no section headers.
func writeELF(path string, machine uint16, entry uint64, segs ...testSegment) {
	const ehSize, phSize = 64, 56

	header := make([]byte, ehSize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // 64-bit
	header[5] = 1 // little endian
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2) // executable
	binary.LittleEndian.PutUint16(header[18:20], machine)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[24:32], entry)
	binary.LittleEndian.PutUint64(header[32:40], ehSize)
	binary.LittleEndian.PutUint16(header[52:54], ehSize)
	binary.LittleEndian.PutUint16(header[54:56], phSize)
	binary.LittleEndian.PutUint16(header[56:58], uint16(len(segs)))
	binary.LittleEndian.PutUint16(header[58:60], 64)

	offset := uint64(ehSize + phSize*len(segs))
	var phdrs, payload []byte
	for _, seg := range segs {
		ph := make([]byte, phSize)
		binary.LittleEndian.PutUint32(ph[0:4], seg.typ)
		binary.LittleEndian.PutUint32(ph[4:8], seg.flags)
		binary.LittleEndian.PutUint64(ph[8:16], offset)
		binary.LittleEndian.PutUint64(ph[16:24], seg.addr)
		binary.LittleEndian.PutUint64(ph[24:32], seg.addr)
		binary.LittleEndian.PutUint64(ph[32:40], uint64(len(seg.data)))
		memSize := seg.memSize
		if memSize == 0 {
			memSize = uint64(len(seg.data))
		}
		binary.LittleEndian.PutUint64(ph[40:48], memSize)
		binary.LittleEndian.PutUint64(ph[48:56], 0x1000)

		phdrs = append(phdrs, ph...)
		payload = append(payload, seg.data...)
		offset += uint64(len(seg.data))
	}

	file := append(append(header, phdrs...), payload...)
	Expect(os.WriteFile(path, file, 0o644)).To(Succeed())
}

func le32(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

var _ = Describe("ELF Loader", func() {
	const (
		pfX = 0x1
		pfW = 0x2
		pfR = 0x4
	)

	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "test.elf")
	})

	text := testSegment{
		typ: 1, flags: pfR | pfX, addr: 0x10000,
		data: le32(0x00A00513, 0xEF000011), // addi x10, x0, 10; exit
	}

	Context("with a valid RISC-V executable", func() {
		BeforeEach(func() {
			writeELF(path, machineRISCV, 0x10000, text, testSegment{
				typ: 1, flags: pfR | pfW, addr: 0x11000,
				data: le32(7, 0, 9), memSize: 0x100,
			})
		})

		It("should extract the entry point and segments", func() {
			prog, err := loader.LoadELF(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint64(0x10000)))
			Expect(prog.Segments).To(HaveLen(2))
			Expect(prog.Segments[0].Flags).To(Equal(loader.SegmentFlagRead | loader.SegmentFlagExecute))
			Expect(prog.Segments[1].Flags).To(Equal(loader.SegmentFlagRead | loader.SegmentFlagWrite))
			Expect(prog.Segments[1].MemSize).To(Equal(uint64(0x100)))
		})

		It("should split executable segments into code words", func() {
			prog, err := loader.LoadELF(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Code()).To(Equal([]pipeline.ImageEntry{
				{Addr: 0x10000, Word: 0x00A00513},
				{Addr: 0x10004, Word: 0xEF000011},
			}))
		})

		It("should keep only non-zero data words", func() {
			prog, err := loader.LoadELF(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Data()).To(Equal([]pipeline.ImageEntry{
				{Addr: 0x11000, Word: 7},
				{Addr: 0x11008, Word: 9},
			}))
		})
	})

	It("should pad unaligned data segments", func() {
		writeELF(path, machineRISCV, 0x10000, text, testSegment{
			typ: 1, flags: pfR | pfW, addr: 0x11002, data: []byte{0xAA, 0xBB, 0xCC},
		})

		prog, err := loader.LoadELF(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Data()).To(Equal([]pipeline.ImageEntry{
			{Addr: 0x11000, Word: 0xBBAA0000},
			{Addr: 0x11004, Word: 0x000000CC},
		}))
	})

	It("should order segments by address", func() {
		writeELF(path, machineRISCV, 0x10000,
			testSegment{typ: 1, flags: pfR | pfW, addr: 0x20000, data: le32(1)},
			text,
		)

		prog, err := loader.LoadELF(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments[0].VirtAddr).To(Equal(uint64(0x10000)))
	})

	It("should ignore segments that are not PT_LOAD", func() {
		writeELF(path, machineRISCV, 0x10000, text,
			testSegment{typ: 4, flags: pfR, addr: 0x30000, data: le32(5)}, // PT_NOTE
		)

		prog, err := loader.LoadELF(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments).To(HaveLen(1))
	})

	It("should reject an entry point that is not the first code address", func() {
		writeELF(path, machineRISCV, 0x10004, text)

		_, err := loader.LoadELF(path)
		Expect(err).To(MatchError(loader.ErrEntryNotFirst))
	})

	It("should reject other machines", func() {
		writeELF(path, machineX8664, 0x10000, text)

		_, err := loader.LoadELF(path)
		Expect(err).To(MatchError(loader.ErrNotRISCV))
	})

	It("should reject 32-bit files", func() {
		writeELF(path, machineRISCV, 0x10000, text)
		contents, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		contents[4] = 1
		Expect(os.WriteFile(path, contents, 0o644)).To(Succeed())

		_, err = loader.LoadELF(path)
		Expect(err).To(HaveOccurred())
	})

	It("should fail for missing and non-ELF files", func() {
		_, err := loader.LoadELF(filepath.Join(filepath.Dir(path), "missing.elf"))
		Expect(err).To(HaveOccurred())

		Expect(os.WriteFile(path, []byte("not an elf"), 0o644)).To(Succeed())
		_, err = loader.LoadELF(path)
		Expect(err).To(HaveOccurred())
	})
})
