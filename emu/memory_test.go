package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("Memory", func() {
	var memory *emu.Memory

	BeforeEach(func() {
		memory = emu.NewMemory()
	})

	It("should read unwritten addresses as zero", func() {
		Expect(memory.Read64(0x7FFF_FFF0)).To(BeZero())
		Expect(memory.Load(0xFFFF_FFFF_FFFF_FFF0, 8, true)).To(BeZero())
	})

	It("should store little-endian", func() {
		memory.Write32(0x1000, 0x11223344)

		Expect(memory.Read8(0x1000)).To(Equal(uint8(0x44)))
		Expect(memory.Read8(0x1003)).To(Equal(uint8(0x11)))
		Expect(memory.Read16(0x1002)).To(Equal(uint16(0x1122)))
	})

	It("should handle accesses that cross a page boundary", func() {
		memory.Write64(0xFFC, 0x0102030405060708)
		Expect(memory.Read64(0xFFC)).To(Equal(uint64(0x0102030405060708)))
		Expect(memory.Read32(0x1000)).To(Equal(uint32(0x01020304)))
	})

	DescribeTable("store then unsigned load returns the masked value",
		func(width int, value, expected uint64) {
			memory.Store(0x2000, width, value)
			Expect(memory.Load(0x2000, width, false)).To(Equal(expected))
		},
		Entry("byte", 1, uint64(0x1FF), uint64(0xFF)),
		Entry("halfword", 2, uint64(0x12345678), uint64(0x5678)),
		Entry("word", 4, uint64(0xAABBCCDDEEFF0011), uint64(0xEEFF0011)),
		Entry("doubleword", 8, uint64(0xAABBCCDDEEFF0011), uint64(0xAABBCCDDEEFF0011)),
	)

	DescribeTable("signed loads sign-extend",
		func(width int, value, expected uint64) {
			memory.Store(0x3000, width, value)
			Expect(memory.Load(0x3000, width, true)).To(Equal(expected))
		},
		Entry("byte", 1, uint64(0x80), uint64(0xFFFFFFFFFFFFFF80)),
		Entry("halfword", 2, uint64(0x8001), uint64(0xFFFFFFFFFFFF8001)),
		Entry("word", 4, uint64(0xFFFFFFFE), uint64(0xFFFFFFFFFFFFFFFE)),
		Entry("positive word", 4, uint64(0x7FFFFFFF), uint64(0x7FFFFFFF)),
	)

	It("should panic on an invalid width", func() {
		Expect(func() { memory.Load(0, 3, false) }).To(Panic())
	})

	It("should list non-zero words in address order", func() {
		memory.Write32(0x2000, 5)
		memory.Write32(0x10000000, 1)
		memory.Write8(0x1001, 0xAB)

		Expect(memory.Words()).To(Equal([]emu.Word{
			{Addr: 0x1000, Value: 0xAB00},
			{Addr: 0x2000, Value: 5},
			{Addr: 0x10000000, Value: 1},
		}))
	})

	It("should clone without aliasing", func() {
		memory.Write32(0x100, 1)
		clone := memory.Clone()
		clone.Write32(0x100, 2)

		Expect(memory.Read32(0x100)).To(Equal(uint32(1)))
		Expect(clone.Read32(0x100)).To(Equal(uint32(2)))
	})
})
