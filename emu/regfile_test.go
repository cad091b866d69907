package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("RegFile", func() {
	var regFile *emu.RegFile

	BeforeEach(func() {
		regFile = &emu.RegFile{}
	})

	It("should read back written values", func() {
		regFile.WriteReg(5, 0xDEADBEEF)
		Expect(regFile.ReadReg(5)).To(Equal(uint64(0xDEADBEEF)))
	})

	It("should keep x0 at zero after any sequence of writes", func() {
		for _, v := range []uint64{1, 0xFFFFFFFFFFFFFFFF, 42} {
			regFile.WriteReg(0, v)
			Expect(regFile.ReadReg(0)).To(BeZero())
		}
		Expect(regFile.Values()[0]).To(BeZero())
	})

	It("should ignore out-of-range indices", func() {
		regFile.WriteReg(32, 7)
		Expect(regFile.ReadReg(32)).To(BeZero())
	})

	It("should force x0 to zero on Load", func() {
		var values [emu.NumRegs]uint64
		values[0] = 9
		values[31] = 3
		regFile.Load(values)

		Expect(regFile.ReadReg(0)).To(BeZero())
		Expect(regFile.ReadReg(31)).To(Equal(uint64(3)))
	})

	It("should return a copy from Values", func() {
		regFile.WriteReg(1, 1)
		values := regFile.Values()
		values[1] = 100
		Expect(regFile.ReadReg(1)).To(Equal(uint64(1)))
	})
})
