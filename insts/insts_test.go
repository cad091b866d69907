package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/insts"
)

var _ = Describe("Insts Package", func() {
	It("should have an Instruction type", func() {
		var i insts.Instruction
		Expect(i).To(BeZero())
	})

	It("should render a nil instruction as a bubble", func() {
		var i *insts.Instruction
		Expect(i.String()).To(Equal("bubble"))
	})

	It("should name operations", func() {
		Expect(insts.OpADDI.String()).To(Equal("addi"))
		Expect(insts.OpUnknown.String()).To(Equal("unknown"))
	})
})
