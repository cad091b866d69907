package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/timing/pipeline"
)

var _ = Describe("BranchPredictor", func() {
	var bp *pipeline.BranchPredictor

	BeforeEach(func() {
		bp = pipeline.NewBranchPredictor(pipeline.BranchPredictorConfig{Size: 16})
	})

	It("should predict not taken on first encounter", func() {
		pred := bp.Predict(0x100)
		Expect(pred.Taken).To(BeFalse())
		Expect(bp.Stats().Lookups).To(Equal(uint64(1)))
	})

	It("should predict taken after one taken outcome", func() {
		bp.Update(0x100, true, 0x80)

		pred := bp.Predict(0x100)
		Expect(pred.Taken).To(BeTrue())
		Expect(pred.Target).To(Equal(uint64(0x80)))
		Expect(bp.Stats().Mispredictions).To(Equal(uint64(1)))
	})

	It("should start strongly not taken after a not-taken outcome", func() {
		bp.Update(0x100, false, 0x104)
		bp.Update(0x100, true, 0x80)

		Expect(bp.Predict(0x100).Taken).To(BeFalse())
		bp.Update(0x100, true, 0x80)
		Expect(bp.Predict(0x100).Taken).To(BeTrue())
	})

	It("should saturate the counter", func() {
		for i := 0; i < 5; i++ {
			bp.Update(0x100, true, 0x80)
		}
		bp.Update(0x100, false, 0x104)

		Expect(bp.Predict(0x100).Taken).To(BeTrue())
		bp.Update(0x100, false, 0x104)
		Expect(bp.Predict(0x100).Taken).To(BeFalse())
	})

	It("should not share entries between aliasing PCs", func() {
		bp.Update(0x100, true, 0x80)

		// 0x140 maps to the same entry of a 16-entry table.
		Expect(bp.Predict(0x140).Taken).To(BeFalse())
		bp.Update(0x140, false, 0x144)
		Expect(bp.Predict(0x100).Taken).To(BeFalse())
	})

	It("should track the latest taken target", func() {
		bp.Update(0x100, true, 0x80)
		bp.Update(0x100, true, 0x200)
		Expect(bp.Predict(0x100).Target).To(Equal(uint64(0x200)))
	})

	It("should compute accuracy", func() {
		bp.Update(0x100, true, 0x80)  // miss (new entry)
		bp.Update(0x100, true, 0x80)  // hit
		bp.Update(0x100, true, 0x80)  // hit
		bp.Update(0x100, false, 0x80) // miss

		stats := bp.Stats()
		Expect(stats.Updates).To(Equal(uint64(4)))
		Expect(stats.Correct).To(Equal(uint64(2)))
		Expect(stats.Accuracy()).To(BeNumerically("~", 50.0))
	})

	It("should clear everything on reset", func() {
		bp.Update(0x100, true, 0x80)
		bp.Reset()

		Expect(bp.Predict(0x100).Taken).To(BeFalse())
		Expect(bp.Stats().Updates).To(Equal(uint64(0)))
	})

	It("should fall back to the default size for invalid sizes", func() {
		bp = pipeline.NewBranchPredictor(pipeline.BranchPredictorConfig{Size: 10})
		bp.Update(0x100, true, 0x80)
		Expect(bp.Predict(0x100).Taken).To(BeTrue())
	})
})
