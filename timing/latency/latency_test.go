package latency_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/latency"
)

func decode(op insts.Op, rd, rs1, rs2 uint8, imm int64) *insts.Instruction {
	inst, err := insts.Decode(insts.Encode(op, rd, rs1, rs2, imm))
	Expect(err).NotTo(HaveOccurred())
	return inst
}

var _ = Describe("Latency", func() {
	var table *latency.Table

	BeforeEach(func() {
		table = latency.NewTable()
	})

	Describe("Default Timing Values", func() {
		It("should have single-cycle ALU and memory latencies", func() {
			config := table.Config()
			Expect(config.ALULatency).To(Equal(uint64(1)))
			Expect(config.BranchLatency).To(Equal(uint64(1)))
			Expect(config.LoadLatency).To(Equal(uint64(1)))
			Expect(config.StoreLatency).To(Equal(uint64(1)))
		})

		It("should disable optional features", func() {
			config := table.Config()
			Expect(config.Forwarding).To(BeFalse())
			Expect(config.BranchPrediction).To(BeFalse())
			Expect(config.DCache).To(BeNil())
		})
	})

	DescribeTable("Instruction Latencies",
		func(op insts.Op, expected uint64) {
			Expect(table.GetLatency(decode(op, 1, 2, 3, 4))).To(Equal(expected))
		},
		Entry("add", insts.OpADD, uint64(1)),
		Entry("addi", insts.OpADDI, uint64(1)),
		Entry("srai", insts.OpSRAI, uint64(1)),
		Entry("lui", insts.OpLUI, uint64(1)),
		Entry("mul", insts.OpMUL, uint64(3)),
		Entry("div", insts.OpDIV, uint64(10)),
		Entry("rem", insts.OpREM, uint64(10)),
		Entry("lw", insts.OpLW, uint64(1)),
		Entry("sd", insts.OpSD, uint64(1)),
		Entry("beq", insts.OpBEQ, uint64(1)),
		Entry("jal", insts.OpJAL, uint64(1)),
		Entry("exit", insts.OpEXIT, uint64(1)),
	)

	Describe("Instruction Type Detection", func() {
		It("should detect load operations", func() {
			lw := decode(insts.OpLW, 1, 2, 0, 0)
			sw := decode(insts.OpSW, 0, 2, 1, 0)

			Expect(table.IsLoadOp(lw)).To(BeTrue())
			Expect(table.IsLoadOp(sw)).To(BeFalse())
		})
	})

	Describe("Nil Instruction Handling", func() {
		It("should return 1 for nil instruction", func() {
			Expect(table.GetLatency(nil)).To(Equal(uint64(1)))
			Expect(table.IsLoadOp(nil)).To(BeFalse())
		})
	})

	Describe("Custom Configuration", func() {
		It("should use custom config values", func() {
			config := latency.DefaultTimingConfig()
			config.LoadLatency = 3
			config.MultiplyLatency = 5
			table = latency.NewTableWithConfig(config)

			Expect(table.GetLatency(decode(insts.OpLD, 1, 2, 0, 0))).To(Equal(uint64(3)))
			Expect(table.GetLatency(decode(insts.OpMUL, 1, 2, 3, 0))).To(Equal(uint64(5)))
		})
	})
})

var _ = Describe("TimingConfig", func() {
	Describe("Default Config", func() {
		It("should create valid default config", func() {
			Expect(latency.DefaultTimingConfig().Validate()).To(Succeed())
		})
	})

	Describe("Validation", func() {
		DescribeTable("should reject zero latencies",
			func(mutate func(*latency.TimingConfig)) {
				config := latency.DefaultTimingConfig()
				mutate(config)
				Expect(config.Validate()).To(HaveOccurred())
			},
			Entry("alu", func(c *latency.TimingConfig) { c.ALULatency = 0 }),
			Entry("branch", func(c *latency.TimingConfig) { c.BranchLatency = 0 }),
			Entry("load", func(c *latency.TimingConfig) { c.LoadLatency = 0 }),
			Entry("store", func(c *latency.TimingConfig) { c.StoreLatency = 0 }),
			Entry("multiply", func(c *latency.TimingConfig) { c.MultiplyLatency = 0 }),
			Entry("divide", func(c *latency.TimingConfig) { c.DivideLatency = 0 }),
		)

		It("should reject a bad dcache geometry", func() {
			config := latency.DefaultTimingConfig()
			dcache := cache.DefaultL1DConfig()
			dcache.BlockSize = 24
			config.DCache = &dcache

			err := config.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(HavePrefix("dcache:"))
		})
	})

	Describe("Clone", func() {
		It("should create independent copy", func() {
			original := latency.DefaultTimingConfig()
			dcache := cache.DefaultL1DConfig()
			original.DCache = &dcache

			clone := original.Clone()
			clone.ALULatency = 100
			clone.DCache.HitLatency = 7

			Expect(original.ALULatency).To(Equal(uint64(1)))
			Expect(original.DCache.HitLatency).To(Equal(uint64(1)))
			Expect(clone.ALULatency).To(Equal(uint64(100)))
		})
	})

	Describe("File Operations", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "latency-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			_ = os.RemoveAll(tempDir)
		})

		It("should save and load config", func() {
			original := latency.DefaultTimingConfig()
			original.ALULatency = 5
			original.Forwarding = true
			dcache := cache.DefaultL1DConfig()
			original.DCache = &dcache

			path := filepath.Join(tempDir, "timing.json")
			Expect(original.SaveConfig(path)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(original))
		})

		It("should keep defaults for absent fields", func() {
			path := filepath.Join(tempDir, "partial.json")
			Expect(os.WriteFile(path, []byte(`{"branch_prediction": true}`), 0644)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.BranchPrediction).To(BeTrue())
			Expect(loaded.DivideLatency).To(Equal(uint64(10)))
		})

		It("should return error for non-existent file", func() {
			_, err := latency.LoadConfig("/nonexistent/path/timing.json")
			Expect(err).To(HaveOccurred())
		})

		It("should return error for invalid JSON", func() {
			path := filepath.Join(tempDir, "invalid.json")
			Expect(os.WriteFile(path, []byte("not valid json"), 0644)).To(Succeed())

			_, err := latency.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
