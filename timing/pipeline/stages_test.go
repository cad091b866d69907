package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

var _ = Describe("Stages", func() {
	Describe("FetchStage", func() {
		It("should return program words and report misses", func() {
			fetch := pipeline.NewFetchStage(programImage(0x13, 0x23))

			word, ok := fetch.Fetch(4)
			Expect(ok).To(BeTrue())
			Expect(word).To(Equal(uint32(0x23)))

			_, ok = fetch.Fetch(8)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("DecodeStage", func() {
		It("should read sources and set control signals", func() {
			regFile := &emu.RegFile{}
			regFile.WriteReg(1, 0x100)
			regFile.WriteReg(2, 7)
			decode := pipeline.NewDecodeStage(regFile)

			ifid := pipeline.IFIDRegister{Valid: true, PC: 0x20, InstructionWord: enc(insts.OpLD, 5, 1, 0, 8)}
			inst, err := decode.Decode(&ifid)
			Expect(err).NotTo(HaveOccurred())

			idex := decode.Issue(inst, &ifid)
			Expect(idex.Valid).To(BeTrue())
			Expect(idex.PC).To(Equal(uint64(0x20)))
			Expect(idex.Rs1Value).To(Equal(uint64(0x100)))
			Expect(idex.Rd).To(Equal(uint8(5)))
			Expect(idex.MemRead).To(BeTrue())
			Expect(idex.MemToReg).To(BeTrue())
			Expect(idex.RegWrite).To(BeTrue())
			Expect(idex.MemWrite).To(BeFalse())
		})

		It("should surface decode errors", func() {
			decode := pipeline.NewDecodeStage(&emu.RegFile{})
			_, err := decode.Decode(&pipeline.IFIDRegister{Valid: true, InstructionWord: 0xFFFFFFFF})
			Expect(err).To(MatchError(insts.ErrUnknownInstruction))
		})
	})

	Describe("ExecuteStage", func() {
		var execute *pipeline.ExecuteStage

		BeforeEach(func() {
			execute = pipeline.NewExecuteStage()
		})

		issue := func(word uint32, pc uint64) *pipeline.IDEXRegister {
			inst := decoded(word)
			return &pipeline.IDEXRegister{Valid: true, PC: pc, Inst: inst, Rd: inst.Rd}
		}

		It("should compute ALU results", func() {
			result := execute.Execute(issue(enc(insts.OpSUB, 3, 1, 2, 0), 0), 10, 3)
			Expect(result.ALUResult).To(Equal(uint64(7)))
			Expect(result.NextPC).To(Equal(uint64(4)))
		})

		It("should compute store addresses and data", func() {
			result := execute.Execute(issue(enc(insts.OpSW, 0, 1, 2, -4), 0), 0x104, 99)
			Expect(result.ALUResult).To(Equal(uint64(0x100)))
			Expect(result.StoreValue).To(Equal(uint64(99)))
		})

		It("should produce the link address and target for jal", func() {
			result := execute.Execute(issue(enc(insts.OpJAL, 1, 0, 0, 16), 0x40), 0, 0)
			Expect(result.Taken).To(BeTrue())
			Expect(result.NextPC).To(Equal(uint64(0x50)))
			Expect(result.ALUResult).To(Equal(uint64(0x44)))
		})

		It("should resolve branches", func() {
			beq := issue(enc(insts.OpBEQ, 0, 1, 2, -8), 0x40)

			taken := execute.Execute(beq, 5, 5)
			Expect(taken.Taken).To(BeTrue())
			Expect(taken.NextPC).To(Equal(uint64(0x38)))

			notTaken := execute.Execute(beq, 5, 6)
			Expect(notTaken.Taken).To(BeFalse())
			Expect(notTaken.NextPC).To(Equal(uint64(0x44)))
		})
	})

	Describe("MemoryStage", func() {
		var (
			memory *emu.Memory
			stage  *pipeline.MemoryStage
		)

		BeforeEach(func() {
			memory = emu.NewMemory()
			stage = pipeline.NewMemoryStage(memory)
		})

		It("should truncate stored values to the access width", func() {
			exmem := &pipeline.EXMEMRegister{
				Valid: true, Inst: decoded(enc(insts.OpSB, 0, 1, 2, 0)),
				ALUResult: 0x200, StoreValue: 0x1234, MemWrite: true,
			}

			result := stage.Access(exmem)
			Expect(result.Write).To(Equal(&pipeline.MemoryWrite{Addr: 0x200, Width: 1, Value: 0x34}))
			Expect(memory.Load(0x200, 8, false)).To(Equal(uint64(0x34)))
		})

		It("should sign-extend loads", func() {
			memory.Store(0x200, 2, 0x8001)
			exmem := &pipeline.EXMEMRegister{
				Valid: true, Inst: decoded(enc(insts.OpLH, 1, 2, 0, 0)),
				ALUResult: 0x200, MemRead: true, MemToReg: true, RegWrite: true, Rd: 1,
			}

			result := stage.Access(exmem)
			Expect(result.MemData).To(Equal(uint64(0xFFFFFFFFFFFF8001)))
			Expect(result.Write).To(BeNil())
		})

		It("should ignore bubbles", func() {
			Expect(stage.Access(&pipeline.EXMEMRegister{})).To(Equal(pipeline.MemoryResult{}))
		})
	})

	Describe("WritebackStage", func() {
		var (
			regFile *emu.RegFile
			stage   *pipeline.WritebackStage
		)

		BeforeEach(func() {
			regFile = &emu.RegFile{}
			stage = pipeline.NewWritebackStage(regFile)
		})

		It("should write ALU results and loaded data", func() {
			write, ok := stage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, RegWrite: true, Rd: 3, ALUResult: 11,
			})
			Expect(ok).To(BeTrue())
			Expect(write).To(Equal(pipeline.RegisterWrite{Reg: 3, Value: 11}))

			_, ok = stage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, RegWrite: true, MemToReg: true, Rd: 4, ALUResult: 0x100, MemData: 22,
			})
			Expect(ok).To(BeTrue())
			Expect(regFile.ReadReg(4)).To(Equal(uint64(22)))
		})

		It("should never write x0", func() {
			_, ok := stage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, RegWrite: true, Rd: 0, ALUResult: 11,
			})
			Expect(ok).To(BeFalse())
			Expect(regFile.ReadReg(0)).To(Equal(uint64(0)))
		})
	})

	Describe("CachedMemoryStage", func() {
		var stage *pipeline.CachedMemoryStage

		load := func(pc, addr uint64) *pipeline.EXMEMRegister {
			return &pipeline.EXMEMRegister{Valid: true, PC: pc, ALUResult: addr, MemRead: true}
		}

		BeforeEach(func() {
			stage = pipeline.NewCachedMemoryStage(cache.New(cache.Config{
				Size: 1024, Associativity: 2, BlockSize: 64, HitLatency: 1, MissLatency: 4,
			}))
		})

		It("should stall for the miss latency minus the MEM cycle", func() {
			exmem := load(0x10, 0x400)

			stalls := 0
			for stage.Access(exmem) {
				stalls++
			}
			Expect(stalls).To(Equal(3))
			Expect(stage.CacheStats().Misses).To(Equal(uint64(1)))
		})

		It("should not stall on hits", func() {
			for stage.Access(load(0x10, 0x400)) {
			}
			Expect(stage.Access(load(0x14, 0x408))).To(BeFalse())
			Expect(stage.CacheStats().Hits).To(Equal(uint64(1)))
		})

		It("should ignore non-memory instructions", func() {
			Expect(stage.Access(&pipeline.EXMEMRegister{Valid: true, RegWrite: true})).To(BeFalse())
			Expect(stage.CacheStats().Reads).To(Equal(uint64(0)))
		})

		It("should forget cached lines on reset", func() {
			for stage.Access(load(0x10, 0x400)) {
			}
			stage.Reset()
			Expect(stage.Access(load(0x10, 0x400))).To(BeTrue())
			Expect(stage.CacheStats().Misses).To(Equal(uint64(1)))
		})
	})

	Describe("CachedFetchStage", func() {
		var stage *pipeline.CachedFetchStage

		BeforeEach(func() {
			stage = pipeline.NewCachedFetchStage(cache.New(cache.Config{
				Size: 1024, Associativity: 2, BlockSize: 64, HitLatency: 1, MissLatency: 4,
			}))
		})

		It("should stall for the miss latency minus the IF cycle", func() {
			stalls := 0
			for stage.Fetch(0x40) {
				stalls++
			}
			Expect(stalls).To(Equal(3))
			Expect(stage.CacheStats().Misses).To(Equal(uint64(1)))
		})

		It("should fetch the rest of the line without stalling", func() {
			for stage.Fetch(0x40) {
			}
			Expect(stage.Fetch(0x44)).To(BeFalse())
			Expect(stage.Fetch(0x7C)).To(BeFalse())
			Expect(stage.CacheStats().Hits).To(Equal(uint64(2)))
		})

		It("should drop a pending miss when the PC changes", func() {
			Expect(stage.Fetch(0x40)).To(BeTrue())
			Expect(stage.Fetch(0x80)).To(BeTrue())

			stalls := 1
			for stage.Fetch(0x80) {
				stalls++
			}
			Expect(stalls).To(Equal(3))
			Expect(stage.CacheStats().Misses).To(Equal(uint64(2)))
		})

		It("should forget cached lines on reset", func() {
			for stage.Fetch(0x40) {
			}
			stage.Reset()
			Expect(stage.Fetch(0x40)).To(BeTrue())
			Expect(stage.CacheStats().Misses).To(Equal(uint64(1)))
		})
	})
})
