package pipeline

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/latency"
)

const (
	// minCacheLoadLatency is the execute-stage latency of loads when the
	// D-cache is enabled. The memory timing is charged in MEM, so EX only
	// spends one cycle on address generation.
	minCacheLoadLatency = 1
)

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions completed (retired).
	Instructions uint64
	// Stalls is the number of cycles Decode stalled on a data hazard.
	Stalls uint64
	// Flushes is the number of redirects from Execute.
	Flushes uint64
	// ExecStalls is the number of stalls due to multi-cycle execution.
	ExecStalls uint64
	// MemStalls is the number of stalls due to memory latency.
	MemStalls uint64
	// FetchStalls is the number of cycles fetch waited on the I-cache.
	FetchStalls uint64
	// DataHazards is the number of RAW hazards that needed a stall.
	DataHazards uint64
	// Forwards is the number of operands taken from a pipeline register.
	Forwards uint64
	// DecodeErrors is the number of undecodable words turned into bubbles.
	DecodeErrors uint64
	// BranchPredictions is the number of resolved control transfers.
	BranchPredictions uint64
	// BranchCorrect is the number of control transfers fetch followed correctly.
	BranchCorrect uint64
	// BranchMispredictions is the number of control transfers that redirected.
	BranchMispredictions uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithForwarding enables EX/MEM and MEM/WB operand forwarding. Only
// load-use hazards stall.
func WithForwarding() PipelineOption {
	return func(p *Pipeline) {
		p.hazardUnit = NewHazardUnit(true)
	}
}

// WithBranchPredictor enables fetch-time branch prediction. Without it,
// fetch always falls through and every taken transfer costs two bubbles.
func WithBranchPredictor(config BranchPredictorConfig) PipelineOption {
	return func(p *Pipeline) {
		p.branchPredictor = NewBranchPredictor(config)
	}
}

// WithLatencyTable sets a custom latency table for instruction timing.
// When set, multi-cycle operations will stall the pipeline appropriately.
func WithLatencyTable(table *latency.Table) PipelineOption {
	return func(p *Pipeline) {
		p.latencyTable = table
	}
}

// WithDCache enables the L1 data cache timing model with the given configuration.
func WithDCache(config cache.Config) PipelineOption {
	return func(p *Pipeline) {
		p.cachedMemoryStage = NewCachedMemoryStage(cache.New(config))
	}
}

// WithICache enables the L1 instruction cache timing model with the given
// configuration.
func WithICache(config cache.Config) PipelineOption {
	return func(p *Pipeline) {
		p.cachedFetchStage = NewCachedFetchStage(cache.New(config))
	}
}

// WithLogger sets the logger used for the cycle trace and diagnostics.
func WithLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline implements a 5-stage pipelined CPU model.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MEM) -> Writeback (WB)
type Pipeline struct {
	// Pipeline registers
	ifid  IFIDRegister
	idex  IDEXRegister
	exmem EXMEMRegister
	memwb MEMWBRegister

	// Pipeline stages
	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	// Optional I-cache and D-cache timing
	cachedFetchStage  *CachedFetchStage
	cachedMemoryStage *CachedMemoryStage

	// Hazard detection
	hazardUnit *HazardUnit

	// Branch prediction (nil means static not-taken)
	branchPredictor *BranchPredictor

	// Instruction timing
	latencyTable *latency.Table
	exLatency    uint64 // Remaining cycles for execute stage

	// Shared resources
	program *ProgramImage
	regFile *emu.RegFile
	memory  *emu.Memory

	// Program counter
	pc uint64

	// Fetch control
	fetchHalted bool   // EXIT was decoded
	fetchFault  bool   // Fetch left the program
	faultPC     uint64 // PC of the failed fetch

	// What each stage did in the last cycle
	views [NumStages]StageView

	// Statistics
	stats Statistics

	logger *logrus.Logger

	// Execution state
	terminated bool
	reason     Reason
	err        error
}

// NewPipeline creates a new 5-stage pipeline that executes program from its
// entry address. Loads and stores use memory.
func NewPipeline(
	program *ProgramImage,
	regFile *emu.RegFile,
	memory *emu.Memory,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		fetchStage:     NewFetchStage(program),
		decodeStage:    NewDecodeStage(regFile),
		executeStage:   NewExecuteStage(),
		memoryStage:    NewMemoryStage(memory),
		writebackStage: NewWritebackStage(regFile),
		hazardUnit:     NewHazardUnit(false),
		program:        program,
		regFile:        regFile,
		memory:         memory,
		pc:             program.Entry(),
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logrus.New()
		p.logger.SetOutput(io.Discard)
	}

	p.regFile.PC = p.pc
	p.resetViews()

	return p
}

// PC returns the current fetch program counter.
func (p *Pipeline) PC() uint64 {
	return p.pc
}

// MemoryWords returns a copy of the non-zero words of data memory.
func (p *Pipeline) MemoryWords() []emu.Word {
	return p.memory.Words()
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// Terminated returns true if the pipeline has terminated.
func (p *Pipeline) Terminated() bool {
	return p.terminated
}

// Reason returns why the pipeline terminated.
func (p *Pipeline) Reason() Reason {
	return p.reason
}

// Err returns the fatal error that terminated the pipeline, if any.
func (p *Pipeline) Err() error {
	return p.err
}

// Forwarding returns true if operand forwarding is enabled.
func (p *Pipeline) Forwarding() bool {
	return p.hazardUnit.Forwarding()
}

// BranchPredictorStats returns predictor statistics, or empty if the
// predictor is disabled.
func (p *Pipeline) BranchPredictorStats() BranchPredictorStats {
	if p.branchPredictor != nil {
		return p.branchPredictor.Stats()
	}
	return BranchPredictorStats{}
}

// UseBranchPredictor returns true if the branch predictor is enabled.
func (p *Pipeline) UseBranchPredictor() bool {
	return p.branchPredictor != nil
}

// DCacheStats returns D-cache statistics, or empty if D-cache not enabled.
func (p *Pipeline) DCacheStats() cache.Statistics {
	if p.cachedMemoryStage != nil {
		return p.cachedMemoryStage.CacheStats()
	}
	return cache.Statistics{}
}

// ICacheStats returns I-cache statistics, or empty if I-cache not enabled.
func (p *Pipeline) ICacheStats() cache.Statistics {
	if p.cachedFetchStage != nil {
		return p.cachedFetchStage.CacheStats()
	}
	return cache.Statistics{}
}

// UseICache returns true if I-cache is enabled.
func (p *Pipeline) UseICache() bool {
	return p.cachedFetchStage != nil
}

// UseDCache returns true if D-cache is enabled.
func (p *Pipeline) UseDCache() bool {
	return p.cachedMemoryStage != nil
}

// Run executes the pipeline until it terminates and returns the final report.
func (p *Pipeline) Run() StepReport {
	for {
		report := p.Tick()
		if report.Terminated {
			return report
		}
	}
}

// Tick executes one pipeline cycle.
//
// Stages are evaluated in reverse order (WB→MEM→EX→ID→IF) to compute new
// values before latching them into pipeline registers at cycle end, so no
// stage sees a value produced by a younger stage in the same cycle. The
// register file is the exception by construction: Writeback commits before
// Decode reads it.
//
// Hazard handling:
//   - RAW hazards stall ID (or, with forwarding, only load-use hazards do)
//   - Control transfers resolve in EX; a redirect flushes IF/ID and ID/EX
//   - Multi-cycle EX operations hold ID/EX and send bubbles to MEM
//   - D-cache latency holds everything up to EX/MEM and sends bubbles to WB
//   - I-cache latency holds the fetch PC and sends bubbles to ID
func (p *Pipeline) Tick() StepReport {
	if p.terminated {
		return p.terminalReport()
	}

	p.stats.Cycles++
	report := StepReport{Cycle: p.stats.Cycles}
	views := emptyViews()

	// Stage 5: Writeback
	savedMEMWB := p.memwb
	if write, ok := p.writebackStage.Writeback(&p.memwb); ok {
		report.RegisterWrites = append(report.RegisterWrites, write)
	}
	views[StageWriteback] = p.viewMEMWB(&savedMEMWB)
	if p.memwb.Valid {
		p.stats.Instructions++
		report.Retired = &RetiredInstruction{
			PC:     p.memwb.PC,
			Word:   p.memwb.Inst.Word,
			Disasm: p.memwb.Inst.String(),
		}

		if p.memwb.Inst.IsExit() {
			p.memwb.Clear()
			p.views = views
			p.terminate(ReasonExitInstruction, nil)
			p.trace(&report)
			return p.finish(report)
		}
	}

	// Stage 4: Memory
	var nextMEMWB MEMWBRegister
	memStall := false
	if p.exmem.Valid {
		if p.cachedMemoryStage != nil {
			memStall = p.cachedMemoryStage.Access(&p.exmem)
		}

		if memStall {
			p.stats.MemStalls++
		} else {
			memResult := p.memoryStage.Access(&p.exmem)
			if memResult.Write != nil {
				report.MemoryWrites = append(report.MemoryWrites, *memResult.Write)
			}

			nextMEMWB = MEMWBRegister{
				Valid:     true,
				PC:        p.exmem.PC,
				Inst:      p.exmem.Inst,
				ALUResult: p.exmem.ALUResult,
				MemData:   memResult.MemData,
				Rd:        p.exmem.Rd,
				RegWrite:  p.exmem.RegWrite,
				MemToReg:  p.exmem.MemToReg,
			}
		}
	}
	views[StageMemory] = p.viewEXMEM(&p.exmem, &nextMEMWB, memStall)

	// Stage 3: Execute
	var nextEXMEM EXMEMRegister
	execStall := false
	redirect := false
	var redirectPC uint64
	if p.idex.Valid && !memStall {
		execStall = p.advanceExecLatency()

		if execStall {
			p.stats.ExecStalls++
		} else {
			rs1Value, rs2Value := p.operands(&savedMEMWB)
			execResult := p.executeStage.Execute(&p.idex, rs1Value, rs2Value)

			redirect, redirectPC = p.resolveControl(execResult)

			nextEXMEM = EXMEMRegister{
				Valid:      true,
				PC:         p.idex.PC,
				Inst:       p.idex.Inst,
				ALUResult:  execResult.ALUResult,
				StoreValue: execResult.StoreValue,
				Rd:         p.idex.Rd,
				MemRead:    p.idex.MemRead,
				MemWrite:   p.idex.MemWrite,
				RegWrite:   p.idex.RegWrite,
				MemToReg:   p.idex.MemToReg,
			}
		}
	}
	views[StageExecute] = p.viewIDEX(&p.idex, nextEXMEM.ALUResult, execStall || memStall)

	// Stage 2: Decode
	var nextIDEX IDEXRegister
	dataHazard := false
	if p.ifid.Valid && !redirect && !execStall && !memStall {
		inst, err := p.decodeStage.Decode(&p.ifid)
		switch {
		case err != nil:
			p.stats.DecodeErrors++
			diag := errors.Wrapf(err, "pc 0x%x", p.ifid.PC)
			report.Diagnostics = append(report.Diagnostics, diag)
			p.logger.WithFields(logrus.Fields{
				"cycle": p.stats.Cycles,
				"pc":    p.ifid.PC,
				"word":  p.ifid.InstructionWord,
			}).Warn("undecodable instruction replaced by bubble")
		case p.hazardUnit.DetectDataHazard(inst, &p.idex, &p.exmem):
			dataHazard = true
			p.stats.DataHazards++
			p.stats.Stalls++
		default:
			nextIDEX = p.decodeStage.Issue(inst, &p.ifid)
			if inst.IsExit() {
				p.fetchHalted = true
			}
		}
	}
	stalls := p.hazardUnit.ComputeStalls(dataHazard, redirect)
	views[StageDecode] = p.viewIFID(&p.ifid, stalls.StallID || execStall || memStall)
	if redirect {
		views[StageDecode].Valid = false
	}

	// Stage 1: Fetch
	var nextIFID IFIDRegister
	frontStall := stalls.StallIF || execStall || memStall
	switch {
	case stalls.FlushIF:
		// Fetch restarts at the correct target next cycle.
		p.pc = redirectPC
		p.fetchHalted = false
		p.fetchFault = false
		p.stats.Flushes++
	case frontStall:
		nextIFID = p.ifid
		nextIFID.Stalled = true
		views[StageFetch] = StageView{Stage: StageFetch, Stalled: true, PC: p.pc}
	case p.fetchHalted || p.fetchFault:
		// Nothing to fetch until a redirect.
	case p.icacheStall():
		p.stats.FetchStalls++
		views[StageFetch] = StageView{Stage: StageFetch, Stalled: true, PC: p.pc}
	default:
		nextIFID = p.fetch()
		views[StageFetch] = p.viewFetch(&nextIFID)
	}

	// Latch pipeline registers
	if memStall {
		p.memwb.Clear()
		p.exmem.Stalled = true
		p.idex.Stalled = p.idex.Valid
	} else {
		p.memwb = nextMEMWB
		switch {
		case execStall:
			p.exmem.Clear()
			p.idex.Stalled = true
		case stalls.FlushID || stalls.InsertBubbleEX:
			p.exmem = nextEXMEM
			p.idex.Clear()
		default:
			p.exmem = nextEXMEM
			p.idex = nextIDEX
		}
	}
	p.ifid = nextIFID

	report.Stalled = dataHazard || execStall || memStall
	report.Flushed = redirect
	p.views = views

	if p.fetchFault && p.drained() {
		err := errors.Wrapf(ErrFetchOutOfRange, "pc 0x%x", p.faultPC)
		p.logger.WithFields(logrus.Fields{
			"cycle": p.stats.Cycles,
			"pc":    p.faultPC,
		}).Error("program ran past its last instruction")
		p.terminate(ReasonFetchOutOfRange, err)
	}

	p.trace(&report)
	return p.finish(report)
}

// advanceExecLatency counts down the latency of the instruction in EX and
// returns true while it must stay there.
func (p *Pipeline) advanceExecLatency() bool {
	if p.latencyTable == nil {
		return false
	}

	if p.exLatency == 0 {
		if p.cachedMemoryStage != nil && p.latencyTable.IsLoadOp(p.idex.Inst) {
			p.exLatency = minCacheLoadLatency
		} else {
			p.exLatency = p.latencyTable.GetLatency(p.idex.Inst)
		}
	}

	if p.exLatency > 0 {
		p.exLatency--
	}

	return p.exLatency > 0
}

// operands returns the source values of the instruction in EX. Without
// forwarding the values read in ID are final. With forwarding the register
// file is read again, since the instruction may have waited in ID/EX while
// producers retired, and newer values come from EX/MEM and MEM/WB.
func (p *Pipeline) operands(savedMEMWB *MEMWBRegister) (uint64, uint64) {
	if !p.hazardUnit.Forwarding() {
		return p.idex.Rs1Value, p.idex.Rs2Value
	}

	forwarding := p.hazardUnit.DetectForwarding(&p.idex, &p.exmem, savedMEMWB)
	if forwarding.ForwardRs1 != ForwardNone {
		p.stats.Forwards++
	}
	if forwarding.ForwardRs2 != ForwardNone {
		p.stats.Forwards++
	}

	rs1 := p.hazardUnit.GetForwardedValue(
		forwarding.ForwardRs1, p.regFile.ReadReg(p.idex.Rs1), &p.exmem, savedMEMWB)
	rs2 := p.hazardUnit.GetForwardedValue(
		forwarding.ForwardRs2, p.regFile.ReadReg(p.idex.Rs2), &p.exmem, savedMEMWB)

	return rs1, rs2
}

// resolveControl compares the outcome of the instruction in EX with the path
// fetch followed and returns the PC to restart from if they differ.
func (p *Pipeline) resolveControl(execResult ExecuteResult) (bool, uint64) {
	if !p.idex.IsControl && !p.idex.PredictedTaken {
		return false, 0
	}

	fetchedNext := p.idex.PC + 4
	if p.idex.PredictedTaken {
		fetchedNext = p.idex.PredictedTarget
	}

	if p.idex.IsControl {
		p.stats.BranchPredictions++
		if p.branchPredictor != nil {
			p.branchPredictor.Update(p.idex.PC, execResult.Taken, execResult.NextPC)
		}
	}

	if execResult.NextPC == fetchedNext {
		p.stats.BranchCorrect++
		return false, 0
	}

	p.stats.BranchMispredictions++
	return true, execResult.NextPC
}

// icacheStall looks up the fetch PC in the I-cache and returns true while the
// line is still being filled. PCs outside the program are not looked up, so
// running off the end faults without a miss penalty.
func (p *Pipeline) icacheStall() bool {
	if p.cachedFetchStage == nil {
		return false
	}
	if _, ok := p.program.Word(p.pc); !ok {
		return false
	}
	return p.cachedFetchStage.Fetch(p.pc)
}

// fetch reads the word at PC and advances PC along the predicted path.
func (p *Pipeline) fetch() IFIDRegister {
	word, ok := p.fetchStage.Fetch(p.pc)
	if !ok {
		p.fetchFault = true
		p.faultPC = p.pc
		return IFIDRegister{}
	}

	next := IFIDRegister{
		Valid:           true,
		PC:              p.pc,
		InstructionWord: word,
	}

	if p.branchPredictor != nil {
		pred := p.branchPredictor.Predict(p.pc)
		if pred.Taken {
			next.PredictedTaken = true
			next.PredictedTarget = pred.Target
			p.pc = pred.Target
			return next
		}
	}

	p.pc += 4
	return next
}

func (p *Pipeline) drained() bool {
	return !p.ifid.Valid && !p.idex.Valid && !p.exmem.Valid && !p.memwb.Valid
}

func (p *Pipeline) terminate(reason Reason, err error) {
	p.terminated = true
	p.reason = reason
	p.err = err
	p.regFile.PC = p.pc
}

func (p *Pipeline) finish(report StepReport) StepReport {
	p.regFile.PC = p.pc
	report.Terminated = p.terminated
	report.Reason = p.reason
	report.Err = p.err
	return report
}

func (p *Pipeline) terminalReport() StepReport {
	return StepReport{
		Cycle:      p.stats.Cycles,
		Terminated: true,
		Reason:     p.reason,
		Err:        p.err,
	}
}

// trace emits the per-cycle debug entry.
func (p *Pipeline) trace(report *StepReport) {
	if !p.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	fields := logrus.Fields{
		"cycle":   report.Cycle,
		"pc":      p.pc,
		"stalled": report.Stalled,
		"flushed": report.Flushed,
	}
	for _, view := range p.views {
		disasm := "-"
		if view.Valid {
			disasm = view.Disasm
		}
		fields[view.Stage.String()] = disasm
	}

	p.logger.WithFields(fields).Debug("pipeline tick")
}

// Reset restores the pipeline to its state right after construction, with
// the given register values and data memory.
func (p *Pipeline) Reset(registers [emu.NumRegs]uint64, memory *emu.Memory) {
	p.ifid.Clear()
	p.idex.Clear()
	p.exmem.Clear()
	p.memwb.Clear()

	p.regFile.Load(registers)
	p.memory = memory
	p.memoryStage.memory = memory

	p.pc = p.program.Entry()
	p.regFile.PC = p.pc
	p.exLatency = 0
	p.fetchHalted = false
	p.fetchFault = false
	p.faultPC = 0
	p.stats = Statistics{}
	p.terminated = false
	p.reason = ReasonNone
	p.err = nil
	p.resetViews()

	if p.branchPredictor != nil {
		p.branchPredictor.Reset()
	}
	if p.cachedFetchStage != nil {
		p.cachedFetchStage.Reset()
	}
	if p.cachedMemoryStage != nil {
		p.cachedMemoryStage.Reset()
	}
}

// Snapshot returns a copy of the current state.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		PC:         p.pc,
		Cycle:      p.stats.Cycles,
		Registers:  p.regFile.Values(),
		Stages:     p.views,
		Terminated: p.terminated,
		Reason:     p.reason,
		Stats:      p.stats,
	}
}

func (p *Pipeline) resetViews() {
	p.views = emptyViews()
}

func emptyViews() [NumStages]StageView {
	var views [NumStages]StageView
	for i := range views {
		views[i].Stage = Stage(i)
	}
	return views
}

func (p *Pipeline) viewFetch(ifid *IFIDRegister) StageView {
	view := StageView{Stage: StageFetch, PC: ifid.PC}
	if ifid.Valid {
		view.Valid = true
		view.Word = ifid.InstructionWord
		view.Disasm = insts.Disassemble(ifid.InstructionWord)
	}
	return view
}

func (p *Pipeline) viewIFID(ifid *IFIDRegister, stalled bool) StageView {
	view := p.viewFetch(ifid)
	view.Stage = StageDecode
	view.Stalled = stalled && ifid.Valid
	return view
}

func (p *Pipeline) viewIDEX(idex *IDEXRegister, result uint64, stalled bool) StageView {
	view := StageView{Stage: StageExecute, PC: idex.PC}
	if idex.Valid {
		view.Valid = true
		view.Stalled = stalled
		view.Word = idex.Inst.Word
		view.Disasm = idex.Inst.String()
		view.Result = result
	}
	return view
}

func (p *Pipeline) viewEXMEM(exmem *EXMEMRegister, next *MEMWBRegister, stalled bool) StageView {
	view := StageView{Stage: StageMemory, PC: exmem.PC}
	if exmem.Valid {
		view.Valid = true
		view.Stalled = stalled
		view.Word = exmem.Inst.Word
		view.Disasm = exmem.Inst.String()
		view.Result = next.Result()
	}
	return view
}

func (p *Pipeline) viewMEMWB(memwb *MEMWBRegister) StageView {
	view := StageView{Stage: StageWriteback, PC: memwb.PC}
	if memwb.Valid {
		view.Valid = true
		view.Word = memwb.Inst.Word
		view.Disasm = memwb.Inst.String()
		view.Result = memwb.Result()
	}
	return view
}
