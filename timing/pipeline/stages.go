package pipeline

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// FetchStage handles instruction fetch from the program image.
type FetchStage struct {
	program *ProgramImage
}

// NewFetchStage creates a new fetch stage.
func NewFetchStage(program *ProgramImage) *FetchStage {
	return &FetchStage{
		program: program,
	}
}

// Fetch reads the instruction at the given PC. It returns false if the PC
// does not address a program word.
func (s *FetchStage) Fetch(pc uint64) (uint32, bool) {
	return s.program.Word(pc)
}

// DecodeStage handles instruction decode and register read.
type DecodeStage struct {
	regFile *emu.RegFile
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(regFile *emu.RegFile) *DecodeStage {
	return &DecodeStage{
		regFile: regFile,
	}
}

// Decode decodes the instruction word held in IF/ID.
func (s *DecodeStage) Decode(ifid *IFIDRegister) (*insts.Instruction, error) {
	return insts.Decode(ifid.InstructionWord)
}

// Issue reads the source registers of inst and builds the ID/EX contents.
func (s *DecodeStage) Issue(inst *insts.Instruction, ifid *IFIDRegister) IDEXRegister {
	return IDEXRegister{
		Valid:           true,
		PC:              ifid.PC,
		Inst:            inst,
		Rs1Value:        s.regFile.ReadReg(inst.Rs1),
		Rs2Value:        s.regFile.ReadReg(inst.Rs2),
		Rd:              inst.Rd,
		Rs1:             inst.Rs1,
		Rs2:             inst.Rs2,
		MemRead:         inst.IsLoad(),
		MemWrite:        inst.IsStore(),
		RegWrite:        inst.RegWrite,
		MemToReg:        inst.IsLoad(),
		IsControl:       inst.IsControl,
		PredictedTaken:  ifid.PredictedTaken,
		PredictedTarget: ifid.PredictedTarget,
	}
}

// ExecuteStage handles ALU operations, address calculation and control
// transfer resolution.
type ExecuteStage struct{}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage() *ExecuteStage {
	return &ExecuteStage{}
}

// ExecuteResult holds the result of the execute stage.
type ExecuteResult struct {
	ALUResult  uint64
	StoreValue uint64

	// Control transfer result. NextPC is the address of the next
	// instruction on the correct path.
	Taken  bool
	NextPC uint64
}

// Execute performs ALU operations or address calculation.
func (s *ExecuteStage) Execute(idex *IDEXRegister, rs1, rs2 uint64) ExecuteResult {
	result := ExecuteResult{NextPC: idex.PC + 4}
	inst := idex.Inst

	if inst == nil || inst.IsExit() {
		return result
	}

	if inst.IsControl {
		result.Taken, result.NextPC = emu.ResolveControl(inst, idex.PC, rs1, rs2)
		result.ALUResult = idex.PC + 4 // Link address for jal/jalr
		return result
	}

	a, b := emu.Operands(inst, idex.PC, rs1, rs2)
	result.ALUResult = emu.Execute(inst.AluOp, a, b)
	if inst.IsStore() {
		result.StoreValue = rs2
	}

	return result
}

// MemoryStage handles memory load/store operations.
type MemoryStage struct {
	memory *emu.Memory
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage(memory *emu.Memory) *MemoryStage {
	return &MemoryStage{
		memory: memory,
	}
}

// MemoryResult holds the result of the memory stage.
type MemoryResult struct {
	MemData uint64

	// Write is set for stores.
	Write *MemoryWrite
}

// Access performs memory read or write.
func (s *MemoryStage) Access(exmem *EXMEMRegister) MemoryResult {
	result := MemoryResult{}

	if !exmem.Valid || exmem.Inst == nil {
		return result
	}

	width := int(exmem.Inst.MemWidth)
	if exmem.MemRead {
		result.MemData = s.memory.Load(exmem.ALUResult, width, exmem.Inst.MemSigned)
	} else if exmem.MemWrite {
		s.memory.Store(exmem.ALUResult, width, exmem.StoreValue)
		result.Write = &MemoryWrite{
			Addr:  exmem.ALUResult,
			Width: exmem.Inst.MemWidth,
			Value: truncate(exmem.StoreValue, width),
		}
	}

	return result
}

func truncate(value uint64, width int) uint64 {
	if width >= 8 {
		return value
	}
	return value & (1<<(uint(width)*8) - 1)
}

// WritebackStage handles register file writeback.
type WritebackStage struct {
	regFile *emu.RegFile
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(regFile *emu.RegFile) *WritebackStage {
	return &WritebackStage{
		regFile: regFile,
	}
}

// Writeback writes the result to the register file. It returns the write
// and true if a register was written.
func (s *WritebackStage) Writeback(memwb *MEMWBRegister) (RegisterWrite, bool) {
	if !memwb.Valid || !memwb.RegWrite || memwb.Rd == 0 {
		return RegisterWrite{}, false
	}

	value := memwb.Result()
	s.regFile.WriteReg(memwb.Rd, value)

	return RegisterWrite{Reg: memwb.Rd, Value: value}, true
}
