package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvsim/insts"
)

// ErrNoInstruction is returned when the PC does not address a program word.
var ErrNoInstruction = errors.New("no instruction at pc")

// ErrMaxInstructions is returned when the instruction limit is reached.
var ErrMaxInstructions = errors.New("max instructions reached")

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program executed EXIT.
	Exited bool

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes RISC-V instructions functionally, one instruction per
// step, without modeling the pipeline. It is the reference the timing model
// is checked against.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	program map[uint64]uint32

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	exited           bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithRegFile uses the given register file instead of an empty one.
func WithRegFile(regFile *RegFile) EmulatorOption {
	return func(e *Emulator) {
		e.regFile = regFile
	}
}

// WithMemory uses the given data memory instead of an empty one.
func WithMemory(memory *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = memory
	}
}

// NewEmulator creates a new RISC-V emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
		program: make(map[uint64]uint32),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's data memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram installs the program words and sets the entry point.
func (e *Emulator) LoadProgram(entry uint64, program map[uint64]uint32) {
	e.program = program
	e.regFile.PC = entry
	e.instructionCount = 0
	e.exited = false
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.exited {
		return StepResult{Exited: true}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := e.regFile.PC
	word, ok := e.program[pc]
	if !ok {
		return StepResult{Err: fmt.Errorf("%w: 0x%x", ErrNoInstruction, pc)}
	}

	inst, err := insts.Decode(word)
	if err != nil {
		return StepResult{Err: fmt.Errorf("pc 0x%x: %w", pc, err)}
	}

	e.instructionCount++
	result := e.execute(inst, pc)
	return result
}

// Run executes until EXIT or an error.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Exited {
			return nil
		}
	}
}

func (e *Emulator) execute(inst *insts.Instruction, pc uint64) StepResult {
	rs1 := e.regFile.ReadReg(inst.Rs1)
	rs2 := e.regFile.ReadReg(inst.Rs2)
	nextPC := pc + 4

	switch {
	case inst.IsExit():
		e.exited = true
		return StepResult{Exited: true}

	case inst.IsControl:
		_, target := ResolveControl(inst, pc, rs1, rs2)
		if inst.RegWrite {
			e.regFile.WriteReg(inst.Rd, pc+4)
		}
		nextPC = target

	case inst.IsLoad():
		addr := rs1 + uint64(inst.Imm)
		value := e.memory.Load(addr, int(inst.MemWidth), inst.MemSigned)
		e.regFile.WriteReg(inst.Rd, value)

	case inst.IsStore():
		addr := rs1 + uint64(inst.Imm)
		e.memory.Store(addr, int(inst.MemWidth), rs2)

	default:
		a, b := Operands(inst, pc, rs1, rs2)
		if inst.RegWrite {
			e.regFile.WriteReg(inst.Rd, Execute(inst.AluOp, a, b))
		}
	}

	e.regFile.PC = nextPC
	return StepResult{}
}
