// Package pipeline provides the 5-stage pipeline implementation for timing simulation.
package pipeline

import "github.com/sarchlab/rvsim/insts"

// IFIDRegister holds state between Fetch and Decode stages.
type IFIDRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// Stalled is set when the register kept its contents because Decode stalled.
	Stalled bool

	// PC is the program counter of the fetched instruction.
	PC uint64

	// InstructionWord is the raw 32-bit instruction word.
	InstructionWord uint32

	// PredictedTaken indicates if the branch predictor redirected fetch.
	PredictedTaken bool

	// PredictedTarget is the PC fetch was redirected to.
	PredictedTarget uint64
}

// Clear resets the IF/ID register to empty state.
func (r *IFIDRegister) Clear() {
	*r = IFIDRegister{}
}

// IDEXRegister holds state between Decode and Execute stages.
type IDEXRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// Stalled is set when the register kept its contents because Execute stalled.
	Stalled bool

	// PC is the program counter of the instruction.
	PC uint64

	// Inst is the decoded instruction.
	Inst *insts.Instruction

	// Register values read from the register file.
	Rs1Value uint64
	Rs2Value uint64

	// Register numbers for hazard detection.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Control signals.
	MemRead   bool // True for load instructions
	MemWrite  bool // True for store instructions
	RegWrite  bool // True if instruction writes to register
	MemToReg  bool // True if result comes from memory (load)
	IsControl bool // True for branches, jal and jalr

	// Branch prediction info (propagated from IF/ID).
	PredictedTaken  bool
	PredictedTarget uint64
}

// Clear resets the ID/EX register to empty state.
func (r *IDEXRegister) Clear() {
	*r = IDEXRegister{}
}

// EXMEMRegister holds state between Execute and Memory stages.
type EXMEMRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// Stalled is set when the register kept its contents because Memory stalled.
	Stalled bool

	// PC is the program counter of the instruction.
	PC uint64

	// Inst is the decoded instruction.
	Inst *insts.Instruction

	// ALU result (address for load/store, result for ALU ops, link for jal/jalr).
	ALUResult uint64

	// Value to store for store instructions.
	StoreValue uint64

	// Destination register number.
	Rd uint8

	// Control signals (propagated from ID/EX).
	MemRead  bool
	MemWrite bool
	RegWrite bool
	MemToReg bool
}

// Clear resets the EX/MEM register to empty state.
func (r *EXMEMRegister) Clear() {
	*r = EXMEMRegister{}
}

// MEMWBRegister holds state between Memory and Writeback stages.
type MEMWBRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// Stalled is always false; Writeback never stalls. It is kept so every
	// latch carries the same bookkeeping.
	Stalled bool

	// PC is the program counter of the instruction.
	PC uint64

	// Inst is the decoded instruction.
	Inst *insts.Instruction

	// ALU result (for ALU instructions).
	ALUResult uint64

	// Data read from memory (for load instructions).
	MemData uint64

	// Destination register number.
	Rd uint8

	// Control signals.
	RegWrite bool
	MemToReg bool // True if result comes from memory
}

// Clear resets the MEM/WB register to empty state.
func (r *MEMWBRegister) Clear() {
	*r = MEMWBRegister{}
}

// Result returns the value the instruction writes back.
func (r *MEMWBRegister) Result() uint64 {
	if r.MemToReg {
		return r.MemData
	}
	return r.ALUResult
}
