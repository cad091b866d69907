package insts

import (
	"errors"
	"fmt"
)

// Op represents a RISC-V operation.
type Op uint16

// Supported operations.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpOR
	OpXOR
	OpSLL
	OpSLT
	OpSRL
	OpSRA
	OpMUL
	OpDIV
	OpREM
	OpADDI
	OpANDI
	OpORI
	OpXORI
	OpSLTI
	OpSLTIU
	OpSLLI
	OpSRLI
	OpSRAI
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW
	OpSD
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpEXIT
)

var opNames = map[Op]string{
	OpADD: "add", OpSUB: "sub", OpAND: "and", OpOR: "or", OpXOR: "xor",
	OpSLL: "sll", OpSLT: "slt", OpSRL: "srl", OpSRA: "sra",
	OpMUL: "mul", OpDIV: "div", OpREM: "rem",
	OpADDI: "addi", OpANDI: "andi", OpORI: "ori", OpXORI: "xori",
	OpSLTI: "slti", OpSLTIU: "sltiu",
	OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLD: "ld", OpLBU: "lbu", OpLHU: "lhu",
	OpSB: "sb", OpSH: "sh", OpSW: "sw", OpSD: "sd",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge",
	OpLUI: "lui", OpAUIPC: "auipc", OpJAL: "jal", OpJALR: "jalr",
	OpEXIT: "exit",
}

// String returns the assembler mnemonic of the operation.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown"
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR              // register-register
	FormatI              // register-immediate, loads, jalr
	FormatS              // stores
	FormatB              // conditional branches
	FormatU              // lui, auipc
	FormatJ              // jal
	FormatExit           // simulator EXIT sentinel
)

// Primary opcodes (bits 0-6).
const (
	OpcodeLoad   uint8 = 0x03
	OpcodeOpImm  uint8 = 0x13
	OpcodeAUIPC  uint8 = 0x17
	OpcodeStore  uint8 = 0x23
	OpcodeOp     uint8 = 0x33
	OpcodeLUI    uint8 = 0x37
	OpcodeBranch uint8 = 0x63
	OpcodeJALR   uint8 = 0x67
	OpcodeJAL    uint8 = 0x6F
	OpcodeExit   uint8 = 0x11
)

// AluOp selects the function computed by the execution unit.
type AluOp uint8

// ALU functions.
const (
	AluNone AluOp = iota
	AluAdd
	AluSub
	AluAnd
	AluOr
	AluXor
	AluSll
	AluSrl
	AluSra
	AluSlt
	AluSltu
	AluMul
	AluDiv
	AluRem
	AluPassB // result = operand b (lui)
)

// BranchKind identifies the comparison of a conditional branch.
type BranchKind uint8

// Branch comparisons. All comparisons are signed.
const (
	BranchNone BranchKind = iota
	BranchEQ
	BranchNE
	BranchLT
	BranchGE
)

// MemKind tells whether an instruction reads or writes data memory.
type MemKind uint8

// Memory access kinds.
const (
	MemNone MemKind = iota
	MemRead
	MemWrite
)

// Instruction represents a decoded RISC-V instruction. Instructions returned
// by Decode are never mutated afterwards.
type Instruction struct {
	Op     Op     // Operation
	Format Format // Encoding format
	Word   uint32 // Raw instruction word

	// Raw fields
	Opcode uint8
	Funct3 uint8
	Funct7 uint8

	Rd  uint8 // Destination register
	Rs1 uint8 // First source register
	Rs2 uint8 // Second source register

	Imm int64 // Sign-extended immediate (shift amount for shift-immediate)

	AluOp  AluOp      // Function for the execute stage
	UseImm bool       // Second ALU operand is Imm instead of rs2
	Branch BranchKind // Comparison for conditional branches

	Mem       MemKind // Data memory access
	MemWidth  uint8   // Access width in bytes (1, 2, 4, 8)
	MemSigned bool    // Sign-extend loaded value

	RegWrite  bool // Writes Rd at writeback
	UsesRs1   bool // Reads Rs1
	UsesRs2   bool // Reads Rs2
	IsControl bool // Control transfer (branch, jal, jalr)
}

// IsLoad returns true for load instructions.
func (i *Instruction) IsLoad() bool { return i.Mem == MemRead }

// IsStore returns true for store instructions.
func (i *Instruction) IsStore() bool { return i.Mem == MemWrite }

// IsExit returns true for the EXIT sentinel.
func (i *Instruction) IsExit() bool { return i.Op == OpEXIT }

// ErrUnknownInstruction is matched by every DecodeError.
var ErrUnknownInstruction = errors.New("unknown instruction")

// DecodeError reports a word that does not match any entry of the decode table.
type DecodeError struct {
	Word uint32
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode 0x%08x (opcode 0x%02x)", e.Word, e.Word&0x7F)
}

// Is makes DecodeError match ErrUnknownInstruction.
func (e *DecodeError) Is(target error) bool {
	return target == ErrUnknownInstruction
}

// keyShape tells which function fields take part in the lookup of an opcode.
type keyShape uint8

const (
	shapeOpcode   keyShape = iota // opcode only
	shapeFunct3                   // opcode + funct3
	shapeFull                     // opcode + funct3 + funct7
	shapeShiftImm                 // funct7 only for slli/srli/srai
)

var opcodeShapes = map[uint8]keyShape{
	OpcodeLoad:   shapeFunct3,
	OpcodeOpImm:  shapeShiftImm,
	OpcodeAUIPC:  shapeOpcode,
	OpcodeStore:  shapeFunct3,
	OpcodeOp:     shapeFull,
	OpcodeLUI:    shapeOpcode,
	OpcodeBranch: shapeFunct3,
	OpcodeJALR:   shapeFunct3,
	OpcodeJAL:    shapeOpcode,
	OpcodeExit:   shapeOpcode,
}

type opKey struct {
	opcode uint8
	funct3 uint8
	funct7 uint8
}

// opSpec is the decode table entry describing how to build an Instruction.
type opSpec struct {
	op     Op
	format Format
	alu    AluOp
	branch BranchKind
	mem    MemKind
	width  uint8
	signed bool
}

func rType(op Op, alu AluOp) opSpec    { return opSpec{op: op, format: FormatR, alu: alu} }
func iType(op Op, alu AluOp) opSpec    { return opSpec{op: op, format: FormatI, alu: alu} }
func bType(op Op, k BranchKind) opSpec { return opSpec{op: op, format: FormatB, branch: k} }

func load(op Op, width uint8, signed bool) opSpec {
	return opSpec{op: op, format: FormatI, alu: AluAdd, mem: MemRead, width: width, signed: signed}
}

func store(op Op, width uint8) opSpec {
	return opSpec{op: op, format: FormatS, alu: AluAdd, mem: MemWrite, width: width}
}

var opTable = map[opKey]opSpec{
	{OpcodeOp, 0x0, 0x00}: rType(OpADD, AluAdd),
	{OpcodeOp, 0x0, 0x20}: rType(OpSUB, AluSub),
	{OpcodeOp, 0x7, 0x00}: rType(OpAND, AluAnd),
	{OpcodeOp, 0x6, 0x00}: rType(OpOR, AluOr),
	{OpcodeOp, 0x4, 0x00}: rType(OpXOR, AluXor),
	{OpcodeOp, 0x1, 0x00}: rType(OpSLL, AluSll),
	{OpcodeOp, 0x2, 0x00}: rType(OpSLT, AluSlt),
	{OpcodeOp, 0x5, 0x00}: rType(OpSRL, AluSrl),
	{OpcodeOp, 0x5, 0x20}: rType(OpSRA, AluSra),
	{OpcodeOp, 0x0, 0x01}: rType(OpMUL, AluMul),
	{OpcodeOp, 0x4, 0x01}: rType(OpDIV, AluDiv),
	{OpcodeOp, 0x6, 0x01}: rType(OpREM, AluRem),

	{OpcodeOpImm, 0x0, 0}:    iType(OpADDI, AluAdd),
	{OpcodeOpImm, 0x7, 0}:    iType(OpANDI, AluAnd),
	{OpcodeOpImm, 0x6, 0}:    iType(OpORI, AluOr),
	{OpcodeOpImm, 0x4, 0}:    iType(OpXORI, AluXor),
	{OpcodeOpImm, 0x2, 0}:    iType(OpSLTI, AluSlt),
	{OpcodeOpImm, 0x3, 0}:    iType(OpSLTIU, AluSltu),
	{OpcodeOpImm, 0x1, 0x00}: iType(OpSLLI, AluSll),
	{OpcodeOpImm, 0x5, 0x00}: iType(OpSRLI, AluSrl),
	{OpcodeOpImm, 0x5, 0x20}: iType(OpSRAI, AluSra),

	{OpcodeLoad, 0x0, 0}: load(OpLB, 1, true),
	{OpcodeLoad, 0x1, 0}: load(OpLH, 2, true),
	{OpcodeLoad, 0x2, 0}: load(OpLW, 4, true),
	{OpcodeLoad, 0x3, 0}: load(OpLD, 8, true),
	{OpcodeLoad, 0x4, 0}: load(OpLBU, 1, false),
	{OpcodeLoad, 0x5, 0}: load(OpLHU, 2, false),

	{OpcodeStore, 0x0, 0}: store(OpSB, 1),
	{OpcodeStore, 0x1, 0}: store(OpSH, 2),
	{OpcodeStore, 0x2, 0}: store(OpSW, 4),
	{OpcodeStore, 0x3, 0}: store(OpSD, 8),

	{OpcodeBranch, 0x0, 0}: bType(OpBEQ, BranchEQ),
	{OpcodeBranch, 0x1, 0}: bType(OpBNE, BranchNE),
	{OpcodeBranch, 0x4, 0}: bType(OpBLT, BranchLT),
	{OpcodeBranch, 0x5, 0}: bType(OpBGE, BranchGE),

	{OpcodeLUI, 0, 0}:   {op: OpLUI, format: FormatU, alu: AluPassB},
	{OpcodeAUIPC, 0, 0}: {op: OpAUIPC, format: FormatU, alu: AluAdd},
	{OpcodeJAL, 0, 0}:   {op: OpJAL, format: FormatJ},
	{OpcodeJALR, 0, 0}:  {op: OpJALR, format: FormatI},
	{OpcodeExit, 0, 0}:  {op: OpEXIT, format: FormatExit},
}

// opKeys is the reverse of opTable, used by Encode.
var opKeys = func() map[Op]opKey {
	keys := make(map[Op]opKey, len(opTable))
	for k, spec := range opTable {
		keys[spec.op] = k
	}
	return keys
}()

// lookupKey builds the table key for the given fields.
func lookupKey(opcode, funct3, funct7 uint8) (opKey, bool) {
	shape, ok := opcodeShapes[opcode]
	if !ok {
		return opKey{}, false
	}

	switch shape {
	case shapeOpcode:
		return opKey{opcode: opcode}, true
	case shapeFunct3:
		return opKey{opcode: opcode, funct3: funct3}, true
	case shapeShiftImm:
		if funct3 == 0x1 || funct3 == 0x5 {
			return opKey{opcode, funct3, funct7}, true
		}
		return opKey{opcode: opcode, funct3: funct3}, true
	default:
		return opKey{opcode, funct3, funct7}, true
	}
}

// Decode decodes a 32-bit RISC-V instruction word. Words that are not in the
// decode table yield a *DecodeError.
func Decode(word uint32) (*Instruction, error) {
	opcode := uint8(word & 0x7F)         // bits [6:0]
	rd := uint8((word >> 7) & 0x1F)      // bits [11:7]
	funct3 := uint8((word >> 12) & 0x7)  // bits [14:12]
	rs1 := uint8((word >> 15) & 0x1F)    // bits [19:15]
	rs2 := uint8((word >> 20) & 0x1F)    // bits [24:20]
	funct7 := uint8((word >> 25) & 0x7F) // bits [31:25]

	key, ok := lookupKey(opcode, funct3, funct7)
	if !ok {
		return nil, &DecodeError{Word: word}
	}
	spec, ok := opTable[key]
	if !ok {
		return nil, &DecodeError{Word: word}
	}

	inst := &Instruction{
		Op:        spec.op,
		Format:    spec.format,
		Word:      word,
		Opcode:    opcode,
		Funct3:    funct3,
		Funct7:    funct7,
		AluOp:     spec.alu,
		Branch:    spec.branch,
		Mem:       spec.mem,
		MemWidth:  spec.width,
		MemSigned: spec.signed,
	}

	switch spec.format {
	case FormatR:
		inst.Rd, inst.Rs1, inst.Rs2 = rd, rs1, rs2
		inst.RegWrite = true
		inst.UsesRs1, inst.UsesRs2 = true, true
	case FormatI:
		inst.Rd, inst.Rs1 = rd, rs1
		inst.Imm = immI(word)
		inst.UseImm = true
		inst.RegWrite = true
		inst.UsesRs1 = true
		if opcode == OpcodeOpImm && (funct3 == 0x1 || funct3 == 0x5) {
			inst.Imm = int64(rs2) // shamt, bits [24:20]
		}
		if spec.op == OpJALR {
			inst.IsControl = true
		}
	case FormatS:
		inst.Rs1, inst.Rs2 = rs1, rs2
		inst.Imm = immS(word)
		inst.UseImm = true
		inst.UsesRs1, inst.UsesRs2 = true, true
	case FormatB:
		inst.Rs1, inst.Rs2 = rs1, rs2
		inst.Imm = immB(word)
		inst.UsesRs1, inst.UsesRs2 = true, true
		inst.IsControl = true
	case FormatU:
		inst.Rd = rd
		inst.Imm = immU(word)
		inst.UseImm = true
		inst.RegWrite = true
	case FormatJ:
		inst.Rd = rd
		inst.Imm = immJ(word)
		inst.RegWrite = true
		inst.IsControl = true
	}

	if inst.Rd == 0 {
		inst.RegWrite = false
	}

	return inst, nil
}

// signExtend sign-extends the low bits of value.
func signExtend(value uint32, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(value)<<shift) >> shift
}

// immI: sign-extend bits [31:20].
func immI(word uint32) int64 {
	return signExtend(word>>20, 12)
}

// immS: sign-extend {bits [31:25], bits [11:7]}.
func immS(word uint32) int64 {
	imm := (word>>25)<<5 | (word>>7)&0x1F
	return signExtend(imm, 12)
}

// immB: sign-extend {bit 31, bit 7, bits [30:25], bits [11:8], 0}.
func immB(word uint32) int64 {
	imm := (word>>31)&0x1<<12 |
		(word>>7)&0x1<<11 |
		(word>>25)&0x3F<<5 |
		(word>>8)&0xF<<1
	return signExtend(imm, 13)
}

// immU: bits [31:12] in place, low 12 bits zero.
func immU(word uint32) int64 {
	return int64(int32(word & 0xFFFFF000))
}

// immJ: sign-extend {bit 31, bits [19:12], bit 20, bits [30:21], 0}.
func immJ(word uint32) int64 {
	imm := (word>>31)&0x1<<20 |
		(word>>12)&0xFF<<12 |
		(word>>20)&0x1<<11 |
		(word>>21)&0x3FF<<1
	return signExtend(imm, 21)
}
