package emu

import (
	"math"

	"github.com/sarchlab/rvsim/insts"
)

// shiftMask limits shift amounts to 5 bits.
const shiftMask = 0x1F

// Execute computes op over operands a and b. Arithmetic wraps modulo 2^64.
// Division by zero follows the RISC-V convention: the quotient is all ones
// and the remainder is the dividend. The signed overflow case
// MinInt64 / -1 yields MinInt64 with remainder 0.
func Execute(op insts.AluOp, a, b uint64) uint64 {
	switch op {
	case insts.AluAdd:
		return a + b
	case insts.AluSub:
		return a - b
	case insts.AluAnd:
		return a & b
	case insts.AluOr:
		return a | b
	case insts.AluXor:
		return a ^ b
	case insts.AluSll:
		return a << (b & shiftMask)
	case insts.AluSrl:
		return a >> (b & shiftMask)
	case insts.AluSra:
		return uint64(int64(a) >> (b & shiftMask))
	case insts.AluSlt:
		if int64(a) < int64(b) {
			return 1
		}
		return 0
	case insts.AluSltu:
		if a < b {
			return 1
		}
		return 0
	case insts.AluMul:
		return a * b
	case insts.AluDiv:
		return divide(int64(a), int64(b))
	case insts.AluRem:
		return remainder(int64(a), int64(b))
	case insts.AluPassB:
		return b
	default:
		return 0
	}
}

func divide(a, b int64) uint64 {
	switch {
	case b == 0:
		return math.MaxUint64
	case a == math.MinInt64 && b == -1:
		return uint64(a)
	default:
		return uint64(a / b)
	}
}

func remainder(a, b int64) uint64 {
	switch {
	case b == 0:
		return uint64(a)
	case a == math.MinInt64 && b == -1:
		return 0
	default:
		return uint64(a % b)
	}
}

// EvaluateBranch reports whether a conditional branch is taken. Comparisons
// are signed.
func EvaluateBranch(kind insts.BranchKind, a, b uint64) bool {
	switch kind {
	case insts.BranchEQ:
		return a == b
	case insts.BranchNE:
		return a != b
	case insts.BranchLT:
		return int64(a) < int64(b)
	case insts.BranchGE:
		return int64(a) >= int64(b)
	default:
		return false
	}
}

// Operands returns the ALU operands of inst given the source register values.
// auipc uses the PC as its first operand.
func Operands(inst *insts.Instruction, pc, rs1, rs2 uint64) (a, b uint64) {
	a = rs1
	b = rs2
	if inst.UseImm {
		b = uint64(inst.Imm)
	}
	if inst.Op == insts.OpAUIPC {
		a = pc
	}
	return a, b
}

// ResolveControl computes the outcome of a control-transfer instruction.
// Non-control instructions are never taken.
func ResolveControl(inst *insts.Instruction, pc, rs1, rs2 uint64) (taken bool, target uint64) {
	switch inst.Format {
	case insts.FormatB:
		if EvaluateBranch(inst.Branch, rs1, rs2) {
			return true, pc + uint64(inst.Imm)
		}
		return false, pc + 4
	case insts.FormatJ:
		return true, pc + uint64(inst.Imm)
	}
	if inst.Op == insts.OpJALR {
		return true, (rs1 + uint64(inst.Imm)) &^ 1
	}
	return false, pc + 4
}
