package insts

import "fmt"

// RegName returns the architectural name of a register index.
func RegName(reg uint8) string {
	return fmt.Sprintf("x%d", reg)
}

// String renders the instruction in standard assembler syntax.
func (i *Instruction) String() string {
	if i == nil {
		return "bubble"
	}

	name := i.Op.String()
	switch i.Format {
	case FormatR:
		return fmt.Sprintf("%s %s, %s, %s", name, RegName(i.Rd), RegName(i.Rs1), RegName(i.Rs2))
	case FormatI:
		if i.Mem == MemRead || i.Op == OpJALR {
			return fmt.Sprintf("%s %s, %d(%s)", name, RegName(i.Rd), i.Imm, RegName(i.Rs1))
		}
		return fmt.Sprintf("%s %s, %s, %d", name, RegName(i.Rd), RegName(i.Rs1), i.Imm)
	case FormatS:
		return fmt.Sprintf("%s %s, %d(%s)", name, RegName(i.Rs2), i.Imm, RegName(i.Rs1))
	case FormatB:
		return fmt.Sprintf("%s %s, %s, %d", name, RegName(i.Rs1), RegName(i.Rs2), i.Imm)
	case FormatU:
		return fmt.Sprintf("%s %s, 0x%x", name, RegName(i.Rd), uint32(i.Imm)>>12)
	case FormatJ:
		return fmt.Sprintf("%s %s, %d", name, RegName(i.Rd), i.Imm)
	case FormatExit:
		return name
	default:
		return fmt.Sprintf("unknown 0x%08x", i.Word)
	}
}

// Disassemble decodes word and renders it, or describes why it cannot be decoded.
func Disassemble(word uint32) string {
	inst, err := Decode(word)
	if err != nil {
		return fmt.Sprintf(".word 0x%08x", word)
	}
	return inst.String()
}
