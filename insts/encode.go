package insts

import "fmt"

// ExitWord is the canonical encoding of the EXIT sentinel.
const ExitWord uint32 = 0xEF000011

// Encode assembles op with the given operands. Fields that the format does not
// use are ignored. For shift-immediates imm is the shift amount; for U-type imm
// is the full value whose low 12 bits are discarded. Encode panics on OpUnknown.
func Encode(op Op, rd, rs1, rs2 uint8, imm int64) uint32 {
	if op == OpEXIT {
		return ExitWord
	}

	key, ok := opKeys[op]
	if !ok {
		panic(fmt.Sprintf("insts: cannot encode %v", op))
	}
	spec := opTable[key]

	word := uint32(key.opcode)
	r := func(v uint8, shift uint) uint32 { return uint32(v&0x1F) << shift }
	u := uint32(imm)

	switch spec.format {
	case FormatR:
		word |= r(rd, 7) | uint32(key.funct3)<<12 | r(rs1, 15) | r(rs2, 20) | uint32(key.funct7)<<25
	case FormatI:
		word |= r(rd, 7) | uint32(key.funct3)<<12 | r(rs1, 15)
		if key.opcode == OpcodeOpImm && (key.funct3 == 0x1 || key.funct3 == 0x5) {
			word |= (u&0x1F)<<20 | uint32(key.funct7)<<25
		} else {
			word |= (u & 0xFFF) << 20
		}
	case FormatS:
		word |= (u&0x1F)<<7 | uint32(key.funct3)<<12 | r(rs1, 15) | r(rs2, 20) | (u>>5&0x7F)<<25
	case FormatB:
		word |= (u>>11&0x1)<<7 | (u>>1&0xF)<<8 | uint32(key.funct3)<<12 |
			r(rs1, 15) | r(rs2, 20) | (u>>5&0x3F)<<25 | (u>>12&0x1)<<31
	case FormatU:
		word |= r(rd, 7) | u&0xFFFFF000
	case FormatJ:
		word |= r(rd, 7) | (u>>12&0xFF)<<12 | (u>>11&0x1)<<20 | (u>>1&0x3FF)<<21 | (u>>20&0x1)<<31
	}

	return word
}
