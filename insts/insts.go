// Package insts provides RISC-V instruction definitions and decoding.
//
// This package implements decoding of RV64 machine code into structured
// instruction representations. It supports:
//   - R-type arithmetic, logic, shift, compare and M-extension mul/div/rem
//   - I-type arithmetic, logic, compare (slti, sltiu) and shift-immediate
//   - Loads (lb, lh, lw, ld, lbu, lhu) and stores (sb, sh, sw, sd)
//   - Branches (beq, bne, blt, bge), jal, jalr, lui, auipc
//   - The simulator EXIT sentinel (opcode 0x11)
//
// Usage:
//
//	inst, err := insts.Decode(0x00A00513) // addi x10, x0, 10
//	if err != nil {
//		return err
//	}
//	fmt.Println(inst) // addi x10, x0, 10
package insts
