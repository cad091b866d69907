// Package emu provides functional RISC-V emulation.
package emu

// NumRegs is the number of general-purpose registers.
const NumRegs = 32

// RegFile represents the RISC-V integer register file.
// X[0] is hardwired to zero.
type RegFile struct {
	// X holds general-purpose registers x0-x31.
	X [NumRegs]uint64

	// PC is the program counter.
	PC uint64
}

// ReadReg reads a register value. Register 0 and out-of-range indices return 0.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 0 || reg >= NumRegs {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to x0 or out-of-range indices
// are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 0 || reg >= NumRegs {
		return
	}
	r.X[reg] = value
}

// Values returns a copy of all register values.
func (r *RegFile) Values() [NumRegs]uint64 {
	values := r.X
	values[0] = 0
	return values
}

// Load replaces every register with the given values. x0 stays zero.
func (r *RegFile) Load(values [NumRegs]uint64) {
	r.X = values
	r.X[0] = 0
}
