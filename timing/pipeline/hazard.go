package pipeline

import "github.com/sarchlab/rvsim/insts"

// ForwardSource indicates where a forwarded value should come from.
type ForwardSource int

const (
	// ForwardNone means no forwarding needed - use register file value.
	ForwardNone ForwardSource = iota
	// ForwardFromEXMEM means forward from EX/MEM pipeline register.
	ForwardFromEXMEM
	// ForwardFromMEMWB means forward from MEM/WB pipeline register.
	ForwardFromMEMWB
)

// ForwardingResult contains forwarding decisions for both source operands.
type ForwardingResult struct {
	// ForwardRs1 specifies the forwarding source for the rs1 operand.
	ForwardRs1 ForwardSource
	// ForwardRs2 specifies the forwarding source for the rs2 operand
	// (second ALU operand or store data).
	ForwardRs2 ForwardSource
}

// StallResult contains stall and flush control signals.
type StallResult struct {
	// StallIF indicates the IF stage should stall (hold current PC).
	StallIF bool
	// StallID indicates the ID stage should stall (hold IF/ID).
	StallID bool
	// InsertBubbleEX indicates a bubble should be inserted into ID/EX.
	InsertBubbleEX bool
	// FlushIF indicates the fetched instruction must be discarded.
	FlushIF bool
	// FlushID indicates the decoded instruction must be discarded.
	FlushID bool
}

// HazardUnit detects data hazards and determines forwarding/stall signals.
//
// Without forwarding, an instruction waits in ID until no older instruction
// in ID/EX or EX/MEM writes one of its sources. Instructions in MEM/WB need no
// stall because Writeback commits before Decode reads in the same cycle.
// With forwarding, only a load immediately followed by a consumer stalls.
type HazardUnit struct {
	forwarding bool
}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit(forwarding bool) *HazardUnit {
	return &HazardUnit{forwarding: forwarding}
}

// Forwarding returns true if operand forwarding is enabled.
func (h *HazardUnit) Forwarding() bool {
	return h.forwarding
}

// dependsOn reports whether inst reads register rd. x0 never creates a dependency.
func dependsOn(inst *insts.Instruction, rd uint8) bool {
	if rd == 0 {
		return false
	}
	return (inst.UsesRs1 && inst.Rs1 == rd) || (inst.UsesRs2 && inst.Rs2 == rd)
}

// DetectDataHazard reports whether inst, about to leave ID, must stall
// because of an older instruction in ID/EX or EX/MEM.
func (h *HazardUnit) DetectDataHazard(
	inst *insts.Instruction,
	idex *IDEXRegister,
	exmem *EXMEMRegister,
) bool {
	if inst == nil {
		return false
	}

	if h.forwarding {
		return h.DetectLoadUseHazard(inst, idex)
	}

	if idex.Valid && idex.RegWrite && dependsOn(inst, idex.Rd) {
		return true
	}
	if exmem.Valid && exmem.RegWrite && dependsOn(inst, exmem.Rd) {
		return true
	}
	return false
}

// DetectLoadUseHazard detects a load in ID/EX whose result inst needs.
// The loaded value isn't available until after MEM, so it cannot be
// forwarded in time for EX.
func (h *HazardUnit) DetectLoadUseHazard(inst *insts.Instruction, idex *IDEXRegister) bool {
	if !idex.Valid || !idex.MemRead || !idex.RegWrite {
		return false
	}
	return dependsOn(inst, idex.Rd)
}

// DetectForwarding determines the operand sources of the instruction in ID/EX.
// It returns ForwardNone for everything when forwarding is disabled.
func (h *HazardUnit) DetectForwarding(
	idex *IDEXRegister,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) ForwardingResult {
	result := ForwardingResult{}

	if !h.forwarding || !idex.Valid || idex.Inst == nil {
		return result
	}

	if idex.Inst.UsesRs1 {
		result.ForwardRs1 = h.detectForwardForReg(idex.Rs1, exmem, memwb)
	}
	if idex.Inst.UsesRs2 {
		result.ForwardRs2 = h.detectForwardForReg(idex.Rs2, exmem, memwb)
	}

	return result
}

// detectForwardForReg checks if a specific register needs forwarding.
func (h *HazardUnit) detectForwardForReg(
	reg uint8,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) ForwardSource {
	if reg == 0 {
		return ForwardNone
	}

	// EX/MEM has precedence over MEM/WB (more recent value). Loads in
	// EX/MEM have no value yet; the load-use stall keeps consumers away.
	if exmem.Valid && exmem.RegWrite && !exmem.MemToReg && exmem.Rd == reg {
		return ForwardFromEXMEM
	}

	if memwb.Valid && memwb.RegWrite && memwb.Rd == reg {
		return ForwardFromMEMWB
	}

	return ForwardNone
}

// ComputeStalls computes stall and flush signals. A data hazard holds IF and
// ID and sends a bubble to EX; a redirect from EX discards both younger
// instructions.
func (h *HazardUnit) ComputeStalls(dataHazard bool, redirect bool) StallResult {
	result := StallResult{}

	if dataHazard {
		result.StallIF = true
		result.StallID = true
		result.InsertBubbleEX = true
	}

	if redirect {
		result.FlushIF = true
		result.FlushID = true
	}

	return result
}

// GetForwardedValue returns the value to use based on forwarding decision.
func (h *HazardUnit) GetForwardedValue(
	forward ForwardSource,
	originalValue uint64,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) uint64 {
	switch forward {
	case ForwardFromEXMEM:
		return exmem.ALUResult
	case ForwardFromMEMWB:
		return memwb.Result()
	default:
		return originalValue
	}
}
