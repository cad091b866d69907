// Package latency provides the execute-stage timing model of the pipeline.
//
// Every instruction class has a configurable latency in cycles; the pipeline
// holds an instruction in EX until its latency has elapsed.
package latency

import (
	"github.com/sarchlab/rvsim/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given instruction.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch {
	case inst.IsControl:
		return t.config.BranchLatency
	case inst.IsLoad():
		return t.config.LoadLatency
	case inst.IsStore():
		return t.config.StoreLatency
	}

	switch inst.AluOp {
	case insts.AluMul:
		return t.config.MultiplyLatency
	case insts.AluDiv, insts.AluRem:
		return t.config.DivideLatency
	case insts.AluNone:
		return 1
	default:
		return t.config.ALULatency
	}
}

// IsLoadOp returns true if the instruction is a load operation.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return inst.IsLoad()
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
