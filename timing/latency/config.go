package latency

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/rvsim/timing/cache"
)

// TimingConfig holds the execute latencies of each instruction class and the
// optional pipeline features of a run. One JSON file configures a whole run.
type TimingConfig struct {
	// ALULatency is the execution latency for basic ALU operations
	// (add, sub, logic, shifts, compares, lui, auipc). Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the execution latency for branches, jal and jalr.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// LoadLatency is the address-generation latency of loads in EX.
	// Default: 1 cycle. With the D-cache enabled, the cache latency is
	// charged in MEM instead.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the address-generation latency of stores in EX.
	// Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// MultiplyLatency is the latency for mul. Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// DivideLatency is the latency for div and rem. Default: 10 cycles.
	DivideLatency uint64 `json:"divide_latency"`

	// Forwarding enables EX/MEM and MEM/WB operand forwarding.
	Forwarding bool `json:"forwarding"`

	// BranchPrediction enables the 2-bit branch predictor.
	BranchPrediction bool `json:"branch_prediction"`

	// ICache enables the L1 instruction cache timing model when non-nil.
	ICache *cache.Config `json:"icache,omitempty"`

	// DCache enables the L1 data cache timing model when non-nil.
	DCache *cache.Config `json:"dcache,omitempty"`
}

// DefaultTimingConfig returns a TimingConfig with single-cycle ALU and memory
// operations, multi-cycle mul/div and every optional feature disabled.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:      1,
		BranchLatency:   1,
		LoadLatency:     1,
		StoreLatency:    1,
		MultiplyLatency: 3,
		DivideLatency:   10,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Fields absent from the
// file keep their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latency values are valid (> 0) and that the
// cache geometries, if any, are usable.
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.MultiplyLatency == 0 {
		return fmt.Errorf("multiply_latency must be > 0")
	}
	if c.DivideLatency == 0 {
		return fmt.Errorf("divide_latency must be > 0")
	}
	if c.ICache != nil {
		if err := c.ICache.Validate(); err != nil {
			return fmt.Errorf("icache: %w", err)
		}
	}
	if c.DCache != nil {
		if err := c.DCache.Validate(); err != nil {
			return fmt.Errorf("dcache: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	if c.ICache != nil {
		icache := *c.ICache
		clone.ICache = &icache
	}
	if c.DCache != nil {
		dcache := *c.DCache
		clone.DCache = &dcache
	}
	return &clone
}
