// Package core provides the public simulator facade. It validates program
// and data images, owns the architectural state of a run and wraps the
// pipeline implementation to provide a high-level interface.
package core

import (
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/latency"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

// ErrMalformedImage is returned when a code or data image cannot be loaded.
var ErrMalformedImage = stderrors.New("malformed image")

// ErrNotLoaded is reported when the core is used before a successful load.
var ErrNotLoaded = stderrors.New("no program loaded")

// Default initial register values, used when no explicit register state is
// supplied.
const (
	DefaultStackPointer  uint64 = 0x7FFFFFDC
	DefaultGlobalPointer uint64 = 0x10000000
	DefaultArg0          uint64 = 0x1
	DefaultArg1          uint64 = 0x07FFFFDC
)

// DefaultRegisters returns the register state a program starts with when no
// explicit initial registers are given.
func DefaultRegisters() [emu.NumRegs]uint64 {
	var regs [emu.NumRegs]uint64
	regs[2] = DefaultStackPointer
	regs[3] = DefaultGlobalPointer
	regs[10] = DefaultArg0
	regs[11] = DefaultArg1
	return regs
}

// Stats holds performance statistics for the core.
type Stats struct {
	pipeline.Statistics

	// BranchPredictor is set when the branch predictor is enabled.
	BranchPredictor *pipeline.BranchPredictorStats
	// ICache is set when the instruction cache is enabled.
	ICache *cache.Statistics
	// DCache is set when the data cache is enabled.
	DCache *cache.Statistics
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithForwarding enables operand forwarding.
func WithForwarding() Option {
	return func(c *Core) {
		c.pipelineOpts = append(c.pipelineOpts, pipeline.WithForwarding())
	}
}

// WithBranchPredictor enables the dynamic branch predictor.
func WithBranchPredictor(config pipeline.BranchPredictorConfig) Option {
	return func(c *Core) {
		c.pipelineOpts = append(c.pipelineOpts, pipeline.WithBranchPredictor(config))
	}
}

// WithICache enables the L1 instruction cache timing model.
func WithICache(config cache.Config) Option {
	return func(c *Core) {
		c.pipelineOpts = append(c.pipelineOpts, pipeline.WithICache(config))
	}
}

// WithDCache enables the L1 data cache timing model.
func WithDCache(config cache.Config) Option {
	return func(c *Core) {
		c.pipelineOpts = append(c.pipelineOpts, pipeline.WithDCache(config))
	}
}

// WithLatencyTable sets the execute latency table.
func WithLatencyTable(table *latency.Table) Option {
	return func(c *Core) {
		c.pipelineOpts = append(c.pipelineOpts, pipeline.WithLatencyTable(table))
	}
}

// WithTimingConfig applies a complete timing configuration: the latency
// table plus every microarchitectural feature it enables.
func WithTimingConfig(config *latency.TimingConfig) Option {
	return func(c *Core) {
		WithLatencyTable(latency.NewTableWithConfig(config))(c)
		if config.Forwarding {
			WithForwarding()(c)
		}
		if config.BranchPrediction {
			WithBranchPredictor(pipeline.DefaultBranchPredictorConfig())(c)
		}
		if config.ICache != nil {
			WithICache(*config.ICache)(c)
		}
		if config.DCache != nil {
			WithDCache(*config.DCache)(c)
		}
	}
}

// WithInitialRegisters replaces the default register state. Registers not
// present in regs start at zero. Values for x0 are ignored.
func WithInitialRegisters(regs map[uint8]uint64) Option {
	return func(c *Core) {
		var values [emu.NumRegs]uint64
		for reg, value := range regs {
			if reg != 0 && int(reg) < emu.NumRegs {
				values[reg] = value
			}
		}
		c.initialRegs = values
	}
}

// WithLogger sets the logger used by the pipeline.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Core) {
		c.logger = logger
		c.pipelineOpts = append(c.pipelineOpts, pipeline.WithLogger(logger))
	}
}

// Core represents a loaded simulator instance.
type Core struct {
	// pipeline is nil until a program is loaded.
	pipeline *pipeline.Pipeline

	pipelineOpts []pipeline.PipelineOption
	initialRegs  [emu.NumRegs]uint64
	initialData  *emu.Memory
	logger       *logrus.Logger
}

// New creates an unloaded core.
func New(opts ...Option) *Core {
	c := &Core{
		initialRegs: DefaultRegisters(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LoadProgram creates a core and loads the given images into it.
func LoadProgram(code, data []pipeline.ImageEntry, opts ...Option) (*Core, error) {
	c := New(opts...)
	if err := c.Load(code, data); err != nil {
		return nil, err
	}
	return c, nil
}

// Load validates the code and data images and initializes the core with
// them. On error the core is left unloaded.
func (c *Core) Load(code, data []pipeline.ImageEntry) error {
	c.pipeline = nil
	c.initialData = nil

	if len(code) == 0 {
		return errors.Wrap(ErrMalformedImage, "empty code image")
	}
	if err := validateImage(code); err != nil {
		return errors.Wrap(err, "code image")
	}
	if err := validateImage(data); err != nil {
		return errors.Wrap(err, "data image")
	}

	memory := emu.NewMemory()
	for _, e := range data {
		memory.Write32(e.Addr, e.Word)
	}

	regFile := &emu.RegFile{}
	regFile.Load(c.initialRegs)

	c.initialData = memory.Clone()
	c.pipeline = pipeline.NewPipeline(
		pipeline.NewProgramImage(code), regFile, memory, c.pipelineOpts...)

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"code_words": len(code),
			"data_words": len(data),
			"entry":      code[0].Addr,
		}).Info("program loaded")
	}

	return nil
}

// validateImage checks that entries are word aligned and strictly
// increasing, which also rules out duplicate addresses.
func validateImage(entries []pipeline.ImageEntry) error {
	for i, e := range entries {
		if e.Addr%4 != 0 {
			return errors.Wrapf(ErrMalformedImage, "misaligned address 0x%x", e.Addr)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1].Addr
		if e.Addr == prev {
			return errors.Wrapf(ErrMalformedImage, "duplicate address 0x%x", e.Addr)
		}
		if e.Addr < prev {
			return errors.Wrapf(ErrMalformedImage,
				"address 0x%x follows 0x%x", e.Addr, prev)
		}
	}
	return nil
}

// Loaded returns true if a program has been loaded successfully.
func (c *Core) Loaded() bool {
	return c.pipeline != nil
}

// Step advances the simulation by one cycle.
func (c *Core) Step() pipeline.StepReport {
	if c.pipeline == nil {
		return pipeline.StepReport{Err: ErrNotLoaded}
	}
	return c.pipeline.Tick()
}

// Run steps the core until it terminates.
func (c *Core) Run() pipeline.StepReport {
	if c.pipeline == nil {
		return pipeline.StepReport{Err: ErrNotLoaded}
	}
	return c.pipeline.Run()
}

// Terminated returns true once the loaded program has finished.
func (c *Core) Terminated() bool {
	return c.pipeline != nil && c.pipeline.Terminated()
}

// Reset restores the state right after the last successful load.
func (c *Core) Reset() error {
	if c.pipeline == nil {
		return ErrNotLoaded
	}
	c.pipeline.Reset(c.initialRegs, c.initialData.Clone())
	return nil
}

// Snapshot returns a copy of the architectural and pipeline state. An
// unloaded core returns the zero snapshot.
func (c *Core) Snapshot() pipeline.Snapshot {
	if c.pipeline == nil {
		return pipeline.Snapshot{}
	}
	return c.pipeline.Snapshot()
}

// MemoryWords returns a copy of the non-zero words of data memory.
func (c *Core) MemoryWords() []emu.Word {
	if c.pipeline == nil {
		return nil
	}
	return c.pipeline.MemoryWords()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	if c.pipeline == nil {
		return Stats{}
	}

	stats := Stats{Statistics: c.pipeline.Stats()}
	if c.pipeline.UseBranchPredictor() {
		bp := c.pipeline.BranchPredictorStats()
		stats.BranchPredictor = &bp
	}
	if c.pipeline.UseICache() {
		ic := c.pipeline.ICacheStats()
		stats.ICache = &ic
	}
	if c.pipeline.UseDCache() {
		dc := c.pipeline.DCacheStats()
		stats.DCache = &dc
	}
	return stats
}
