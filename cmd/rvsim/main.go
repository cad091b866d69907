// Package main provides the rvsim command-line driver. It loads a program
// from .mc dumps or a RISC-V ELF executable, runs it on the pipelined core
// (or the functional emulator) and prints a timing report.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/internal/translate"
	"github.com/sarchlab/rvsim/loader"
	"github.com/sarchlab/rvsim/runner"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/core"
	"github.com/sarchlab/rvsim/timing/latency"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

var f = translate.From

type options struct {
	textPath   string
	dataPath   string
	elfPath    string
	configPath string
	forward    bool
	predict    bool
	icache     bool
	dcache     bool
	functional bool
	until      string
	maxCycles  uint64
	delay      time.Duration
	trace      bool
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("rvsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.textPath, "text", "", "Path to the code image (.mc)")
	fs.StringVar(&opts.dataPath, "data", "", "Path to the data image (.mc)")
	fs.StringVar(&opts.elfPath, "elf", "", "Path to a RISC-V ELF executable")
	fs.StringVar(&opts.configPath, "config", "", "Path to timing configuration JSON file")
	fs.BoolVar(&opts.forward, "forward", false, "Enable operand forwarding")
	fs.BoolVar(&opts.predict, "predict", false, "Enable the dynamic branch predictor")
	fs.BoolVar(&opts.icache, "icache", false, "Enable the L1 instruction cache timing model")
	fs.BoolVar(&opts.dcache, "dcache", false, "Enable the L1 data cache timing model")
	fs.BoolVar(&opts.functional, "emu", false, "Run the functional emulator instead of the pipeline")
	fs.StringVar(&opts.until, "until", "", "Stop when this expression over x0..x31, pc, cycle is true")
	fs.Uint64Var(&opts.maxCycles, "max-cycles", 1_000_000, "Stop after this many cycles (0 = no limit)")
	fs.DurationVar(&opts.delay, "delay", 0, "Pause between cycles")
	fs.BoolVar(&opts.trace, "trace", false, "Print every retired instruction")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintln(stderr, f("Usage: rvsim [options] (-text text.mc [-data data.mc] | -elf program)"))
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, f("Options:"))
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if (opts.textPath == "") == (opts.elfPath == "") {
		fs.Usage()
		return nil, errors.New(f("exactly one of -text and -elf is required"))
	}
	if opts.elfPath != "" && opts.dataPath != "" {
		return nil, errors.New(f("-data cannot be combined with -elf"))
	}

	return opts, nil
}

func loadImages(opts *options) (code, data []pipeline.ImageEntry, err error) {
	if opts.elfPath != "" {
		prog, err := loader.LoadELF(opts.elfPath)
		if err != nil {
			return nil, nil, err
		}
		return prog.Code(), prog.Data(), nil
	}

	code, err = loader.LoadMC(opts.textPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.dataPath != "" {
		data, err = loader.LoadMC(opts.dataPath)
		if err != nil {
			return nil, nil, err
		}
	}
	return code, data, nil
}

func timingConfig(opts *options) (*latency.TimingConfig, error) {
	config := latency.DefaultTimingConfig()
	if opts.configPath != "" {
		var err error
		config, err = latency.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	// Flags only enable features; they never turn off what the file enables.
	config.Forwarding = config.Forwarding || opts.forward
	config.BranchPrediction = config.BranchPrediction || opts.predict
	if opts.icache && config.ICache == nil {
		icache := cache.DefaultL1IConfig()
		config.ICache = &icache
	}
	if opts.dcache && config.DCache == nil {
		dcache := cache.DefaultL1DConfig()
		config.DCache = &dcache
	}

	return config, config.Validate()
}

func newLogger(stderr io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, f("Error: %v", err))
		return 2
	}

	logger := newLogger(stderr, opts.verbose)

	code, data, err := loadImages(opts)
	if err != nil {
		logger.WithError(err).Error("loading program")
		return 1
	}

	if opts.functional {
		return runFunctional(code, data, opts, stdout, logger)
	}

	config, err := timingConfig(opts)
	if err != nil {
		logger.WithError(err).Error("timing configuration")
		return 1
	}

	c, err := core.LoadProgram(code, data,
		core.WithTimingConfig(config),
		core.WithLogger(logger),
	)
	if err != nil {
		logger.WithError(err).Error("loading program")
		return 1
	}

	runConfig := runner.Config{
		MaxCycles: opts.maxCycles,
		Delay:     opts.delay,
		Until:     opts.until,
	}
	if opts.trace {
		runConfig.OnStep = func(r pipeline.StepReport) { printStep(stdout, r) }
	}

	result, err := runner.Run(ctx, c, runConfig)
	printReport(stdout, c, result)
	if err != nil {
		logger.WithError(err).Error("run stopped")
		return 1
	}
	if result.Last.Err != nil {
		return 1
	}
	return 0
}

func runFunctional(
	code, data []pipeline.ImageEntry,
	opts *options,
	stdout io.Writer,
	logger *logrus.Logger,
) int {
	if len(code) == 0 {
		logger.Error("empty code image")
		return 1
	}

	program := make(map[uint64]uint32, len(code))
	for _, e := range code {
		program[e.Addr] = e.Word
	}

	memory := emu.NewMemory()
	for _, e := range data {
		memory.Write32(e.Addr, e.Word)
	}

	regFile := &emu.RegFile{}
	regFile.Load(core.DefaultRegisters())

	e := emu.NewEmulator(
		emu.WithRegFile(regFile),
		emu.WithMemory(memory),
		emu.WithMaxInstructions(opts.maxCycles),
	)
	e.LoadProgram(code[0].Addr, program)

	err := e.Run()
	fmt.Fprintln(stdout, f("Instructions executed: %d", e.InstructionCount()))
	printRegisters(stdout, regFile.Values())
	if err != nil {
		logger.WithError(err).Error("emulation stopped")
		return 1
	}
	return 0
}

func printStep(w io.Writer, r pipeline.StepReport) {
	if r.Retired == nil {
		return
	}
	fmt.Fprintln(w, f("%6d  0x%08x  %08x  %s", r.Cycle, r.Retired.PC, r.Retired.Word, r.Retired.Disasm))
}

func printReport(w io.Writer, c *core.Core, result runner.Result) {
	stats := c.Stats()
	snap := c.Snapshot()

	fmt.Fprintln(w)
	fmt.Fprintln(w, f("Stopped: %v", result.Reason))
	if snap.Terminated {
		fmt.Fprintln(w, f("Termination: %v", snap.Reason))
	}
	if result.Last.Err != nil {
		fmt.Fprintln(w, f("Fault: %v", result.Last.Err))
	}
	fmt.Fprintln(w, f("Total Instructions: %d", stats.Instructions))
	fmt.Fprintln(w, f("Total Cycles: %d", stats.Cycles))
	fmt.Fprintln(w, f("CPI: %.2f", stats.CPI()))
	fmt.Fprintln(w)
	fmt.Fprintln(w, f("Pipeline Events:"))
	fmt.Fprintln(w, f("  Stalls:         %d", stats.Stalls))
	fmt.Fprintln(w, f("  Flushes:        %d", stats.Flushes))
	fmt.Fprintln(w, f("  Execute stalls: %d", stats.ExecStalls))
	fmt.Fprintln(w, f("  Memory stalls:  %d", stats.MemStalls))
	fmt.Fprintln(w, f("  Fetch stalls:   %d", stats.FetchStalls))
	fmt.Fprintln(w, f("  Decode errors:  %d", stats.DecodeErrors))

	if bp := stats.BranchPredictor; bp != nil {
		fmt.Fprintln(w, f("Branch predictor: %d/%d correct (%.1f%%)", bp.Correct, bp.Updates, bp.Accuracy()))
	}
	if ic := stats.ICache; ic != nil {
		fmt.Fprintln(w, f("I-cache: %d hits, %d misses (%.1f%%)", ic.Hits, ic.Misses, ic.HitRate()*100))
	}
	if dc := stats.DCache; dc != nil {
		fmt.Fprintln(w, f("D-cache: %d hits, %d misses (%.1f%%)", dc.Hits, dc.Misses, dc.HitRate()*100))
	}

	fmt.Fprintln(w)
	printRegisters(w, snap.Registers)
}

func printRegisters(w io.Writer, regs [emu.NumRegs]uint64) {
	for i := 0; i < emu.NumRegs; i += 4 {
		fmt.Fprintf(w, "x%-2d %016x  x%-2d %016x  x%-2d %016x  x%-2d %016x\n",
			i, regs[i], i+1, regs[i+1], i+2, regs[i+2], i+3, regs[i+3])
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}
