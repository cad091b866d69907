// Package runner drives a simulator from the caller's side: it steps until
// the program terminates, a cycle budget runs out, a stop condition holds or
// the context is cancelled, optionally pacing steps with a delay.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/sarchlab/rvsim/timing/pipeline"
)

// Stepper is a simulator that can be advanced one cycle at a time.
type Stepper interface {
	Step() pipeline.StepReport
	Snapshot() pipeline.Snapshot
}

// Config controls a run.
type Config struct {
	// MaxCycles stops the run after this many steps. 0 means no limit.
	MaxCycles uint64
	// Delay is the pause between steps.
	Delay time.Duration
	// Until is a starlark boolean expression evaluated after every step
	// over x0..x31, pc and cycle. The run stops once it is true.
	Until string
	// OnStep, if set, is called with every step report.
	OnStep func(pipeline.StepReport)
}

// StopReason says why a run ended.
type StopReason int

const (
	// StopTerminated means the simulator reached a terminal state.
	StopTerminated StopReason = iota
	// StopMaxCycles means the cycle budget was used up.
	StopMaxCycles
	// StopCondition means the Until expression became true.
	StopCondition
	// StopCancelled means the context was cancelled.
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopTerminated:
		return "terminated"
	case StopMaxCycles:
		return "max cycles"
	case StopCondition:
		return "condition"
	case StopCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Result describes a finished run.
type Result struct {
	Reason StopReason
	// Steps is the number of steps taken by this run.
	Steps uint64
	// Last is the report of the final step.
	Last pipeline.StepReport
}

// Run steps s according to cfg. A terminal report, including a fault, ends
// the run without an error; the report is in Result.Last. Errors are
// returned for an invalid Until expression, a step that fails without
// terminating and context cancellation.
func Run(ctx context.Context, s Stepper, cfg Config) (Result, error) {
	var until *Condition
	if cfg.Until != "" {
		var err error
		until, err = NewCondition(cfg.Until)
		if err != nil {
			return Result{}, err
		}
	}

	var timer *time.Timer
	if cfg.Delay > 0 {
		timer = time.NewTimer(cfg.Delay)
		defer timer.Stop()
	}

	result := Result{}
	for {
		if err := ctx.Err(); err != nil {
			result.Reason = StopCancelled
			return result, err
		}

		if cfg.MaxCycles > 0 && result.Steps >= cfg.MaxCycles {
			result.Reason = StopMaxCycles
			return result, nil
		}

		if timer != nil && result.Steps > 0 {
			select {
			case <-ctx.Done():
				result.Reason = StopCancelled
				return result, ctx.Err()
			case <-timer.C:
				timer.Reset(cfg.Delay)
			}
		}

		report := s.Step()
		result.Steps++
		result.Last = report
		if cfg.OnStep != nil {
			cfg.OnStep(report)
		}

		if report.Terminated {
			result.Reason = StopTerminated
			return result, nil
		}
		if report.Err != nil {
			return result, errors.Wrapf(report.Err, "cycle %d", report.Cycle)
		}

		if until != nil {
			stop, err := until.Eval(s.Snapshot())
			if err != nil {
				return result, err
			}
			if stop {
				result.Reason = StopCondition
				return result, nil
			}
		}
	}
}

// Condition is a compiled stop condition.
type Condition struct {
	src  string
	opts *syntax.FileOptions
}

// NewCondition checks that src parses as a starlark expression.
func NewCondition(src string) (*Condition, error) {
	opts := &syntax.FileOptions{}
	if _, err := opts.ParseExpr("until", src, 0); err != nil {
		return nil, errors.Wrap(err, "until expression")
	}
	return &Condition{src: src, opts: opts}, nil
}

// Eval evaluates the condition against snap.
func (c *Condition) Eval(snap pipeline.Snapshot) (bool, error) {
	env := starlark.StringDict{
		"pc":    starlark.MakeUint64(snap.PC),
		"cycle": starlark.MakeUint64(snap.Cycle),
	}
	for i, value := range snap.Registers {
		env[fmt.Sprintf("x%d", i)] = starlark.MakeUint64(value)
	}

	thread := &starlark.Thread{Name: "until"}
	value, err := starlark.EvalOptions(c.opts, thread, "until", c.src, env)
	if err != nil {
		return false, errors.Wrap(err, "until expression")
	}
	return bool(value.Truth()), nil
}
