package pipeline

import (
	"github.com/pkg/errors"
)

// ErrFetchOutOfRange is reported when the pipeline drains after fetch ran
// past the program without reaching EXIT.
var ErrFetchOutOfRange = errors.New("fetch out of program range")

// Stage identifies one of the five pipeline stages.
type Stage int

// Pipeline stages in program order.
const (
	StageFetch Stage = iota
	StageDecode
	StageExecute
	StageMemory
	StageWriteback

	// NumStages is the number of pipeline stages.
	NumStages = 5
)

var stageNames = [NumStages]string{"IF", "ID", "EX", "MEM", "WB"}

func (s Stage) String() string {
	if s < 0 || int(s) >= NumStages {
		return "?"
	}
	return stageNames[s]
}

// Reason tells why the pipeline terminated.
type Reason int

// Termination reasons.
const (
	ReasonNone Reason = iota
	// ReasonExitInstruction: the EXIT instruction retired.
	ReasonExitInstruction
	// ReasonFetchOutOfRange: fetch left the program and the pipeline drained.
	ReasonFetchOutOfRange
)

func (r Reason) String() string {
	switch r {
	case ReasonExitInstruction:
		return "ExitInstruction"
	case ReasonFetchOutOfRange:
		return "FetchOutOfRange"
	default:
		return "None"
	}
}

// RetiredInstruction describes the instruction that left Writeback.
type RetiredInstruction struct {
	PC     uint64
	Word   uint32
	Disasm string
}

// RegisterWrite is a committed register update.
type RegisterWrite struct {
	Reg   uint8
	Value uint64
}

// MemoryWrite is a store performed in the Memory stage.
type MemoryWrite struct {
	Addr  uint64
	Width uint8
	Value uint64
}

// StepReport describes what happened during one cycle.
type StepReport struct {
	// Cycle is the number of the cycle just simulated.
	Cycle uint64

	// Retired is the instruction that retired this cycle, if any.
	Retired *RetiredInstruction

	RegisterWrites []RegisterWrite
	MemoryWrites   []MemoryWrite

	// Stalled is set if any stage held its instruction this cycle.
	Stalled bool
	// Flushed is set if a redirect from Execute discarded younger instructions.
	Flushed bool

	Terminated bool
	Reason     Reason

	// Diagnostics lists recoverable problems, such as undecodable words
	// that were turned into bubbles.
	Diagnostics []error

	// Err is set when the run cannot continue.
	Err error
}

// StageView shows what a stage worked on during the last cycle.
type StageView struct {
	Stage   Stage
	Valid   bool
	Stalled bool
	PC      uint64
	Word    uint32
	Disasm  string
	// Result is the value the stage produced: the ALU result in EX, the
	// loaded or passed-through value in MEM and the committed value in WB.
	Result uint64
}

// Snapshot is a copy of the architectural and microarchitectural state.
// It shares nothing with the pipeline.
type Snapshot struct {
	PC         uint64
	Cycle      uint64
	Registers  [32]uint64
	Stages     [NumStages]StageView
	Terminated bool
	Reason     Reason
	Stats      Statistics
}
