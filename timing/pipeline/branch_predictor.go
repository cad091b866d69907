package pipeline

// BranchPredictorConfig holds configuration for the branch predictor.
type BranchPredictorConfig struct {
	// Size is the number of predictor entries.
	// Must be a power of 2. Default is 256.
	Size uint32
}

// DefaultBranchPredictorConfig returns a default configuration.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{
		Size: 256,
	}
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Lookups is the number of fetches the predictor was consulted for.
	Lookups uint64
	// Updates is the number of resolved control transfers.
	Updates uint64
	// Correct is the number of correct direction predictions.
	Correct uint64
	// Mispredictions is the number of incorrect direction predictions.
	Mispredictions uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Updates == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Updates) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted target address.
	Target uint64
}

// BranchPredictor implements a PC-tagged table of 2-bit saturating counters
// with the last taken target of each entry.
//
// A PC with no entry is predicted not taken. An entry is created the first
// time a control transfer at that PC resolves, starting weakly taken if it
// was taken and strongly not taken otherwise.
type BranchPredictor struct {
	entries []predictorEntry
	size    uint32
	stats   BranchPredictorStats
}

type predictorEntry struct {
	valid   bool
	pc      uint64
	counter uint8 // 0=Strongly Not Taken .. 3=Strongly Taken
	target  uint64
}

// NewBranchPredictor creates a new branch predictor with the given configuration.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	size := config.Size
	if size == 0 || size&(size-1) != 0 {
		size = DefaultBranchPredictorConfig().Size
	}

	return &BranchPredictor{
		entries: make([]predictorEntry, size),
		size:    size,
	}
}

func (bp *BranchPredictor) index(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(bp.size-1))
}

func (bp *BranchPredictor) lookup(pc uint64) *predictorEntry {
	entry := &bp.entries[bp.index(pc)]
	if entry.valid && entry.pc == pc {
		return entry
	}
	return nil
}

// Predict makes a branch prediction for the given PC.
func (bp *BranchPredictor) Predict(pc uint64) Prediction {
	bp.stats.Lookups++

	entry := bp.lookup(pc)
	if entry == nil || entry.counter < 2 {
		return Prediction{}
	}

	return Prediction{Taken: true, Target: entry.target}
}

// Update trains the predictor with the actual outcome of the control
// transfer at pc.
func (bp *BranchPredictor) Update(pc uint64, taken bool, target uint64) {
	bp.stats.Updates++

	entry := bp.lookup(pc)
	if entry == nil {
		if taken {
			bp.stats.Mispredictions++
		} else {
			bp.stats.Correct++
		}

		entry = &bp.entries[bp.index(pc)]
		*entry = predictorEntry{valid: true, pc: pc, target: target}
		if taken {
			entry.counter = 2
		}
		return
	}

	if (entry.counter >= 2) == taken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}

	if taken {
		if entry.counter < 3 {
			entry.counter++
		}
		entry.target = target
	} else if entry.counter > 0 {
		entry.counter--
	}
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears all predictor state and statistics.
func (bp *BranchPredictor) Reset() {
	for i := range bp.entries {
		bp.entries[i] = predictorEntry{}
	}
	bp.stats = BranchPredictorStats{}
}
