package pipeline

import (
	"github.com/sarchlab/rvsim/timing/cache"
)

// CachedFetchStage charges the latency of the L1 instruction cache to
// fetch. Instruction words still come from the program image once the line
// is present.
type CachedFetchStage struct {
	cache     *cache.Cache
	pending   bool   // True if waiting for a line fill
	pendingPC uint64 // PC being waited on
	latency   uint64 // Remaining latency cycles
}

// NewCachedFetchStage creates a new cached fetch stage.
func NewCachedFetchStage(icache *cache.Cache) *CachedFetchStage {
	return &CachedFetchStage{
		cache: icache,
	}
}

// Fetch looks up pc in the I-cache and returns true while fetch must wait.
// As in MEM, the first cycle of the access is the fetch cycle itself.
func (s *CachedFetchStage) Fetch(pc uint64) bool {
	// If PC changed, cancel any pending request (e.g., branch taken)
	if s.pending && s.pendingPC != pc {
		s.pending = false
		s.latency = 0
	}

	if s.pending {
		s.latency--
		if s.latency > 0 {
			return true
		}
		s.pending = false
		return false
	}

	result := s.cache.Read(pc)
	if result.Latency <= 1 {
		return false
	}

	s.pending = true
	s.pendingPC = pc
	s.latency = result.Latency - 1 // Already consumed 1 cycle
	return true
}

// CacheStats returns the I-cache statistics.
func (s *CachedFetchStage) CacheStats() cache.Statistics {
	return s.cache.Stats()
}

// Reset clears pending state and the cache contents.
func (s *CachedFetchStage) Reset() {
	s.pending = false
	s.latency = 0
	s.cache.Reset()
}

// CachedMemoryStage charges the latency of the L1 data cache to loads and
// stores in MEM. Data is still read and written by MemoryStage once the
// access completes.
type CachedMemoryStage struct {
	cache       *cache.Cache
	pending     bool   // True if waiting for the current access
	pendingPC   uint64 // PC of instruction being waited on
	pendingAddr uint64 // Address being waited on
	latency     uint64 // Remaining latency cycles
}

// NewCachedMemoryStage creates a new cached memory stage.
func NewCachedMemoryStage(dcache *cache.Cache) *CachedMemoryStage {
	return &CachedMemoryStage{
		cache: dcache,
	}
}

// Access looks up the EX/MEM access in the D-cache and returns true while
// the access is still in flight. The first cycle of every access is the MEM
// cycle itself, so a hit with latency 1 never stalls.
func (s *CachedMemoryStage) Access(exmem *EXMEMRegister) bool {
	if !exmem.Valid || (!exmem.MemRead && !exmem.MemWrite) {
		s.pending = false
		return false
	}

	addr := exmem.ALUResult

	// A different memory operation cancels the pending one.
	if s.pending && (s.pendingPC != exmem.PC || s.pendingAddr != addr) {
		s.pending = false
		s.latency = 0
	}

	if s.pending {
		s.latency--
		if s.latency > 0 {
			return true
		}
		s.pending = false
		return false
	}

	var result cache.AccessResult
	if exmem.MemRead {
		result = s.cache.Read(addr)
	} else {
		result = s.cache.Write(addr)
	}

	if result.Latency <= 1 {
		return false
	}

	s.pending = true
	s.pendingPC = exmem.PC
	s.pendingAddr = addr
	s.latency = result.Latency - 1 // Already consumed 1 cycle
	return true
}

// CacheStats returns the D-cache statistics.
func (s *CachedMemoryStage) CacheStats() cache.Statistics {
	return s.cache.Stats()
}

// Reset clears pending state and the cache contents.
func (s *CachedMemoryStage) Reset() {
	s.pending = false
	s.latency = 0
	s.cache.Reset()
}
