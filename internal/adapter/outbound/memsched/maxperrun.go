// Package memsched implements the built-in in-process schedulers: a
// cumulative per-run cap and a periodic-refill rate limiter.
package memsched

import (
	"sync"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/scheduler"
)

// MaxPerRunConfig bounds the cumulative count and volume a single run
// may submit. Zero means unbounded for that dimension.
type MaxPerRunConfig struct {
	MaxCount  uint64
	MaxVolume uint64
}

// MaxPerRun enforces MaxPerRunConfig's cumulative caps. Once either cap
// is reached it returns scheduler.Stop for the remainder of the run;
// Reset clears both counters at the start of the next run.
type MaxPerRun struct {
	mu     sync.Mutex
	cfg    MaxPerRunConfig
	count  uint64
	volume uint64
}

// NewMaxPerRun returns a MaxPerRun gate with the given caps.
func NewMaxPerRun(cfg MaxPerRunConfig) *MaxPerRun {
	return &MaxPerRun{cfg: cfg}
}

// UpdateConfig replaces the caps without resetting the current run's
// counters; a shrinking cap takes effect on the very next Schedule call.
func (m *MaxPerRun) UpdateConfig(cfg MaxPerRunConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Reset zeroes both counters at the start of a run.
func (m *MaxPerRun) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = 0
	m.volume = 0
}

// Schedule implements scheduler.Scheduler.
func (m *MaxPerRun) Schedule(_ attr.ID, sizeBytes uint64) scheduler.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxCount != 0 && m.count >= m.cfg.MaxCount {
		return scheduler.Stop
	}
	if m.cfg.MaxVolume != 0 && m.volume >= m.cfg.MaxVolume {
		return scheduler.Stop
	}

	m.count++
	m.volume += sizeBytes
	return scheduler.Ok
}

// Counters returns a snapshot of the current run's count and volume,
// for progress reporting.
func (m *MaxPerRun) Counters() (count, volume uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, m.volume
}

var _ scheduler.Scheduler = (*MaxPerRun)(nil)
