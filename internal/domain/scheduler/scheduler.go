// Package scheduler defines the pluggable pre-execution gate a policy
// run submits every candidate action through before it reaches a
// worker: rate limiting, per-run caps, or any future chained gate.
package scheduler

import (
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// Decision is the verdict a Scheduler returns for one candidate action.
type Decision int

const (
	// Ok means the action is accepted; the caller enqueues it for a worker.
	Ok Decision = iota
	// Delay means the action is deferred; the runner should retry it later
	// in the same run.
	Delay
	// Stop means no further actions may be submitted this run.
	Stop
)

func (d Decision) String() string {
	switch d {
	case Ok:
		return "ok"
	case Delay:
		return "delay"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Scheduler is the per-run interface of a scheduler plugin (construction
// and UpdateConfig live on each implementation) that a policy run
// consults once per candidate entry, in declared chain order, stopping
// at the first non-Ok verdict.
type Scheduler interface {
	// Reset is called once at the start of each run, before any Schedule calls.
	Reset()
	// Schedule evaluates whether the action on id (sized sizeBytes, for
	// volume-capped schedulers) may proceed right now.
	Schedule(id attr.ID, sizeBytes uint64) Decision
}

// Chain runs schedulers in order, stopping at the first non-Ok verdict,
// mirroring the runner's own chaining behaviour so it can be unit
// tested independent of the runner.
func Chain(schedulers []Scheduler, id attr.ID, sizeBytes uint64) Decision {
	for _, s := range schedulers {
		if d := s.Schedule(id, sizeBytes); d != Ok {
			return d
		}
	}
	return Ok
}

// ResetAll calls Reset on every scheduler in the chain.
func ResetAll(schedulers []Scheduler) {
	for _, s := range schedulers {
		s.Reset()
	}
}
