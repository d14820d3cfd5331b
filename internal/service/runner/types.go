// Package runner implements the policy runner: the worker-pool-driven
// loop that scans a policy's scope, resolves each entry against its
// rules, and submits the resulting actions through the scheduler chain
// to a pool of workers.
package runner

import (
	"log/slog"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/fileclass"
)

// Config sizes and paces one policy's run loop.
type Config struct {
	// Workers is the size of this policy's worker pool.
	Workers int
	// QueueDepth bounds the in-flight action queue between the main
	// loop and the workers.
	QueueDepth int
	// ReportInterval is how often a progress summary is logged.
	ReportInterval time.Duration
	// DBRequestLimit caps how many rows a single catalog iterator call
	// fetches; 0 means unbounded.
	DBRequestLimit int
	// AllowNoAttr silences the warning logged for an entry whose
	// attributes are insufficient to evaluate a condition; such an entry
	// is skipped either way.
	AllowNoAttr bool
	// SuspendErrorPct and SuspendErrorMin gate the run's failure policy:
	// once at least SuspendErrorMin actions have failed AND the failure
	// percentage reaches SuspendErrorPct, the run aborts.
	SuspendErrorPct float64
	SuspendErrorMin uint64
	// SchedulerBackoff is the pause before retrying an entry that a
	// scheduler deferred with scheduler.Delay.
	SchedulerBackoff time.Duration
	// SchedulerMaxDelayRetries bounds how many times a single entry is
	// retried after repeated scheduler.Delay verdicts before it is
	// skipped.
	SchedulerMaxDelayRetries int

	// CheckOnly stops at rule resolution: a matched entry is counted but
	// never gated or submitted to a worker. Mirrors the CLI's
	// --check-only flag.
	CheckOnly bool
	// DryRun gates and counts a matched entry normally but never submits
	// it to a worker for real execution; it is logged and counted as
	// succeeded instead. Mirrors the CLI's --dry-run flag.
	DryRun bool
}

// SetDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 1000
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = 30 * time.Second
	}
	if c.SchedulerBackoff == 0 {
		c.SchedulerBackoff = 200 * time.Millisecond
	}
	if c.SchedulerMaxDelayRetries == 0 {
		c.SchedulerMaxDelayRetries = 5
	}
}

// TimeModifier artificially ages the clock a run evaluates conditions
// against, letting an operator pull forward maintenance-window runs
// without waiting for entries to actually age. Factor scales elapsed
// time since the run started; FloorSeconds is the minimum age added
// regardless of Factor.
type TimeModifier struct {
	Factor      float64
	FloorSeconds int64
}

// Apply returns the effective "now" a run should evaluate conditions
// against, given the wall-clock time and how long the run has been
// going.
func (m TimeModifier) Apply(now time.Time, elapsed time.Duration) time.Time {
	extra := time.Duration(m.FloorSeconds) * time.Second
	if m.Factor > 1 {
		scaled := time.Duration(float64(elapsed) * (m.Factor - 1))
		if scaled > extra {
			extra = scaled
		}
	}
	return now.Add(extra)
}

// Deps are the shared services a Runner consults; one Gateway is shared
// across every policy, but each Run opens its own Session.
type Deps struct {
	Catalog     *catalog.Gateway
	Fileclasses *fileclass.Registry
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Outcome classifies how a run ended.
type Outcome int

const (
	Completed Outcome = iota
	Aborted
	Suspended
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Summary is the result of one policy run, the shape persisted as the
// catalog summary variable and reported to the admin surface.
type Summary struct {
	RunID      string
	PolicyName string
	Started    time.Time
	Ended      time.Time

	Scanned   uint64
	Matched   uint64
	Skipped   uint64
	Succeeded uint64
	Failed    uint64
	Volume    uint64
	// Retries counts every transient (deadlock/connection-lost) catalog
	// operation retried during this run, across the main scan session
	// and every worker session.
	Retries uint64

	Outcome Outcome
}
