package memsched

import (
	"sync"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/scheduler"
)

// RateLimitConfig parameterises the periodic-refill token bucket pair.
// Both the count and size buckets must be non-exhausted for a submission
// to proceed.
type RateLimitConfig struct {
	MaxCount uint64        // tokens refilled into the count bucket every Period
	MaxSize  uint64        // bytes refilled into the size bucket every Period
	Period   time.Duration // refill interval
	MaxWaits int           // consecutive SchedDelay verdicts tolerated before force-release
}

// RateLimit is a periodic-refill token bucket scheduler. Unlike a GCRA
// rate limiter, which spreads admission continuously over time, this
// refills both buckets in one jump every Period and, if a caller has
// been deferred MaxWaits consecutive times, force-releases it on the
// next refill rather than stalling it indefinitely.
type RateLimit struct {
	mu  sync.Mutex
	cfg RateLimitConfig

	countTokens uint64
	sizeTokens  uint64
	lastRefill  time.Time
	waitsLeft   int

	now func() time.Time // overridable for tests
}

// NewRateLimit returns a RateLimit gate with full buckets, ready for use.
func NewRateLimit(cfg RateLimitConfig) *RateLimit {
	r := &RateLimit{cfg: cfg, now: time.Now}
	r.Reset()
	return r
}

// UpdateConfig replaces the configuration; the current bucket levels are
// preserved until the next refill.
func (r *RateLimit) UpdateConfig(cfg RateLimitConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Reset fills both buckets and resets the wait counter; called at the
// start of each run.
func (r *RateLimit) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countTokens = r.cfg.MaxCount
	r.sizeTokens = r.cfg.MaxSize
	r.waitsLeft = r.cfg.MaxWaits
	r.lastRefill = r.now()
}

// Schedule implements scheduler.Scheduler.
func (r *RateLimit) Schedule(_ attr.ID, sizeBytes uint64) scheduler.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillLocked()

	countOk := r.cfg.MaxCount == 0 || r.countTokens >= 1
	sizeOk := r.cfg.MaxSize == 0 || r.sizeTokens >= sizeBytes

	if countOk && sizeOk {
		if r.cfg.MaxCount != 0 {
			r.countTokens--
		}
		if r.cfg.MaxSize != 0 {
			r.sizeTokens -= sizeBytes
		}
		r.waitsLeft = r.cfg.MaxWaits
		return scheduler.Ok
	}

	if r.cfg.MaxWaits > 0 {
		if r.waitsLeft <= 0 {
			// Force-release: grant the request anyway so a persistently
			// oversized candidate doesn't stall the run forever, then
			// reset the wait counter for the next caller.
			r.waitsLeft = r.cfg.MaxWaits
			return scheduler.Ok
		}
		r.waitsLeft--
	}
	return scheduler.Delay
}

// refillLocked refills both buckets to full capacity once at least one
// whole Period has elapsed since lastRefill (tokens never accumulate
// beyond one Period's worth), and advances lastRefill by the whole
// Periods elapsed. Called with mu held.
func (r *RateLimit) refillLocked() {
	if r.cfg.Period <= 0 {
		return
	}
	elapsed := r.now().Sub(r.lastRefill)
	periods := int64(elapsed / r.cfg.Period)
	if periods <= 0 {
		return
	}
	r.countTokens = r.cfg.MaxCount
	r.sizeTokens = r.cfg.MaxSize
	r.lastRefill = r.lastRefill.Add(time.Duration(periods) * r.cfg.Period)
}

var _ scheduler.Scheduler = (*RateLimit)(nil)
