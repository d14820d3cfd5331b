// Package trigger models the periodic and usage-based triggers that
// decide when a policy run should start, and the per-trigger state the
// trigger loop carries between checks.
package trigger

import (
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
)

// Kind discriminates how a trigger decides whether to fire.
type Kind int

const (
	// Periodic always fires on schedule.
	Periodic Kind = iota
	// GlobalUsage queries statfs of the filesystem root.
	GlobalUsage
	// PerOST queries per-OST (object storage target) usage.
	PerOST
	// PerPool queries per-pool usage.
	PerPool
	// PerUser runs a catalog aggregation keyed by uid.
	PerUser
	// PerGroup runs a catalog aggregation keyed by gid.
	PerGroup
	// Custom delegates to an external probe.
	Custom
)

func (k Kind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case GlobalUsage:
		return "global_usage"
	case PerOST:
		return "per_ost"
	case PerPool:
		return "per_pool"
	case PerUser:
		return "per_user"
	case PerGroup:
		return "per_group"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Dimension is the unit a watermark is expressed in. HW and LW of a
// trigger must share the same dimension.
type Dimension int

const (
	DimensionBlocks Dimension = iota
	DimensionBytes
	DimensionCount
	DimensionPercent
)

func (d Dimension) String() string {
	switch d {
	case DimensionBlocks:
		return "blocks"
	case DimensionBytes:
		return "bytes"
	case DimensionCount:
		return "count"
	case DimensionPercent:
		return "percent"
	default:
		return "unknown"
	}
}

// Status is a trigger's lifecycle state, reported to /status.
type Status int

const (
	NotChecked Status = iota
	BeingChecked
	Running
	Ok
	NoList
	NotEnough
	CheckError
	Aborted
	Unsupported
)

func (s Status) String() string {
	switch s {
	case NotChecked:
		return "not_checked"
	case BeingChecked:
		return "being_checked"
	case Running:
		return "running"
	case Ok:
		return "ok"
	case NoList:
		return "no_list"
	case NotEnough:
		return "not_enough"
	case CheckError:
		return "check_error"
	case Aborted:
		return "aborted"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Watermark pairs a high and low threshold in the same dimension; a
// trigger fires a run capped to the measured value's excess over LW, then re-checks
// against LW when the run completes.
type Watermark struct {
	Dimension Dimension
	High      float64
	Low       float64
}

// Validate enforces HW_dimension == LW_dimension (the two fields already
// share one Dimension field here, so this only checks High >= Low).
func (w Watermark) Validate() error {
	if w.High < w.Low {
		return errWatermark{"high watermark is below low watermark"}
	}
	return nil
}

type errWatermark struct{ msg string }

func (e errWatermark) Error() string { return "trigger: " + e.msg }

// Trigger is a configured trigger: what kind it is, what policy/target
// it drives, and its check cadence and limits.
type Trigger struct {
	Name          string
	Kind          Kind
	Policy        string   // name of the policy this trigger launches runs for
	TargetClass   string   // fileclass this trigger's watermark applies to, if any
	Subjects      []string // explicit uid/gid/ost list for PerUser/PerOST etc, optional
	CheckInterval time.Duration

	Watermark Watermark

	MaxActionCount  uint64 // optional cap on actions triggered per run
	MaxActionVolume uint64 // optional cap on volume triggered per run

	PostTriggerWait time.Duration // cooldown before re-measuring usage after a run
	Params          *action.Params
	AlertOnNotEnough bool
}

// State is the mutable per-trigger bookkeeping the trigger loop updates
// between checks.
type State struct {
	Status         Status
	LastCheck      time.Time
	LastUsage      float64
	LastCount      uint64
	LastCounters   Counters
	TotalCounters  Counters
}

// Counters accumulates the outcome of the runs a trigger has launched.
type Counters struct {
	Count  uint64
	Volume uint64
	Blocks uint64
	Errors uint64
}

// Add accumulates delta into c, in place.
func (c *Counters) Add(delta Counters) {
	c.Count += delta.Count
	c.Volume += delta.Volume
	c.Blocks += delta.Blocks
	c.Errors += delta.Errors
}
