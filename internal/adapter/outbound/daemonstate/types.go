// Package daemonstate provides file-based persistence for the daemon's
// own runtime status: whether it is running, and per-trigger and
// per-policy summaries. The "status" CLI command and the /status HTTP
// endpoint do not read it; they report the catalog's per-policy
// variables.
//
// The state.json file is written with the same atomic-write, backup and
// locking discipline regardless of what it holds: write-tmp-then-rename,
// flock for cross-process exclusion, a ".bak" of the previous content,
// and 0600 permissions.
package daemonstate

import "time"

// DaemonState is the top-level structure persisted in state.json.
type DaemonState struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// PID is the process id of the running daemon, or 0 if not running.
	PID int `json:"pid"`

	// StartedAt is when the current daemon process started. Zero if not running.
	StartedAt time.Time `json:"started_at"`

	// Triggers holds the latest status per configured trigger, keyed by trigger name.
	Triggers map[string]TriggerStateEntry `json:"triggers"`

	// Policies holds the latest run summary per configured policy, keyed by policy name.
	Policies map[string]PolicyStateEntry `json:"policies"`

	// Vars holds free-form persisted summary variables (e.g. last full-scan
	// timestamp, a schedule cursor) that triggers and runners read back
	// across restarts. This mirrors the catalog gateway's own GetVar/SetVar
	// table, but for values that only the daemon's own state file needs to
	// survive a restart before the catalog is reachable.
	Vars map[string]string `json:"vars,omitempty"`

	// CreatedAt is when this state file was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this state file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// TriggerStateEntry is the persisted snapshot of one trigger's run history.
type TriggerStateEntry struct {
	// Status is the trigger's last reported lifecycle state (see
	// internal/domain/trigger.Status), stored as its string form so the
	// state file stays human-readable.
	Status string `json:"status"`

	// LastCheck is when this trigger was last evaluated.
	LastCheck time.Time `json:"last_check"`

	// LastUsage is the usage measurement from the last check (meaning
	// depends on the trigger's dimension: blocks, bytes, count or percent).
	LastUsage float64 `json:"last_usage"`

	// LastCount is the number of entries targeted by the most recent run.
	LastCount uint64 `json:"last_count"`

	// TotalCount/TotalVolume/TotalBlocks/TotalErrors accumulate across
	// every run this trigger has launched since the daemon was first set up.
	TotalCount  uint64 `json:"total_count"`
	TotalVolume uint64 `json:"total_volume"`
	TotalBlocks uint64 `json:"total_blocks"`
	TotalErrors uint64 `json:"total_errors"`
}

// PolicyStateEntry is the persisted snapshot of one policy's last run.
type PolicyStateEntry struct {
	// LastRunID is the identifier of the most recent run (see
	// internal/service/runner, which assigns each run a UUID).
	LastRunID string `json:"last_run_id"`

	// LastRunStart/LastRunEnd bound the most recent run.
	LastRunStart time.Time `json:"last_run_start"`
	LastRunEnd   time.Time `json:"last_run_end"`

	// LastRunStatus is "ok", "suspended" or "error".
	LastRunStatus string `json:"last_run_status"`

	// TotalCount/TotalVolume/TotalErrors accumulate across every run of
	// this policy since the daemon was first set up.
	TotalCount  uint64 `json:"total_count"`
	TotalVolume uint64 `json:"total_volume"`
	TotalErrors uint64 `json:"total_errors"`

	// Suspended is true once the policy's error-rate threshold tripped
	// and further runs are being held back until an operator intervenes.
	Suspended bool `json:"suspended"`
}
