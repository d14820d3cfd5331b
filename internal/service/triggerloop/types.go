// Package triggerloop implements the single background loop that
// checks every configured trigger on its own cadence and, when one
// fires, invokes the matching policy runner against a target scoped to
// just the watermark's excess (or, for a periodic trigger, the whole
// policy scope).
package triggerloop

import (
	"log/slog"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/service/runner"
)

// Config holds the loop's own tunables, independent of any one trigger.
type Config struct {
	// FSRootPath is the path statfs'd for a GlobalUsage trigger with no
	// explicit Subjects.
	FSRootPath string
}

// SetDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) SetDefaults() {
	if c.FSRootPath == "" {
		c.FSRootPath = "/"
	}
}

// Deps are the shared services the loop consults while checking and
// firing triggers.
type Deps struct {
	Catalog *catalog.Gateway
	// Runners maps a policy name to the Runner that drives it; every
	// trigger.Trigger.Policy value must have an entry here.
	Runners map[string]*runner.Runner
	FSUsage FSUsageProbe
	Metrics *Metrics
	Logger  *slog.Logger
}
