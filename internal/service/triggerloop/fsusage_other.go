//go:build !unix

package triggerloop

import "errors"

type statfsProbe struct{}

// NewStatfsProbe returns the platform FSUsageProbe. Filesystem capacity
// probing has no portable implementation outside statfs(2); on this
// platform every measurement fails and the calling trigger reports
// Unsupported.
func NewStatfsProbe() FSUsageProbe { return statfsProbe{} }

func (statfsProbe) MeasureUsage(path string) (Usage, error) {
	return Usage{}, errors.New("triggerloop: filesystem usage probing is unsupported on this platform")
}
