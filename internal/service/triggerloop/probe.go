package triggerloop

// Usage is a point-in-time filesystem capacity measurement.
type Usage struct {
	TotalBytes uint64
	UsedBytes  uint64
	UsedPct    float64
}

// FSUsageProbe measures filesystem capacity usage at a path — the
// mounted root for a GlobalUsage trigger, or one subject (mount point,
// pool directory) for a PerOST/PerPool trigger.
type FSUsageProbe interface {
	MeasureUsage(path string) (Usage, error)
}
