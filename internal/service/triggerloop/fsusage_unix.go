//go:build unix

package triggerloop

import "golang.org/x/sys/unix"

type statfsProbe struct{}

// NewStatfsProbe returns the platform FSUsageProbe, backed by statfs(2).
func NewStatfsProbe() FSUsageProbe { return statfsProbe{} }

func (statfsProbe) MeasureUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	total := uint64(st.Blocks) * uint64(st.Bsize)
	free := uint64(st.Bfree) * uint64(st.Bsize)
	if total == 0 {
		return Usage{}, nil
	}
	used := total - free
	return Usage{
		TotalBytes: total,
		UsedBytes:  used,
		UsedPct:    float64(used) / float64(total) * 100,
	}, nil
}
