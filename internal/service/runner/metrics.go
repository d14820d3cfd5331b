package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation shared by every policy's
// runner, labeled by policy name so /metrics can break usage down per
// policy.
type Metrics struct {
	ActionsTotal   *prometheus.CounterVec
	VolumeTotal    *prometheus.CounterVec
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	EntriesScanned *prometheus.CounterVec
	ActiveWorkers  *prometheus.GaugeVec
}

// NewMetrics creates and registers the runner's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ActionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rbhcored",
				Name:      "actions_total",
				Help:      "Total actions executed by the policy runner",
			},
			[]string{"policy", "result"}, // result=ok/error
		),
		VolumeTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rbhcored",
				Name:      "action_volume_bytes_total",
				Help:      "Total bytes affected by successful actions",
			},
			[]string{"policy"},
		),
		RunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rbhcored",
				Name:      "runs_total",
				Help:      "Total policy runs, by final outcome",
			},
			[]string{"policy", "outcome"}, // outcome=completed/aborted/suspended
		),
		RunDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rbhcored",
				Name:      "run_duration_seconds",
				Help:      "Policy run wall-clock duration",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"policy"},
		),
		EntriesScanned: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rbhcored",
				Name:      "entries_scanned_total",
				Help:      "Total catalog entries examined by the policy runner",
			},
			[]string{"policy"},
		),
		ActiveWorkers: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rbhcored",
				Name:      "active_workers",
				Help:      "Number of live worker goroutines in the policy's current run",
			},
			[]string{"policy"},
		),
	}
}
