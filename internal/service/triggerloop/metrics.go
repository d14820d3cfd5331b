package triggerloop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for the trigger loop,
// labeled by trigger name.
type Metrics struct {
	ChecksTotal *prometheus.CounterVec
	FiresTotal  *prometheus.CounterVec
	UsagePct    *prometheus.GaugeVec
	Status      *prometheus.GaugeVec
}

// NewMetrics creates and registers the trigger loop's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ChecksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rbhcored",
				Name:      "trigger_checks_total",
				Help:      "Total times a trigger's condition was checked",
			},
			[]string{"trigger"},
		),
		FiresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rbhcored",
				Name:      "trigger_fires_total",
				Help:      "Total policy runs launched by a trigger, by outcome",
			},
			[]string{"trigger", "outcome"},
		),
		UsagePct: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rbhcored",
				Name:      "trigger_usage_pct",
				Help:      "Last measured usage percentage for a usage-based trigger",
			},
			[]string{"trigger"},
		),
		Status: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rbhcored",
				Name:      "trigger_status",
				Help:      "Current trigger.Status ordinal; see trigger.Status.String() for the mapping",
			},
			[]string{"trigger"},
		),
	}
}
