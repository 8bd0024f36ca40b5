package pulse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HerbHall/netwatch/pkg/models"
)

// metrics holds the Prometheus collectors of the monitoring engine.
type metrics struct {
	checks       *prometheus.CounterVec
	checkSeconds *prometheus.HistogramVec
	ticksSkipped prometheus.Counter
	scheduled    prometheus.Gauge
	alerts       *prometheus.CounterVec
}

// newMetrics registers the pulse collectors with reg. A nil reg uses a
// private registry so collectors still work but are never exported.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &metrics{
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netwatch",
			Subsystem: "pulse",
			Name:      "checks_total",
			Help:      "Completed checks by monitor type and result status.",
		}, []string{"kind", "status"}),
		checkSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "netwatch",
			Subsystem: "pulse",
			Name:      "check_duration_seconds",
			Help:      "Wall time of a single probe.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		ticksSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netwatch",
			Subsystem: "pulse",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous check of the same monitor was still running.",
		}),
		scheduled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "netwatch",
			Subsystem: "pulse",
			Name:      "scheduled_monitors",
			Help:      "Monitors with an armed timer.",
		}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netwatch",
			Subsystem: "pulse",
			Name:      "alert_transitions_total",
			Help:      "Alert state transitions by target status.",
		}, []string{"status"}),
	}
}

func (m *metrics) observeCheck(kind models.MonitorKind, status models.Status, seconds float64) {
	m.checks.WithLabelValues(string(kind), string(status)).Inc()
	m.checkSeconds.WithLabelValues(string(kind)).Observe(seconds)
}
