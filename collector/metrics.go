package collector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamrelay/metric"
)

// Metrics holds Prometheus metrics for the collector
type Metrics struct {
	updatesIngested *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	pollCycles      prometheus.Counter
	pollTimeouts    prometheus.Counter
}

// newMetrics creates and registers collector metrics. A nil registry
// returns nil metrics.
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		updatesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "updates_ingested_total",
			Help:      "Channel updates decoded and written to the snapshot cache",
		}, []string{"channel"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "decode_errors_total",
			Help:      "Channel updates dropped because the payload could not be decoded",
		}, []string{"channel"}),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "poll_cycles_total",
			Help:      "Bus poll cycles completed",
		}),
		pollTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "poll_timeouts_total",
			Help:      "Bus poll cycles that ended with no channel updated",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"updates_ingested": m.updatesIngested,
		"decode_errors":    m.decodeErrors,
		"poll_cycles":      m.pollCycles,
		"poll_timeouts":    m.pollTimeouts,
	} {
		if err := registry.Register("collector", name, c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
