package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamrelay/metric"
)

// Metrics holds Prometheus metrics for the relay server
type Metrics struct {
	clientsConnected   prometheus.Gauge
	connectionsTotal   prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	batchesSent        prometheus.Counter
	batchSize          prometheus.Histogram
	bytesSent          prometheus.Counter
	controlMessages    *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
}

// newMetrics creates and registers relay metrics. A nil registry returns
// nil metrics.
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "clients_connected",
			Help:      "Number of currently connected WebSocket consumers",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "client_connections_total",
			Help:      "Total WebSocket consumer connections accepted",
		}),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "client_disconnections_total",
			Help:      "Total WebSocket consumer disconnections by reason",
		}, []string{"reason"}),
		batchesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "batches_sent_total",
			Help:      "Total batch frames written to consumers",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "batch_size_messages",
			Help:      "Channel updates per batch frame",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "bytes_sent_total",
			Help:      "Total batch bytes written to consumers",
		}),
		controlMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "control_messages_total",
			Help:      "Inbound consumer frames by control type",
		}, []string{"type"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Relay errors by type",
		}, []string{"error_type"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"clients_connected":           m.clientsConnected,
		"client_connections_total":    m.connectionsTotal,
		"client_disconnections_total": m.disconnectionTotal,
		"batches_sent_total":          m.batchesSent,
		"batch_size_messages":         m.batchSize,
		"bytes_sent_total":            m.bytesSent,
		"control_messages_total":      m.controlMessages,
		"errors_total":                m.errorsTotal,
	} {
		if err := registry.Register("relay", name, c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
