package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the Prometheus namespace used by every relay metric
const Namespace = "streamrelay"

// Metrics contains process-level metrics shared by all components
type Metrics struct {
	BuildInfo *prometheus.GaugeVec

	// Bus connection
	BusConnected  prometheus.Gauge
	BusRTT        prometheus.Gauge
	BusReconnects prometheus.Counter
}

// NewMetrics creates the process-level metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build information, value is always 1",
			},
			[]string{"version"},
		),

		BusConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "bus",
				Name:      "connected",
				Help:      "Bus connection status (0=disconnected, 1=connected)",
			},
		),

		BusRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "bus",
				Name:      "rtt_milliseconds",
				Help:      "Bus round-trip time in milliseconds",
			},
		),

		BusReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "bus",
				Name:      "reconnects_total",
				Help:      "Total number of bus reconnections",
			},
		),
	}
}

// RecordBuildInfo sets the build info gauge for version
func (c *Metrics) RecordBuildInfo(version string) {
	c.BuildInfo.WithLabelValues(version).Set(1)
}

// RecordBusStatus updates the bus connection status
func (c *Metrics) RecordBusStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.BusConnected.Set(value)
}

// RecordBusRTT updates the bus round-trip time
func (c *Metrics) RecordBusRTT(rtt time.Duration) {
	c.BusRTT.Set(float64(rtt.Milliseconds()))
}

// RecordBusReconnect increments the reconnection counter
func (c *Metrics) RecordBusReconnect() {
	c.BusReconnects.Inc()
}
