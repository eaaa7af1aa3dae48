// Package metric wraps a private Prometheus registry for the relay.
//
// A single MetricsRegistry is created at startup and handed to every
// component that records metrics. Components treat a nil registry as
// "metrics disabled" and keep a nil metrics struct, checking it before
// each observation:
//
//	registry := metric.NewMetricsRegistry()
//	cache := snapshot.New(snapshot.WithMetrics(registry))
//	mux.Handle("/metrics", registry.Handler())
//
// Component metrics are registered under a "service.metric" key so that a
// duplicate registration is reported as an invalid error instead of a
// Prometheus panic.
package metric
