// Package health aggregates the health of the relay's parts into one Status
// and serves it over HTTP.
//
// A Status is healthy, degraded or unhealthy. Aggregate folds sub-statuses:
// any unhealthy child makes the parent unhealthy, otherwise any degraded
// child makes it degraded.
//
// Monitor polls registered checks on demand:
//
//	monitor := health.NewMonitor("streamrelay")
//	monitor.AddComponent("collector", collector)
//	monitor.AddCheck("bus", func() health.Status { ... })
//	mux.Handle("/healthz", monitor.Handler())
//
// The handler answers 200 with the aggregate Status as JSON when it is
// healthy and 503 otherwise. Component error messages pass through a
// sanitizer that masks URLs, paths, addresses and credentials before they
// leave the process.
package health
