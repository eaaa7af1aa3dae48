package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/c360/streamrelay/component"
)

// Check reports the current health of one part of the process
type Check func() Status

// Monitor evaluates registered checks and aggregates the result
type Monitor struct {
	system string

	mu     sync.RWMutex
	checks map[string]Check
}

// NewMonitor creates a monitor whose aggregate status is named system
func NewMonitor(system string) *Monitor {
	return &Monitor{
		system: system,
		checks: make(map[string]Check),
	}
}

// AddCheck registers a check under name, replacing any previous one
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// AddComponent registers a component's Health as a check
func (m *Monitor) AddComponent(name string, c component.Discoverable) {
	m.AddCheck(name, func() Status {
		return FromComponentHealth(name, c.Health())
	})
}

// Remove unregisters a check
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checks, name)
}

// Count returns the number of registered checks
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checks)
}

// Get evaluates a single check
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	check, ok := m.checks[name]
	m.mu.RUnlock()
	if !ok {
		return Status{}, false
	}

	status := check()
	status.Component = name
	return status, true
}

// Evaluate runs every check and aggregates the results
func (m *Monitor) Evaluate() Status {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	subStatuses := make([]Status, 0, len(checks))
	for name, check := range checks {
		status := check()
		status.Component = name
		subStatuses = append(subStatuses, status)
	}

	return Aggregate(m.system, subStatuses)
}

// Handler serves the aggregate status as JSON: 200 when healthy, 503
// otherwise
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := m.Evaluate()
		code := http.StatusOK
		if !status.IsHealthy() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
