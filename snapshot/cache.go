// Package snapshot holds the latest converted value of every bus channel.
//
// Cache has a single writer (the collector) and many readers (one delivery
// loop per consumer). Records are replaced wholesale under a write lock and
// ReadAll hands out a copy of the map, so a reader never sees a value paired
// with another update's timestamp.
package snapshot

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamrelay/metric"
)

// Record is the latest state of one channel
type Record struct {
	Name      string
	Value     any
	Timestamp uint64
	Valid     bool
}

// Cache maps channel name to its latest Record
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record

	cached prometheus.Gauge
}

// Option configures a Cache
type Option func(*Cache) error

// WithMetrics registers the cached_channels gauge. A nil registry is a no-op.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Cache) error {
		if registry == nil {
			return nil
		}
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "snapshot",
			Name:      "cached_channels",
			Help:      "Number of channels with at least one cached record",
		})
		if err := registry.Register("snapshot", "cached_channels", gauge); err != nil {
			return err
		}
		c.cached = gauge
		return nil
	}
}

// New creates an empty cache
func New(opts ...Option) (*Cache, error) {
	c := &Cache{records: make(map[string]Record)}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Ingest replaces the record for name
func (c *Cache) Ingest(name string, value any, timestamp uint64, valid bool) {
	c.IngestBatch([]Record{{Name: name, Value: value, Timestamp: timestamp, Valid: valid}})
}

// IngestBatch replaces several records under one lock
func (c *Cache) IngestBatch(records []Record) {
	if len(records) == 0 {
		return
	}

	c.mu.Lock()
	for _, r := range records {
		c.records[r.Name] = r
	}
	n := len(c.records)
	c.mu.Unlock()

	if c.cached != nil {
		c.cached.Set(float64(n))
	}
}

// ReadAll returns a point-in-time copy of every record
func (c *Cache) ReadAll() map[string]Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Record, len(c.records))
	for name, r := range c.records {
		out[name] = r
	}
	return out
}

// Get returns the record for name
func (c *Cache) Get(name string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.records[name]
	return r, ok
}

// Len returns the number of cached channels
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
