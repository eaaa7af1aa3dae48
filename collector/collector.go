package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/streamrelay/bus"
	"github.com/c360/streamrelay/component"
	"github.com/c360/streamrelay/convert"
	"github.com/c360/streamrelay/errors"
	"github.com/c360/streamrelay/metric"
	"github.com/c360/streamrelay/snapshot"
)

// DefaultPollTimeout bounds each wait for bus updates
const DefaultPollTimeout = 100 * time.Millisecond

// Config holds the collector configuration
type Config struct {
	Channels    []string
	PollTimeout time.Duration
}

// Deps holds the collector dependencies
type Deps struct {
	Config          Config
	Bus             bus.Bus
	Catalog         *bus.Catalog
	Cache           *snapshot.Cache
	Decoder         Decoder
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	RetryConfig     *errors.RetryConfig
}

// Collector polls the bus and keeps the snapshot cache current
type Collector struct {
	channels    []string
	excluded    []string
	pollTimeout time.Duration
	bus         bus.Bus
	cache       *snapshot.Cache
	decoder     Decoder
	retryConfig errors.RetryConfig
	logger      *slog.Logger
	metrics     *Metrics

	// Lifecycle management
	mu        sync.Mutex
	sub       bus.Subscription
	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	failed    atomic.Bool
	startTime time.Time

	ingested     atomic.Int64
	decodeErrors atomic.Int64
	lastError    atomic.Value // string
	lastActivity atomic.Value // time.Time
}

// New builds a collector. Channels missing from the catalog are excluded
// here and never polled.
func New(deps Deps) (*Collector, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "collector")

	pollTimeout := deps.Config.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	decoder := deps.Decoder
	if decoder == nil {
		decoder = PayloadDecoder{}
	}

	retryConfig := errors.DefaultRetryConfig()
	if deps.RetryConfig != nil {
		retryConfig = *deps.RetryConfig
	}

	channels := deps.Config.Channels
	var excluded []string
	if deps.Catalog != nil {
		channels, excluded = deps.Catalog.FilterKnown(channels)
		if len(excluded) > 0 {
			logger.Warn("Excluding channels missing from the bus catalog", "channels", excluded)
		}
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "collector", "New", "metrics registration")
	}

	c := &Collector{
		channels:    channels,
		excluded:    excluded,
		pollTimeout: pollTimeout,
		bus:         deps.Bus,
		cache:       deps.Cache,
		decoder:     decoder,
		retryConfig: retryConfig,
		logger:      logger,
		metrics:     metrics,
	}
	c.lastError.Store("")
	c.lastActivity.Store(time.Time{})

	return c, nil
}

// Channels returns the channels the collector polls
func (c *Collector) Channels() []string {
	return append([]string(nil), c.channels...)
}

// Excluded returns the requested channels that the catalog does not know
func (c *Collector) Excluded() []string {
	return append([]string(nil), c.excluded...)
}

// Meta returns component metadata
func (c *Collector) Meta() component.Metadata {
	return component.Metadata{
		Name:        "collector",
		Type:        "input",
		Description: fmt.Sprintf("Bus collector for %d channels", len(c.channels)),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the collector
func (c *Collector) Health() component.HealthStatus {
	var uptime time.Duration
	if c.running.Load() {
		uptime = time.Since(c.startTime)
	}
	lastError, _ := c.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    c.running.Load() && !c.failed.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(c.decodeErrors.Load()),
		LastError:  lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns the current data flow metrics
func (c *Collector) DataFlow() component.FlowMetrics {
	ingested := c.ingested.Load()
	errorCount := c.decodeErrors.Load()
	lastActivity, _ := c.lastActivity.Load().(time.Time)

	var messagesPerSecond, errorRate float64
	if c.running.Load() {
		if uptime := time.Since(c.startTime).Seconds(); uptime > 0 {
			messagesPerSecond = float64(ingested) / uptime
		}
	}
	if total := ingested + errorCount; total > 0 {
		errorRate = float64(errorCount) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the collector dependencies
func (c *Collector) Initialize() error {
	if c.bus == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil bus", errors.ErrMissingConfig),
			"collector", "Initialize", "bus validation")
	}
	if c.cache == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil snapshot cache", errors.ErrMissingConfig),
			"collector", "Initialize", "cache validation")
	}
	if len(c.channels) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: no known channels to collect", errors.ErrInvalidConfig),
			"collector", "Initialize", "channel validation")
	}
	return nil
}

// Start subscribes to the bus and starts the poll loop
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return nil
	}

	var sub bus.Subscription
	err := errors.Retry(ctx, c.retryConfig, func() error {
		var err error
		sub, err = c.bus.Subscribe(ctx, c.channels)
		return err
	})
	if err != nil {
		return errors.WrapTransient(err, "collector", "Start", "bus subscription")
	}

	c.sub = sub
	c.failed.Store(false)
	c.shutdown = make(chan struct{})
	c.done = make(chan struct{})
	c.startTime = time.Now()
	c.running.Store(true)

	go func(shutdown, done chan struct{}) {
		defer close(done)
		c.run(ctx, sub, shutdown)
	}(c.shutdown, c.done)

	c.logger.Info("Collector started", "channels", c.channels, "poll_timeout", c.pollTimeout)
	return nil
}

// Stop signals the poll loop to exit and waits up to timeout for it
func (c *Collector) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running.Load() {
		c.mu.Unlock()
		return nil
	}
	c.running.Store(false)

	close(c.shutdown)
	sub, done := c.sub, c.done
	c.sub = nil
	c.mu.Unlock()

	var closeErr error
	if sub != nil {
		closeErr = sub.Close()
	}

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"collector", "Stop", "graceful shutdown")
	}

	c.logger.Info("Collector stopped", "ingested", c.ingested.Load(), "decode_errors", c.decodeErrors.Load())
	return closeErr
}

func (c *Collector) run(ctx context.Context, sub bus.Subscription, shutdown <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		updated, err := sub.Update(ctx, c.pollTimeout)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-shutdown:
				return
			default:
			}
			if errors.IsFatal(err) {
				c.logger.Error("Bus subscription failed, collector exiting", "error", err)
				c.lastError.Store(err.Error())
				c.failed.Store(true)
				return
			}
			c.logger.Debug("Bus poll failed", "error", err)
			select {
			case <-time.After(c.pollTimeout):
			case <-shutdown:
				return
			}
			continue
		}

		c.ingest(sub, updated)
	}
}

// ingest decodes every updated channel and writes the survivors to the cache
// decode runs the configured decoder on one message. A panicking decoder is
// reported as an invalid-data error for that channel only, and output from
// custom decoders is passed through convert like payload output is.
func (c *Collector) decode(ch string, msg bus.Message) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = errors.WrapInvalid(
				fmt.Errorf("%w: decoder panic: %v", errors.ErrInvalidData, r),
				"collector", "ingest", "decode "+ch)
		}
	}()

	value, err = c.decoder.Decode(msg)
	if err != nil {
		return nil, err
	}
	if _, ok := c.decoder.(PayloadDecoder); ok {
		return value, nil
	}
	return convert.ToJSON(value)
}

func (c *Collector) ingest(sub bus.Subscription, updated map[string]bool) {
	if c.metrics != nil {
		c.metrics.pollCycles.Inc()
	}

	anyUpdated := false
	for _, ok := range updated {
		if ok {
			anyUpdated = true
			break
		}
	}
	if !anyUpdated {
		if c.metrics != nil {
			c.metrics.pollTimeouts.Inc()
		}
		return
	}

	records := make([]snapshot.Record, 0, len(updated))
	for _, ch := range c.channels {
		if !updated[ch] {
			continue
		}

		msg, ok := sub.Read(ch)
		if !ok {
			continue
		}

		value, err := c.decode(ch, msg)
		if err != nil {
			c.decodeErrors.Add(1)
			c.lastError.Store(err.Error())
			if c.metrics != nil {
				c.metrics.decodeErrors.WithLabelValues(ch).Inc()
			}
			c.logger.Warn("Dropping undecodable update", "channel", ch, "error", err)
			continue
		}

		records = append(records, snapshot.Record{
			Name:      ch,
			Value:     value,
			Timestamp: msg.LogMonoTime,
			Valid:     msg.Valid,
		})
	}

	if len(records) == 0 {
		return
	}

	c.ingested.Add(int64(len(records)))
	c.lastActivity.Store(time.Now())
	if c.metrics != nil {
		for _, r := range records {
			c.metrics.updatesIngested.WithLabelValues(r.Name).Inc()
		}
	}

	c.cache.IngestBatch(records)
}
