package websocket

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/streamrelay/bus"
	"github.com/c360/streamrelay/component"
	"github.com/c360/streamrelay/errors"
	"github.com/c360/streamrelay/metric"
	"github.com/c360/streamrelay/snapshot"
)

// Defaults for the relay server
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8867
	DefaultPath         = "/"
	DefaultSendInterval = 50 * time.Millisecond
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultControlRate  = 20.0
	DefaultControlBurst = 40

	maxMessageSize = 64 * 1024
)

// Disconnect reasons reported in logs and metrics
const (
	reasonClientClosed = "client_closed"
	reasonReadError    = "read_error"
	reasonSendError    = "send_error"
	reasonPingError    = "ping_error"
	reasonShutdown     = "shutdown"
)

// Config holds the relay server configuration
type Config struct {
	Host string
	// Port 0 picks a free port; see Addr.
	Port         int
	Path         string
	SendInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// Topics is the channel list advertised by get_topics
	Topics []string
	// ControlRate caps inbound control frames per second per consumer.
	// Frames over the limit are dropped unanswered.
	ControlRate  float64
	ControlBurst int
}

// DefaultConfig returns the default relay server configuration
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		Path:         DefaultPath,
		SendInterval: DefaultSendInterval,
		WriteTimeout: DefaultWriteTimeout,
		ReadTimeout:  DefaultReadTimeout,
		PingInterval: DefaultPingInterval,
		ControlRate:  DefaultControlRate,
		ControlBurst: DefaultControlBurst,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.SendInterval <= 0 {
		c.SendInterval = d.SendInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ControlRate <= 0 {
		c.ControlRate = d.ControlRate
	}
	if c.ControlBurst <= 0 {
		c.ControlBurst = d.ControlBurst
	}
	return c
}

// Deps holds the relay server dependencies
type Deps struct {
	Config          Config
	Cache           *snapshot.Cache
	Catalog         *bus.Catalog
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	// Routes are extra handlers served on the same listener, such as
	// /metrics and /healthz.
	Routes map[string]http.Handler
}

// Output is the relay server: it accepts WebSocket consumers and runs one
// delivery loop per consumer against the snapshot cache.
type Output struct {
	config   Config
	cache    *snapshot.Cache
	catalog  *bus.Catalog
	routes   map[string]http.Handler
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader
	sessions *ConnectionRegistry

	// Lifecycle management
	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	shutdown  chan struct{}
	wg        *sync.WaitGroup
	running   bool
	startTime time.Time

	connections  atomic.Int64
	batchesSent  atomic.Int64
	messagesSent atomic.Int64
	bytesSent    atomic.Int64
	errorCount   atomic.Int64
	lastError    atomic.Value // string
	lastActivity atomic.Value // time.Time
}

// NewOutput builds a relay server
func NewOutput(deps Deps) (*Output, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "websocket", "NewOutput", "metrics registration")
	}

	w := &Output{
		config:  deps.Config.withDefaults(),
		cache:   deps.Cache,
		catalog: deps.Catalog,
		routes:  deps.Routes,
		logger:  logger.With("component", "websocket-relay"),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// Dashboards are served from arbitrary origins
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		sessions: NewConnectionRegistry(),
	}
	w.lastError.Store("")
	w.lastActivity.Store(time.Time{})

	return w, nil
}

// Meta returns component metadata
func (w *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        "websocket-relay",
		Type:        "output",
		Description: fmt.Sprintf("WebSocket relay on %s%s", w.listenAddr(), w.config.Path),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the relay server
func (w *Output) Health() component.HealthStatus {
	w.mu.RLock()
	running := w.running
	startTime := w.startTime
	w.mu.RUnlock()

	var uptime time.Duration
	if running {
		uptime = time.Since(startTime)
	}
	lastError, _ := w.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(w.errorCount.Load()),
		LastError:  lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns the current data flow metrics
func (w *Output) DataFlow() component.FlowMetrics {
	w.mu.RLock()
	running := w.running
	startTime := w.startTime
	w.mu.RUnlock()

	messages := w.messagesSent.Load()
	batches := w.batchesSent.Load()
	errorCount := w.errorCount.Load()
	lastActivity, _ := w.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if running {
		if uptime := time.Since(startTime).Seconds(); uptime > 0 {
			messagesPerSecond = float64(messages) / uptime
			bytesPerSecond = float64(w.bytesSent.Load()) / uptime
		}
	}
	if total := batches + errorCount; total > 0 {
		errorRate = float64(errorCount) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the relay server dependencies
func (w *Output) Initialize() error {
	if w.cache == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil snapshot cache", errors.ErrMissingConfig),
			"websocket", "Initialize", "cache validation")
	}
	if w.config.Port < 0 || w.config.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d out of range", errors.ErrInvalidConfig, w.config.Port),
			"websocket", "Initialize", "port validation")
	}
	if w.config.Path[0] != '/' {
		return errors.WrapInvalid(fmt.Errorf("%w: path %q must start with /", errors.ErrInvalidConfig, w.config.Path),
			"websocket", "Initialize", "path validation")
	}
	return nil
}

// Start binds the listener and begins accepting consumers
func (w *Output) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "websocket", "Start", "context already done")
	}

	listener, err := net.Listen("tcp", w.listenAddr())
	if err != nil {
		return errors.WrapFatal(err, "websocket", "Start", fmt.Sprintf("listen on %s", w.listenAddr()))
	}

	mux := http.NewServeMux()
	for pattern, handler := range w.routes {
		mux.Handle(pattern, handler)
	}
	mux.HandleFunc(w.config.Path, w.handleWebSocket)

	w.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	w.listener = listener
	w.shutdown = make(chan struct{})
	w.wg = &sync.WaitGroup{}
	w.running = true
	w.startTime = time.Now()

	w.wg.Add(2)
	go w.runServer(w.wg, w.server, listener)
	go w.maintainClients(ctx, w.wg, w.shutdown)

	w.logger.Info("Relay server started", "addr", listener.Addr().String(), "path", w.config.Path,
		"send_interval", w.config.SendInterval)
	return nil
}

// Stop stops accepting consumers, closes every session and waits up to
// timeout for the per-session goroutines to exit
func (w *Output) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.shutdown)
	server, wg := w.server, w.wg
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("HTTP server shutdown error", "error", err)
	}

	for _, s := range w.sessions.Sessions() {
		w.removeSession(s, reasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"websocket", "Stop", "graceful shutdown")
	}

	w.mu.Lock()
	w.server = nil
	w.listener = nil
	w.mu.Unlock()

	w.logger.Info("Relay server stopped", "connections", w.connections.Load(), "batches_sent", w.batchesSent.Load())
	return nil
}

// Addr returns the bound listener address, or "" when not running
func (w *Output) Addr() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.listener == nil {
		return ""
	}
	return w.listener.Addr().String()
}

// SessionCount returns the number of connected consumers
func (w *Output) SessionCount() int {
	return w.sessions.Len()
}

func (w *Output) listenAddr() string {
	return net.JoinHostPort(w.config.Host, strconv.Itoa(w.config.Port))
}

func (w *Output) runServer(wg *sync.WaitGroup, server *http.Server, listener net.Listener) {
	defer wg.Done()

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		w.logger.Error("HTTP server failed", "error", err)
		w.recordError("server")
	}
}

func (w *Output) handleWebSocket(wr http.ResponseWriter, r *http.Request) {
	// Holding the read lock keeps wg.Add from racing Stop's wg.Wait
	w.mu.RLock()
	if !w.running {
		w.mu.RUnlock()
		http.Error(wr, "relay is shutting down", http.StatusServiceUnavailable)
		return
	}
	wg, shutdown := w.wg, w.shutdown

	conn, err := w.upgrader.Upgrade(wr, r, nil)
	if err != nil {
		w.mu.RUnlock()
		w.logger.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		w.recordError("upgrade")
		return
	}

	s := newSession(conn, r.RemoteAddr)
	s.control = rate.NewLimiter(rate.Limit(w.config.ControlRate), w.config.ControlBurst)
	w.sessions.Add(s)
	wg.Add(1)
	w.mu.RUnlock()

	w.connections.Add(1)
	if w.metrics != nil {
		w.metrics.connectionsTotal.Inc()
		w.metrics.clientsConnected.Inc()
	}
	w.logger.Info("Client connected", "session_id", s.ID, "remote_addr", s.RemoteAddr)

	go func() {
		defer wg.Done()
		w.serveSession(s, shutdown)
	}()
}

// sessionEnd is returned by a session loop to say why the session is over
type sessionEnd struct {
	reason string
}

func (e *sessionEnd) Error() string {
	return "session ended: " + e.reason
}

func endReason(err error) string {
	var end *sessionEnd
	if stderrors.As(err, &end) {
		return end.reason
	}
	return reasonReadError
}

// serveSession runs the read and delivery loops of one consumer. The first
// loop to stop closes the session, which stops the other one.
func (w *Output) serveSession(s *Session, shutdown <-chan struct{}) {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return w.readLoop(s)
	})
	g.Go(func() error {
		return w.deliveryLoop(ctx, s, shutdown)
	})
	g.Go(func() error {
		<-ctx.Done()
		w.removeSession(s, endReason(context.Cause(ctx)))
		return nil
	})

	_ = g.Wait()
}

// readLoop handles inbound control frames until the connection fails. It
// always returns a *sessionEnd.
func (w *Output) readLoop(s *Session) error {
	conn := s.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			reason := reasonReadError
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				reason = reasonClientClosed
			}
			return &sessionEnd{reason: reason}
		}
		_ = conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		if s.control != nil && !s.control.Allow() {
			w.logger.Debug("Control frame rate exceeded", "session_id", s.ID, "size", len(data))
			if w.metrics != nil {
				w.metrics.controlMessages.WithLabelValues(controlThrottled).Inc()
			}
			continue
		}

		reply, err := w.handleControl(s, data)
		if err != nil {
			w.logger.Error("Failed to encode control reply", "session_id", s.ID, "error", err)
			w.recordError("marshal")
			continue
		}
		if reply == nil {
			continue
		}

		if err := s.write(reply, w.config.WriteTimeout); err != nil {
			if !s.Closed() {
				w.logger.Debug("Control reply failed", "session_id", s.ID, "error", err)
				w.recordError("send")
			}
			return &sessionEnd{reason: reasonSendError}
		}
	}
}

// removeSession closes a session once and drops it from the registry. It is
// safe to call from the read loop, the delivery loop and Stop concurrently.
func (w *Output) removeSession(s *Session, reason string) {
	code := 0
	if reason == reasonShutdown {
		code = websocket.CloseGoingAway
	}
	if !s.close(code, reason) {
		return
	}
	w.sessions.Remove(s.ID)

	if w.metrics != nil {
		w.metrics.clientsConnected.Dec()
		w.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
	}
	w.logger.Info("Client disconnected", "session_id", s.ID, "remote_addr", s.RemoteAddr,
		"reason", reason, "batches_sent", s.BatchesSent(), "duration", time.Since(s.ConnectedAt))
}

// maintainClients pings every consumer at PingInterval
func (w *Output) maintainClients(ctx context.Context, wg *sync.WaitGroup, shutdown <-chan struct{}) {
	defer wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
			w.pingClients()
		}
	}
}

func (w *Output) pingClients() {
	for _, s := range w.sessions.Sessions() {
		if err := s.ping(w.config.WriteTimeout); err != nil {
			if !s.Closed() {
				w.logger.Debug("Ping failed", "session_id", s.ID, "error", err)
				w.recordError("ping")
			}
			w.removeSession(s, reasonPingError)
		}
	}
}

func (w *Output) recordError(errorType string) {
	w.errorCount.Add(1)
	w.lastError.Store(errorType)
	if w.metrics != nil {
		w.metrics.errorsTotal.WithLabelValues(errorType).Inc()
	}
}
