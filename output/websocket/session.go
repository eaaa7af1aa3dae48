package websocket

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/streamrelay/errors"
)

// Session is the relay's state for one connected consumer.
//
// The filter is written by the control handler and read by the delivery
// loop. lastSent belongs to the delivery loop alone.
type Session struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex

	filterMu sync.RWMutex
	filter   map[string]struct{}

	lastSent map[string]uint64

	// control limits inbound control frames; nil means unlimited
	control *rate.Limiter

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	batchesSent atomic.Int64
	bytesSent   atomic.Int64
}

func newSession(conn *websocket.Conn, remoteAddr string) *Session {
	return &Session{
		ID:          uuid.New(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
		filter:      make(map[string]struct{}),
		lastSent:    make(map[string]uint64),
		done:        make(chan struct{}),
	}
}

// SetFilter replaces the subscription filter. An empty set means every channel.
func (s *Session) SetFilter(topics []string) {
	filter := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		filter[t] = struct{}{}
	}

	s.filterMu.Lock()
	s.filter = filter
	s.filterMu.Unlock()
}

// Filter returns a copy of the current subscription filter
func (s *Session) Filter() map[string]struct{} {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()

	out := make(map[string]struct{}, len(s.filter))
	for k := range s.filter {
		out[k] = struct{}{}
	}
	return out
}

// Closed reports whether the session has been removed
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Done is closed when the session is removed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// BatchesSent returns the number of batch frames written to this consumer
func (s *Session) BatchesSent() int64 {
	return s.batchesSent.Load()
}

// write sends one text frame. Every writer of data frames goes through
// writeMu so frames to one consumer never interleave.
func (s *Session) write(data []byte, timeout time.Duration) error {
	if s.closed.Load() {
		return errors.WrapTransient(errors.ErrSessionClosed, "Session", "write", "closed session")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return errors.WrapTransient(err, "Session", "write", "set write deadline")
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "Session", "write", fmt.Sprintf("write to %s", s.ID))
	}

	s.bytesSent.Add(int64(len(data)))
	return nil
}

// ping sends a control ping; WriteControl is safe alongside write
func (s *Session) ping(timeout time.Duration) error {
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
		return errors.WrapTransient(err, "Session", "ping", "write ping")
	}
	return nil
}

// close marks the session removed and closes the connection. It reports
// whether this call did the work.
func (s *Session) close(code int, text string) bool {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closed.Store(true)
		close(s.done)

		if code != 0 {
			msg := websocket.FormatCloseMessage(code, text)
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = s.conn.Close()
	})
	return first
}
