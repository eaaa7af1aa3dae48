package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/streamrelay/errors"
	"github.com/c360/streamrelay/natsclient"
)

// NATSBus subscribes to channels over a natsclient connection
type NATSBus struct {
	client *natsclient.Client
	prefix string
	logger *slog.Logger
}

// NewNATSBus creates a bus on top of a connected client
func NewNATSBus(client *natsclient.Client, prefix string, logger *slog.Logger) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBus{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "bus"),
	}
}

// Subscribe creates one NATS subscription per channel
func (b *NATSBus) Subscribe(_ context.Context, channels []string) (Subscription, error) {
	if b.client == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "NATSBus", "Subscribe", "check client")
	}

	sub := newLatestBuffer(channels)
	sub.closeFn = func() error {
		var firstErr error
		for _, s := range sub.natsSubs {
			if err := b.client.Unsubscribe(s); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, ch := range sub.channels {
		channel := ch
		s, err := b.client.SubscribeMsg(Subject(b.prefix, channel), func(msg *nats.Msg) {
			sub.offerNATS(channel, msg)
		})
		if err != nil {
			_ = sub.Close()
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
				"NATSBus", "Subscribe", "subscribe "+channel)
		}
		sub.natsSubs = append(sub.natsSubs, s)
	}

	b.logger.Info("Subscribed to bus channels", "prefix", b.prefix, "channels", sub.channels)
	return sub, nil
}

// latestBuffer keeps the latest pending message per channel and a frozen
// view for Read. Delivery callbacks write pending; Update moves pending to
// current.
type latestBuffer struct {
	channels []string

	mu        sync.Mutex
	pending   map[string]Message
	current   map[string]Message
	lastStamp map[string]uint64

	signal  chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	now     func() time.Time
	closeFn func() error

	natsSubs []*nats.Subscription
}

func newLatestBuffer(channels []string) *latestBuffer {
	seen := make(map[string]bool, len(channels))
	unique := make([]string, 0, len(channels))
	for _, ch := range channels {
		if !seen[ch] {
			seen[ch] = true
			unique = append(unique, ch)
		}
	}

	return &latestBuffer{
		channels:  unique,
		pending:   make(map[string]Message),
		current:   make(map[string]Message),
		lastStamp: make(map[string]uint64),
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

func (b *latestBuffer) offerNATS(channel string, msg *nats.Msg) {
	m, stamped := parseMessage(channel, msg, b.now())
	b.offer(m, stamped)
}

// offer stores m as the latest message of its channel. Unstamped messages
// get the receive time, kept strictly increasing per channel.
func (b *latestBuffer) offer(m Message, stamped bool) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	if !stamped {
		ts := uint64(m.ReceivedAt.UnixNano())
		if last := b.lastStamp[m.Channel]; ts <= last {
			ts = last + 1
		}
		m.LogMonoTime = ts
	}
	b.lastStamp[m.Channel] = m.LogMonoTime
	b.pending[m.Channel] = m
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *latestBuffer) Update(ctx context.Context, timeout time.Duration) (map[string]bool, error) {
	if b.closed.Load() {
		return nil, errors.WrapFatal(errors.ErrShuttingDown, "Subscription", "Update", "check state")
	}

	if updated, ok := b.collect(); ok {
		return updated, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.signal:
	case <-timer.C:
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "Subscription", "Update", "wait for messages")
	case <-b.done:
		return nil, errors.WrapFatal(errors.ErrShuttingDown, "Subscription", "Update", "wait for messages")
	}

	updated, _ := b.collect()
	return updated, nil
}

func (b *latestBuffer) collect() (map[string]bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.signal:
	default:
	}

	updated := make(map[string]bool, len(b.channels))
	for _, ch := range b.channels {
		updated[ch] = false
	}
	if len(b.pending) == 0 {
		return updated, false
	}

	for ch, m := range b.pending {
		b.current[ch] = m
		updated[ch] = true
	}
	clear(b.pending)
	return updated, true
}

func (b *latestBuffer) Read(name string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.current[name]
	return m, ok
}

func (b *latestBuffer) Channels() []string {
	return append([]string(nil), b.channels...)
}

func (b *latestBuffer) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.done)
	if b.closeFn != nil {
		return b.closeFn()
	}
	return nil
}
