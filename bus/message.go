package bus

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/streamrelay/codec"
)

// Header names carried by bus messages
const (
	HeaderLogMonoTime = "Log-Mono-Time"
	HeaderValid       = "Valid"
	HeaderContentType = "Content-Type"
)

// Message is one raw bus message for a channel
type Message struct {
	Channel     string
	Data        []byte
	ContentType string
	LogMonoTime uint64
	Valid       bool
	ReceivedAt  time.Time
}

// Bus subscribes to channels
type Bus interface {
	Subscribe(ctx context.Context, channels []string) (Subscription, error)
}

// Subscription delivers the latest message of each subscribed channel
type Subscription interface {
	// Update waits up to timeout for new messages and reports, for every
	// subscribed channel, whether it was updated since the previous call.
	Update(ctx context.Context, timeout time.Duration) (map[string]bool, error)
	// Read returns the message frozen by the last Update
	Read(name string) (Message, bool)
	// Channels returns the subscribed channel names
	Channels() []string
	Close() error
}

// Subject returns the NATS subject for a channel
func Subject(prefix, channel string) string {
	if prefix == "" {
		return channel
	}
	return prefix + "." + channel
}

// parseMessage reads the relay headers off a NATS message. ok is false for
// a Log-Mono-Time header that is present but not a number, so the caller
// can stamp it instead.
func parseMessage(channel string, msg *nats.Msg, now time.Time) (Message, bool) {
	m := Message{
		Channel:     channel,
		Data:        msg.Data,
		ContentType: codec.ContentTypeJSON,
		Valid:       true,
		ReceivedAt:  now,
	}
	if msg.Header == nil {
		return m, false
	}

	if ct := msg.Header.Get(HeaderContentType); ct != "" {
		m.ContentType = ct
	}
	if v := msg.Header.Get(HeaderValid); v != "" {
		if valid, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			m.Valid = valid
		}
	}

	ts := msg.Header.Get(HeaderLogMonoTime)
	if ts == "" {
		return m, false
	}
	t, err := strconv.ParseUint(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return m, false
	}
	m.LogMonoTime = t
	return m, true
}
