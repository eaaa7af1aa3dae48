package bus

import (
	"context"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/c360/streamrelay/codec"
	"github.com/c360/streamrelay/natsclient"
)

// PublishOptions sets the headers of a published message
type PublishOptions struct {
	// LogMonoTime is sent when non-zero; otherwise receivers stamp the
	// receive time.
	LogMonoTime uint64
	Invalid     bool
	ContentType string
}

// Publisher publishes channel messages on the bus
type Publisher struct {
	client *natsclient.Client
	prefix string
}

// NewPublisher creates a publisher for subjects under prefix
func NewPublisher(client *natsclient.Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Publish encodes value with opts.ContentType and publishes it on channel
func (p *Publisher) Publish(ctx context.Context, channel string, value any, opts PublishOptions) error {
	ct, err := codec.Normalize(opts.ContentType)
	if err != nil {
		return err
	}
	data, err := codec.Encode(ct, value)
	if err != nil {
		return err
	}
	opts.ContentType = ct
	return p.PublishRaw(ctx, channel, data, opts)
}

// PublishRaw publishes already-encoded data on channel
func (p *Publisher) PublishRaw(ctx context.Context, channel string, data []byte, opts PublishOptions) error {
	msg := nats.NewMsg(Subject(p.prefix, channel))
	msg.Data = data
	if opts.ContentType != "" {
		msg.Header.Set(HeaderContentType, opts.ContentType)
	}
	if opts.LogMonoTime != 0 {
		msg.Header.Set(HeaderLogMonoTime, strconv.FormatUint(opts.LogMonoTime, 10))
	}
	msg.Header.Set(HeaderValid, strconv.FormatBool(!opts.Invalid))

	return p.client.PublishMsg(ctx, msg)
}
