package websocket

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Frame types written to consumers
const (
	TypeBatch           = "batch"
	TypeSubscribed      = "subscribed"
	TypePong            = "pong"
	TypeAvailableTopics = "available_topics"

	// TypeGetTopics is the only inbound frame selected by its "type" field
	TypeGetTopics = "get_topics"
)

// BatchMessage is one channel update inside a batch frame
type BatchMessage struct {
	Topic     string `json:"topic"`
	Timestamp uint64 `json:"timestamp"`
	Valid     bool   `json:"valid"`
	Data      any    `json:"data"`
}

// BatchFrame carries every channel that changed since the consumer's last send
type BatchFrame struct {
	Type     string         `json:"type"`
	Count    int            `json:"count"`
	Messages []BatchMessage `json:"messages"`
}

// SubscribedReply confirms a filter replacement
type SubscribedReply struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// PongReply answers a ping
type PongReply struct {
	Type string `json:"type"`
}

// AvailableTopicsReply lists the subscribable channels and their bus ports
type AvailableTopicsReply struct {
	Type   string         `json:"type"`
	Topics []string       `json:"topics"`
	Ports  map[string]int `json:"ports"`
}

// controlThrottled labels control frames dropped by the rate limit
const controlThrottled = "throttled"

// controlKind identifies the inbound control shapes
type controlKind int

const (
	controlIgnored controlKind = iota
	controlSubscribe
	controlPing
	controlGetTopics
)

func (k controlKind) String() string {
	switch k {
	case controlSubscribe:
		return "subscribe"
	case controlPing:
		return "ping"
	case controlGetTopics:
		return "get_topics"
	default:
		return "ignored"
	}
}

// controlMessage is a parsed inbound frame
type controlMessage struct {
	kind   controlKind
	topics []string
}

// parseControl classifies one inbound frame. Anything that is not a JSON
// object of a known shape comes back as controlIgnored. A "subscribe" key
// takes precedence over "ping", which takes precedence over "type".
func parseControl(data []byte) controlMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return controlMessage{kind: controlIgnored}
	}

	if raw, ok := fields["subscribe"]; ok {
		topics, ok := parseTopics(raw)
		if !ok {
			return controlMessage{kind: controlIgnored}
		}
		return controlMessage{kind: controlSubscribe, topics: topics}
	}

	if _, ok := fields["ping"]; ok {
		return controlMessage{kind: controlPing}
	}

	if raw, ok := fields["type"]; ok {
		var typ string
		if json.Unmarshal(raw, &typ) == nil && typ == TypeGetTopics {
			return controlMessage{kind: controlGetTopics}
		}
	}

	return controlMessage{kind: controlIgnored}
}

// parseTopics accepts only a JSON array of strings and returns it sorted
// and de-duplicated. Unknown names are kept verbatim.
func parseTopics(raw json.RawMessage) ([]string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}

	var topics []string
	if err := json.Unmarshal(raw, &topics); err != nil {
		return nil, false
	}

	slices.Sort(topics)
	topics = slices.Compact(topics)
	if topics == nil {
		topics = []string{}
	}
	return topics, true
}
