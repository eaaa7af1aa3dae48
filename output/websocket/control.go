package websocket

import (
	"encoding/json"
)

// handleControl applies one inbound frame to the session and returns the
// reply to send, or nil when the frame is ignored.
func (w *Output) handleControl(s *Session, data []byte) ([]byte, error) {
	msg := parseControl(data)
	if w.metrics != nil {
		w.metrics.controlMessages.WithLabelValues(msg.kind.String()).Inc()
	}

	var reply any
	switch msg.kind {
	case controlSubscribe:
		s.SetFilter(msg.topics)
		w.logger.Info("Client subscribed", "session_id", s.ID, "topics", msg.topics)
		reply = SubscribedReply{Type: TypeSubscribed, Topics: msg.topics}

	case controlPing:
		reply = PongReply{Type: TypePong}

	case controlGetTopics:
		reply = w.availableTopics()

	default:
		w.logger.Debug("Ignoring control frame", "session_id", s.ID, "size", len(data))
		return nil, nil
	}

	return json.Marshal(reply)
}

// availableTopics lists the configured channels and the bus ports of those
// the catalog knows
func (w *Output) availableTopics() AvailableTopicsReply {
	topics := append([]string{}, w.config.Topics...)

	ports := map[string]int{}
	if w.catalog != nil {
		ports = w.catalog.Ports(topics)
	}

	return AvailableTopicsReply{Type: TypeAvailableTopics, Topics: topics, Ports: ports}
}
