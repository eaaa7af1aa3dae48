package websocket

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/c360/streamrelay/errors"
	"github.com/c360/streamrelay/snapshot"
)

// buildBatch selects the records a consumer has not seen yet and records
// them in lastSent. An empty filter matches every channel. A channel whose
// timestamp equals lastSent is skipped.
func buildBatch(records map[string]snapshot.Record, filter map[string]struct{}, lastSent map[string]uint64) BatchFrame {
	names := make([]string, 0, len(records))
	for name := range records {
		if len(filter) > 0 {
			if _, ok := filter[name]; !ok {
				continue
			}
		}
		if ts, seen := lastSent[name]; seen && ts == records[name].Timestamp {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	messages := make([]BatchMessage, 0, len(names))
	for _, name := range names {
		r := records[name]
		messages = append(messages, BatchMessage{
			Topic:     name,
			Timestamp: r.Timestamp,
			Valid:     r.Valid,
			Data:      r.Value,
		})
		lastSent[name] = r.Timestamp
	}

	return BatchFrame{Type: TypeBatch, Count: len(messages), Messages: messages}
}

// deliveryLoop sends batches to one consumer at the configured cadence
// until ctx ends, the session is removed, the server stops or a send fails
func (w *Output) deliveryLoop(ctx context.Context, s *Session, shutdown <-chan struct{}) error {
	ticker := time.NewTicker(w.config.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-s.Done():
			return &sessionEnd{reason: reasonShutdown}
		case <-shutdown:
			return &sessionEnd{reason: reasonShutdown}
		case <-ticker.C:
		}

		if err := w.deliver(s); err != nil {
			if !s.Closed() {
				w.logger.Debug("Batch send failed", "session_id", s.ID, "error", err)
				w.recordError("send")
			}
			return &sessionEnd{reason: reasonSendError}
		}
	}
}

// deliver runs one delivery cycle. An empty cycle writes nothing.
func (w *Output) deliver(s *Session) error {
	batch := buildBatch(w.cache.ReadAll(), s.Filter(), s.lastSent)
	if batch.Count == 0 {
		return nil
	}

	data, err := json.Marshal(batch)
	if err != nil {
		// The offending records are already in lastSent, so the next
		// cycle only retries them after a fresh update.
		w.logger.Error("Failed to encode batch", "session_id", s.ID, "error", err)
		w.recordError("marshal")
		return nil
	}

	if err := s.write(data, w.config.WriteTimeout); err != nil {
		return errors.Wrap(err, "websocket", "deliver", "batch send")
	}

	s.batchesSent.Add(1)
	w.batchesSent.Add(1)
	w.messagesSent.Add(int64(batch.Count))
	w.bytesSent.Add(int64(len(data)))
	w.lastActivity.Store(time.Now())
	if w.metrics != nil {
		w.metrics.batchesSent.Inc()
		w.metrics.batchSize.Observe(float64(batch.Count))
		w.metrics.bytesSent.Add(float64(len(data)))
	}
	return nil
}
