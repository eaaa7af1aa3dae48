// Package streamrelay is a real-time fan-out relay. It keeps the most recent
// value of a fixed set of channels published on a NATS bus and pushes them to
// any number of WebSocket consumers as periodic batches.
//
// # Data flow
//
//	NATS subjects <prefix>.<channel>
//	        |
//	   bus.Subscription        latest message per channel, frozen per poll
//	        |
//	   collector.Collector     decode (codec) + convert (convert) per channel
//	        |
//	   snapshot.Cache          one record per channel, single writer
//	        |
//	   output/websocket        one delivery loop per consumer:
//	                           filter -> skip unchanged timestamps -> batch
//
// The collector is the only writer of the cache. Each consumer session reads
// the whole cache on its own tick and remembers the last timestamp it sent
// per channel, so a slow or broken consumer never holds up another one.
//
// # Consumer protocol
//
// Consumers send JSON control frames: {"subscribe": [...]} narrows the
// channel set, {"ping": ...} is answered with a pong and
// {"type": "get_topics"} returns the configured channels and the catalog
// ports. Outbound frames are {"type": "batch", "count": n, "messages": [...]}
// with one message per changed channel.
//
// # Packages
//
//   - bus: channel catalog, NATS subscription and publisher
//   - codec: JSON, CBOR and MessagePack payload decoding
//   - convert: payload values to JSON-safe values
//   - snapshot: the shared latest-value cache
//   - collector: the bus polling loop
//   - output/websocket: consumer sessions, control protocol, delivery
//   - config, health, metric, errors, natsclient: process plumbing
//   - cmd/streamrelay: the executable
package streamrelay
