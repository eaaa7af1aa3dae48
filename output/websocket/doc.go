// Package websocket provides the relay server that fans channel snapshots out
// to WebSocket consumers.
//
// # Overview
//
// Output accepts WebSocket connections and gives every consumer its own
// Session and delivery loop. The loops never talk to the collector; they
// read the shared snapshot.Cache at a fixed cadence and send only what the
// consumer has not seen yet.
//
// # Quick Start
//
//	relay, err := websocket.NewOutput(websocket.Deps{
//	    Config:  websocket.Config{Port: 8867, Topics: channels},
//	    Cache:   cache,
//	    Catalog: bus.DefaultCatalog(),
//	    Routes:  map[string]http.Handler{"/metrics": registry.Handler()},
//	})
//	if err != nil {
//	    return err
//	}
//	if err := relay.Initialize(); err != nil {
//	    return err
//	}
//	if err := relay.Start(ctx); err != nil {
//	    return err
//	}
//	defer relay.Stop(5 * time.Second)
//
// # Delivery
//
// Each tick (SendInterval, 50ms by default) the delivery loop:
//
//  1. Copies the snapshot cache
//  2. Drops channels outside the session filter (an empty filter matches all)
//  3. Drops channels whose timestamp equals the one last sent to this session
//  4. Sends the rest as one batch frame, ordered by channel name
//
// An empty cycle sends nothing. A consumer that connects after channels were
// cached receives the current records on its first tick, because nothing has
// been sent to it yet.
//
// Batch frame:
//
//	{"type":"batch","count":1,"messages":[
//	  {"topic":"carState","timestamp":100,"valid":true,"data":{"speed":10}}
//	]}
//
// # Control Frames
//
// Consumers may send one JSON object per frame:
//
//	{"subscribe":["carState","radarState"]}  -> {"type":"subscribed","topics":[...]}
//	{"ping":1}                               -> {"type":"pong"}
//	{"type":"get_topics"}                    -> {"type":"available_topics","topics":[...],"ports":{...}}
//
// Anything else, invalid JSON included, is ignored without a reply and
// leaves the session untouched. Subscribed topics are de-duplicated and
// sorted; unknown names are accepted and simply never match.
//
// Each consumer may send ControlRate frames per second with bursts of
// ControlBurst. Frames over the limit are dropped without a reply.
//
// # Connection Management
//
// Control replies and batches share the session write lock, so frames to one
// consumer never interleave. The server pings every PingInterval and the read
// deadline (ReadTimeout) is refreshed by pongs and inbound frames. The read
// and delivery loops of a session run as one errgroup: the first to fail
// removes the session, closing the connection under the other one.
//
// # Metrics
//
// With a metric.MetricsRegistry the server exports, under streamrelay_relay_:
//
//   - clients_connected
//   - client_connections_total
//   - client_disconnections_total{reason}
//   - batches_sent_total
//   - batch_size_messages
//   - bytes_sent_total
//   - control_messages_total{type}
//   - errors_total{error_type}
package websocket
