// Package natsclient wraps the NATS Go client with a connection state
// machine, a circuit breaker on connect failures, health monitoring and
// structured logging.
//
// The relay uses a single Client for the whole process. The bus package
// builds channel subscriptions on top of it:
//
//	client, err := natsclient.NewClient("nats://127.0.0.1:4222",
//	    natsclient.WithName("streamrelay"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// Connection states move Disconnected -> Connecting -> Connected and,
// when the server goes away, Connected -> Reconnecting -> Connected. After
// a configurable number of consecutive connect failures the circuit opens
// and Connect fails fast with ErrCircuitOpen until the backoff elapses.
//
// Messages are exchanged as *nats.Msg so that headers (timestamps,
// validity, content type) travel with the payload.
//
// NewTestClient starts a NATS server in a container through
// testcontainers-go for integration tests.
package natsclient
