// Package retry provides exponential backoff with jitter.
//
// The relay uses it for the initial bus connection, where the NATS server
// may still be starting when the process comes up:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Wrap an error with NonRetryable to stop immediately.
package retry
