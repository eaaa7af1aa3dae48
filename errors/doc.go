// Package errors provides the error classification used across the relay.
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input or configuration, do not retry) and Fatal (stop processing).
// The class drives what each component does with a failure: the collector
// drops one channel update on an Invalid decode error, the bus connect path
// retries Transient errors, and the entry point exits on Fatal ones.
//
// All wrapping follows the format "component.method: action failed: cause":
//
//	if err := client.Connect(ctx); err != nil {
//	    return errors.WrapTransient(err, "NATSBus", "Subscribe", "connect to bus")
//	}
//
// Classification works through wrap chains with the standard library
// errors.Is / errors.As semantics:
//
//	if errors.IsInvalid(err) {
//	    // drop this update, keep the previous snapshot
//	}
package errors
