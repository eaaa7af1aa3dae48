package component

import (
	"context"
	"time"
)

// LifecycleComponent defines components that support full lifecycle management:
//   - Initialize() error                     // Setup/validate only, NO context
//   - Start(ctx context.Context) error      // Start with context passed through
//   - Stop(timeout time.Duration) error     // Stop with timeout for graceful shutdown
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// StartAll initializes and starts components in order. On failure the
// components already started are stopped in reverse order.
func StartAll(ctx context.Context, timeout time.Duration, components ...LifecycleComponent) error {
	for i, c := range components {
		if err := c.Initialize(); err != nil {
			_ = StopAll(timeout, components[:i]...)
			return err
		}
		if err := c.Start(ctx); err != nil {
			_ = StopAll(timeout, components[:i]...)
			return err
		}
	}
	return nil
}

// StopAll stops components in reverse order and returns the first error.
func StopAll(timeout time.Duration, components ...LifecycleComponent) error {
	var first error
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(timeout); err != nil && first == nil {
			first = err
		}
	}
	return first
}
