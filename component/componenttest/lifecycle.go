// Package componenttest holds the shared conformance checks every
// component.LifecycleComponent in the relay is expected to pass.
package componenttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamrelay/component"
)

const stopTimeout = 5 * time.Second

// Factory creates a fresh, uninitialized component for one check
type Factory func(t *testing.T) component.LifecycleComponent

// RunLifecycle runs the lifecycle conformance checks against components
// built by factory
func RunLifecycle(t *testing.T, factory Factory) {
	t.Run("Compliance", func(t *testing.T) {
		checks := []struct {
			name  string
			check func(t *testing.T, comp component.LifecycleComponent)
		}{
			{"StartStop", checkStartStop},
			{"StopWithoutStart", checkStopWithoutStart},
			{"DoubleStart", checkDoubleStart},
			{"DoubleStop", checkDoubleStop},
			{"RestartAfterStop", checkRestartAfterStop},
			{"CancelledContext", checkCancelledContext},
		}
		for _, c := range checks {
			t.Run(c.name, func(t *testing.T) {
				comp := factory(t)
				require.NotNil(t, comp, "factory returned nil")
				c.check(t, comp)
			})
		}
	})

	t.Run("ConcurrentStartStop", func(t *testing.T) {
		checkConcurrentStartStop(t, factory(t))
	})
}

func start(t *testing.T, comp component.LifecycleComponent) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	t.Cleanup(cancel)
	require.NoError(t, comp.Start(ctx), "Start should succeed after Initialize")
}

func checkStartStop(t *testing.T, comp component.LifecycleComponent) {
	require.NoError(t, comp.Initialize())
	assert.False(t, comp.Health().Healthy, "not healthy before Start")

	start(t, comp)
	assert.True(t, comp.Health().Healthy, "healthy while running")
	assert.NotEmpty(t, comp.Meta().Name)

	require.NoError(t, comp.Stop(stopTimeout))
	assert.False(t, comp.Health().Healthy, "not healthy after Stop")
}

func checkStopWithoutStart(t *testing.T, comp component.LifecycleComponent) {
	require.NoError(t, comp.Initialize())
	assert.NoError(t, comp.Stop(stopTimeout), "Stop without Start is a no-op")
}

func checkDoubleStart(t *testing.T, comp component.LifecycleComponent) {
	require.NoError(t, comp.Initialize())
	start(t, comp)
	assert.NoError(t, comp.Start(context.Background()), "second Start is a no-op")
	assert.NoError(t, comp.Stop(stopTimeout))
}

func checkDoubleStop(t *testing.T, comp component.LifecycleComponent) {
	require.NoError(t, comp.Initialize())
	start(t, comp)
	assert.NoError(t, comp.Stop(stopTimeout))
	assert.NoError(t, comp.Stop(stopTimeout), "second Stop is a no-op")
}

func checkRestartAfterStop(t *testing.T, comp component.LifecycleComponent) {
	require.NoError(t, comp.Initialize())
	start(t, comp)
	require.NoError(t, comp.Stop(stopTimeout))

	require.NoError(t, comp.Initialize(), "Initialize after Stop")
	start(t, comp)
	assert.True(t, comp.Health().Healthy)
	assert.NoError(t, comp.Stop(stopTimeout))
}

func checkCancelledContext(t *testing.T, comp component.LifecycleComponent) {
	require.NoError(t, comp.Initialize())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Refusing to start and starting then winding down are both fine;
	// Stop must succeed either way
	_ = comp.Start(ctx)
	assert.NoError(t, comp.Stop(stopTimeout))
}

func checkConcurrentStartStop(t *testing.T, comp component.LifecycleComponent) {
	require.NoError(t, comp.Initialize())

	const workers = 20
	var wg sync.WaitGroup
	startErrs := make([]error, workers)
	stopErrs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			startErrs[idx] = comp.Start(ctx)
		}(i)
		go func(idx int) {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
			stopErrs[idx] = comp.Stop(stopTimeout)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		assert.NoError(t, startErrs[i], "start %d", i)
		assert.NoError(t, stopErrs[i], "stop %d", i)
	}

	require.NoError(t, comp.Stop(stopTimeout))
	assert.False(t, comp.Health().Healthy)
}
