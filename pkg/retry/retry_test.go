package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("nats: no servers available for connection")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	base := errors.New("bad url")
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		return NonRetryable(base)
	})

	assert.Equal(t, 1, attempts)
	assert.True(t, IsNonRetryable(err))
	assert.ErrorIs(t, err, base)
	assert.Nil(t, NonRetryable(nil))
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestDo_MaxDelayCapsBackoff(t *testing.T) {
	cfg := Config{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, Multiplier: 10.0}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error { return errors.New("error") })
	elapsed := time.Since(start)

	// 10ms + 25ms + 25ms
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestDo_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{MaxAttempts: 2, InitialDelay: -time.Second}, func() error { return nil })
	assert.Error(t, err)

	err = Do(context.Background(), Config{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: time.Millisecond}, func() error { return nil })
	assert.Error(t, err)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_OnRetryReportsEachWait(t *testing.T) {
	type call struct {
		attempt int
		delay   time.Duration
	}
	var calls []call

	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		assert.EqualError(t, err, "still down")
		calls = append(calls, call{attempt, delay})
	}

	err := Do(context.Background(), cfg, func() error { return errors.New("still down") })
	assert.Error(t, err)

	// No wait after the last attempt
	assert.Equal(t, []call{{1, 5 * time.Millisecond}, {2, 10 * time.Millisecond}}, calls)
}

func TestBackoff_Sequence(t *testing.T) {
	b := &backoff{next: 10 * time.Millisecond, max: 50 * time.Millisecond, factor: 3}

	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, b.wait())
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		30 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}, got)
}

func TestBackoff_JitterBounded(t *testing.T) {
	for i := 0; i < 100; i++ {
		b := &backoff{next: 100 * time.Millisecond, max: time.Second, factor: 2, jitter: true}
		d := b.wait()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 125*time.Millisecond)
	}
}
