package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Fallbacks for zero Config fields
const (
	fallbackInitialDelay = 100 * time.Millisecond
	fallbackMaxDelay     = 5 * time.Second
	fallbackMultiplier   = 2.0
	maxMultiplier        = 1000
)

// NonRetryableError marks an error that ends the retry loop at once
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so Do returns it without another attempt
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was wrapped with NonRetryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config controls the attempts and the backoff between them
type Config struct {
	MaxAttempts  int // 0 runs fn once
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool // up to 25% extra per wait

	// OnRetry, when set, is called before each wait with the failed
	// attempt number and the delay about to be slept
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns three attempts starting at 100ms
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: fallbackInitialDelay,
		MaxDelay:     fallbackMaxDelay,
		Multiplier:   fallbackMultiplier,
		AddJitter:    true,
	}
}

// normalize fills zero fields and rejects configurations that cannot back off
func (c Config) normalize() (Config, error) {
	switch {
	case c.InitialDelay < 0:
		return c, errors.New("retry: InitialDelay cannot be negative")
	case c.MaxDelay < 0:
		return c, errors.New("retry: MaxDelay cannot be negative")
	case c.Multiplier < 0:
		return c, errors.New("retry: Multiplier cannot be negative")
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = fallbackInitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = fallbackMaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = fallbackMultiplier
	}
	c.Multiplier = min(c.Multiplier, maxMultiplier)

	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

// backoff yields the exponential wait sequence for one Do call
type backoff struct {
	next   time.Duration
	max    time.Duration
	factor float64
	jitter bool
}

func (b *backoff) wait() time.Duration {
	d := b.next
	if b.jitter && d >= 4 {
		d += time.Duration(rand.Int63n(int64(d / 4)))
	}

	grown := float64(b.next) * b.factor
	if grown >= float64(b.max) {
		b.next = b.max
	} else {
		b.next = time.Duration(grown)
	}
	return d
}

// Do calls fn until it succeeds, returns a NonRetryable error, ctx ends or
// the attempts run out
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}

	b := &backoff{next: cfg.InitialDelay, max: cfg.MaxDelay, factor: cfg.Multiplier, jitter: cfg.AddJitter}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if IsNonRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}

		delay := b.wait()
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}
}
