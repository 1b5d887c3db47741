// Package retry runs an operation with bounded attempts and a caller-chosen
// delay schedule between them. It backs the client signaling peer's
// unexpected-disconnect reconnection loop, where the schedule is neither
// pure exponential nor pure linear backoff but a fixed per-attempt sequence
// ((1+attempt) seconds) — hence DelayFunc alongside the geometric knobs.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

type Operation func(ctx context.Context) error

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// DelayFunc, if set, overrides the geometric InitialDelay/Multiplier
	// calculation entirely: calculateDelay calls DelayFunc(attempt)
	// instead.
	DelayFunc func(attempt int) time.Duration
	OnRetry   func(attempt int, err error, nextDelay time.Duration)
	RetryIf   func(err error) bool
	// DelayBeforeFirstAttempt makes Do wait out attempt 1's delay before
	// calling op for the first time, instead of only delaying between
	// attempts. Schedules expressed as "wait before attempt N" (rather
	// than "wait after attempt N-1 fails") need this.
	DelayBeforeFirstAttempt bool
}

type Option func(*Config)

func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		OnRetry:      nil,
		RetryIf:      nil,
	}
}

func WithInitialDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.InitialDelay = delay
	}
}

func WithMaxAttempts(maxAttempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = maxAttempts
	}
}

func WithMaxDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.MaxDelay = delay
	}
}

func WithMultiplier(multiplier float64) Option {
	return func(c *Config) {
		c.Multiplier = multiplier
	}
}

func WithOnRetry(callback func(attempt int, err error, nextDelay time.Duration)) Option {
	return func(c *Config) {
		c.OnRetry = callback
	}
}

func WithRetryIf(predicate func(err error) bool) Option {
	return func(c *Config) {
		c.RetryIf = predicate
	}
}

func WithDelayFunc(fn func(attempt int) time.Duration) Option {
	return func(c *Config) {
		c.DelayFunc = fn
	}
}

func WithDelayBeforeFirstAttempt() Option {
	return func(c *Config) {
		c.DelayBeforeFirstAttempt = true
	}
}

func Do(ctx context.Context, op Operation, opts ...Option) error {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled before attempt %d: %w", attempt, err)
		}

		if attempt > 1 || cfg.DelayBeforeFirstAttempt {
			delay := calculateDelay(attempt, cfg)

			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf(
					"context canceled during retry wait (attempt %d): %w (last error: %v)",
					attempt,
					ctx.Err(),
					lastErr,
				)

			case <-timer.C:
				// continue
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.RetryIf != nil && !cfg.RetryIf(lastErr) {
			return fmt.Errorf("unretryable error: %w", lastErr)
		}
	}

	return fmt.Errorf("retry: exhausted %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func calculateDelay(attempt int, cfg *Config) time.Duration {
	if cfg.DelayFunc != nil {
		return cfg.DelayFunc(attempt)
	}

	delay := min(
		float64(cfg.MaxDelay),
		float64(cfg.InitialDelay)*math.Pow(cfg.Multiplier, float64(attempt-1)),
	)
	return time.Duration(delay)
}

// WithAttemptDelaySeconds reproduces a `(1 + attempt)` second schedule: the
// client signaling peer waits 2s before its 1st reconnect attempt, 3s
// before the 2nd, 4s before the 3rd, and so on, per the core's
// reconnection contract — every attempt, including the first, is preceded
// by its wait.
func WithAttemptDelaySeconds(maxAttempts int) []Option {
	return []Option{
		WithMaxAttempts(maxAttempts),
		WithDelayBeforeFirstAttempt(),
		WithDelayFunc(func(attempt int) time.Duration {
			return time.Duration(1+attempt) * time.Second
		}),
	}
}

func WithExponentialBackoff(maxAttempts int, initialDelay, maxDelay time.Duration) []Option {
	return []Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(initialDelay),
		WithMaxDelay(maxDelay),
		WithMultiplier(2.0),
	}
}

func WithLinearBackoff(maxAttempts int, delay time.Duration) []Option {
	return []Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(delay),
		WithMaxDelay(delay),
		WithMultiplier(1.0),
	}
}
