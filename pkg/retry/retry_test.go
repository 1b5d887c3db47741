package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_ReturnsErrorAfterExhaustingAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still failing")
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond))

	if err == nil {
		t.Fatalf("expected error after exhausting attempts, got nil")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapping %v", err, wantErr)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithAttemptDelaySeconds_Schedule(t *testing.T) {
	cfg := DefaultConfig()
	for _, opt := range WithAttemptDelaySeconds(3) {
		opt(cfg)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
	if !cfg.DelayBeforeFirstAttempt {
		t.Fatalf("DelayBeforeFirstAttempt = false, want true: attempt 1 must wait too")
	}
	if got := cfg.DelayFunc(1); got != 2*time.Second {
		t.Fatalf("delay(1) = %v, want 2s", got)
	}
	if got := cfg.DelayFunc(2); got != 3*time.Second {
		t.Fatalf("delay(2) = %v, want 3s", got)
	}
	if got := cfg.DelayFunc(3); got != 4*time.Second {
		t.Fatalf("delay(3) = %v, want 4s", got)
	}
}

func TestDo_DelayBeforeFirstAttempt(t *testing.T) {
	var calls int
	var firstCallAt time.Duration
	start := time.Now()

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			firstCallAt = time.Since(start)
		}
		return errors.New("still failing")
	}, WithMaxAttempts(3), WithDelayBeforeFirstAttempt(), WithDelayFunc(func(attempt int) time.Duration {
		return 20 * time.Millisecond
	}))

	if err == nil {
		t.Fatalf("expected error after exhausting attempts, got nil")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (no extra attempt, no missing attempt)", calls)
	}
	if firstCallAt < 20*time.Millisecond {
		t.Fatalf("first attempt ran after %v, want it to wait out its own delay first", firstCallAt)
	}
}

// TestDo_WithAttemptDelaySeconds_ReconnectSchedule pins down the exact
// schedule the client signaling peer relies on (spec §4.5.3): 3 total
// attempts, each preceded by its own (1+attempt)-second wait, with no
// zero-delay attempt sneaked in before the first.
func TestDo_WithAttemptDelaySeconds_ReconnectSchedule(t *testing.T) {
	var attemptTimes []time.Duration
	start := time.Now()

	err := Do(context.Background(), func(ctx context.Context) error {
		attemptTimes = append(attemptTimes, time.Since(start))
		return errors.New("dial refused")
	}, WithAttemptDelaySeconds(3)...)

	if err == nil {
		t.Fatalf("expected error after exhausting attempts, got nil")
	}
	if len(attemptTimes) != 3 {
		t.Fatalf("attempts = %d, want exactly 3", len(attemptTimes))
	}
	if attemptTimes[0] < 2*time.Second {
		t.Fatalf("attempt 1 ran at %v, want >= 2s (no immediate first attempt)", attemptTimes[0])
	}
	if attemptTimes[1]-attemptTimes[0] < 3*time.Second {
		t.Fatalf("gap before attempt 2 = %v, want >= 3s", attemptTimes[1]-attemptTimes[0])
	}
	if attemptTimes[2]-attemptTimes[1] < 4*time.Second {
		t.Fatalf("gap before attempt 3 = %v, want >= 4s", attemptTimes[2]-attemptTimes[1])
	}
}
