package genclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRetrier(recorded *[]time.Duration) *Retrier {
	r := NewRetrier()
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
	return r
}

func TestRetrierSucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if len(delays) != 0 {
		t.Errorf("expected no backoff, got %v", delays)
	}
	if r.State() != StateSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", r.State())
	}
}

func TestRetrierExhaustsAfterFourAttempts(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return ErrRateLimited
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if attempts != 4 {
		t.Errorf("expected 4 attempts (1 initial + 3 retries), got %d", attempts)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	var total time.Duration
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], d)
		}
		total += d
	}
	if total != 14*time.Second {
		t.Errorf("expected total wait 14s, got %v", total)
	}
	if r.State() != StateRetriesExhausted {
		t.Errorf("expected FAILED_RETRIES_EXHAUSTED, got %s", r.State())
	}
}

func TestRetrierExhaustionMessage(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		return ErrRateLimited
	})
	if err == nil || err.Error() != "Too many requests. Please try again in a moment." {
		t.Fatalf("unexpected exhaustion message: %v", err)
	}
}

func TestRetrierRecoversMidway(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return ErrRateLimited
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != 2 || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("expected delays %v, got %v", want, delays)
	}
}

func TestRetrierDoesNotRetryFatalErrors(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	fatal := errors.New("invalid request data")
	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error passthrough, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if len(delays) != 0 {
		t.Errorf("expected no backoff, got %v", delays)
	}
	if r.State() != StateFailed {
		t.Errorf("expected FAILED_FATAL, got %s", r.State())
	}
}

func TestRetrierStopsOnCancelledBackoff(t *testing.T) {
	r := NewRetrier()
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return ErrRateLimited
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancel, got %d", attempts)
	}
	if r.State() != StateFailed {
		t.Errorf("expected FAILED_FATAL, got %s", r.State())
	}
}
