package genclient

import (
	"context"
	"errors"
	"time"
)

// AttemptState is the retry controller's current phase.
type AttemptState string

const (
	StateIdle             AttemptState = "IDLE"
	StateAttempting       AttemptState = "ATTEMPTING"
	StateSucceeded        AttemptState = "SUCCEEDED"
	StateRetriesExhausted AttemptState = "FAILED_RETRIES_EXHAUSTED"
	StateFailed           AttemptState = "FAILED_FATAL"
)

// ErrRetriesExhausted is returned when every allowed attempt was rate
// limited. The message is what the user sees.
var ErrRetriesExhausted = errors.New("Too many requests. Please try again in a moment.")

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

// Retrier re-runs an attempt on rate limiting with exponential backoff:
// after failure n (1-based) it waits 2^n * baseDelay, so 2s, 4s, 8s with
// the default base. Any non-rate-limit error is terminal. Bounded
// iteration, never recursion, so termination is guaranteed.
type Retrier struct {
	maxRetries int
	baseDelay  time.Duration
	state      AttemptState

	// sleep is replaceable in tests. It must honor ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retry controller with the default bounds.
func NewRetrier() *Retrier {
	return &Retrier{
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		state:      StateIdle,
		sleep:      sleepContext,
	}
}

// State reports the controller's terminal (or in-flight) phase.
func (r *Retrier) State() AttemptState {
	return r.state
}

// Do runs attempt until it succeeds, fails fatally, or exhausts retries.
// One logical generation attempt is in flight at a time; the backoff wait
// suspends cooperatively via the sleep function.
func (r *Retrier) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	retries := 0
	for {
		r.state = StateAttempting
		err := attempt(ctx)
		if err == nil {
			r.state = StateSucceeded
			return nil
		}

		if !errors.Is(err, ErrRateLimited) {
			r.state = StateFailed
			return err
		}

		if retries >= r.maxRetries {
			r.state = StateRetriesExhausted
			return ErrRetriesExhausted
		}
		retries++
		delay := r.baseDelay * (1 << retries)
		if err := r.sleep(ctx, delay); err != nil {
			r.state = StateFailed
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
