// Package retry applies an explicit retry policy to a single call.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy describes how many times a call is attempted, how long to wait
// between attempts, and which errors are worth another attempt.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int
	// Delays[i] is the wait before attempt i+2. The last delay repeats when
	// there are more attempts than delays.
	Delays []time.Duration
	// Retryable reports whether err should be retried. Nil retries nothing.
	Retryable func(error) bool
	// Name labels debug logs.
	Name string
}

// ExhaustedError wraps the last error once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// delay returns the wait before the given zero-based retry.
func (p Policy) delay(retry int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if retry >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[retry]
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// runs out of attempts, or ctx is cancelled.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := p.delay(attempt - 1)
			slog.Debug("retrying after delay", "call", p.Name, "attempt", attempt+1, "delay", wait, "err", lastErr)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
	}
	if attempts == 1 {
		return zero, lastErr
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}
