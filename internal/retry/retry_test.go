package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/retry"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Delays:      []time.Duration{time.Millisecond, 2 * time.Millisecond},
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
		Name:        "test",
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(4), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := retry.Do(context.Background(), fastPolicy(4), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpAndSurfacesLastError(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(4), func(context.Context) error {
		calls++
		return errTransient
	})
	var ex *retry.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 4, ex.Attempts)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
}

func TestDoValueReturnsValue(t *testing.T) {
	calls := 0
	v, err := retry.DoValue(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "new-id", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", v)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Hour},
		Retryable:   func(error) bool { return true },
	}
	calls := 0
	err := retry.Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{}, func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}
