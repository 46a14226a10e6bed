package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastOptions(maxAttempts int) Options {
	return Options{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Jitter:      0,
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstAttemptSucceeds", func(t *testing.T) {
		calls := 0
		err := Do(ctx, func(ctx context.Context, attempt int) error {
			calls++
			assert.Equal(t, 1, attempt)
			return nil
		}, fastOptions(5))
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("RecoversAfterFailures", func(t *testing.T) {
		calls := 0
		err := Do(ctx, func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("transient")
			}
			return nil
		}, fastOptions(5))
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("ExhaustionReturnsLastError", func(t *testing.T) {
		calls := 0
		lastErr := errors.New("attempt 3 failed")
		err := Do(ctx, func(ctx context.Context, attempt int) error {
			calls++
			if attempt == 3 {
				return lastErr
			}
			return errors.New("earlier failure")
		}, fastOptions(3))
		assert.ErrorIs(t, err, lastErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("ObserverSeesEveryFailedAttempt", func(t *testing.T) {
		var attempts []Attempt
		opts := fastOptions(4)
		opts.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

		err := Do(ctx, func(ctx context.Context, attempt int) error {
			return errors.New("always fails")
		}, opts)
		assert.Error(t, err)
		// The final attempt has no backoff, so one fewer hook call.
		assert.Len(t, attempts, 3)
		for i, a := range attempts {
			assert.Equal(t, i+1, a.Number)
			assert.Error(t, a.Err)
			assert.LessOrEqual(t, a.Delay, opts.MaxDelay)
			assert.Positive(t, a.Delay)
		}
	})

	t.Run("ObserverPanicIsNotFatal", func(t *testing.T) {
		opts := fastOptions(3)
		opts.OnAttempt = func(Attempt) { panic("observer bug") }
		calls := 0
		err := Do(ctx, func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 2 {
				return errors.New("transient")
			}
			return nil
		}, opts)
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("ContextCancellationStopsRetrying", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		opErr := errors.New("failing")
		calls := 0
		opts := fastOptions(0) // unbounded
		opts.BaseDelay = 50 * time.Millisecond
		err := Do(cancelCtx, func(ctx context.Context, attempt int) error {
			calls++
			if attempt == 2 {
				cancel()
			}
			return opErr
		}, opts)
		assert.ErrorIs(t, err, opErr)
		assert.Equal(t, 2, calls)
	})

	t.Run("DelayIsCapped", func(t *testing.T) {
		opts := Options{MaxAttempts: 30, BaseDelay: time.Millisecond, MaxDelay: 3 * time.Millisecond}
		for attempt := 1; attempt < 30; attempt++ {
			d := backoffDelay(attempt, opts)
			assert.LessOrEqual(t, d, opts.MaxDelay)
			assert.Positive(t, d)
		}
	})
}

func TestFib(t *testing.T) {
	want := []int64{1, 1, 2, 3, 5, 8, 13, 21}
	for i, w := range want {
		assert.Equal(t, w, fib(i+1), "fib(%d)", i+1)
	}
	// Deep attempts must not wrap negative.
	assert.Positive(t, fib(200))
}
