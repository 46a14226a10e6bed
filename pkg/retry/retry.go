// Package retry is the single backoff mechanism of the service. Every
// outbound call that may be retried (broker publish, payment gateway, UF
// lookup, broker reconnect) goes through Do.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Attempt describes one failed attempt, passed to the OnAttempt observer
// before the backoff sleep.
type Attempt struct {
	Number int
	Delay  time.Duration
	Err    error
}

type Options struct {
	// MaxAttempts includes the first try. Zero or negative means retry
	// until the context is cancelled.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
	// OnAttempt is an observer hook for logging. It must never be fatal:
	// panics are recovered and logged.
	OnAttempt func(Attempt)
}

// DefaultOptions mirrors the tuning the publishers use.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      100 * time.Millisecond,
	}
}

// Do runs op, retrying failures with Fibonacci-spaced delays
// (fib(n)*BaseDelay capped at MaxDelay, plus up to Jitter of random slack).
// The attempt number passed to op is 1-based. When attempts are exhausted the
// last error is returned; the caller decides whether that is fatal.
func Do(ctx context.Context, op func(ctx context.Context, attempt int) error, opts Options) error {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; opts.MaxAttempts <= 0 || attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			break
		}

		delay := backoffDelay(attempt, opts)
		notify(opts.OnAttempt, Attempt{Number: attempt, Delay: delay, Err: lastErr})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

func backoffDelay(attempt int, opts Options) time.Duration {
	delay := time.Duration(fib(attempt)) * opts.BaseDelay
	if delay > opts.MaxDelay || delay <= 0 {
		delay = opts.MaxDelay
	}
	if opts.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(opts.Jitter)))
	}
	return delay
}

func notify(hook func(Attempt), a Attempt) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("retry OnAttempt hook panicked", "panic", r)
		}
	}()
	hook(a)
}

// fib is 1-indexed: 1, 1, 2, 3, 5, 8, ...
func fib(n int) int64 {
	if n <= 2 {
		return 1
	}
	a, b := int64(1), int64(1)
	for i := 3; i <= n; i++ {
		a, b = b, a+b
		if b < 0 { // overflow guard, MaxDelay caps the result anyway
			return 1 << 62
		}
	}
	return b
}
