package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry tells Blocking to call the function again.
var ErrRetry = errors.New("retry")

// ErrExhausted is returned from a Backoff made by Limit when it has no attempts left.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		if interval <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(int64(float64(interval) * r))
			return nil
		}
	}
}

// Immediately is a Backoff which never waits.
func Immediately() Backoff {
	return func(ctx context.Context) error {
		return ctx.Err()
	}
}

// Limit wraps a Backoff so that it permits at most `attempts` waits.
//
// The first call is "free" and does not count as a retry,
// so Blocking with Limit(b, 3) calls the function up to 4 times.
func Limit(b Backoff, attempts int) Backoff {
	first := true
	left := attempts
	return func(ctx context.Context) error {
		if first {
			first = false
			return ctx.Err()
		}
		if left <= 0 {
			return ErrExhausted
		}
		left -= 1
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// Before each call of f, b is called and when b returns an error Blocking gives up.
//
// # Returns
//
// - T: last return value of f
//
// - error: error returned by f or b.
// When b gives up with ErrExhausted, the last error from f is joined to it.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	var lastErr error
	for {
		if err := b(ctx); err != nil {
			if lastErr != nil {
				return last, errors.Join(err, lastErr)
			}
			return last, err
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			lastErr = err
			continue
		}
		return last, err
	}
}
