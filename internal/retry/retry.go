// Package retry runs operations against external services under a bounded
// attempt budget with a pluggable backoff.
package retry

import (
	"context"
	"errors"
	"time"
)

// Backoff returns the delay to wait after the given zero-based failed attempt.
type Backoff func(attempt int) time.Duration

// Policy bounds how often an operation is attempted.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
}

// Fixed waits the same delay after every failure.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential doubles base on every attempt, capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		if attempt > 30 {
			return max
		}
		d := base << attempt
		if d <= 0 || d > max {
			d = max
		}
		return d
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// AfterError lets an operation override the policy delay for one failure,
// e.g. from a Retry-After header.
type AfterError struct {
	Err   error
	Delay time.Duration
}

func (a *AfterError) Error() string { return a.Err.Error() }
func (a *AfterError) Unwrap() error { return a.Err }

// Do calls fn until it succeeds, returns a Permanent error, the attempt budget
// is spent, or ctx is done. The last error is returned unwrapped of retry markers.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Fixed(0)
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts-1 {
			break
		}
		delay := backoff(attempt)
		var after *AfterError
		if errors.As(err, &after) && after.Delay > 0 {
			delay = after.Delay
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
	}
	var after *AfterError
	if errors.As(err, &after) {
		return after.Err
	}
	return err
}
