// Package retry runs operations under a bounded exponential-backoff budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy bounds a retry loop. The zero value is not usable; start from Default.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	Multiplier  time.Duration // wait before attempt n is Multiplier * 2^(n-2)
	MinDelay    time.Duration // floor of every wait
	MaxDelay    time.Duration // ceiling of every wait

	// Sleep waits for d or until ctx is done. Tests replace it to avoid real sleeps.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default is the generation budget: 10 attempts, waits 2s, 2s, 4s, 8s ... capped at 60s.
func Default() Policy {
	return Policy{
		MaxAttempts: 10,
		Multiplier:  time.Second,
		MinDelay:    2 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

// ErrExhausted is wrapped by Do when every attempt failed.
var ErrExhausted = errors.New("retry budget exhausted")

// Permanent marks an error that must not be retried.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Stop wraps err so Do returns it immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// Delay returns the wait before the given attempt (1-based). Attempt 1 never waits.
// The wait is Multiplier * 2^(attempt-2) clamped to [MinDelay, MaxDelay]; with the default
// policy the sequence is 2s, 2s, 4s, 8s, 16s, 32s, 60s, 60s, 60s.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := float64(p.Multiplier) * math.Pow(2, float64(attempt-2))
	if d < float64(p.MinDelay) {
		d = float64(p.MinDelay)
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Schedule lists every wait the policy can produce, in order.
func (p Policy) Schedule() []time.Duration {
	var out []time.Duration
	for a := 2; a <= p.MaxAttempts; a++ {
		out = append(out, p.Delay(a))
	}
	return out
}

// Do calls op until it succeeds, returns a Permanent error, the context ends or the budget
// runs out. onRetry, when set, is told about every failed attempt that will be retried.
func (p Policy) Do(ctx context.Context, op func(attempt int) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("retry policy has no attempts")
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := p.Delay(attempt)
			if onRetry != nil {
				onRetry(attempt-1, lastErr, wait)
			}
			if err := sleep(ctx, wait); err != nil {
				return fmt.Errorf("retry interrupted after %d attempts: %w", attempt-1, err)
			}
		}

		err := op(attempt)
		if err == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep is a Sleep implementation that returns immediately.
func NoSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
