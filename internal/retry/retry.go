// internal/retry/retry.go

// Package retry provides the retry policy shared by every component that
// talks to a remote service.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt. Later attempts double it.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff step (jitter excluded). Zero means no cap.
	MaxDelay time.Duration
	// Jitter adds a random delay in [0, Jitter*step) to every backoff step.
	Jitter float64
	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(error) bool
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used for publishing and uploads: 3 attempts,
// 1s base delay, doubling, 25% jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
	}
}

// ExhaustedError is returned when the attempt cap was reached on a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, returns a non-retryable error, the attempt cap
// is reached, or ctx is done. It returns the number of calls made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			return attempt, &ExhaustedError{Attempts: attempt, Err: err}
		}
		if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
			return attempt, errors.Join(err, serr)
		}
	}
	return maxAttempts, err
}

// Backoff returns the delay after the given (1-based) failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	step := p.BaseDelay
	for i := 1; i < attempt; i++ {
		step *= 2
		if p.MaxDelay > 0 && step >= p.MaxDelay {
			step = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && step > p.MaxDelay {
		step = p.MaxDelay
	}
	if p.Jitter > 0 && step > 0 {
		step += time.Duration(rand.Float64() * p.Jitter * float64(step))
	}
	return step
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
