/**
 * Bounded retry with linear backoff
 *
 * One retry policy shared by every remote protocol step: a fixed number of
 * attempts with wait = base × attempt number between them. The remote service
 * rate-limits aggressively under load, so the growing wait gives it room
 * without the bookkeeping of full exponential backoff.
 *
 * Author: box-fixer team
 */

package errors

import (
	"context"
	"time"
)

// RetryPolicy bounds a retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is multiplied by the attempt number to produce the wait
	// before the next attempt.
	BaseDelay time.Duration
}

// DefaultRetryPolicy mirrors the operational defaults: ten attempts,
// three-second base wait.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 10,
	BaseDelay:   3 * time.Second,
}

// RetryLinear runs op until it succeeds, returns a non-retryable error, or
// the attempt budget is spent. Attempt numbers start at 1. onRetry, if
// non-nil, is invoked after each failed attempt that will be retried;
// callers use it for per-attempt warning logs.
//
// The final error is returned unwrapped so callers can still classify it.
func RetryLinear(
	ctx context.Context,
	policy RetryPolicy,
	op func(attempt int) error,
	onRetry func(attempt int, err error),
) error {

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		if err := sleepCtx(ctx, policy.BaseDelay*time.Duration(attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
