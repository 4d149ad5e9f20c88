package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// WithRetry retries an operation with exponential backoff and jitter.
// MaxAttempts counts retries after the first invocation, so MaxAttempts of 0
// invokes the operation exactly once.
type WithRetry struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// New returns a retry policy with the given bounds.
func New(maxAttempts int, baseDelay time.Duration) WithRetry {
	return WithRetry{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Do invokes f until it succeeds, reports needsRetry false, or attempts run
// out. The last error is returned.
func (r WithRetry) Do(f func() (needsRetry bool, err error)) error {
	var err error
	for attempt := 0; attempt <= r.MaxAttempts; attempt++ {
		var needsRetry bool
		needsRetry, err = f()
		if err == nil {
			return nil
		}
		if !needsRetry || attempt >= r.MaxAttempts {
			return err
		}
		time.Sleep(r.delay(attempt))
	}
	return err
}

// DoCtx behaves like Do but aborts the backoff wait when ctx is cancelled.
// Cancellation does not interrupt an in-flight invocation of f; it returns an
// error wrapping the last observed failure.
func (r WithRetry) DoCtx(ctx context.Context, f func() (needsRetry bool, err error)) error {
	var err error
	for attempt := 0; attempt <= r.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if err != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		var needsRetry bool
		needsRetry, err = f()
		if err == nil {
			return nil
		}
		if !needsRetry || attempt >= r.MaxAttempts {
			return err
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", err)
		case <-timer.C:
		}
	}
	return err
}

func (r WithRetry) delay(attempt int) time.Duration {
	backoff := r.BaseDelay * (1 << attempt)
	jitter := time.Duration(rand.Int63n(int64(r.BaseDelay) + 1))
	return backoff + jitter
}
