package reconciler

import (
	"context"
	"time"

	"golang-reconciliation-engine/internal/store"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

// RetryOptions configures how a unit of work is retried after losing an
// optimistic-concurrency race
type RetryOptions struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// DefaultRetryOptions returns the retry policy used by the batch engine
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  4,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

func (o RetryOptions) backoff() retry.Backoff {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 50 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 2 * time.Second
	}

	b := retry.NewExponential(o.InitialDelay)
	b = retry.WithCappedDuration(o.MaxDelay, b)
	return retry.WithMaxRetries(uint64(o.MaxAttempts-1), b)
}

// withConflictRetry runs fn, re-running it with exponential backoff while it
// fails with store.ErrConflict. Any other error is returned immediately.
func withConflictRetry(ctx context.Context, opts RetryOptions, operation string, log logger.Logger, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, opts.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return err
		}

		log.WithFields(logger.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).WithError(err).Warn("Concurrent modification detected, retrying")
		return retry.RetryableError(err)
	})
}
