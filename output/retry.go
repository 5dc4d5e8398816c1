package output

import (
	"context"
	"time"

	"github.com/reefpulse/LagoPObs/internal/errors"
)

// RetryConfig controls how many times a persistence step is attempted
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryConfig tries three times with a linear 200ms backoff
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     200 * time.Millisecond,
	}
}

// WithRetry runs op until it succeeds, the attempts are exhausted or ctx is done.
// The delay grows linearly: backoff, 2x backoff, ...
func WithRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	attempts := max(1, cfg.MaxAttempts)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.New(err).
				Component("output").
				Category(errors.CategoryCancellation).
				Build()
		}

		if lastErr = op(); lastErr == nil {
			return nil
		}

		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Backoff * time.Duration(attempt+1)):
		}
	}

	return errors.New(lastErr).
		Component("output").
		Category(errors.CategoryFileIO).
		Context("attempts", attempts).
		Build()
}
