package lark

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig holds retry behavior configuration.
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      10 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// Retryer handles retry logic with exponential backoff.
type Retryer struct {
	config RetryConfig
	logger *slog.Logger
}

// NewRetryer creates a retryer with the given configuration.
func NewRetryer(config RetryConfig, logger *slog.Logger) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.BackoffMultiple <= 1 {
		config.BackoffMultiple = 2.0
	}
	return &Retryer{config: config, logger: logger}
}

// Do executes fn, retrying on retryable errors with exponential backoff.
// The final error is returned once attempts are exhausted or the context
// is canceled mid-backoff.
func (r *Retryer) Do(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", operation, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRetryableError(lastErr) {
			return lastErr
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		r.logger.Warn("retrying operation",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"backoff", backoff.String(),
			"error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", operation, ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiple)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.config.MaxAttempts, lastErr)
}
