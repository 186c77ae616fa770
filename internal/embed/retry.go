package embed

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior for batch requests.
type RetryConfig struct {
	MaxRetries   int           // Attempts after the initial one
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the backoff delay
	Multiplier   float64       // Exponential growth factor
}

// DefaultRetryConfig returns the default retry configuration: base-2
// exponential backoff starting at one second, capped at ten.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     DefaultMaxBackoff,
		Multiplier:   2.0,
	}
}

// withRetry executes fn with exponential backoff. The delay doubles per
// attempt up to MaxDelay. Context cancellation aborts immediately, both
// between attempts and while waiting out a delay.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err
			if attempt >= cfg.MaxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
