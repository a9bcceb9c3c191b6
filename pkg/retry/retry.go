// Package retry implements exponential backoff with jitter for transient
// platform and warehouse failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/adflow-io/adflow/pkg/errkind"
)

// Config holds retry configuration, mirroring the orchestrator's
// max_attempts/backoff_seconds/backoff_multiplier/max_backoff_seconds knobs.
type Config struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultConfig returns the orchestrator's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseBackoff:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}
}

// retryAfterErr is implemented by errors that carry an explicit Retry-After
// hint (seconds) from the failing collaborator.
type retryAfterErr interface {
	RetryAfterSeconds() int
}

// Do executes fn with exponential backoff, honoring ctx cancellation and any
// Retry-After hint attached to the error. Returns the last error, wrapped,
// once attempts are exhausted.
func Do(ctx context.Context, clock clockwork.Clock, cfg Config, fn func() error) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := nextBackoff(cfg, attempt-1, lastErr)
			timer := clock.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.Chan():
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !errkind.IsTransient(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// nextBackoff computes the delay before the given retry attempt, preferring
// an explicit Retry-After hint carried on the error over the computed
// exponential value.
func nextBackoff(cfg Config, attempt int, lastErr error) time.Duration {
	var hinted retryAfterErr
	if errors.As(lastErr, &hinted) {
		if s := hinted.RetryAfterSeconds(); s > 0 {
			return time.Duration(s) * time.Second
		}
	}
	return calculateBackoff(cfg.BaseBackoff, cfg.MaxBackoff, cfg.BackoffMultiplier, attempt)
}

// calculateBackoff returns base * multiplier^attempt, capped at max, with
// 0.5-1.0x jitter to avoid synchronized retries across platforms.
func calculateBackoff(base, max time.Duration, multiplier float64, attempt int) time.Duration {
	backoff := float64(base)
	for i := 0; i < attempt; i++ {
		backoff *= multiplier
	}
	d := time.Duration(backoff)
	if d > max {
		d = max
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}
