// ABOUTME: This file implements exponential backoff retry with jitter
// ABOUTME: A pluggable classifier decides which errors are worth another attempt
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config tunes the retrier.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// Classifier reports whether an error is transient.
type Classifier func(error) bool

// Retrier runs operations with bounded, classified retries.
type Retrier struct {
	config      Config
	isRetryable Classifier
	logger      *slog.Logger
}

// New creates a retrier. A nil classifier treats every error as permanent.
func New(config Config, classifier Classifier, logger *slog.Logger) *Retrier {
	return &Retrier{
		config:      config,
		isRetryable: classifier,
		logger:      logger,
	}
}

// Do runs the operation until it succeeds, the classifier declares the error
// permanent, or the attempt budget runs out. Waits are cancellable through
// the context.
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	var lastErr error
	var totalWait time.Duration

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("operation succeeded after retry",
					"attempt", attempt,
					"total_wait_ms", totalWait.Milliseconds())
			}
			return nil
		}

		retryable := r.isRetryable != nil && r.isRetryable(lastErr)
		r.logger.Warn("operation attempt failed",
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"error", lastErr,
			"retryable", retryable)

		if attempt == r.config.MaxAttempts || !retryable {
			break
		}

		delay := r.delay(attempt)
		totalWait += delay

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// delay computes the backoff for one attempt, capped and jittered to keep
// stalled hosts from seeing synchronized retries.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}

	jitter := 1.0 + (rand.Float64()-0.5)*r.config.JitterFactor
	return time.Duration(d * jitter)
}

// BackoffDelay is the shared requeue backoff curve: base * 2^attempts,
// capped at max. Used for frontier requeues where the wait happens inside
// the queue rather than in-process.
func BackoffDelay(attempts int, base, max time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := float64(base) * math.Pow(2, float64(attempts))
	if d > float64(max) || d < 0 {
		return max
	}
	return time.Duration(d)
}
