package common

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/models"
)

// RetryPolicy defines retry behavior with exponential backoff.
// Only errors flagged retryable by models.IsRetryable are retried.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	RateLimitBackoff  time.Duration // Floor applied after a rate-limit error

	sleep func(ctx context.Context, d time.Duration) error
}

// NewDefaultRetryPolicy creates a default retry policy
func NewDefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RateLimitBackoff:  10 * time.Second,
	}
}

// NoRetryPolicy executes exactly once. Used by tests and the memory backend.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 1}
}

// ShouldRetry checks if an attempt should be retried based on attempt count and error kind
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt+1 >= p.MaxAttempts {
		return false
	}
	return models.IsRetryable(err)
}

// CalculateBackoff calculates the backoff duration with exponential backoff and jitter.
// Rate-limit errors never wait less than RateLimitBackoff.
func (p *RetryPolicy) CalculateBackoff(attempt int, err error) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	// Add jitter (±25%)
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	d := time.Duration(backoff)
	if models.IsKind(err, models.ErrorRateLimited) && d < p.RateLimitBackoff {
		d = p.RateLimitBackoff
	}
	return d
}

// ExecuteWithRetry runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func (p *RetryPolicy) ExecuteWithRetry(ctx context.Context, logger arbor.ILogger, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	attempts := max(p.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !p.ShouldRetry(attempt, lastErr) {
			if !models.IsRetryable(lastErr) {
				logger.Debug().
					Str("op", op).
					Int("attempt", attempt+1).
					Str("kind", string(models.KindOf(lastErr))).
					Err(lastErr).
					Msg("Non-retryable error, failing immediately")
				return lastErr
			}
			break
		}

		backoff := p.CalculateBackoff(attempt, lastErr)
		logger.Debug().
			Str("op", op).
			Int("attempt", attempt+1).
			Str("kind", string(models.KindOf(lastErr))).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		if err := p.wait(ctx, backoff); err != nil {
			return err
		}
	}

	logger.Warn().
		Str("op", op).
		Int("max_attempts", attempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return lastErr
}

func (p *RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
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
