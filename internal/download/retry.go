package download

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"radarflow/internal/config"
)

// jitterFraction bounds the random delay added on top of each backoff step.
const jitterFraction = 0.25

// RetryPolicy retries a transfer with capped exponential backoff and jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep waits between attempts; it must return early when ctx ends.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0, 1) used to scale jitter.
	Rand func() float64
}

// PolicyFromConfig builds the retry policy for the download daemon.
func PolicyFromConfig(cfg config.Download) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.RetryMaxDelayMS) * time.Millisecond,
	}
}

// Backoff returns the delay before the attempt following attempt, without
// jitter: min(MaxDelay, BaseDelay * 2^(attempt-1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Delay returns Backoff(attempt) plus up to 25% jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.Backoff(attempt)
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	return delay + time.Duration(float64(delay)*jitterFraction*random())
}

// Do runs op until it succeeds, MaxAttempts is reached, or ctx ends. onRetry,
// when set, is called before each sleep. It returns the number of attempts
// made and the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, onRetry func(attempt int, delay time.Duration, err error)) (int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = op(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return attempt, lastErr
		}
		if attempt == attempts {
			break
		}
		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
	return attempts, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
