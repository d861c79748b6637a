package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig tunes the retry loop. Zero values fall back to the defaults:
// 3 attempts, delays doubling from 100ms up to 10s, with 10% jitter.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 0.1
	}
	return cfg
}

// Retry runs fn until it succeeds or the attempt budget is spent, doubling
// the delay between attempts. Cancelling ctx aborts the wait but never an
// attempt already in progress.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	log := slog.Default().With("component", "retry", "operation", name)

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				log.Info("recovered", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		delay := retryDelay(attempt, cfg)
		log.Warn("attempt failed",
			"attempt", attempt,
			"budget", cfg.Attempts,
			"backoff", delay,
			"error", lastErr,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s abandoned during backoff: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, cfg.Attempts, lastErr)
}

// retryDelay doubles the base delay per attempt, caps it, and spreads
// concurrent retriers out with a jitter of up to ±Jitter of the delay.
func retryDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := cfg.BaseDelay << uint(attempt-1)
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	spread := float64(delay) * cfg.Jitter * (2*rand.Float64() - 1)
	delay += time.Duration(spread)
	if delay < 0 {
		delay = cfg.BaseDelay
	}
	return delay
}
