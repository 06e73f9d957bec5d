package retry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Config drives Do. Delay grows by Multiplier after every failed attempt.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
}

// DefaultConfig matches the webhook dispatch policy: max 3 attempts,
// base 1s, backoff x2.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Delay: time.Second, Multiplier: 2.0}
}

// Do executes op with exponential backoff, honoring ctx cancellation between
// attempts. It returns nil on the first success, otherwise the last error.
func Do(ctx context.Context, cfg Config, name string, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}

	var lastErr error
	delay := cfg.Delay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		logrus.WithError(lastErr).Warnf("[RETRY] Attempt %d/%d failed for %s, retrying in %s",
			attempt, cfg.MaxAttempts, name, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	logrus.WithError(lastErr).Errorf("[RETRY] All %d attempts failed for %s", cfg.MaxAttempts, name)
	return lastErr
}
