package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff returns the delay before retry number attempt (1-based). Zero or
// negative attempts never wait.
type Backoff func(attempt int) time.Duration

// Exponential starts at base and multiplies the delay per attempt, capped at
// limit when limit is positive. jitter spreads each delay by up to that
// fraction in either direction.
func Exponential(base, limit time.Duration, multiplier, jitter float64) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}

		delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
		if limit > 0 && delay > float64(limit) {
			delay = float64(limit)
		}
		if jitter > 0 {
			spread := delay * jitter
			delay += rand.Float64()*2*spread - spread
		}
		return time.Duration(max(delay, 0))
	}
}

// sleep waits for delay or until ctx is done
func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
