package subprocess

import (
	"math"
	"math/rand"
	"time"
)

const (
	pollBaseDelay = time.Millisecond
	pollMaxDelay  = 50 * time.Millisecond
)

// jitter applies random jitter to a duration
// jitterFraction: fraction of duration to use as jitter range (e.g., 0.1 = ±10%)
func jitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}

	// Random value between [0, jitterFraction]
	spread := rand.Float64() * jitterFraction

	// Apply jitter: duration * (1 ± spread)
	multiplier := 1.0 + (spread * 2.0) - jitterFraction
	return time.Duration(float64(duration) * multiplier)
}

// exponentialBackoff calculates exponential backoff duration
// attempt: number of polls so far (0-indexed)
// baseDelay: first delay
// maxDelay: maximum delay cap
// Returns duration with ±25% jitter applied
func exponentialBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 32 {
		attempt = 32
	}

	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	return jitter(delay, 0.25)
}

// pollInterval is the sleep between status checks in a bounded wait.
func pollInterval(attempt int) time.Duration {
	return exponentialBackoff(attempt, pollBaseDelay, pollMaxDelay)
}
