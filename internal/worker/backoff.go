package worker

import "time"

// RetryDelay computes the delay before the given attempt is retried:
// base doubled per completed attempt, capped. Deterministic and
// non-decreasing so successive retries of one task never come back sooner
// than the previous one did.
func RetryDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}

	if d > cap {
		return cap
	}

	return d
}
