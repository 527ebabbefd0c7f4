package consumer

import "time"

// backoffDelay returns min(base << attempt, ceiling). The shift is guarded
// so large attempt counts saturate at the ceiling instead of overflowing.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 62 {
		return ceiling
	}
	d := base << uint(attempt)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}
