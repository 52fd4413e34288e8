package queue

import "time"

// Backoff computes the redelivery delay before attempt n (1-based):
// base * 2^(n-1). Attempt values below 1 are clamped.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
