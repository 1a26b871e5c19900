// Package backoff provides the retry delay policy shared by the connection
// manager and the block metadata cache.
package backoff

import "time"

// Policy computes exponential delays between retry attempts.
type Policy struct {
	// Base is the delay for the first attempt.
	Base time.Duration

	// Max caps the computed delay.
	Max time.Duration
}

// Default returns the policy used when a caller does not configure one:
// 1s base doubling up to 30s.
func Default() Policy {
	return Policy{
		Base: time.Second,
		Max:  30 * time.Second,
	}
}

// Fixed returns a policy whose delay is constant at d regardless of attempt.
func Fixed(d time.Duration) Policy {
	return Policy{Base: d, Max: d}
}

// Delay returns the wait before retry number attempt (1-based):
// min(base * 2^(attempt-1), max). Attempts below 1 are treated as 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	max := p.Max
	if max <= 0 {
		max = base
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
