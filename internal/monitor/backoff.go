package monitor

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: capped exponential growth with jitter.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Cap bounds the delay growth.
	Cap time.Duration

	// Jitter is the fraction of the delay randomized on each call (0..1).
	Jitter float64
}

// DefaultBackoff matches the reconnect policy: base 1s, cap 60s, 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 60 * time.Second, Jitter: 0.2}
}

// Delay returns the deterministic delay for the given attempt (1-based),
// non-decreasing up to Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}

	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if b.Cap > 0 && delay > float64(b.Cap) {
		return b.Cap
	}
	return time.Duration(delay)
}

// Next returns the jittered delay for the given attempt.
func (b Backoff) Next(attempt int) time.Duration {
	delay := b.Delay(attempt)
	if b.Jitter <= 0 {
		return delay
	}
	spread := float64(delay) * b.Jitter
	return delay - time.Duration(spread/2) + time.Duration(rand.Float64()*spread)
}
