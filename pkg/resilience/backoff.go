// Package resilience holds retry delay strategies.
package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy yields the wait before retry attempt n (0-indexed)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at
// MaxDelay, with ±Jitter spread so restarted replicas do not retry in lockstep.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultExponentialBackoff suits waiting for a dependency to come up:
// roughly 0.5s, 1s, 2s, 4s, 8s, then 10s.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// NextDelay returns the delay before the given attempt
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	spread := delay * eb.Jitter
	d := time.Duration(delay + (rand.Float64()*2-1)*spread)
	if d < 0 {
		return eb.BaseDelay
	}
	return d
}

// FixedBackoff waits the same Delay before every attempt
type FixedBackoff struct {
	Delay time.Duration
}

// NextDelay returns Delay
func (fb *FixedBackoff) NextDelay(int) time.Duration {
	return fb.Delay
}
