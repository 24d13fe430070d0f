package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_GrowsWithinJitter(t *testing.T) {
	b := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := b.NextDelay(tt.attempt)
			assert.InDelta(t, float64(tt.want), float64(got), float64(tt.want)*0.1+1, "attempt %d", tt.attempt)
		}
	}
}

func TestExponentialBackoff_NegativeAttempt(t *testing.T) {
	b := DefaultExponentialBackoff()
	assert.Equal(t, b.BaseDelay, b.NextDelay(-1))
}

func TestExponentialBackoff_NoJitterIsExact(t *testing.T) {
	b := &ExponentialBackoff{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 3}
	assert.Equal(t, 9*time.Second, b.NextDelay(2))
}

func TestFixedBackoff(t *testing.T) {
	b := &FixedBackoff{Delay: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, b.NextDelay(0))
	assert.Equal(t, 250*time.Millisecond, b.NextDelay(7))
}
