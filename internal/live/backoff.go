package live

import (
	"math/rand"
	"time"
)

const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0
	defaultJitter         = 0.2
)

// Backoff yields capped exponential delays with proportional jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the +/- fraction applied to each delay.
	Jitter float64

	attempt int
	rand    func() float64
}

// NewBackoff applies defaults to zero fields.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	b := &Backoff{Initial: initial, Max: maxDelay}
	if b.Initial <= 0 {
		b.Initial = DefaultInitialBackoff
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxBackoff
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	b.Multiplier = defaultMultiplier
	b.Jitter = defaultJitter
	return b
}

// Next returns the delay before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	delay := float64(b.Initial)
	for i := 0; i < b.attempt; i++ {
		delay *= b.Multiplier
		if delay >= float64(b.Max) {
			delay = float64(b.Max)
			break
		}
	}
	b.attempt++

	if b.Jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		delay += delay * b.Jitter * (2*r() - 1)
	}
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	return time.Duration(delay)
}

// Attempts returns how many delays were handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}

// Reset restarts the sequence after a healthy connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}
