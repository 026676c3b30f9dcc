package lwm2m

import (
	"math"
	"math/rand"
	"time"
)

// Reconnect backoff parameters.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 5 * time.Minute

	backoffMultiplier = 2.0
	backoffJitter     = 0.25
)

// RandomSource provides random values for jitter calculation.
// Allows injection of deterministic sources for testing.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 {
	return rand.Float64()
}

// DefaultRandomSource is the default random source using math/rand.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// Backoff computes the wait before a reconnect attempt:
//
//	backoff = min(base * 2^n, max) * (1.0 + random(0,1) * 0.25)
//
// where n is the number of consecutive failed attempts.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	random RandomSource
}

// NewBackoff creates a backoff with the given random source. If random is
// nil, DefaultRandomSource is used. Zero base or max take the defaults.
func NewBackoff(base, max time.Duration, random RandomSource) *Backoff {
	if random == nil {
		random = DefaultRandomSource
	}
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	return &Backoff{Base: base, Max: max, random: random}
}

// Calculate returns the backoff including jitter after failures
// consecutive failures.
func (b *Backoff) Calculate(failures int) time.Duration {
	return b.scaled(failures, 1.0+b.random.Float64()*backoffJitter)
}

// CalculateMin returns the backoff without jitter.
func (b *Backoff) CalculateMin(failures int) time.Duration {
	return b.scaled(failures, 1.0)
}

// CalculateMax returns the backoff with full jitter.
func (b *Backoff) CalculateMax(failures int) time.Duration {
	return b.scaled(failures, 1.0+backoffJitter)
}

func (b *Backoff) scaled(failures int, jitter float64) time.Duration {
	if failures < 0 {
		failures = 0
	}
	d := float64(b.Base) * math.Pow(backoffMultiplier, float64(failures))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d * jitter)
}
