package proxyfetch

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Ensure BackoffPolicy implements the backoff.BackOff interface.
var _ backoff.BackOff = (*BackoffPolicy)(nil)

// Default values for BackoffPolicy.
const (
	// DefaultBackoffBase is the delay for attempt 0 before jitter.
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffCap is the upper bound on any computed delay.
	DefaultBackoffCap = 60 * time.Second

	// jitterMin and jitterMax bound the additive uniform jitter.
	jitterMin = 200 * time.Millisecond
	jitterMax = 500 * time.Millisecond
)

// BackoffPolicy computes exponential retry delays with optional additive
// jitter and a hard cap:
//
//	delay(n) = min(Base × 2ⁿ [+ uniform(200ms, 500ms)], Cap)
//
// Attempt indices start at 0. Ignoring jitter, delays are monotonically
// non-decreasing in the attempt index and hit exactly Cap once Base×2ⁿ
// reaches it.
//
// BackoffPolicy doubles as a backoff.BackOff so it slots directly into
// backoff.Retry:
//
//	policy := proxyfetch.NewBackoffPolicy()
//	result, err := backoff.Retry(ctx, operation,
//	    backoff.WithBackOff(policy),
//	    backoff.WithMaxTries(3),
//	)
//
// The zero value is not usable; construct via NewBackoffPolicy or
// NewSeededBackoffPolicy.
type BackoffPolicy struct {
	// Base is the delay for attempt 0 before jitter.
	// Default: 1s
	Base time.Duration

	// Cap bounds every computed delay.
	// Default: 60s
	Cap time.Duration

	// Jitter enables the additive uniform(200ms, 500ms) component.
	// Default: true
	Jitter bool

	// rng is the jitter source. nil means the shared global source.
	rng *rand.Rand

	// attempt tracks the next attempt index for NextBackOff.
	attempt int
}

// NewBackoffPolicy returns a policy with the package defaults:
// 1s base, 60s cap, jitter enabled.
func NewBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		Base:   DefaultBackoffBase,
		Cap:    DefaultBackoffCap,
		Jitter: true,
	}
}

// NewSeededBackoffPolicy returns a policy whose jitter is drawn from a
// fixed PCG source, making the delay sequence fully deterministic.
// Intended for tests and reproducible simulations.
func NewSeededBackoffPolicy(seed uint64) *BackoffPolicy {
	p := NewBackoffPolicy()
	p.rng = rand.New(rand.NewPCG(seed, seed))
	return p
}

// DelayFor computes the delay for a given zero-based attempt index.
// Negative indices are treated as 0.
func (b *BackoffPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := b.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		// Doubling past the cap (or overflowing) can never come back
		// under it, and jitter only adds.
		if delay >= b.Cap || delay < 0 {
			return b.Cap
		}
	}

	if b.Jitter {
		delay += b.jitter()
	}
	if delay > b.Cap {
		delay = b.Cap
	}
	return delay
}

// NextBackOff returns the delay for the current attempt and advances the
// internal attempt counter. Part of the backoff.BackOff interface.
func (b *BackoffPolicy) NextBackOff() time.Duration {
	d := b.DelayFor(b.attempt)
	b.attempt++
	return d
}

// Reset rewinds the internal attempt counter to 0.
// Part of the backoff.BackOff interface.
func (b *BackoffPolicy) Reset() {
	b.attempt = 0
}

// Clone returns a copy with a fresh attempt counter, sharing the same
// jitter source. Each retry stage uses its own clone so stages never see
// each other's progression.
func (b *BackoffPolicy) Clone() *BackoffPolicy {
	clone := *b
	clone.attempt = 0
	return &clone
}

// jitter draws the additive component from [jitterMin, jitterMax).
//
//nolint:gosec // intentional weak rand for jitter (not cryptographic)
func (b *BackoffPolicy) jitter() time.Duration {
	span := float64(jitterMax - jitterMin)
	var f float64
	if b.rng != nil {
		f = b.rng.Float64()
	} else {
		f = rand.Float64()
	}
	return jitterMin + time.Duration(f*span)
}
