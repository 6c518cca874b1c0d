/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a continuous (non-discretized) token bucket.
// Tokens accumulate at a fixed rate up to a capacity; an event consumes
// tokens and is denied if insufficient tokens remain. Refill is lazy and
// computed on each check, there is no background timer.
//
// A zero rate disables refill (the bucket blocks entirely after capacity
// is spent); a non-positive capacity denies everything.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	capacity   float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a new bucket that starts full (capacity is the burst allowance).
func NewTokenBucket(rate, capacity float64) *TokenBucket {
	return newTokenBucket(rate, capacity, time.Now)
}

func newTokenBucket(rate, capacity float64, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	// A negative capacity behaves exactly like a zero one (denies everything);
	// normalizing it here keeps the 0 <= tokens <= capacity invariant intact.
	if capacity < 0 {
		capacity = 0
	}
	return &TokenBucket{
		rate:       rate,
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: now(),
		now:        now,
	}
}

// Allow reports whether an event with the given cost may proceed,
// consuming cost tokens if so. A denied check leaves tokens unchanged.
func (b *TokenBucket) Allow(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Tokens returns the number of currently available tokens (refill is applied first).
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// refill must be called with the mutex held.
// Elapsed time is measured with time.Time.Sub, which uses the monotonic
// clock reading, so wall-clock adjustments never move the bucket backwards.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	b.lastRefill = now
	if elapsed <= 0 || b.rate <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}
