/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/velumlabs/go-basekit/lrucache"
)

// SlidingWindowLimiter counts events per key within fixed windows of
// maxRate.Duration. Per-key windows live in an LRU zone so that the number
// of tracked keys stays bounded.
type SlidingWindowLimiter struct {
	windowFor func(key string) *slidingwindow.Limiter
	maxRate   Rate
}

// NewSlidingWindowLimiter creates a sliding window rate limiter.
// With maxKeys == 0 a single window is shared by all keys.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	newWindow := func() *slidingwindow.Limiter {
		w, _ := slidingwindow.NewLimiter(
			maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return w
	}

	if maxKeys == 0 {
		shared := newWindow()
		return &SlidingWindowLimiter{
			maxRate:   maxRate,
			windowFor: func(string) *slidingwindow.Limiter { return shared },
		}, nil
	}

	zone, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU zone for window keys: %w", err)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		windowFor: func(key string) *slidingwindow.Limiter {
			w, _ := zone.GetOrAdd(key, newWindow)
			return w
		},
	}, nil
}

// Allow reports whether one more event for the key fits in the current
// window. When it does not, retryAfter tells how long until the window rolls
// over.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.windowFor(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	windowEnd := now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration)
	return false, windowEnd.Sub(now), nil
}
