/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// Rate describes the frequency of events.
type Rate struct {
	Count    int
	Duration time.Duration
}

// KeyLimiter is the contract for limiters that track independent keys
// (e.g. the host of an outgoing HTTP request).
type KeyLimiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}
