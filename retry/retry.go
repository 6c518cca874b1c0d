/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

// Package retry builds small retry helpers on top of cenkalti/backoff:
// reusable backoff policies and a context-aware retry loop.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy produces a fresh backoff schedule per retried operation.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// IsRetryable reports whether an error is worth another attempt.
type IsRetryable func(error) bool

// RetryableFunc is the operation being retried.
type RetryableFunc func(ctx context.Context) error

// DoWithRetry runs fn until it succeeds, the policy gives up, or ctx is done.
// A nil isRetryable treats every error as retryable; notify, when non-nil,
// is invoked before each wait with the error and the upcoming delay.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	schedule := backoff.WithContext(p.NewBackOff(), ctx)
	attempt := func() error {
		err := fn(schedule.Context())
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(attempt, schedule, notify)
}

// ExponentialBackoffPolicy grows the delay exponentially from the initial
// interval, optionally bounded by a retry count.
type ExponentialBackoffPolicy struct {
	initial    time.Duration
	maxRetries int
}

// NewExponentialBackoffPolicy returns an ExponentialBackoffPolicy.
// maxRetryAttempts <= 0 leaves the retry count unbounded.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initial: initialInterval, maxRetries: maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initial
	return capRetries(eb, p.maxRetries)
}

// ConstantBackoffPolicy waits the same interval between attempts,
// optionally bounded by a retry count.
type ConstantBackoffPolicy struct {
	interval   time.Duration
	maxRetries int
}

// NewConstantBackoffPolicy returns a ConstantBackoffPolicy.
// maxRetryAttempts <= 0 leaves the retry count unbounded.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval: interval, maxRetries: maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return capRetries(backoff.NewConstantBackOff(p.interval), p.maxRetries)
}

func capRetries(bf backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(maxRetries))
	}
	bf.Reset()
	return bf
}
