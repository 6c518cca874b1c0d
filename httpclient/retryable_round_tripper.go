/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/velumlabs/go-basekit/log"
	"github.com/velumlabs/go-basekit/retry"
)

// Default retry parameters.
const (
	DefaultMaxRetryAttempts                  = 10
	DefaultExponentialBackoffInitialInterval = time.Second
	DefaultExponentialBackoffMultiplier      = 2
)

// UnlimitedRetryAttempts disables the attempt counter, leaving the backoff
// policy as the only stop condition.
const UnlimitedRetryAttempts = -1

// RetryAttemptNumberHeader carries the ordinal of the retry attempt
// (the initial request has no such header, the first retry sends 1).
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc inspects the outcome of an attempt and reports whether
// another one should be made. Returning a non-nil error aborts retrying;
// the last response and round-trip error are handed to the caller as is.
type CheckRetryFunc func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error)

// RetryableRoundTripper retries failed HTTP requests with a configurable
// backoff. The Retry-After response header, when present, takes precedence
// over the backoff policy unless IgnoreRetryAfter is set.
type RetryableRoundTripper struct {
	delegate http.RoundTripper

	logger           log.FieldLogger
	loggerProvider   func(ctx context.Context) log.FieldLogger
	maxRetryAttempts int
	checkRetry       CheckRetryFunc
	ignoreRetryAfter bool
	backoffPolicy    retry.Policy
}

// RetryableRoundTripperOpts represents options for RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	// Logger is used for logging. LoggerProvider takes precedence when both are set.
	Logger log.FieldLogger

	// LoggerProvider extracts a context-specific logger for each request.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts bounds the number of retries (the initial request is
	// not counted). UnlimitedRetryAttempts leaves stopping to the backoff
	// policy alone. DefaultMaxRetryAttempts is used when zero.
	MaxRetryAttempts int

	// CheckRetryFunc decides after each attempt whether to go on.
	// DefaultCheckRetry is used when nil.
	CheckRetryFunc CheckRetryFunc

	// IgnoreRetryAfter makes the round tripper compute every delay from the
	// backoff policy, even when the response carries a Retry-After header.
	IgnoreRetryAfter bool

	// BackoffPolicy computes the delay before the next attempt.
	// DefaultBackoffPolicy is used when nil.
	BackoffPolicy retry.Policy
}

// NewRetryableRoundTripper returns a RetryableRoundTripper with default options.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts returns a RetryableRoundTripper configured by opts.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	switch {
	case opts.MaxRetryAttempts == 0:
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	case opts.MaxRetryAttempts < 0 && opts.MaxRetryAttempts != UnlimitedRetryAttempts:
		return nil, fmt.Errorf("max retry attempts must be positive or UnlimitedRetryAttempts")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.CheckRetryFunc == nil {
		opts.CheckRetryFunc = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = DefaultBackoffPolicy
	}
	return &RetryableRoundTripper{
		delegate:         delegate,
		logger:           opts.Logger,
		loggerProvider:   opts.LoggerProvider,
		maxRetryAttempts: opts.MaxRetryAttempts,
		checkRetry:       opts.CheckRetryFunc,
		ignoreRetryAfter: opts.IgnoreRetryAfter,
		backoffPolicy:    opts.BackoffPolicy,
	}, nil
}

// RoundTrip sends the request, retrying it as long as the check function
// asks for another attempt and neither the attempt limit nor the backoff
// policy says stop.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var rewind func(*http.Request) error
	if req.Body != nil {
		body := req.Body
		defer func() {
			_ = body.Close() // the RoundTripper contract: the body is closed even on errors
		}()
		var err error
		if rewind, err = rewindableBody(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	ctx := req.Context()
	nextDelay := rt.delayFunc()
	cloned := false

	var resp *http.Response
	var tripErr error
	for attempt := 0; ; attempt++ {
		if rewind != nil {
			if err := rewind(req); err != nil {
				if attempt == 0 {
					return nil, &RetryableRoundTripperError{Inner: err}
				}
				rt.loggerFor(ctx).Error(
					fmt.Sprintf("cannot rewind request body for retry, %d request(s) sent", attempt+1),
					log.Error(err))
				return resp, tripErr
			}
		}
		if resp != nil && tripErr == nil {
			rt.discardBody(ctx, resp)
		}
		if attempt > 0 {
			// The original request must stay untouched, so retries go out on a clone.
			if !cloned {
				req, cloned = req.Clone(ctx), true
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}

		resp, tripErr = rt.delegate.RoundTrip(req)

		again, checkErr := rt.checkRetry(ctx, resp, tripErr, attempt)
		if checkErr != nil {
			rt.loggerFor(ctx).Error(
				fmt.Sprintf("retry check failed, %d request(s) sent", attempt+1),
				log.Error(checkErr))
			return resp, tripErr
		}
		if !again {
			return resp, tripErr
		}

		if rt.maxRetryAttempts > 0 && attempt >= rt.maxRetryAttempts {
			rt.loggerFor(ctx).Warnf(
				"giving up after %d retry attempt(s), %d request(s) sent", rt.maxRetryAttempts, attempt+1)
			return resp, tripErr
		}
		delay, stop := nextDelay(resp)
		if stop {
			return resp, tripErr
		}

		select {
		case <-ctx.Done():
			rt.loggerFor(ctx).Warnf(
				"context is done (%v) while waiting for retry, %d request(s) sent", ctx.Err(), attempt+1)
			return resp, tripErr
		case <-time.After(delay):
		}
	}
}

// delayFunc binds a fresh backoff instance to this round trip; the returned
// function yields the delay before each retry, preferring Retry-After.
func (rt *RetryableRoundTripper) delayFunc() func(resp *http.Response) (delay time.Duration, stop bool) {
	bf := rt.backoffPolicy.NewBackOff()
	return func(resp *http.Response) (time.Duration, bool) {
		if resp != nil && !rt.ignoreRetryAfter {
			if d, ok := retryAfterDelay(resp); ok {
				return d, false
			}
		}
		d := bf.NextBackOff()
		return d, d == backoff.Stop
	}
}

func (rt *RetryableRoundTripper) discardBody(ctx context.Context, resp *http.Response) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		rt.loggerFor(ctx).Error("cannot discard response body before retry", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		rt.loggerFor(ctx).Error("cannot close response body before retry", log.Error(err))
	}
}

func (rt *RetryableRoundTripper) loggerFor(ctx context.Context) log.FieldLogger {
	if rt.loggerProvider != nil {
		return rt.loggerProvider(ctx)
	}
	return rt.logger
}

// RetryableRoundTripperError is returned when a request fails before the
// first attempt could be made (e.g. its body cannot be made rewindable).
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return fmt.Sprintf("retryable round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries on temporary transport errors,
// on 429 and on any 5xx response.
func DefaultCheckRetry(
	_ context.Context, resp *http.Response, roundTripErr error, _ int,
) (bool, error) {
	if roundTripErr != nil {
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("no response and no round trip error")
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

// DefaultBackoffPolicy is an exponential backoff starting at
// DefaultExponentialBackoffInitialInterval and doubling each retry.
var DefaultBackoffPolicy = retry.PolicyFunc(func() backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = DefaultExponentialBackoffInitialInterval
	bf.Multiplier = DefaultExponentialBackoffMultiplier
	bf.Reset()
	return bf
})

// CheckErrorIsTemporary reports whether the error announces itself as
// temporary, or is io.EOF (a keep-alive connection closed by the server).
func CheckErrorIsTemporary(err error) bool {
	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) && tempErr.Temporary() {
		return true
	}
	return errors.Is(err, io.EOF)
}

// rewindableBody prepares the request body for re-sending. A seekable body
// is rewound in place; anything else is buffered in memory up front.
func rewindableBody(req *http.Request) (func(*http.Request) error, error) {
	if seeker, ok := req.Body.(io.ReadSeeker); ok {
		start, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("remember request body position: %w", err)
		}
		req.Body = io.NopCloser(req.Body)
		return func(*http.Request) error {
			if _, seekErr := seeker.Seek(start, io.SeekStart); seekErr != nil {
				return fmt.Errorf("seek request body to offset %d: %w", start, seekErr)
			}
			return nil
		}, nil
	}

	buffered, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(buffered))
		return nil
	}, nil
}

// retryAfterDelay extracts the wait time from the Retry-After header,
// which is either a number of seconds or an HTTP-date.
func retryAfterDelay(resp *http.Response) (time.Duration, bool) {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at), true
	}
	return 0, false
}
