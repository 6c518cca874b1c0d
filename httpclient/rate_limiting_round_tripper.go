/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Fallbacks applied when the corresponding option is left zero.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperAdaptation tells the round tripper to read the
// effective limit from a response header. SlackPercent shaves the announced
// value down to stay below the server's ceiling.
type RateLimitingRoundTripperAdaptation struct {
	ResponseHeaderName string
	SlackPercent       int
}

// RateLimitingRoundTripperOpts represents options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

// RateLimitingRoundTripper throttles outgoing requests to a requests-per-second
// limit, waiting (up to a timeout) for a free slot before sending. The limit
// can adapt to a value announced by the server in a response header and falls
// back to the configured one when the header disappears.
type RateLimitingRoundTripper struct {
	delegate http.RoundTripper
	limiter  *rate.Limiter

	configuredLimit int
	waitTimeout     time.Duration
	adaptation      RateLimitingRoundTripperAdaptation
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with the given limit
// (requests per second) and default options.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper
// configured by opts; zero option values fall back to the defaults.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	switch {
	case rateLimit <= 0:
		return nil, fmt.Errorf("rate limit must be positive")
	case opts.Burst < 0:
		return nil, fmt.Errorf("burst must be positive")
	case opts.Adaptation.SlackPercent < 0 || opts.Adaptation.SlackPercent > 100:
		return nil, fmt.Errorf("slack percent must be in range [0..100]")
	}
	burst := opts.Burst
	if burst == 0 {
		burst = DefaultRateLimitingBurst
	}
	waitTimeout := opts.WaitTimeout
	if waitTimeout == 0 {
		waitTimeout = DefaultRateLimitingWaitTimeout
	}
	return &RateLimitingRoundTripper{
		delegate:        delegate,
		limiter:         rate.NewLimiter(rate.Limit(rateLimit), burst),
		configuredLimit: rateLimit,
		waitTimeout:     waitTimeout,
		adaptation:      opts.Adaptation,
	}, nil
}

// RoundTrip waits for a limiter slot and then delegates the request.
// A wait that exceeds the timeout fails with RateLimitingWaitError.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Body != nil {
		defer func() {
			_ = r.Body.Close() // the RoundTripper contract: the body is closed even on errors
		}()
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), rt.waitTimeout)
	defer cancel()
	if err := rt.limiter.Wait(waitCtx); err != nil {
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			return nil, &RateLimitingWaitError{Inner: err}
		}
	}

	resp, err := rt.delegate.RoundTrip(r)
	if err == nil && rt.adaptation.ResponseHeaderName != "" {
		rt.applyLimit(rt.announcedLimit(resp))
	}
	return resp, err
}

// announcedLimit extracts the server-announced limit from the response,
// reduced by the slack. Zero means no usable announcement.
func (rt *RateLimitingRoundTripper) announcedLimit(resp *http.Response) int {
	header := resp.Header.Get(rt.adaptation.ResponseHeaderName)
	if header == "" {
		return 0
	}
	announced, err := strconv.Atoi(header)
	if err != nil || announced < 0 {
		return 0
	}
	reduced := announced * (100 - rt.adaptation.SlackPercent) / 100
	if reduced == 0 {
		return 1 // keep a trickle going rather than stopping entirely
	}
	return reduced
}

func (rt *RateLimitingRoundTripper) applyLimit(announced int) {
	// No announcement (or one above our own ceiling) restores the configured limit.
	next := rt.configuredLimit
	if announced > 0 && announced < rt.configuredLimit {
		next = announced
	}
	if rt.limiter.Limit() != rate.Limit(next) {
		rt.limiter.SetLimit(rate.Limit(next))
	}
}

// RateLimitingWaitError is returned by RateLimitingRoundTripper when the
// request could not be sent within the wait timeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap exposes the limiter error for errors.Is and errors.As.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
