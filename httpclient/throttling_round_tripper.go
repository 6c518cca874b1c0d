/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/velumlabs/go-basekit/ratelimit"
)

// ThrottlingRoundTripperOpts represents an options for ThrottlingRoundTripper.
type ThrottlingRoundTripperOpts struct {
	// IncludedHosts, when not empty, restricts throttling to hosts matching
	// one of the glob patterns (e.g. "*.example.com").
	IncludedHosts []string

	// ExcludedHosts exempts hosts matching one of the glob patterns from throttling.
	// Cannot be used together with IncludedHosts.
	ExcludedHosts []string
}

// ThrottlingRoundTripper wraps an object that implements http.RoundTripper interface
// and throttles outgoing requests per destination host using the passed key limiter.
// Unlike RateLimitingRoundTripper it never waits: a request over the limit
// fails fast with ThrottledError carrying the retry-after hint.
type ThrottlingRoundTripper struct {
	Delegate http.RoundTripper
	Limiter  ratelimit.KeyLimiter

	matchHost func(host string) bool
}

// NewThrottlingRoundTripper creates a new ThrottlingRoundTripper that throttles all hosts.
func NewThrottlingRoundTripper(delegate http.RoundTripper, limiter ratelimit.KeyLimiter) (*ThrottlingRoundTripper, error) {
	return NewThrottlingRoundTripperWithOpts(delegate, limiter, ThrottlingRoundTripperOpts{})
}

// NewThrottlingRoundTripperWithOpts creates a new ThrottlingRoundTripper with specified options.
func NewThrottlingRoundTripperWithOpts(
	delegate http.RoundTripper, limiter ratelimit.KeyLimiter, opts ThrottlingRoundTripperOpts,
) (*ThrottlingRoundTripper, error) {
	if limiter == nil {
		return nil, fmt.Errorf("key limiter is required")
	}
	matchHost, err := makeHostMatcher(opts.IncludedHosts, opts.ExcludedHosts)
	if err != nil {
		return nil, err
	}
	return &ThrottlingRoundTripper{
		Delegate:  delegate,
		Limiter:   limiter,
		matchHost: matchHost,
	}, nil
}

func makeHostMatcher(includedHosts, excludedHosts []string) (func(host string) bool, error) {
	if len(includedHosts) != 0 && len(excludedHosts) != 0 {
		return nil, fmt.Errorf("included and excluded hosts cannot be used together")
	}

	compile := func(patterns []string) []func(s string) bool {
		compiled := make([]func(s string) bool, 0, len(patterns))
		for _, pattern := range patterns {
			compiled = append(compiled, glob.Compile(pattern))
		}
		return compiled
	}
	matchAny := func(compiled []func(s string) bool, host string) bool {
		for i := range compiled {
			if compiled[i](host) {
				return true
			}
		}
		return false
	}

	if len(includedHosts) != 0 {
		compiled := compile(includedHosts)
		return func(host string) bool { return matchAny(compiled, host) }, nil
	}
	if len(excludedHosts) != 0 {
		compiled := compile(excludedHosts)
		return func(host string) bool { return !matchAny(compiled, host) }, nil
	}
	return func(string) bool { return true }, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *ThrottlingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	host := r.URL.Hostname()
	if !rt.matchHost(host) {
		return rt.Delegate.RoundTrip(r)
	}

	allow, retryAfter, err := rt.Limiter.Allow(r.Context(), host)
	if err != nil {
		return nil, fmt.Errorf("throttle request to %q: %w", host, err)
	}
	if !allow {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &ThrottledError{Host: host, RetryAfter: retryAfter}
	}
	return rt.Delegate.RoundTrip(r)
}

// ThrottledError is returned in RoundTrip method of ThrottlingRoundTripper
// when the per-host limit is exceeded.
type ThrottledError struct {
	Host       string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("request to %q throttled on client side, retry after %s", e.Host, e.RetryAfter)
}
