/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import "net/http"

// UserAgentMode selects how the configured User-Agent value is combined
// with one already present on the request.
type UserAgentMode int

// Supported User-Agent modes.
const (
	UserAgentModeSetIfEmpty UserAgentMode = iota
	UserAgentModeAppend
	UserAgentModePrepend
)

// UserAgentRoundTripper stamps outgoing requests with a User-Agent value.
// By default the header is only set when the request carries none.
type UserAgentRoundTripper struct {
	delegate  http.RoundTripper
	userAgent string
	mode      UserAgentMode
}

// UserAgentRoundTripperOpts represents options for UserAgentRoundTripper.
type UserAgentRoundTripperOpts struct {
	Mode UserAgentMode
}

// NewUserAgentRoundTripper creates a new UserAgentRoundTripper.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return NewUserAgentRoundTripperWithOpts(delegate, userAgent, UserAgentRoundTripperOpts{})
}

// NewUserAgentRoundTripperWithOpts creates a new UserAgentRoundTripper with the given options.
func NewUserAgentRoundTripperWithOpts(
	delegate http.RoundTripper, userAgent string, opts UserAgentRoundTripperOpts,
) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{delegate: delegate, userAgent: userAgent, mode: opts.Mode}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	existing := req.Header.Get("User-Agent")
	if existing != "" && rt.mode == UserAgentModeSetIfEmpty {
		return rt.delegate.RoundTrip(req)
	}

	req = req.Clone(req.Context()) // the original request must not be mutated
	req.Header.Set("User-Agent", rt.combine(existing))
	return rt.delegate.RoundTrip(req)
}

func (rt *UserAgentRoundTripper) combine(existing string) string {
	if existing == "" {
		return rt.userAgent
	}
	if rt.mode == UserAgentModePrepend {
		return rt.userAgent + " " + existing
	}
	return existing + " " + rt.userAgent
}
