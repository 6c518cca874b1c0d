/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/rs/xid"
)

// RequestIDHeader is an HTTP header name that carries the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDRoundTripper adds the X-Request-ID header to the request.
type RequestIDRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// RequestIDProvider is a function that provides a request ID.
	// If it returns an empty string, a new xid-based ID is generated.
	RequestIDProvider func(ctx context.Context) string
}

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider is a function that provides a request ID.
	// GetRequestIDFromContext is used by default.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support with options.
func NewRequestIDRoundTripperWithOpts(
	delegate http.RoundTripper, opts RequestIDRoundTripperOpts,
) http.RoundTripper {
	requestIDProvider := opts.RequestIDProvider
	if requestIDProvider == nil {
		requestIDProvider = GetRequestIDFromContext
	}
	return &RequestIDRoundTripper{
		Delegate:          delegate,
		RequestIDProvider: requestIDProvider,
	}
}

// RoundTrip adds X-Request-ID header to the request.
// xid (based on Mongo Object ID algorithm) is used for generation when the
// provider gives no ID. This ID generator has high performance with pretty enough entropy.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(RequestIDHeader) != "" {
		return rt.Delegate.RoundTrip(r)
	}

	requestID := rt.RequestIDProvider(r.Context())
	if requestID == "" {
		requestID = xid.New().String()
	}

	r = CloneHTTPRequest(r) // Per RoundTripper contract.
	r.Header.Set(RequestIDHeader, requestID)
	return rt.Delegate.RoundTrip(r)
}
