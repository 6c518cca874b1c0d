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
)

// CachedTransportRoundTripper routes each request to a per-scheme transport
// held in a TransportCache and feeds the cache health tracking:
// a transport-level error counts as a failure for the scheme, a completed
// round trip (any HTTP status, including 5xx) counts as a success.
// Round trips aborted by the request context are counted as neither,
// a client-side abort says nothing about transport health.
type CachedTransportRoundTripper struct {
	Cache *TransportCache
}

// NewCachedTransportRoundTripper creates an HTTP transport that routes
// requests through the passed transport cache.
func NewCachedTransportRoundTripper(cache *TransportCache) http.RoundTripper {
	return &CachedTransportRoundTripper{Cache: cache}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *CachedTransportRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	scheme := r.URL.Scheme
	if scheme == "" {
		return nil, fmt.Errorf("request URL has no scheme")
	}

	transport, err := rt.Cache.GetOrCreate(scheme)
	if err != nil {
		return nil, err
	}

	resp, err := transport.RoundTrip(r)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			rt.Cache.MarkFailure(scheme)
		}
		return resp, err
	}
	rt.Cache.MarkSuccess(scheme)
	return resp, nil
}
