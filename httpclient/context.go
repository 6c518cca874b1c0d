/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyRequestID
)

func stringFromContext(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// NewContextWithRequestType returns a context carrying the request type.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext returns the request type stored in the context,
// or "" when none is stored.
func GetRequestTypeFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxKeyRequestType)
}

// NewContextWithRequestID returns a context carrying the request ID.
// RequestIDRoundTripper propagates it into the X-Request-ID header of outgoing requests.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext returns the request ID stored in the context,
// or "" when none is stored.
func GetRequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxKeyRequestID)
}
