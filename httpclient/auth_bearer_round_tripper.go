/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// AuthProvider supplies tokens for bearer authorization.
type AuthProvider interface {
	GetToken(ctx context.Context, scope ...string) (string, error)
}

// The AuthProviderFunc type is an adapter to allow the use of ordinary functions as AuthProvider.
type AuthProviderFunc func(ctx context.Context, scope ...string) (string, error)

// GetToken calls f(ctx, scope...).
func (f AuthProviderFunc) GetToken(ctx context.Context, scope ...string) (string, error) {
	return f(ctx, scope...)
}

// AuthBearerRoundTripperOpts represents options for AuthBearerRoundTripper.
type AuthBearerRoundTripperOpts struct {
	TokenScope []string
}

// AuthBearerRoundTripper obtains a token from the provider and sends it in
// the Authorization header of each outgoing request. A request that already
// carries an Authorization header passes through untouched.
type AuthBearerRoundTripper struct {
	delegate   http.RoundTripper
	provider   AuthProvider
	tokenScope []string
}

// NewAuthBearerRoundTripper creates a new AuthBearerRoundTripper.
func NewAuthBearerRoundTripper(delegate http.RoundTripper, authProvider AuthProvider) *AuthBearerRoundTripper {
	return NewAuthBearerRoundTripperWithOpts(delegate, authProvider, AuthBearerRoundTripperOpts{})
}

// NewAuthBearerRoundTripperWithOpts creates a new AuthBearerRoundTripper with the given options.
func NewAuthBearerRoundTripperWithOpts(
	delegate http.RoundTripper, authProvider AuthProvider, opts AuthBearerRoundTripperOpts,
) *AuthBearerRoundTripper {
	return &AuthBearerRoundTripper{delegate: delegate, provider: authProvider, tokenScope: opts.TokenScope}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *AuthBearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer func() {
			_ = req.Body.Close() // the RoundTripper contract: the body is closed even on errors
		}()
	}
	if req.Header.Get("Authorization") != "" {
		return rt.delegate.RoundTrip(req)
	}

	token, err := rt.provider.GetToken(req.Context(), rt.tokenScope...)
	if err != nil {
		return nil, &AuthBearerRoundTripperError{Inner: err}
	}
	req = req.Clone(req.Context()) // the original request must not be mutated
	req.Header.Set("Authorization", "Bearer "+token)
	return rt.delegate.RoundTrip(req)
}

// AuthBearerRoundTripperError is returned by AuthBearerRoundTripper
// when a token cannot be obtained.
type AuthBearerRoundTripperError struct {
	Inner error
}

func (e *AuthBearerRoundTripperError) Error() string {
	return fmt.Sprintf("auth bearer round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AuthBearerRoundTripperError) Unwrap() error {
	return e.Inner
}
