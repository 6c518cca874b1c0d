/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// echoRequestIDServer returns a test server that captures the X-Request-ID
// header of each incoming request into *captured.
func echoRequestIDServer(captured *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		*captured = r.Header.Get(RequestIDHeader)
		rw.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequestIDRoundTripperPropagatesContextID(t *testing.T) {
	const requestID = "ctx-7f3a9"

	var gotRequestID string
	server := echoRequestIDServer(&gotRequestID)
	defer server.Close()

	client := &http.Client{Transport: NewRequestIDRoundTripper(http.DefaultTransport)}
	ctx := NewContextWithRequestID(context.Background(), requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, requestID, gotRequestID)
}

func TestRequestIDRoundTripperUsesProvider(t *testing.T) {
	const providedID = "provider/0001"

	var gotRequestID string
	server := echoRequestIDServer(&gotRequestID)
	defer server.Close()

	transport := NewRequestIDRoundTripperWithOpts(http.DefaultTransport, RequestIDRoundTripperOpts{
		RequestIDProvider: func(ctx context.Context) string { return providedID },
	})
	client := &http.Client{Transport: transport}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, providedID, gotRequestID)
}

func TestRequestIDRoundTripperGeneratesID(t *testing.T) {
	var gotRequestID string
	server := echoRequestIDServer(&gotRequestID)
	defer server.Close()

	client := &http.Client{Transport: NewRequestIDRoundTripper(http.DefaultTransport)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NotEmpty(t, gotRequestID, "an ID should be generated when the context carries none")
}

func TestRequestIDRoundTripperKeepsExistingHeader(t *testing.T) {
	const existingID = "already-set"

	var gotRequestID string
	server := echoRequestIDServer(&gotRequestID)
	defer server.Close()

	client := &http.Client{Transport: NewRequestIDRoundTripper(http.DefaultTransport)}
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, existingID)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, existingID, gotRequestID)
}
