/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/velumlabs/go-basekit/log/logtest"
	"github.com/velumlabs/go-basekit/testutil"
)

const (
	testUserAgent   = "basekit-test/1.0"
	testRequestType = "billing"
)

func newStatusServer(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(status)
	}))
}

func doAndClose(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestNewClient(t *testing.T) {
	server := newStatusServer(http.StatusAccepted)
	defer server.Close()

	cfg := NewConfig()
	cfg.Log.Enabled = true
	client, err := New(cfg)
	require.NoError(t, err)

	resp := doAndClose(t, client, server.URL)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestMustClient(t *testing.T) {
	server := newStatusServer(http.StatusAccepted)
	defer server.Close()

	client := Must(NewConfig())
	resp := doAndClose(t, client, server.URL)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestNewClientWithOptsLogging(t *testing.T) {
	server := newStatusServer(http.StatusOK)
	defer server.Close()

	logger := logtest.NewRecorder()
	cfg := NewConfig()
	cfg.Log.Enabled = true
	client, err := NewWithOpts(cfg, Opts{
		UserAgent:   testUserAgent,
		RequestType: testRequestType,
		Logger:      logger,
	})
	require.NoError(t, err)

	doAndClose(t, client, server.URL)

	entry, found := logger.FindEntry("client http request done")
	require.True(t, found)
	reqTypeField, found := entry.FindField("request_type")
	require.True(t, found)
	require.Equal(t, testRequestType, string(reqTypeField.Bytes))
}

func TestMustClientWithOptsRetries(t *testing.T) {
	var reqsCount int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&reqsCount, 1)
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := NewConfig()
	cfg.Retries.Enabled = true
	cfg.Retries.MaxAttempts = 1
	cfg.Retries.Policy = PolicyConfig{
		Strategy:                          RetryPolicyExponential,
		ExponentialBackoffInitialInterval: 2 * time.Millisecond,
		ExponentialBackoffMultiplier:      1.1,
	}

	client := MustWithOpts(cfg, Opts{UserAgent: testUserAgent})
	resp := doAndClose(t, client, server.URL)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.EqualValues(t, 2, atomic.LoadInt32(&reqsCount), "one retry on top of the initial attempt")
}

func TestMustClientWithOptsMetrics(t *testing.T) {
	server := newStatusServer(http.StatusOK)
	defer server.Close()

	collector := NewPrometheusMetricsCollector("")
	defer collector.Unregister()

	cfg := NewConfig()
	cfg.Metrics.Enabled = true
	client := MustWithOpts(cfg, Opts{
		UserAgent:   testUserAgent,
		RequestType: testRequestType,
		Collector:   collector,
	})

	doAndClose(t, client, server.URL)

	hist := collector.Durations.With(prometheus.Labels{
		"type":           testRequestType,
		"remote_address": strings.TrimPrefix(server.URL, "http://"),
		"summary":        "GET " + testRequestType,
		"status":         "200",
	}).(prometheus.Histogram)
	testutil.AssertSamplesCountInHistogram(t, hist, 1)
}

func TestNewClientWithOptsTransportCache(t *testing.T) {
	server := newStatusServer(http.StatusOK)
	defer server.Close()

	var factoryCalls int
	cfg := NewConfig()
	cfg.TransportCache.Enabled = true
	client, err := NewWithOpts(cfg, Opts{
		TransportFactory: func(scheme string) (http.RoundTripper, error) {
			factoryCalls++
			return http.DefaultTransport.(*http.Transport).Clone(), nil
		},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		doAndClose(t, client, server.URL)
	}
	require.Equal(t, 1, factoryCalls, "the transport should be built once per scheme")
}

func TestNewClientWithOptsUserAgentAndRequestID(t *testing.T) {
	var gotUserAgent, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get(RequestIDHeader)
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewWithOpts(NewConfig(), Opts{UserAgent: testUserAgent})
	require.NoError(t, err)

	doAndClose(t, client, server.URL)
	require.Equal(t, testUserAgent, gotUserAgent)
	require.NotEmpty(t, gotRequestID)
}
