/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/velumlabs/go-basekit/internal/libinfo"
)

// ClassifyRequest, when set, produces the non-parameterized summary label for
// a request instead of the built-in "<method> <request type>" form.
var ClassifyRequest func(r *http.Request, requestType string) string

// MetricsCollector receives one observation per finished client request.
type MetricsCollector interface {
	// RequestDuration records how long the request took and how it ended.
	RequestDuration(requestType, remoteAddress, summary, status string, startTime time.Time)
}

// PrometheusMetricsCollector exports request durations as a Prometheus histogram.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetricsCollector creates a collector whose metrics carry the given namespace.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "http_client_request_duration_seconds",
		Help:        "A histogram of the http client requests durations.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600},
		ConstLabels: libinfo.AddPrometheusLibVersionLabel(nil),
	}, []string{"type", "remote_address", "summary", "status"})
	return &PrometheusMetricsCollector{Durations: durations}
}

// MustRegister registers the histogram in the default Prometheus registry.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations)
}

// Unregister removes the histogram from the default Prometheus registry.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
}

// RequestDuration records how long the request took and how it ended.
func (p *PrometheusMetricsCollector) RequestDuration(requestType, host, summary, status string, start time.Time) {
	p.Durations.WithLabelValues(requestType, host, summary, status).Observe(time.Since(start).Seconds())
}

// MetricsRoundTripper measures the duration of every request passing through
// it and reports it to the collector, labeled with the request type, host,
// summary and response status.
type MetricsRoundTripper struct {
	delegate    http.RoundTripper
	requestType string
	collector   MetricsCollector
}

// MetricsRoundTripperOpts represents an options for MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	// RequestType labels the measured requests, e.g. a service name or an action.
	RequestType string

	// Collector receives the observations. Nil disables measuring.
	Collector MetricsCollector
}

// NewMetricsRoundTripper creates an HTTP transport measuring request durations.
func NewMetricsRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{})
}

// NewMetricsRoundTripperWithOpts creates an HTTP transport measuring request
// durations, configured with the provided options.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	requestType := opts.RequestType
	if requestType == "" {
		requestType = DefaultRequestType
	}
	return &MetricsRoundTripper{delegate: delegate, requestType: requestType, collector: opts.Collector}
}

// RoundTrip performs the request and reports its duration to the collector.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.collector == nil {
		return rt.delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.delegate.RoundTrip(r)

	status := "0" // transport errors have no HTTP status
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.collector.RequestDuration(rt.requestType, r.Host, requestSummary(r, rt.requestType), status, start)
	return resp, err
}

// requestSummary defers to ClassifyRequest when set, and otherwise collapses
// the request to "<method> <request type>" to keep the label cardinality low.
func requestSummary(r *http.Request, requestType string) string {
	if ClassifyRequest != nil {
		return ClassifyRequest(r, requestType)
	}
	return fmt.Sprintf("%s %s", r.Method, requestType)
}
