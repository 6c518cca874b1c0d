/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/velumlabs/go-basekit/log"
)

// LoggingMode selects which outgoing requests get logged.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid reports whether the mode is one of the known values.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper logs outgoing requests together with their duration,
// status and request ID.
type LoggingRoundTripper struct {
	delegate    http.RoundTripper
	requestType string
	opts        LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed.
	Mode LoggingMode

	// SlowRequestThreshold is a threshold for slow requests.
	// Only requests that take at least this long are logged.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, requestType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, requestType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, requestType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	return &LoggingRoundTripper{
		delegate:    delegate,
		requestType: requestType,
		opts:        opts,
	}
}

func (rt *LoggingRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.opts.LoggerProvider != nil {
		return rt.opts.LoggerProvider(ctx)
	}
	return rt.opts.Logger
}

// RoundTrip performs the request and logs the outcome according to the
// configured mode and slow-request threshold.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.opts.Mode == LoggingModeNone {
		return rt.delegate.RoundTrip(r)
	}

	logger := rt.logger(r.Context())
	start := time.Now()

	resp, err := rt.delegate.RoundTrip(r)
	elapsed := time.Since(start)
	if logger == nil || elapsed < rt.opts.SlowRequestThreshold {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.String("request_type", rt.requestType),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if requestID := GetRequestIDFromContext(r.Context()); requestID != "" {
		fields = append(fields, log.String("request_id", requestID))
	}

	switch {
	case err != nil:
		logger.Error("client http request failed", append(fields, log.Error(err))...)
	case rt.opts.Mode == LoggingModeFailed && resp.StatusCode < http.StatusBadRequest:
		// Successful request in failed-only mode, stay quiet.
	default:
		logger.Info("client http request done", append(fields, log.Int("status_code", resp.StatusCode))...)
	}
	return resp, err
}
