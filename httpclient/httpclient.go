/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/velumlabs/go-basekit/log"
	"github.com/velumlabs/go-basekit/ratelimit"
)

// DefaultRequestType is used when no request type is provided.
const DefaultRequestType = "unknown"

// CloneHTTPRequest creates a shallow copy of the request along with a deep copy of the Headers.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = CloneHTTPHeader(req.Header)
	return r
}

// CloneHTTPHeader creates a deep copy of an http.Header.
func CloneHTTPHeader(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		copied := make([]string, len(values))
		copy(copied, values)
		out[key] = copied
	}
	return out
}

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// UserAgent is a user agent string.
	UserAgent string

	// RequestType is a type of request. e.g. service 'auth-service', an action 'login' or specific information to correlate.
	RequestType string

	// Delegate is the next RoundTripper in the chain.
	// When nil and the transport cache is enabled in the configuration,
	// a CachedTransportRoundTripper on top of TransportFactory is used;
	// otherwise a fresh clone of http.DefaultTransport.
	Delegate http.RoundTripper

	// TransportFactory constructs per-scheme transports for the transport cache.
	// DefaultTransportFactory is used when nil.
	TransportFactory TransportFactory

	// Logger is used for logging by the round trippers in the chain.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector.
	Collector MetricsCollector
}

// New builds an *http.Client whose transport chain is assembled from the
// configuration: logging, metrics, rate limiting, throttling, request id
// and retries, each layer present only when enabled.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must is like New but panics on error.
func Must(cfg *Config) *http.Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// NewWithOpts is like New with explicit options for the chain layers
// (user agent, request type, logger, metrics collector and so on).
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	transport, err := buildTransportChain(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
}

// MustWithOpts is like NewWithOpts but panics on error.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}

// buildTransportChain wraps the base transport layer by layer. The order
// matters: retries sit on the outside so every attempt passes through the
// whole chain, and logging sits at the bottom so it observes the request
// that actually hits the wire.
func buildTransportChain(cfg *Config, opts Opts) (http.RoundTripper, error) {
	transport := opts.Delegate
	if transport == nil {
		if cfg.TransportCache.Enabled {
			cache := NewTransportCacheWithOpts(opts.TransportFactory, TransportCacheOpts{
				FailureThreshold: cfg.TransportCache.FailureThreshold,
				Logger:           opts.Logger,
			})
			transport = NewCachedTransportRoundTripper(cache)
		} else {
			transport = http.DefaultTransport.(*http.Transport).Clone()
		}
	}

	if cfg.Log.Enabled {
		logOpts := cfg.Log.TransportOpts()
		logOpts.Logger = opts.Logger
		logOpts.LoggerProvider = opts.LoggerProvider
		transport = NewLoggingRoundTripperWithOpts(transport, opts.RequestType, logOpts)
	}

	if cfg.Metrics.Enabled {
		transport = NewMetricsRoundTripperWithOpts(transport, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	var err error
	if cfg.RateLimits.Enabled {
		transport, err = NewRateLimitingRoundTripperWithOpts(
			transport, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts())
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if cfg.Throttling.Enabled {
		var limiter ratelimit.KeyLimiter
		if limiter, err = cfg.Throttling.MakeLimiter(); err != nil {
			return nil, fmt.Errorf("create per-host limiter: %w", err)
		}
		transport, err = NewThrottlingRoundTripperWithOpts(transport, limiter, cfg.Throttling.TransportOpts())
		if err != nil {
			return nil, fmt.Errorf("create throttling round tripper: %w", err)
		}
	}

	if opts.UserAgent != "" {
		transport = NewUserAgentRoundTripper(transport, opts.UserAgent)
	}

	transport = NewRequestIDRoundTripperWithOpts(transport, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	if cfg.Retries.Enabled {
		retryOpts := cfg.Retries.TransportOpts()
		retryOpts.Logger = opts.Logger
		retryOpts.LoggerProvider = opts.LoggerProvider
		retryOpts.BackoffPolicy = cfg.Retries.GetPolicy()
		transport, err = NewRetryableRoundTripperWithOpts(transport, retryOpts)
		if err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	return transport, nil
}
