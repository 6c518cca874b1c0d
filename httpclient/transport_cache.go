/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/velumlabs/go-basekit/log"
)

// DefaultTransportFailureThreshold is the number of consecutive transport
// failures after which a cached transport is evicted and closed.
const DefaultTransportFailureThreshold = 3

// TransportFactory constructs a transport for the given URL scheme.
// It must be safe for concurrent use.
type TransportFactory func(scheme string) (http.RoundTripper, error)

// DefaultTransportFactory builds a fresh clone of http.DefaultTransport
// for the http and https schemes and fails for anything else.
func DefaultTransportFactory(scheme string) (http.RoundTripper, error) {
	switch scheme {
	case "http", "https":
		return http.DefaultTransport.(*http.Transport).Clone(), nil
	}
	return nil, fmt.Errorf("unsupported URL scheme %q", scheme)
}

// TransportCreateError is returned by TransportCache.GetOrCreate when the factory fails.
// Factory errors are never cached: the next GetOrCreate for the same scheme calls the factory again.
type TransportCreateError struct {
	Scheme string
	Inner  error
}

func (e *TransportCreateError) Error() string {
	return fmt.Sprintf("create transport for scheme %q: %s", e.Scheme, e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *TransportCreateError) Unwrap() error {
	return e.Inner
}

// TransportCacheOpts represents an options for TransportCache.
type TransportCacheOpts struct {
	// FailureThreshold is the number of consecutive failures that evicts a transport.
	// By default, DefaultTransportFailureThreshold is used.
	FailureThreshold int

	// Logger is used for logging evictions. Disabled logger is used by default.
	Logger log.FieldLogger
}

// TransportCache caches one transport per URL scheme and tracks transport health.
//
// Transports are constructed lazily by the factory; concurrent GetOrCreate calls
// for the same scheme result in exactly one factory call, with all callers
// receiving the same transport. Consecutive failures reported via MarkFailure
// are counted per scheme, and once the threshold is reached the transport is
// evicted from the cache and closed in the background. A success reported via
// MarkSuccess resets the counter.
type TransportCache struct {
	factory          TransportFactory
	failureThreshold int
	logger           log.FieldLogger

	mu       sync.Mutex
	entries  map[string]*transportCacheEntry
	inflight map[string]*transportInflightCall
}

type transportCacheEntry struct {
	transport           http.RoundTripper
	consecutiveFailures int
}

// transportInflightCall tracks an in-progress factory call so that concurrent
// requests for the same scheme wait for it instead of calling the factory again.
type transportInflightCall struct {
	wg        sync.WaitGroup
	transport http.RoundTripper
	err       error
}

// NewTransportCache creates a new TransportCache with the default options.
func NewTransportCache(factory TransportFactory) *TransportCache {
	return NewTransportCacheWithOpts(factory, TransportCacheOpts{})
}

// NewTransportCacheWithOpts creates a new TransportCache with the provided options.
// For options that are not presented, the default values will be used.
func NewTransportCacheWithOpts(factory TransportFactory, opts TransportCacheOpts) *TransportCache {
	if factory == nil {
		factory = DefaultTransportFactory
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultTransportFailureThreshold
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &TransportCache{
		factory:          factory,
		failureThreshold: opts.FailureThreshold,
		logger:           opts.Logger,
		entries:          make(map[string]*transportCacheEntry),
		inflight:         make(map[string]*transportInflightCall),
	}
}

// GetOrCreate returns the cached transport for the scheme,
// constructing it with the factory on the first use.
func (c *TransportCache) GetOrCreate(scheme string) (http.RoundTripper, error) {
	scheme = strings.ToLower(scheme)

	c.mu.Lock()
	if entry, ok := c.entries[scheme]; ok {
		c.mu.Unlock()
		return entry.transport, nil
	}
	if call, ok := c.inflight[scheme]; ok {
		c.mu.Unlock()
		call.wg.Wait()
		if call.err != nil {
			return nil, &TransportCreateError{Scheme: scheme, Inner: call.err}
		}
		return call.transport, nil
	}
	call := &transportInflightCall{}
	call.wg.Add(1)
	c.inflight[scheme] = call
	c.mu.Unlock()

	call.transport, call.err = c.factory(scheme)

	c.mu.Lock()
	delete(c.inflight, scheme)
	if call.err == nil {
		c.entries[scheme] = &transportCacheEntry{transport: call.transport}
	}
	c.mu.Unlock()
	call.wg.Done()

	if call.err != nil {
		return nil, &TransportCreateError{Scheme: scheme, Inner: call.err}
	}
	return call.transport, nil
}

// MarkFailure reports a transport-level failure for the scheme.
// It returns true if the failure reached the threshold and the transport was evicted.
// Failures for schemes that are not cached (e.g. already evicted) are ignored.
func (c *TransportCache) MarkFailure(scheme string) bool {
	scheme = strings.ToLower(scheme)

	c.mu.Lock()
	entry, ok := c.entries[scheme]
	if !ok {
		c.mu.Unlock()
		return false
	}
	entry.consecutiveFailures++
	failures := entry.consecutiveFailures
	if failures < c.failureThreshold {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, scheme)
	c.mu.Unlock()

	c.logger.Warn("transport evicted after consecutive failures",
		log.String("scheme", scheme), log.Int("failures", failures))
	go closeTransport(entry.transport)
	return true
}

// MarkSuccess reports a successful round trip for the scheme,
// resetting its consecutive failure counter.
func (c *TransportCache) MarkSuccess(scheme string) {
	scheme = strings.ToLower(scheme)

	c.mu.Lock()
	if entry, ok := c.entries[scheme]; ok {
		entry.consecutiveFailures = 0
	}
	c.mu.Unlock()
}

// FailureCount returns the current consecutive failure counter for the scheme.
func (c *TransportCache) FailureCount(scheme string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[strings.ToLower(scheme)]; ok {
		return entry.consecutiveFailures
	}
	return 0
}

// Len returns the number of cached transports.
func (c *TransportCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear atomically removes all cached transports and returns them keyed by
// scheme. Ownership passes to the caller, which is responsible for closing
// them (e.g. via CloseIdleConnections) once in-flight requests are done.
// Failure counters are discarded together with the entries.
func (c *TransportCache) Clear() map[string]http.RoundTripper {
	c.mu.Lock()
	evicted := c.entries
	c.entries = make(map[string]*transportCacheEntry)
	c.mu.Unlock()

	removed := make(map[string]http.RoundTripper, len(evicted))
	for scheme, entry := range evicted {
		removed[scheme] = entry.transport
	}
	return removed
}

// closeTransport releases the resources held by the transport. Closing is done
// in the background by the callers, a slow close must not block request paths.
func closeTransport(rt http.RoundTripper) {
	switch t := rt.(type) {
	case io.Closer:
		_ = t.Close()
	case interface{ CloseIdleConnections() }:
		t.CloseIdleConnections()
	}
}
