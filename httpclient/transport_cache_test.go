/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"go.uber.org/atomic"
)

type stubTransport struct {
	name        string
	idleClosed  atomic.Bool
	roundTripFn func(r *http.Request) (*http.Response, error)
}

func (t *stubTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.roundTripFn != nil {
		return t.roundTripFn(r)
	}
	return &http.Response{StatusCode: http.StatusOK, Request: r}, nil
}

func (t *stubTransport) CloseIdleConnections() {
	t.idleClosed.Store(true)
}

func countingFactory(calls *atomic.Int32) TransportFactory {
	return func(scheme string) (http.RoundTripper, error) {
		calls.Inc()
		return &stubTransport{name: scheme}, nil
	}
}

func TestTransportCacheGetOrCreate(t *testing.T) {
	var calls atomic.Int32
	cache := NewTransportCache(countingFactory(&calls))

	rt1, err := cache.GetOrCreate("https")
	require.NoError(t, err)
	rt2, err := cache.GetOrCreate("https")
	require.NoError(t, err)
	require.Same(t, rt1, rt2, "the same transport should be returned for the same scheme")
	require.EqualValues(t, 1, calls.Load())

	rt3, err := cache.GetOrCreate("http")
	require.NoError(t, err)
	require.NotSame(t, rt1, rt3)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, 2, cache.Len())
}

func TestTransportCacheSchemeIsCaseInsensitive(t *testing.T) {
	var calls atomic.Int32
	cache := NewTransportCache(countingFactory(&calls))

	rt1, err := cache.GetOrCreate("HTTPS")
	require.NoError(t, err)
	rt2, err := cache.GetOrCreate("https")
	require.NoError(t, err)
	require.Same(t, rt1, rt2)
	require.EqualValues(t, 1, calls.Load())
}

func TestTransportCacheConcurrentGetOrCreate(t *testing.T) {
	var calls atomic.Int32
	factory := func(scheme string) (http.RoundTripper, error) {
		calls.Inc()
		return &stubTransport{name: scheme}, nil
	}
	cache := NewTransportCache(factory)

	const goroutines = 20
	transports := make([]http.RoundTripper, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			transports[i], errs[i] = cache.GetOrCreate("https")
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, calls.Load(), "concurrent callers should share a single factory call")
	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		require.Same(t, transports[0], transports[i])
	}
}

func TestTransportCacheFactoryErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	factoryErr := fmt.Errorf("no dialer available")
	factory := func(scheme string) (http.RoundTripper, error) {
		calls.Inc()
		if calls.Load() == 1 {
			return nil, factoryErr
		}
		return &stubTransport{name: scheme}, nil
	}
	cache := NewTransportCache(factory)

	_, err := cache.GetOrCreate("https")
	require.Error(t, err)
	var createErr *TransportCreateError
	require.ErrorAs(t, err, &createErr)
	require.Equal(t, "https", createErr.Scheme)
	require.ErrorIs(t, err, factoryErr)
	require.Equal(t, 0, cache.Len())

	// The next call should retry the factory.
	rt, err := cache.GetOrCreate("https")
	require.NoError(t, err)
	require.NotNil(t, rt)
	require.EqualValues(t, 2, calls.Load())
}

func TestTransportCacheMarkFailureEvictsAtThreshold(t *testing.T) {
	var calls atomic.Int32
	cache := NewTransportCacheWithOpts(countingFactory(&calls), TransportCacheOpts{FailureThreshold: 3})

	_, err := cache.GetOrCreate("https")
	require.NoError(t, err)

	require.False(t, cache.MarkFailure("https"))
	require.False(t, cache.MarkFailure("https"))
	require.Equal(t, 2, cache.FailureCount("https"))
	require.True(t, cache.MarkFailure("https"), "the third consecutive failure should evict the transport")
	require.Equal(t, 0, cache.Len())

	// A new transport is built on the next use, with a clean counter.
	_, err = cache.GetOrCreate("https")
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, 0, cache.FailureCount("https"))
}

func TestTransportCacheMarkSuccessResetsCounter(t *testing.T) {
	var calls atomic.Int32
	cache := NewTransportCacheWithOpts(countingFactory(&calls), TransportCacheOpts{FailureThreshold: 3})

	_, err := cache.GetOrCreate("https")
	require.NoError(t, err)

	require.False(t, cache.MarkFailure("https"))
	require.False(t, cache.MarkFailure("https"))
	cache.MarkSuccess("https")
	require.Equal(t, 0, cache.FailureCount("https"))

	require.False(t, cache.MarkFailure("https"))
	require.False(t, cache.MarkFailure("https"))
	require.Equal(t, 1, cache.Len(), "counting should restart after a success")
}

func TestTransportCacheMarkFailureForUnknownScheme(t *testing.T) {
	var calls atomic.Int32
	cache := NewTransportCache(countingFactory(&calls))
	require.False(t, cache.MarkFailure("https"))
	require.EqualValues(t, 0, calls.Load())
}

func TestTransportCacheClear(t *testing.T) {
	var calls atomic.Int32
	cache := NewTransportCache(countingFactory(&calls))

	_, err := cache.GetOrCreate("http")
	require.NoError(t, err)
	_, err = cache.GetOrCreate("https")
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	removed := cache.Clear()
	require.Equal(t, 0, cache.Len())

	// The removed transports are handed to the caller for closing.
	require.Len(t, removed, 2)
	for _, scheme := range []string{"http", "https"} {
		rt, ok := removed[scheme]
		require.True(t, ok)
		rt.(*stubTransport).CloseIdleConnections()
		require.True(t, rt.(*stubTransport).idleClosed.Load())
	}

	require.Empty(t, cache.Clear(), "a repeated clear should have nothing left to hand out")

	_, err = cache.GetOrCreate("https")
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load())
}

func TestDefaultTransportFactory(t *testing.T) {
	for _, scheme := range []string{"http", "https"} {
		rt, err := DefaultTransportFactory(scheme)
		require.NoError(t, err)
		require.IsType(t, &http.Transport{}, rt)
	}
	_, err := DefaultTransportFactory("ftp")
	require.Error(t, err)
}
