/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package lrucache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	Name string
}

type testMetrics struct {
	Amount    int
	Hits      int
	Misses    int
	Evictions int
}

func assertMetrics(t *testing.T, want testMetrics, pm *PrometheusMetrics) {
	t.Helper()
	assert.Equal(t, want.Amount, int(testutil.ToFloat64(pm.EntriesAmount.With(nil))))
	assert.Equal(t, want.Hits, int(testutil.ToFloat64(pm.HitsTotal.With(nil))))
	assert.Equal(t, want.Misses, int(testutil.ToFloat64(pm.MissesTotal.With(nil))))
	assert.Equal(t, want.Evictions, int(testutil.ToFloat64(pm.EvictionsTotal.With(nil))))
}

func makeCache(t *testing.T, maxEntries int) (*LRUCache[string, User], *PrometheusMetrics) {
	t.Helper()
	pm := NewPrometheusMetrics()
	cache, err := New[string, User](maxEntries, pm)
	require.NoError(t, err)
	return cache, pm
}

func TestLRUCache(t *testing.T) {
	users := map[string]User{
		"user:1":   {"Bob"},
		"user:42":  {"John"},
		"user:777": {"Ivan"},
	}
	fillCache := func(cache *LRUCache[string, User]) {
		for _, key := range []string{"user:1", "user:42", "user:777"} {
			cache.Add(key, users[key])
		}
	}

	tests := []struct {
		name        string
		maxEntries  int
		fn          func(t *testing.T, cache *LRUCache[string, User])
		wantMetrics testMetrics
	}{
		{
			name:       "attempt to get not existing keys",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				for key := range users {
					_, found := cache.Get(key)
					require.False(t, found)
				}
			},
			wantMetrics: testMetrics{Misses: len(users)},
		},
		{
			name:       "add entries and get them",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache)
				for key, wantUser := range users {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, wantUser, val)
				}
				require.Equal(t, len(users), cache.Len())
			},
			wantMetrics: testMetrics{Amount: len(users), Hits: len(users)},
		},
		{
			name:       "add entries with evictions",
			maxEntries: len(users) - 1,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache) // "user:1" key will be evicted.

				_, found := cache.Get("user:1")
				require.False(t, found)
				for _, key := range []string{"user:42", "user:777"} {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, users[key], val)
				}
			},
			wantMetrics: testMetrics{Amount: len(users) - 1, Hits: len(users) - 1, Misses: 1, Evictions: 1},
		},
		{
			name:       "lru order is updated on get",
			maxEntries: 2,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				cache.Add("user:1", users["user:1"])
				cache.Add("user:42", users["user:42"])

				// Touch "user:1" so that "user:42" becomes the oldest.
				_, found := cache.Get("user:1")
				require.True(t, found)

				cache.Add("user:777", users["user:777"])

				_, found = cache.Get("user:42")
				require.False(t, found)
				_, found = cache.Get("user:1")
				require.True(t, found)
				_, found = cache.Get("user:777")
				require.True(t, found)
			},
			wantMetrics: testMetrics{Amount: 2, Hits: 3, Misses: 1, Evictions: 1},
		},
		{
			name:       "add existing key updates value without eviction",
			maxEntries: len(users),
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache)
				cache.Add("user:1", User{"Robert"})

				val, found := cache.Get("user:1")
				require.True(t, found)
				require.Equal(t, User{"Robert"}, val)
				require.Equal(t, len(users), cache.Len())
			},
			wantMetrics: testMetrics{Amount: len(users), Hits: 1},
		},
		{
			name:       "get or add",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				val, exists := cache.GetOrAdd("user:1", func() User { return users["user:1"] })
				require.False(t, exists)
				require.Equal(t, users["user:1"], val)

				val, exists = cache.GetOrAdd("user:1", func() User { return User{"Other"} })
				require.True(t, exists)
				require.Equal(t, users["user:1"], val)
			},
			wantMetrics: testMetrics{Amount: 1, Hits: 1, Misses: 1},
		},
		{
			name:       "remove entries",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache)

				require.False(t, cache.Remove("user:100500"))
				require.True(t, cache.Remove("user:42"))
				require.False(t, cache.Remove("user:42"))
			},
			wantMetrics: testMetrics{Amount: len(users) - 1},
		},
		{
			name:       "purge",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache)
				cache.Purge()
				require.Equal(t, 0, cache.Len())
				for key := range users {
					_, found := cache.Get(key)
					require.False(t, found)
				}
			},
			wantMetrics: testMetrics{Misses: len(users)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, pm := makeCache(t, tt.maxEntries)
			tt.fn(t, cache)
			assertMetrics(t, tt.wantMetrics, pm)
		})
	}
}

func TestLRUCacheInvalidMaxEntries(t *testing.T) {
	for _, maxEntries := range []int{0, -1} {
		_, err := New[string, User](maxEntries, nil)
		require.Error(t, err)
	}
}

func TestLRUCacheConcurrentAccess(t *testing.T) {
	cache, err := New[string, User](100, nil)
	require.NoError(t, err)

	const goroutines = 10
	const iterations = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("user:%d", i%150)
				cache.Add(key, User{Name: key})
				cache.Get(key)
			}
		}(g)
	}
	wg.Wait()

	require.LessOrEqual(t, cache.Len(), 100)
}
