/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"fmt"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a fixed-capacity cache evicting the least recently used entry
// on overflow, with optional usage metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int

	mu    sync.RWMutex
	order *list.List               // most recently used entries at the front
	elems map[K]*list.Element      // key -> element in order

	metrics MetricsCollector
}

// New creates a new LRUCache with the provided maximum number of entries.
// Metrics collector is used to collect statistics about cache usage.
// It can be nil, in this case, metrics will be disabled.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	return &LRUCache[K, V]{
		maxEntries: maxEntries,
		order:      list.New(),
		elems:      make(map[K]*list.Element),
		metrics:    metricsCollector,
	}, nil
}

// Get looks the key up and marks it as most recently used on a hit.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Add stores the value under the key, replacing a previous value if any.
// A full cache evicts its least recently used entry first.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.elems[key]; ok {
		elem.Value = &entry[K, V]{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}
	c.insert(key, value)
}

// GetOrAdd looks the key up and, on a miss, stores the value produced by
// valueProvider. The provider runs under the cache lock.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, exists = c.get(key); exists {
		return value, true
	}
	value = valueProvider()
	c.insert(key, value)
	return value, false
}

// Remove drops the key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.elems[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.elems, key)
	c.metrics.SetAmount(len(c.elems))
	return true
}

// Purge drops every entry at once.
// Removed entries are not counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.elems = make(map[K]*list.Element)
	c.order.Init()
	c.metrics.SetAmount(0)
}

// Len reports how many entries the cache currently holds.
func (c *LRUCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.elems)
}

func (c *LRUCache[K, V]) get(key K) (value V, ok bool) {
	elem, hit := c.elems[key]
	if !hit {
		c.metrics.IncMisses()
		return value, false
	}
	c.order.MoveToFront(elem)
	c.metrics.IncHits()
	return elem.Value.(*entry[K, V]).value, true
}

// insert adds a key that is known to be absent, evicting the least recently
// used entry when the cache is over capacity.
func (c *LRUCache[K, V]) insert(key K, value V) {
	c.elems[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if len(c.elems) <= c.maxEntries {
		c.metrics.SetAmount(len(c.elems))
		return
	}
	if oldest := c.order.Back(); oldest != nil {
		c.order.Remove(oldest)
		delete(c.elems, oldest.Value.(*entry[K, V]).key)
		c.metrics.AddEvictions(1)
	}
}
