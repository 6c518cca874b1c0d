/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Decision is the outcome of an EventLimiter check.
type Decision int

// Possible decisions.
const (
	DecisionAllowed Decision = iota
	DecisionDenied
	DecisionBuffered
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionDenied:
		return "denied"
	case DecisionBuffered:
		return "buffered"
	}
	return fmt.Sprintf("unknown(%d)", int(d))
}

// OverflowPolicy determines what happens when the overflow queue is full.
type OverflowPolicy string

// Supported overflow policies.
const (
	OverflowPolicyDropOldest OverflowPolicy = "drop_oldest"
	OverflowPolicyDropNewest OverflowPolicy = "drop_newest"
	OverflowPolicyBlock      OverflowPolicy = "block"
)

// IsValid checks if the overflow policy is valid.
func (p OverflowPolicy) IsValid() bool {
	switch p {
	case OverflowPolicyDropOldest, OverflowPolicyDropNewest, OverflowPolicyBlock:
		return true
	}
	return false
}

// Default parameter values for EventLimiter.
const (
	DefaultOverflowBlockTimeout = 5 * time.Second
)

// BucketLimit describes a single token bucket: Rate is the steady-state
// refill in tokens/sec, Burst is the bucket capacity.
type BucketLimit struct {
	Rate  float64
	Burst float64
}

// Options configures an EventLimiter.
type Options struct {
	// GlobalLimit, if non-nil, creates a bucket shared by all events.
	GlobalLimit *BucketLimit

	// PerKeyLimits creates an independent bucket per exact key
	// (no hierarchical or prefix matching).
	PerKeyLimits map[string]BucketLimit

	// MaxQueueSize > 0 enables buffered mode: denied events are pushed onto
	// a bounded overflow queue instead of being dropped.
	MaxQueueSize int

	// MaxQueueMemory is an estimated memory budget for queued events in bytes.
	// Zero means the queue is bounded by MaxQueueSize only.
	MaxQueueMemory uint64

	// OverflowPolicy governs a push into a full queue.
	// DefaultOverflowPolicy is OverflowPolicyDropNewest.
	OverflowPolicy OverflowPolicy

	// BlockTimeout bounds the wait of the block overflow policy.
	// By default, DefaultOverflowBlockTimeout is used.
	BlockTimeout time.Duration
}

// EventLimiter composes an optional global token bucket with independent
// per-key buckets and an optional overflow queue. It is the decision core
// behind the rate-limited logger.
//
// Instances are constructed explicitly and injected where needed;
// the package keeps no global limiter state.
type EventLimiter struct {
	mu     sync.RWMutex
	global *TokenBucket
	perKey map[string]*TokenBucket
	queue  *overflowQueue

	stats limiterStats

	now func() time.Time
}

// NewEventLimiter creates a new EventLimiter with the given options.
func NewEventLimiter(opts Options) (*EventLimiter, error) {
	l := &EventLimiter{now: time.Now}
	l.stats.perKey = make(map[string]*bucketCounters)
	if err := l.Configure(opts); err != nil {
		return nil, err
	}
	return l, nil
}

// MustEventLimiter is like NewEventLimiter but panics on invalid options.
func MustEventLimiter(opts Options) *EventLimiter {
	l, err := NewEventLimiter(opts)
	if err != nil {
		panic(err)
	}
	return l
}

// Configure atomically replaces the limiter configuration.
// Buckets are recreated (counters are preserved); passing a nil GlobalLimit
// removes global limiting, an empty PerKeyLimits removes all per-key buckets,
// MaxQueueSize == 0 disables buffered mode.
//
// Events buffered before the reconfiguration are carried into the replacement
// queue in their original order; whatever does not fit the new bounds is
// dropped, and disabling buffered mode discards them entirely.
func (l *EventLimiter) Configure(opts Options) error {
	if opts.OverflowPolicy == "" {
		opts.OverflowPolicy = OverflowPolicyDropNewest
	}
	if !opts.OverflowPolicy.IsValid() {
		return fmt.Errorf("unknown overflow policy %q", opts.OverflowPolicy)
	}
	if opts.MaxQueueSize < 0 {
		return fmt.Errorf("max queue size should not be negative, got %d", opts.MaxQueueSize)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.global = nil
	if opts.GlobalLimit != nil {
		l.global = newTokenBucket(opts.GlobalLimit.Rate, opts.GlobalLimit.Burst, l.now)
	}
	l.perKey = make(map[string]*TokenBucket, len(opts.PerKeyLimits))
	for key, lim := range opts.PerKeyLimits {
		l.perKey[key] = newTokenBucket(lim.Rate, lim.Burst, l.now)
	}
	prevQueue := l.queue
	l.queue = nil
	if opts.MaxQueueSize > 0 {
		l.queue = newOverflowQueue(opts.MaxQueueSize, opts.MaxQueueMemory, opts.OverflowPolicy, opts.BlockTimeout)
	}
	if prevQueue != nil && l.queue != nil {
		for _, ev := range prevQueue.drain(0) {
			if !l.queue.tryPush(ev) {
				break // the rest would not fit either, FIFO order is kept
			}
		}
	}
	return nil
}

// Check decides whether an event accounted against key may proceed.
// It is shorthand for CheckEvent with a descriptor carrying only the key.
func (l *EventLimiter) Check(key string, cost float64) Decision {
	return l.CheckEvent(Event{Key: key, Time: l.now()}, cost)
}

// CheckEvent runs the global bucket first and the per-key bucket second.
// A deny at either scope is final (buckets are independent); in buffered
// mode the denied event descriptor is pushed onto the overflow queue.
func (l *EventLimiter) CheckEvent(ev Event, cost float64) Decision {
	l.mu.RLock()
	global, bucket, queue := l.global, l.perKey[ev.Key], l.queue
	l.mu.RUnlock()

	if global != nil && !global.Allow(cost) {
		return l.handleDeny(ev, queue)
	}
	if bucket != nil && !bucket.Allow(cost) {
		return l.handleDeny(ev, queue)
	}

	l.stats.counters(ev.Key).allowed.Inc()
	l.stats.global.allowed.Inc()
	return DecisionAllowed
}

func (l *EventLimiter) handleDeny(ev Event, queue *overflowQueue) Decision {
	if queue != nil && queue.push(ev) {
		l.stats.counters(ev.Key).buffered.Inc()
		l.stats.global.buffered.Inc()
		return DecisionBuffered
	}
	l.stats.counters(ev.Key).denied.Inc()
	l.stats.global.denied.Inc()
	return DecisionDenied
}

// DrainBuffered removes and returns up to max buffered events in FIFO order.
// max <= 0 drains everything. Returns nil when buffered mode is disabled.
func (l *EventLimiter) DrainBuffered(max int) []Event {
	l.mu.RLock()
	queue := l.queue
	l.mu.RUnlock()
	if queue == nil {
		return nil
	}
	return queue.drain(max)
}

// BufferedLen returns the current overflow queue length.
func (l *EventLimiter) BufferedLen() int {
	l.mu.RLock()
	queue := l.queue
	l.mu.RUnlock()
	if queue == nil {
		return 0
	}
	return queue.len()
}

// BucketStats is a snapshot of counters for a single scope (global or one key).
type BucketStats struct {
	TotalAllowed  int64
	TotalDenied   int64
	TotalBuffered int64

	// CurrentTokens is the number of currently available tokens,
	// or -1 when no bucket is configured for the scope.
	CurrentTokens float64
}

// Stats is a point-in-time snapshot of limiter counters,
// intended for periodic export to an external metrics collaborator.
type Stats struct {
	Global BucketStats
	PerKey map[string]BucketStats
}

// Stats returns a snapshot of the running counters.
func (l *EventLimiter) Stats() Stats {
	l.mu.RLock()
	global := l.global
	buckets := make(map[string]*TokenBucket, len(l.perKey))
	for key, b := range l.perKey {
		buckets[key] = b
	}
	l.mu.RUnlock()

	res := Stats{
		Global: l.stats.global.snapshot(bucketTokens(global)),
		PerKey: make(map[string]BucketStats),
	}

	l.stats.mu.Lock()
	defer l.stats.mu.Unlock()
	for key, counters := range l.stats.perKey {
		res.PerKey[key] = counters.snapshot(bucketTokens(buckets[key]))
	}
	return res
}

func bucketTokens(b *TokenBucket) float64 {
	if b == nil {
		return -1
	}
	return b.Tokens()
}

type bucketCounters struct {
	allowed  atomic.Int64
	denied   atomic.Int64
	buffered atomic.Int64
}

func (c *bucketCounters) snapshot(currentTokens float64) BucketStats {
	return BucketStats{
		TotalAllowed:  c.allowed.Load(),
		TotalDenied:   c.denied.Load(),
		TotalBuffered: c.buffered.Load(),
		CurrentTokens: currentTokens,
	}
}

type limiterStats struct {
	global bucketCounters

	mu     sync.Mutex
	perKey map[string]*bucketCounters
}

func (s *limiterStats) counters(key string) *bucketCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters, ok := s.perKey[key]
	if !ok {
		counters = &bucketCounters{}
		s.perKey[key] = counters
	}
	return counters
}
