/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

// Event describes a single rate-limited occurrence (typically a log event).
// Key identifies the bucket the event is accounted against (e.g. a logger name).
// Severity is a free-form tag carried through the overflow queue so that a
// buffered event can be replayed faithfully (the rate-limited logger stores
// the log level here).
type Event struct {
	Key      string
	Severity string
	Text     string
	Time     time.Time
}

// eventBaseOverhead is a conservative fixed per-item memory estimate that is
// charged against the queue memory budget in addition to the payload strings.
// The real footprint of a queued Event (list element, headers, time.Time) is
// smaller; overcounting keeps the budget safe for short events.
const eventBaseOverhead = 256

func (e Event) estimatedSize() uint64 {
	return eventBaseOverhead + uint64(len(e.Key)) + uint64(len(e.Severity)) + uint64(len(e.Text))
}

// overflowQueue is a bounded FIFO of denied events. Boundedness is enforced
// both by item count and by an estimated memory budget. When full, behavior
// is governed by the overflow policy; the block policy waits for room with a
// deadline and degrades to drop_newest on timeout, so a logging call can
// never hang indefinitely.
type overflowQueue struct {
	mu           sync.Mutex
	cond         *sync.Cond
	items        *list.List // of Event
	maxSize      int
	maxMemory    uint64 // 0 means no memory budget
	memUsed      uint64
	policy       OverflowPolicy
	blockTimeout time.Duration
}

func newOverflowQueue(maxSize int, maxMemory uint64, policy OverflowPolicy, blockTimeout time.Duration) *overflowQueue {
	if blockTimeout <= 0 {
		blockTimeout = DefaultOverflowBlockTimeout
	}
	q := &overflowQueue{
		items:        list.New(),
		maxSize:      maxSize,
		maxMemory:    maxMemory,
		policy:       policy,
		blockTimeout: blockTimeout,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push tries to enqueue the event, applying the overflow policy when the
// queue is full. It reports whether the event was buffered.
func (q *overflowQueue) push(ev Event) bool {
	size := ev.estimatedSize()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasRoom(size) {
		q.append(ev, size)
		return true
	}

	switch q.policy {
	case OverflowPolicyDropOldest:
		for !q.hasRoom(size) && q.items.Len() > 0 {
			q.removeOldest()
		}
		if !q.hasRoom(size) { // single event exceeds the whole budget
			return false
		}
		q.append(ev, size)
		return true

	case OverflowPolicyBlock:
		deadline := time.Now().Add(q.blockTimeout)
		for !q.hasRoom(size) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false // timed out, treat as drop_newest
			}
			// sync.Cond has no timed wait; arm a one-shot broadcast
			// so Wait is guaranteed to return by the deadline.
			wakeup := time.AfterFunc(remaining, q.cond.Broadcast)
			q.cond.Wait()
			wakeup.Stop()
		}
		q.append(ev, size)
		return true

	default: // OverflowPolicyDropNewest
		return false
	}
}

// tryPush enqueues the event only when there is room, ignoring the overflow
// policy. It is used to carry events between queues during reconfiguration,
// where neither evicting nor blocking is appropriate.
func (q *overflowQueue) tryPush(ev Event) bool {
	size := ev.estimatedSize()

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.hasRoom(size) {
		return false
	}
	q.append(ev, size)
	return true
}

// drain removes and returns up to max queued events in FIFO order.
// max <= 0 drains everything.
func (q *overflowQueue) drain(max int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Len()
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, q.removeOldest())
	}
	return events
}

func (q *overflowQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *overflowQueue) hasRoom(size uint64) bool {
	if q.items.Len() >= q.maxSize {
		return false
	}
	return q.maxMemory == 0 || q.memUsed+size <= q.maxMemory
}

func (q *overflowQueue) append(ev Event, size uint64) {
	q.items.PushBack(ev)
	q.memUsed += size
}

func (q *overflowQueue) removeOldest() Event {
	elem := q.items.Front()
	ev := elem.Value.(Event)
	q.items.Remove(elem)
	q.memUsed -= ev.estimatedSize()
	q.cond.Broadcast() // room may have opened for blocked pushers
	return ev
}
