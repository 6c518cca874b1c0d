/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOverflowQueueDropNewest(t *testing.T) {
	q := newOverflowQueue(2, 0, OverflowPolicyDropNewest, 0)

	require.True(t, q.push(Event{Text: "first"}))
	require.True(t, q.push(Event{Text: "second"}))
	require.False(t, q.push(Event{Text: "third"}))

	events := q.drain(0)
	require.Len(t, events, 2)
	require.Equal(t, "first", events[0].Text)
	require.Equal(t, "second", events[1].Text)
}

func TestOverflowQueueDropOldest(t *testing.T) {
	q := newOverflowQueue(2, 0, OverflowPolicyDropOldest, 0)

	require.True(t, q.push(Event{Text: "first"}))
	require.True(t, q.push(Event{Text: "second"}))
	require.True(t, q.push(Event{Text: "third"}))

	events := q.drain(0)
	require.Len(t, events, 2)
	require.Equal(t, "second", events[0].Text)
	require.Equal(t, "third", events[1].Text)
}

func TestOverflowQueueMemoryBudget(t *testing.T) {
	// Budget fits a single short event but not two.
	q := newOverflowQueue(100, 2*eventBaseOverhead-1, OverflowPolicyDropNewest, 0)

	require.True(t, q.push(Event{}))
	require.False(t, q.push(Event{}))
	require.Equal(t, 1, q.len())

	q.drain(0)
	require.True(t, q.push(Event{}))
}

func TestOverflowQueueDropOldestEventLargerThanBudget(t *testing.T) {
	q := newOverflowQueue(100, eventBaseOverhead+10, OverflowPolicyDropOldest, 0)

	require.True(t, q.push(Event{}))
	big := Event{Text: string(make([]byte, 1024))}
	require.False(t, q.push(big), "an event exceeding the whole budget should be dropped")
	require.Equal(t, 1, q.len())
}

func TestOverflowQueueBlockTimesOut(t *testing.T) {
	q := newOverflowQueue(1, 0, OverflowPolicyBlock, 50*time.Millisecond)

	require.True(t, q.push(Event{Text: "first"}))

	start := time.Now()
	require.False(t, q.push(Event{Text: "second"}))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 1, q.len())
}

func TestOverflowQueueBlockUnblocksOnDrain(t *testing.T) {
	q := newOverflowQueue(1, 0, OverflowPolicyBlock, 5*time.Second)

	require.True(t, q.push(Event{Text: "first"}))

	pushed := make(chan bool)
	go func() {
		pushed <- q.push(Event{Text: "second"})
	}()

	time.Sleep(20 * time.Millisecond) // let the pusher block
	events := q.drain(1)
	require.Len(t, events, 1)
	require.Equal(t, "first", events[0].Text)

	select {
	case ok := <-pushed:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked push was not woken up by drain")
	}
	require.Equal(t, 1, q.len())
}

func TestOverflowQueueDrainMax(t *testing.T) {
	q := newOverflowQueue(10, 0, OverflowPolicyDropNewest, 0)
	for i := 0; i < 5; i++ {
		require.True(t, q.push(Event{Text: "event"}))
	}

	require.Len(t, q.drain(2), 2)
	require.Equal(t, 3, q.len())
	require.Len(t, q.drain(-1), 3)
	require.Nil(t, q.drain(0))
}
