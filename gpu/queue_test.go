// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"
	"time"
)

func TestQueueWaitForTimesOut(t *testing.T) {
	q := newQueue(&Context{}, QueueMain, nil)
	if q.waitFor(1, 20*time.Millisecond) {
		t.Fatal("waitFor should have timed out: value was never reached")
	}
}

func TestQueueWaitForReturnsImmediatelyWhenAlreadyReached(t *testing.T) {
	q := newQueue(&Context{}, QueueMain, nil)
	q.mu.Lock()
	q.current = 3
	q.mu.Unlock()
	if !q.waitFor(2, 0) {
		t.Fatal("waitFor should report the value as already reached")
	}
}

func TestQueueWaitForUnblocksOnBroadcast(t *testing.T) {
	q := newQueue(&Context{}, QueueMain, nil)
	done := make(chan bool, 1)
	go func() { done <- q.waitFor(1, time.Second) }()

	time.Sleep(20 * time.Millisecond)
	q.mu.Lock()
	q.current = 1
	q.cond.Broadcast()
	q.mu.Unlock()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("waitFor reported the value as not reached")
		}
	case <-time.After(time.Second):
		t.Fatal("waitFor did not unblock after Broadcast")
	}
}

func TestQueueReserveValueIsMonotonic(t *testing.T) {
	q := newQueue(&Context{}, QueueMain, nil)
	v1 := q.reserveValue()
	v2 := q.reserveValue()
	if v2 != v1+1 {
		t.Fatalf("reserveValue sequence = %d, %d; want consecutive values", v1, v2)
	}
}
