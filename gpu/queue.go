// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"sync"
	"time"

	"github.com/tessera-gpu/tessera/driver"
)

// Job identifies a single submission to a Queue. It is a timeline
// value, not a handle to any driver object: once issued it remains
// valid (and comparable) for the Queue's entire lifetime, which is
// what lets WaitOn/PollStatus be called any number of times.
type Job struct {
	queue *Queue
	value uint64
}

// Queue returns the Queue the job was submitted to.
func (j Job) Queue() *Queue { return j.queue }

// dispatchRequest is one committed-but-not-yet-submitted-to-the-driver
// Submit call, queued in the order Submit reserved its timeline value.
type dispatchRequest struct {
	cb    driver.CmdBuffer
	value uint64
	deps  map[*Queue]uint64
}

// Queue is one of the Context's four software timeline queues. The
// underlying driver.GPU exposes a single Commit(cb, ch) entry point
// with no native notion of multiple queues or timeline semaphores, so
// Queue models one on top of it: Submit assigns the next timeline
// value and hands the recorded command buffer to a dedicated
// dispatch goroutine (dispatchLoop) rather than waiting on any
// cross-queue dependency itself. That goroutine drains requests in
// the order they were enqueued — preserving per-queue in-order
// execution — blocking only itself on a dependency queue's current
// value before issuing Commit, so a cross-queue hand-off never stalls
// the caller of Submit nor holds the global usage registry's lock
// (§5: "submit_commands does not block on the GPU").
type Queue struct {
	ctx   *Context
	typ   QueueType
	gpu   driver.GPU
	label string

	mu      sync.Mutex
	cond    *sync.Cond
	target  uint64
	current uint64
	free    []driver.CmdBuffer

	pending []dispatchRequest
	closed  bool
}

func newQueue(ctx *Context, typ QueueType, gpu driver.GPU) *Queue {
	q := &Queue{ctx: ctx, typ: typ, gpu: gpu, label: typ.String()}
	q.cond = sync.NewCond(&q.mu)
	go q.dispatchLoop()
	return q
}

// Type reports which of the four queue roles this Queue plays.
func (q *Queue) Type() QueueType { return q.typ }

// acquire returns a command buffer ready for recording, reusing one
// from the FIFO free list when available.
func (q *Queue) acquire() (driver.CmdBuffer, error) {
	q.mu.Lock()
	var cb driver.CmdBuffer
	if n := len(q.free); n > 0 {
		cb = q.free[0]
		q.free = q.free[1:]
	}
	q.mu.Unlock()

	if cb == nil {
		var err error
		cb, err = q.gpu.NewCmdBuffer()
		if err != nil {
			return nil, err
		}
	}
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	return cb, nil
}

func (q *Queue) recycle(cb driver.CmdBuffer) {
	cb.Reset()
	q.mu.Lock()
	q.free = append(q.free, cb)
	q.mu.Unlock()
}

// currentValue reports the highest timeline value this queue has retired.
func (q *Queue) currentValue() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// waitFor blocks until the queue's timeline reaches value, or until
// timeout elapses (timeout<=0 means wait indefinitely). It returns
// whether the value was reached.
func (q *Queue) waitFor(value uint64, timeout time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current >= value {
		return true
	}
	if timeout <= 0 {
		for q.current < value {
			q.cond.Wait()
		}
		return true
	}
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		timedOut = true
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	for q.current < value && !timedOut {
		q.cond.Wait()
	}
	return q.current >= value
}

// reserveValue assigns and returns the next timeline value this queue
// will reach. It is split from commitReserved so the orchestrator can
// record the value each touched sub-resource will carry in the usage
// registry before the command buffer is actually built and committed.
func (q *Queue) reserveValue() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.target++
	return q.target
}

// commitReserved enqueues cb for dispatch under the timeline value
// previously obtained from reserveValue and returns immediately: it
// never blocks on a cross-queue dependency or on the GPU itself, per
// §5's "submit_commands does not block on the GPU". Any wait on deps
// is performed later, by this queue's own dispatchLoop goroutine, in
// enqueue order, so Submit's caller never holds the global usage
// registry's lock across a cross-queue stall.
func (q *Queue) commitReserved(cb driver.CmdBuffer, value uint64, deps map[*Queue]uint64) Job {
	q.mu.Lock()
	q.pending = append(q.pending, dispatchRequest{cb: cb, value: value, deps: deps})
	q.cond.Broadcast()
	q.mu.Unlock()
	return Job{queue: q, value: value}
}

// dispatchLoop is the queue's single dispatch goroutine: it drains
// pending requests in the order Submit enqueued them, waiting on any
// recorded cross-queue dependency itself (so only this goroutine, not
// the submitter, ever blocks on another queue's completion) before
// handing the command buffer to the driver. It mirrors gc.run's
// single-consumer pattern, one per Queue instead of one per Context.
func (q *Queue) dispatchLoop() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		for depQueue, depValue := range req.deps {
			if depQueue == q {
				continue
			}
			depQueue.waitFor(depValue, 0)
		}

		ch := make(chan error, 1)
		q.gpu.Commit([]driver.CmdBuffer{req.cb}, ch)
		err := <-ch

		q.mu.Lock()
		if req.value > q.current {
			q.current = req.value
		}
		q.cond.Broadcast()
		q.mu.Unlock()
		q.recycle(req.cb)
		q.ctx.onJobComplete(Job{queue: q, value: req.value}, err)
	}
}

// shutdown stops dispatchLoop once its pending queue has drained.
// Callers must have already waited for this queue's target value to
// retire (so pending is empty and no further Submit calls are in
// flight) before calling this.
func (q *Queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// pollStatus reports the job's status without blocking.
func (q *Queue) pollStatus(j Job) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current >= j.value {
		return StatusComplete
	}
	return StatusRunning
}

// waitOnJob blocks until the job completes or timeout elapses.
func (q *Queue) waitOnJob(j Job, timeout time.Duration) Status {
	if q.waitFor(j.value, timeout) {
		return StatusComplete
	}
	return StatusRunning
}
