// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import "sync"

// timelineSnapshot records, for each queue, the timeline value that
// must be reached before a piece of garbage is provably no longer
// referenced by any in-flight submission. It is captured at the
// moment Destroy is called, from each queue's target (the highest
// value assigned so far), since any submission that could still touch
// the resource must already have been issued by then.
type timelineSnapshot map[*Queue]uint64

// garbageItem is one resource awaiting collection: a driver object
// becomes safe to free once its reference count reads back to 1 (only
// the collector's own bookkeeping reference remains, see refCount)
// and every queue named in horizon has retired at least that value.
type garbageItem struct {
	rc      *refCount
	horizon timelineSnapshot
	free    func()
}

// gc is the timeline-gated garbage collector described in §4.4/§8. It
// takes ownership of resources via a channel fed by every goroutine
// that calls Destroy (many producers), drained by a single internal
// goroutine (one consumer) that also performs the sweep, so pending
// bookkeeping is never touched concurrently.
type gc struct {
	ctx      *Context
	incoming chan garbageItem
	stop     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	pending []garbageItem
}

func newGC(ctx *Context) *gc {
	g := &gc{ctx: ctx, incoming: make(chan garbageItem, 256), stop: make(chan struct{})}
	g.wg.Add(1)
	go g.run()
	return g
}

func (g *gc) push(item garbageItem) {
	g.incoming <- item
}

func (g *gc) run() {
	defer g.wg.Done()
	for {
		select {
		case item := <-g.incoming:
			g.intake(item)
			g.sweep()
		case <-g.stop:
			g.drainAndFinalize()
			return
		}
	}
}

func (g *gc) intake(item garbageItem) {
	g.mu.Lock()
	g.pending = append(g.pending, item)
	g.mu.Unlock()
}

// Poke re-evaluates pending garbage without a new arrival, called
// whenever a queue's timeline advances (see Context.onJobComplete),
// since a resource may become eligible purely because work retired.
func (g *gc) Poke() { g.sweep() }

func (g *gc) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.pending[:0]
	for _, item := range g.pending {
		if item.rc.load() == 1 && horizonReached(item.horizon) {
			item.rc.release()
			item.free()
		} else {
			kept = append(kept, item)
		}
	}
	g.pending = kept
}

func horizonReached(h timelineSnapshot) bool {
	for q, v := range h {
		if q.currentValue() < v {
			return false
		}
	}
	return true
}

func (g *gc) drainAndFinalize() {
	for {
		select {
		case item := <-g.incoming:
			g.intake(item)
		default:
			g.mu.Lock()
			for _, item := range g.pending {
				item.rc.release()
				item.free()
			}
			g.pending = nil
			g.mu.Unlock()
			return
		}
	}
}

// Shutdown stops the collector and force-frees any remaining garbage.
// It must only be called once no queue has further in-flight work
// that could reference the resources involved, i.e. as part of
// Context teardown.
func (g *gc) Shutdown() {
	close(g.stop)
	g.wg.Wait()
}
