// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"sync"

	"github.com/tessera-gpu/tessera/driver"
)

// queueUsage records the most recent queue to touch a sub-resource and
// the timeline value at which that usage becomes visible. It is the
// unit the semaphore tracker consults to decide whether a cross-queue
// wait is required (§4.2).
type queueUsage struct {
	queue *Queue
	value uint64
	sync  driver.Sync
	acc   driver.Access
}

// subEntry is the global-usage registry's record for a single
// sub-resource: which queue last used it, and (for textures) which
// layout it is currently in.
type subEntry struct {
	usage     queueUsage
	hasLayout bool
	layout    driver.Layout
}

// registry is the global sub-resource usage table described in §3/§4.2.
// A single mutex guards the whole table; the submission orchestrator
// holds it for the duration of building and emitting one submission's
// barriers, per the lock ordering in §5 ("usage-registry" is always
// acquired first and held across the whole operation, never
// fine-grained per field).
type registry struct {
	mu      sync.Mutex
	entries map[subKey]*subEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[subKey]*subEntry)}
}

// Lock acquires the registry for the duration of a submission.
func (r *registry) Lock() { r.mu.Lock() }

// Unlock releases the registry.
func (r *registry) Unlock() { r.mu.Unlock() }

// entry returns the entry for key, creating an empty one (layout
// LUndefined, no prior queue usage) if this is the sub-resource's
// first appearance. Callers must hold the registry lock.
func (r *registry) entry(key subKey) *subEntry {
	e, ok := r.entries[key]
	if !ok {
		e = &subEntry{layout: driver.LUndefined}
		r.entries[key] = e
	}
	return e
}

// forget removes key's bookkeeping entirely. The garbage collector's
// free functions use forgetBuffer and forgetTexture instead.
func (r *registry) forget(key subKey) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// forgetBuffer drops every entry belonging to buf.
func (r *registry) forgetBuffer(buf *Buffer) {
	r.mu.Lock()
	delete(r.entries, buf.key())
	r.mu.Unlock()
}

// forgetTexture drops every sub-resource entry belonging to tex.
func (r *registry) forgetTexture(tex *Texture) {
	r.mu.Lock()
	for layer := 0; layer < tex.layers; layer++ {
		for level := 0; level < tex.levels; level++ {
			for _, a := range [...]aspectKind{aspectColor, aspectDepth, aspectStencil} {
				delete(r.entries, tex.key(layer, level, a))
			}
		}
	}
	r.mu.Unlock()
}
