// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tessera-gpu/tessera/driver"
	"github.com/tessera-gpu/tessera/internal/bitm"
)

// descPool hands out DescriptorSets backed by copies carved out of a
// single driver.DescHeap, per layout. Free copy indices are tracked
// with a bitmap (the same free-list idiom the teacher uses for other
// pooled allocations), avoiding a heap allocation/New call per
// descriptor set. Growing the heap invalidates every existing copy
// (per the driver.DescHeap.New contract), so growth re-issues every
// live set's bindings against the newly sized heap.
type descPool struct {
	mu     sync.Mutex
	gpu    driver.GPU
	layout *DescriptorSetLayout
	heap   driver.DescHeap
	cap    int
	free   bitm.Bitm[uint64]
	sets   []*DescriptorSet // indexed by copy; nil where unallocated
}

func newDescPool(gpu driver.GPU, layout *DescriptorSetLayout) (*descPool, error) {
	heap, err := gpu.NewDescHeap(layout.Descriptors)
	if err != nil {
		return nil, newCreateFailed("descriptor heap", err.Error(), err)
	}
	return &descPool{gpu: gpu, layout: layout, heap: heap}, nil
}

func (p *descPool) growLocked(min int) error {
	newCap := p.cap * 2
	if newCap < 8 {
		newCap = 8
	}
	if newCap < min {
		newCap = min
	}
	if err := p.heap.New(newCap); err != nil {
		return err
	}
	for p.free.Len() < newCap {
		p.free.Grow(1) // Bitm[uint64] grows 64 bits at a time
	}
	old := p.sets
	p.sets = make([]*DescriptorSet, newCap)
	copy(p.sets, old)
	p.cap = newCap
	for idx, s := range p.sets {
		if s != nil {
			s.rebind(p.heap, idx)
		}
	}
	return nil
}

// Alloc reserves a copy index and wraps it in a new DescriptorSet.
func (p *descPool) Alloc(layoutCopy *DescriptorSetLayout) (*DescriptorSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.free.Search()
	if !ok || idx >= p.cap {
		if err := p.growLocked(p.cap + 1); err != nil {
			return nil, err
		}
		idx, ok = p.free.Search()
		if !ok || idx >= p.cap {
			return nil, newCreateFailed("descriptor set", "pool exhausted after growth", nil)
		}
	}
	p.free.Set(idx)

	table, err := p.gpu.NewDescTable([]driver.DescHeap{p.heap})
	if err != nil {
		p.free.Unset(idx)
		return nil, newCreateFailed("descriptor table", err.Error(), err)
	}

	set := &DescriptorSet{
		layout: layoutCopy,
		heaps:  []driver.DescHeap{p.heap},
		table:  table,
		rc:     newRefCount(),
		copyIdx: idx,
		pool:    p,
	}
	p.sets[idx] = set
	return set, nil
}

func (p *descPool) release(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets[idx] = nil
	p.free.Unset(idx)
}

func (p *descPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heap.Destroy()
}

// descCache owns one descPool per distinct DescriptorSetLayout.
type descCache struct {
	ctx   *Context
	mu    sync.Mutex
	pools map[*DescriptorSetLayout]*descPool
	group singleflight.Group
}

func newDescCache(ctx *Context) *descCache {
	return &descCache{ctx: ctx, pools: make(map[*DescriptorSetLayout]*descPool)}
}

// NewSet allocates a DescriptorSet for layout, creating its backing
// pool on first use.
func (c *descCache) NewSet(gpu driver.GPU, layout *DescriptorSetLayout) (*DescriptorSet, error) {
	c.mu.Lock()
	pool, ok := c.pools[layout]
	c.mu.Unlock()

	if !ok {
		key := fmt.Sprintf("%p", layout)
		v, err, _ := c.group.Do(key, func() (any, error) {
			c.mu.Lock()
			if p, ok := c.pools[layout]; ok {
				c.mu.Unlock()
				return p, nil
			}
			c.mu.Unlock()

			p, err := newDescPool(gpu, layout)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.pools[layout] = p
			c.mu.Unlock()
			return p, nil
		})
		if err != nil {
			return nil, err
		}
		pool = v.(*descPool)
	}

	set, err := pool.Alloc(layout)
	if err != nil {
		return nil, err
	}
	set.ctx = c.ctx
	return set, nil
}

func (c *descCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pools {
		p.Close()
	}
	c.pools = nil
}

// rebind re-issues a descriptor set's current bindings against a
// (possibly just-grown) heap/copy index. Unlike SetBuffer/SetTexture,
// this does not consult the registry or wait on the set's prior
// submission: it does not change what the set is bound to, only where
// that binding physically lives after the pool's heap was resized, so
// it carries none of the staleness §4.2 guards against.
func (d *DescriptorSet) rebind(heap driver.DescHeap, copyIdx int) {
	d.copyIdx = copyIdx
	for i, b := range d.buffers {
		if b.buf == nil {
			continue
		}
		heap.SetBuffer(copyIdx, i, 0, []driver.Buffer{b.buf.res}, []int64{b.offset}, []int64{b.size})
	}
	for i, t := range d.textures {
		if t.view == nil {
			continue
		}
		heap.SetImage(copyIdx, i, 0, []driver.ImageView{t.view.view})
	}
}
