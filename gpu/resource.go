// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"sync/atomic"

	"github.com/tessera-gpu/tessera/driver"
)

// refCount is a manual, explicit-Destroy reference count. It is not a
// GC finalizer: the module never relies on the Go garbage collector to
// reclaim driver resources, since that would make teardown
// nondeterministic and untestable (§3).
//
// The count starts at 1, representing the handle returned to the
// caller. Destroy does not drop straight to 0: it first retains on
// behalf of the garbage collector's own bookkeeping entry, then
// releases the caller's reference. This keeps the count from ever
// transiently reaching 0 before the collector has taken ownership, so
// a concurrent retain (e.g. a descriptor set binding the resource
// between the caller's Destroy call and the collector observing it)
// is never lost. The collector performs the matching final release
// once the resource's last queue usage has retired and the count
// reads back 1 (its own reference, with no other sharer left).
type refCount struct{ n atomic.Int32 }

func newRefCount() *refCount {
	rc := &refCount{}
	rc.n.Store(1)
	return rc
}

func (rc *refCount) retain() int32  { return rc.n.Add(1) }
func (rc *refCount) release() int32 { return rc.n.Add(-1) }
func (rc *refCount) load() int32    { return rc.n.Load() }

// aspectKind selects which sub-resource aspect a usage applies to.
type aspectKind int

const (
	aspectNone aspectKind = iota
	aspectColor
	aspectDepth
	aspectStencil
)

// subKey identifies a single sub-resource: either a whole buffer (buf
// set, tex nil) or one layer/level/aspect of a texture (tex set, buf
// nil). It is a plain comparable struct so it can be used directly as
// a map key in the usage registry, avoiding interface boxing.
type subKey struct {
	buf    *Buffer
	tex    *Texture
	layer  int
	level  int
	aspect aspectKind
}

// Buffer is a GPU-visible linear allocation.
type Buffer struct {
	ctx   *Context
	res   driver.Buffer
	size  int64
	usage driver.Usage
	rc    *refCount
	label string
}

// Size returns the buffer's size in bytes.
func (b *Buffer) Size() int64 { return b.size }

// Visible reports whether the buffer is host-mappable.
func (b *Buffer) Visible() bool { return b.res.Visible() }

// Bytes returns the mapped byte slice for a host-visible buffer, or
// nil (and ErrViewNotMappable from the caller's perspective) if the
// buffer is device-local.
func (b *Buffer) Bytes() []byte { return b.res.Bytes() }

// FlushRange rounds [offset, offset+size) outward to the device's
// non-coherent atom size, returning the range that must actually be
// flushed/invalidated for a write to a non-coherent host-visible
// buffer to become visible to the GPU (or vice versa).
func (b *Buffer) FlushRange(offset, size int64) (int64, int64) {
	atom := b.ctx.limits.NonCoherentAtom
	if atom <= 0 {
		return offset, size
	}
	end := offset + size
	offset &^= atom - 1
	end = (end + atom - 1) &^ (atom - 1)
	if end > b.size {
		end = b.size
	}
	return offset, end - offset
}

func (b *Buffer) key() subKey { return subKey{buf: b} }

// Destroy releases the caller's reference to the buffer. The
// underlying driver resource is freed once every queue submission
// that referenced it has retired and no other reference remains.
func (b *Buffer) Destroy() {
	b.rc.retain()
	b.ctx.gc.push(garbageItem{
		rc:      b.rc,
		horizon: b.ctx.timelineSnapshot(),
		free: func() {
			b.res.Destroy()
			b.ctx.registry.forgetBuffer(b)
		},
	})
	b.rc.release()
}

// Texture is a GPU image resource, possibly multi-layer/multi-level.
type Texture struct {
	ctx     *Context
	res     driver.Image
	format  driver.PixelFmt
	size    driver.Dim3D
	layers  int
	levels  int
	samples int
	usage   driver.Usage
	rc      *refCount
	label   string

	// layouts holds one driver.Layout cell per (layer, level)
	// sub-resource, initialized to LUndefined. Submit does not update
	// it: the translator reads and records layouts in the registry's
	// entries (registry.go).
	layouts []atomic.Int64
}

func newTexture(ctx *Context, res driver.Image, format driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usage driver.Usage) *Texture {
	t := &Texture{
		ctx: ctx, res: res, format: format, size: size,
		layers: layers, levels: levels, samples: samples, usage: usage,
		rc: newRefCount(),
	}
	t.layouts = make([]atomic.Int64, layers*levels)
	for i := range t.layouts {
		t.layouts[i].Store(int64(driver.LUndefined))
	}
	return t
}

func (t *Texture) subIndex(layer, level int) int { return layer*t.levels + level }

func (t *Texture) layout(layer, level int) driver.Layout {
	return driver.Layout(t.layouts[t.subIndex(layer, level)].Load())
}

func (t *Texture) setLayout(layer, level int, l driver.Layout) {
	t.layouts[t.subIndex(layer, level)].Store(int64(l))
}

// Format returns the texture's pixel format.
func (t *Texture) Format() driver.PixelFmt { return t.format }

// Size returns the texture's dimensions.
func (t *Texture) Size() driver.Dim3D { return t.size }

// NewView creates a typed view of a texture sub-resource range.
func (t *Texture) NewView(typ driver.ViewType, baseLayer, layerCount, baseLevel, levelCount int) (*TextureView, error) {
	v, err := t.res.NewView(typ, baseLayer, layerCount, baseLevel, levelCount)
	if err != nil {
		return nil, newCreateFailed("texture view", err.Error(), err)
	}
	return &TextureView{
		tex: t, view: v, typ: typ,
		baseLayer: baseLayer, layerCount: layerCount,
		baseLevel: baseLevel, levelCount: levelCount,
	}, nil
}

func (t *Texture) key(layer, level int, aspect aspectKind) subKey {
	return subKey{tex: t, layer: layer, level: level, aspect: aspect}
}

// Destroy releases the caller's reference, following the same
// timeline-gated collection scheme as Buffer.Destroy.
func (t *Texture) Destroy() {
	t.rc.retain()
	t.ctx.gc.push(garbageItem{
		rc:      t.rc,
		horizon: t.ctx.timelineSnapshot(),
		free: func() {
			t.res.Destroy()
			t.ctx.registry.forgetTexture(t)
		},
	})
	t.rc.release()
}

// TextureView is a typed, range-bound view into a Texture.
type TextureView struct {
	tex        *Texture
	view       driver.ImageView
	typ        driver.ViewType
	baseLayer  int
	layerCount int
	baseLevel  int
	levelCount int
}

// Texture returns the view's parent texture.
func (v *TextureView) Texture() *Texture { return v.tex }

// Destroy destroys the underlying driver image view immediately: views
// are cheap and not independently tracked by the GC, but they must not
// outlive the command buffers that reference them, which is the
// caller's responsibility (mirrors the teacher's ImageView contract).
func (v *TextureView) Destroy() { v.view.Destroy() }

func (v *TextureView) aspects() []aspectKind {
	switch v.tex.format {
	case driver.D16un, driver.D32f:
		return []aspectKind{aspectDepth}
	case driver.S8ui:
		return []aspectKind{aspectStencil}
	case driver.D24unS8ui, driver.D32fS8ui:
		return []aspectKind{aspectDepth, aspectStencil}
	default:
		return []aspectKind{aspectColor}
	}
}

// forEachSub invokes fn for every (layer, level) sub-resource and
// aspect that the view covers.
func (v *TextureView) forEachSub(fn func(layer, level int, aspect aspectKind)) {
	for l := v.baseLayer; l < v.baseLayer+v.layerCount; l++ {
		for m := v.baseLevel; m < v.baseLevel+v.levelCount; m++ {
			for _, a := range v.aspects() {
				fn(l, m, a)
			}
		}
	}
}

// Shader wraps a compiled shader module for use in a pipeline state.
type Shader struct {
	ctx  *Context
	code driver.ShaderCode
}

// Destroy frees the shader module immediately; shaders are not bound
// to in-flight command buffers once a Pipeline has been built from
// them, so they need no GC gating.
func (s *Shader) Destroy() { s.code.Destroy() }

// PipelineKind distinguishes graphics from compute pipelines.
type PipelineKind int

// Pipeline kinds.
const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
)

// Pipeline is a cached, immutable GPU pipeline state object. Pipelines
// are interned by cache_pipeline.go: identical state descriptions
// return the same *Pipeline.
type Pipeline struct {
	ctx  *Context
	pl   driver.Pipeline
	kind PipelineKind
	rc   *refCount
}

// Kind reports whether the pipeline is a graphics or compute pipeline.
func (p *Pipeline) Kind() PipelineKind { return p.kind }

// DescriptorSetLayout describes the bindings of a descriptor set,
// independent of any particular resource binding.
type DescriptorSetLayout struct {
	Descriptors []driver.Descriptor
}

// DescriptorSet binds concrete resources to a DescriptorSetLayout's
// slots. It occupies one copy of its pool's driver.DescHeap and holds
// a driver.DescTable over that heap (cache_desc.go).
type DescriptorSet struct {
	ctx     *Context
	layout  *DescriptorSetLayout
	heaps   []driver.DescHeap
	table   driver.DescTable
	rc      *refCount
	pool    *descPool
	copyIdx int

	// Bound resources, recorded so the usage tracker can enumerate
	// reads/writes implied by binding this set, per §4.1's "set
	// registration" step.
	buffers  []boundBuffer
	textures []boundTexture

	// usage is the set's own entry in the global usage registry,
	// guarded by ctx.registry's lock like every other sub-resource's
	// queueUsage: the last submission that bound this set into a
	// scope. SetBuffer/SetTexture consult and clear it before writing,
	// per §4.2's descriptor-set binding staleness rule.
	usage queueUsage
}

type boundBuffer struct {
	buf    *Buffer
	typ    driver.DescType
	offset int64
	size   int64
}

type boundTexture struct {
	view *TextureView
	typ  driver.DescType
}

// awaitStaleSubmission implements §4.2's descriptor-set binding
// staleness rule: an update must not race the last submission that
// bound this set, so it consults the registry, clears the set's
// usage to None (a later rebind starts from a clean slate), and only
// then synchronously waits on the value that was stored — outside the
// registry lock, so this wait never blocks an unrelated Submit the
// way holding the lock across it would.
func (d *DescriptorSet) awaitStaleSubmission() {
	if d.ctx == nil {
		return
	}
	d.ctx.registry.Lock()
	u := d.usage
	d.usage = queueUsage{}
	d.ctx.registry.Unlock()
	if u.queue != nil {
		u.queue.waitFor(u.value, 0)
	}
}

// SetBuffer binds buf at the given descriptor index of the given
// type (DBuffer or DConstant). offset is rounded up to the device's
// minimum alignment for the descriptor type before being handed to
// the driver, since callers commonly pack several bindings into one
// buffer and the exact device alignment is not something they should
// need to look up themselves.
func (d *DescriptorSet) SetBuffer(index int, typ driver.DescType, buf *Buffer, offset, size int64) {
	d.awaitStaleSubmission()
	if d.ctx != nil {
		if typ == driver.DConstant {
			offset = alignUniform(d.ctx.limits, offset)
		} else {
			offset = alignStorage(d.ctx.limits, offset)
		}
	}
	for len(d.buffers) <= index {
		d.buffers = append(d.buffers, boundBuffer{})
	}
	d.buffers[index] = boundBuffer{buf: buf, typ: typ, offset: offset, size: size}
	if d.pool != nil {
		d.pool.heap.SetBuffer(d.copyIdx, index, 0, []driver.Buffer{buf.res}, []int64{offset}, []int64{size})
	}
}

// SetTexture binds a texture view at the given descriptor index of
// the given type (DImage or DTexture). Per §3's BoundEntry model, the
// set does not retain the caller's view directly: it creates its own
// view over the same sub-resource range, so the caller is free to
// destroy theirs immediately after the call returns. Rebinding an
// index that already held a view defers that previous owned view to
// the garbage collector rather than destroying it inline, since an
// already-submitted command buffer may still be reading through it.
func (d *DescriptorSet) SetTexture(index int, typ driver.DescType, view *TextureView) error {
	d.awaitStaleSubmission()
	owned, err := view.tex.NewView(view.typ, view.baseLayer, view.layerCount, view.baseLevel, view.levelCount)
	if err != nil {
		return err
	}
	for len(d.textures) <= index {
		d.textures = append(d.textures, boundTexture{})
	}
	if prev := d.textures[index].view; prev != nil && d.ctx != nil {
		d.ctx.gc.push(garbageItem{
			rc:      newRefCount(),
			horizon: d.ctx.timelineSnapshot(),
			free:    func() { prev.Destroy() },
		})
	}
	d.textures[index] = boundTexture{view: owned, typ: typ}
	if d.pool != nil {
		d.pool.heap.SetImage(d.copyIdx, index, 0, []driver.ImageView{owned.view})
	}
	return nil
}

// Destroy releases the caller's reference to the descriptor set. The
// copy it occupies in its pool's heap is recycled once the timeline
// horizon is reached, following the same scheme as Buffer/Texture;
// the heap itself belongs to the pool and outlives any single set.
// Every view the set created for itself on a SetTexture call is
// destroyed alongside the table, since nothing else owns them.
func (d *DescriptorSet) Destroy() {
	d.rc.retain()
	views := make([]*TextureView, 0, len(d.textures))
	for _, t := range d.textures {
		if t.view != nil {
			views = append(views, t.view)
		}
	}
	d.ctx.gc.push(garbageItem{
		rc:      d.rc,
		horizon: d.ctx.timelineSnapshot(),
		free: func() {
			d.table.Destroy()
			for _, v := range views {
				v.Destroy()
			}
			if d.pool != nil {
				d.pool.release(d.copyIdx)
			}
		},
	})
	d.rc.release()
}

// alignUniform rounds off up to the device's minimum uniform/constant
// buffer offset alignment.
func alignUniform(limits driver.Limits, off int64) int64 {
	a := limits.MinUniformOffset
	if a <= 0 {
		return off
	}
	return (off + a - 1) &^ (a - 1)
}

// alignStorage rounds off up to the device's minimum read/write
// buffer offset alignment.
func alignStorage(limits driver.Limits, off int64) int64 {
	a := limits.MinStorageOffset
	if a <= 0 {
		return off
	}
	return (off + a - 1) &^ (a - 1)
}
