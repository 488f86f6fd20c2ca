// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package gpu implements a backend-agnostic, explicit GPU command
// submission model: callers build a declarative command stream
// (command.go), and the Context translates it into native driver
// calls, synthesizing barriers, layout transitions and cross-queue
// synchronization along the way (submit.go, usage.go, sync.go).
// Resources are destroyed explicitly and collected once their last
// queue usage has retired (gc.go); render passes, pipelines,
// descriptor tables and samplers are interned so repeated requests for
// the same configuration reuse one native object (cache_*.go).
package gpu

import (
	"log"

	"github.com/tessera-gpu/tessera/driver"
)

// Context owns a driver.GPU and every object built on top of it: the
// four queues, the sub-resource usage registry, the timeline garbage
// collector, and the render-pass/pipeline/descriptor/sampler caches.
type Context struct {
	gpu    driver.GPU
	limits driver.Limits

	main     *Queue
	transfer *Queue
	compute  *Queue
	present  *Queue

	registry *registry
	gc       *gc
	passes   *passCache
	pipes    *pipelineCache
	descs    *descCache
	samplers *samplerCache
}

// Open opens drv and returns a Context ready to accept command
// streams. The four queues share the single driver.GPU the driver
// hands back from Open, since the driver contract offers one GPU per
// process rather than separate native queue objects.
func Open(drv driver.Driver) (*Context, error) {
	g, err := drv.Open()
	if err != nil {
		return nil, &Error{Kind: KindNoDevice, Reason: err.Error(), Err: err}
	}
	c := &Context{
		gpu:      g,
		limits:   g.Limits(),
		registry: newRegistry(),
		passes:   newPassCache(),
		pipes:    newPipelineCache(),
		samplers: newSamplerCache(),
	}
	c.gc = newGC(c)
	c.descs = newDescCache(c)
	c.main = newQueue(c, QueueMain, g)
	c.transfer = newQueue(c, QueueTransfer, g)
	c.compute = newQueue(c, QueueCompute, g)
	c.present = newQueue(c, QueuePresent, g)
	return c, nil
}

// Main returns the queue used for graphics command streams.
func (c *Context) Main() *Queue { return c.main }

// Transfer returns the queue used for copy/blit command streams.
func (c *Context) Transfer() *Queue { return c.transfer }

// Compute returns the queue used for compute command streams.
func (c *Context) Compute() *Queue { return c.compute }

// Present returns the queue used for presentation.
func (c *Context) Present() *Queue { return c.present }

// Limits returns the device's implementation limits.
func (c *Context) Limits() driver.Limits { return c.limits }

// Close tears down the Context: every queue is drained, the garbage
// collector is forced to free anything outstanding, and the caches
// release their interned native objects.
func (c *Context) Close() {
	for _, q := range [...]*Queue{c.main, c.transfer, c.compute, c.present} {
		q.waitFor(q.target, 0)
		q.shutdown()
	}
	c.gc.Shutdown()
	c.descs.Close()
	c.pipes.Close()
	c.passes.Close()
	c.samplers.Close()
}

// onJobComplete is invoked from each queue's completion goroutine. It
// wakes the garbage collector, since a resource may have just become
// eligible purely because a queue's timeline advanced, and surfaces
// driver-reported errors the way the teacher's own driver registry
// logs unexpected backend failures.
func (c *Context) onJobComplete(j Job, err error) {
	if err != nil {
		log.Printf("gpu: job on %s queue failed: %v", j.queue.Type(), err)
	}
	c.gc.Poke()
}

// timelineSnapshot captures the current target value of every queue,
// for use as a garbage item's collection horizon (gc.go).
func (c *Context) timelineSnapshot() timelineSnapshot {
	snap := make(timelineSnapshot, 4)
	for _, q := range [...]*Queue{c.main, c.transfer, c.compute, c.present} {
		q.mu.Lock()
		snap[q] = q.target
		q.mu.Unlock()
	}
	return snap
}

// NewBuffer creates a new Buffer.
func (c *Context) NewBuffer(size int64, visible bool, usg driver.Usage) (*Buffer, error) {
	res, err := c.gpu.NewBuffer(size, visible, usg)
	if err != nil {
		return nil, newCreateFailed("buffer", err.Error(), err)
	}
	return &Buffer{ctx: c, res: res, size: size, usage: usg, rc: newRefCount()}, nil
}

// NewTexture creates a new Texture.
func (c *Context) NewTexture(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (*Texture, error) {
	res, err := c.gpu.NewImage(pf, size, layers, levels, samples, usg)
	if err != nil {
		return nil, newCreateFailed("texture", err.Error(), err)
	}
	return newTexture(c, res, pf, size, layers, levels, samples, usg), nil
}

// NewShader creates a new Shader from compiled shader binary data. The
// binary format is backend-specific and opaque to this package, as in
// the teacher's own driver.GPU.NewShaderCode contract.
func (c *Context) NewShader(data []byte) (*Shader, error) {
	code, err := c.gpu.NewShaderCode(data)
	if err != nil {
		return nil, newCreateFailed("shader", err.Error(), err)
	}
	return &Shader{ctx: c, code: code}, nil
}

// NewDescriptorSetLayout describes a descriptor set's binding shape.
// It does not allocate any driver object by itself; the first
// NewDescriptorSet call for a given layout creates its backing pool.
func (c *Context) NewDescriptorSetLayout(descs []driver.Descriptor) *DescriptorSetLayout {
	d := make([]driver.Descriptor, len(descs))
	copy(d, descs)
	return &DescriptorSetLayout{Descriptors: d}
}

// NewDescriptorSet allocates a DescriptorSet for layout.
func (c *Context) NewDescriptorSet(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	return c.descs.NewSet(c.gpu, layout)
}

// GraphicsPipeline returns the cached graphics Pipeline for d,
// building it on first use.
func (c *Context) GraphicsPipeline(d *GraphicsPipelineDesc) (*Pipeline, error) {
	return c.pipes.GetGraphics(c.gpu, c.passes, d)
}

// ComputePipeline returns the cached compute Pipeline for d, building
// it on first use.
func (c *Context) ComputePipeline(d *ComputePipelineDesc) (*Pipeline, error) {
	return c.pipes.GetCompute(c.gpu, d)
}

// NewSampler returns the cached Sampler for spln, building it on
// first use.
func (c *Context) NewSampler(spln driver.Sampling) (driver.Sampler, error) {
	return c.samplers.Get(c.gpu, spln)
}
