// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tessera-gpu/tessera/driver"
)

// GraphicsPipelineDesc fully describes a graphics Pipeline. Pass
// identifies the render-pass configuration it will be used with (the
// driver requires a concrete driver.RenderPass at pipeline creation
// time); the cache resolves it through the shared passCache so a
// pipeline and the render passes it is used with share the same
// native object whenever their configurations match.
type GraphicsPipelineDesc struct {
	VertFunc *Shader
	FragFunc *Shader
	Layout   *DescriptorSetLayout
	Input    []driver.VertexIn
	Topology driver.Topology
	Raster   driver.RasterState
	Samples  int
	DS       driver.DSState
	Blend    driver.BlendState
	Pass     RenderPassDescriptor
	Subpass  int
}

// ComputePipelineDesc fully describes a compute Pipeline.
type ComputePipelineDesc struct {
	Func   *Shader
	Layout *DescriptorSetLayout
}

// pipelineCache interns driver.Pipeline objects (and the empty
// DescTable each distinct DescriptorSetLayout needs to describe its
// pipeline layout) so that two requests for the same state produce
// the same native pipeline, per §4.6.
type pipelineCache struct {
	mu        sync.Mutex
	graphics  map[string]*Pipeline
	compute   map[string]*Pipeline
	tables    map[*DescriptorSetLayout]driver.DescTable
	tableHeap map[*DescriptorSetLayout]driver.DescHeap

	graphicsGroup singleflight.Group
	computeGroup  singleflight.Group
	tableGroup    singleflight.Group
}

func newPipelineCache() *pipelineCache {
	return &pipelineCache{
		graphics:  make(map[string]*Pipeline),
		compute:   make(map[string]*Pipeline),
		tables:    make(map[*DescriptorSetLayout]driver.DescTable),
		tableHeap: make(map[*DescriptorSetLayout]driver.DescHeap),
	}
}

// layoutTable returns the (possibly shared) driver.DescTable that
// describes layout's shape to the driver, creating it on first use. It
// carries no concrete resource bindings: those are supplied per-draw
// by the DescriptorSet bound at submission time.
func (c *pipelineCache) layoutTable(gpu driver.GPU, layout *DescriptorSetLayout) (driver.DescTable, error) {
	c.mu.Lock()
	if t, ok := c.tables[layout]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	key := fmt.Sprintf("%p", layout)
	v, err, _ := c.tableGroup.Do(key, func() (any, error) {
		c.mu.Lock()
		if t, ok := c.tables[layout]; ok {
			c.mu.Unlock()
			return t, nil
		}
		c.mu.Unlock()

		heap, err := gpu.NewDescHeap(layout.Descriptors)
		if err != nil {
			return nil, newCreateFailed("descriptor heap", err.Error(), err)
		}
		table, err := gpu.NewDescTable([]driver.DescHeap{heap})
		if err != nil {
			heap.Destroy()
			return nil, newCreateFailed("descriptor table", err.Error(), err)
		}

		c.mu.Lock()
		c.tables[layout] = table
		c.tableHeap[layout] = heap
		c.mu.Unlock()
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(driver.DescTable), nil
}

func vertexInputKey(in []driver.VertexIn) string {
	var b strings.Builder
	for _, v := range in {
		fmt.Fprintf(&b, "%d:%d:%d:%s,", v.Format, v.Stride, v.Nr, v.Name)
	}
	return b.String()
}

func colorBlendKey(bs driver.BlendState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v", bs.IndependentBlend)
	for _, cb := range bs.Color {
		fmt.Fprintf(&b, ";%v:%d:%v:%v:%v:%v", cb.Blend, cb.WriteMask, cb.Op, cb.SrcFac, cb.DstFac)
	}
	return b.String()
}

func graphicsKey(d *GraphicsPipelineDesc) string {
	return fmt.Sprintf("%p|%p|%p|%s|%d|%+v|%d|%+v|%s|%s|%d",
		d.VertFunc, d.FragFunc, d.Layout, vertexInputKey(d.Input), d.Topology,
		d.Raster, d.Samples, d.DS, colorBlendKey(d.Blend), passDescKey(&d.Pass), d.Subpass)
}

// GetGraphics returns the cached pipeline for d, creating it (and its
// owning render pass, if needed) on first use.
func (c *pipelineCache) GetGraphics(gpu driver.GPU, passes *passCache, d *GraphicsPipelineDesc) (*Pipeline, error) {
	key := graphicsKey(d)

	c.mu.Lock()
	if p, ok := c.graphics[key]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.graphicsGroup.Do(key, func() (any, error) {
		c.mu.Lock()
		if p, ok := c.graphics[key]; ok {
			c.mu.Unlock()
			return p, nil
		}
		c.mu.Unlock()

		pass, err := passes.getOrCreatePass(gpu, &d.Pass)
		if err != nil {
			return nil, err
		}
		table, err := c.layoutTable(gpu, d.Layout)
		if err != nil {
			return nil, err
		}
		state := &driver.GraphState{
			VertFunc: driver.ShaderFunc{Code: d.VertFunc.code},
			FragFunc: driver.ShaderFunc{Code: d.FragFunc.code},
			Desc:     table,
			Input:    d.Input,
			Topology: d.Topology,
			Raster:   d.Raster,
			Samples:  d.Samples,
			DS:       d.DS,
			Blend:    d.Blend,
			Pass:     pass,
			Subpass:  d.Subpass,
		}
		native, err := gpu.NewPipeline(state)
		if err != nil {
			return nil, newCreateFailed("graphics pipeline", err.Error(), err)
		}
		p := &Pipeline{pl: native, kind: PipelineGraphics, rc: newRefCount()}

		c.mu.Lock()
		c.graphics[key] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pipeline), nil
}

func computeKey(d *ComputePipelineDesc) string {
	return fmt.Sprintf("%p|%p", d.Func, d.Layout)
}

// GetCompute returns the cached pipeline for d, creating it on first
// use.
func (c *pipelineCache) GetCompute(gpu driver.GPU, d *ComputePipelineDesc) (*Pipeline, error) {
	key := computeKey(d)

	c.mu.Lock()
	if p, ok := c.compute[key]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.computeGroup.Do(key, func() (any, error) {
		c.mu.Lock()
		if p, ok := c.compute[key]; ok {
			c.mu.Unlock()
			return p, nil
		}
		c.mu.Unlock()

		table, err := c.layoutTable(gpu, d.Layout)
		if err != nil {
			return nil, err
		}
		state := &driver.CompState{
			Func: driver.ShaderFunc{Code: d.Func.code},
			Desc: table,
		}
		native, err := gpu.NewPipeline(state)
		if err != nil {
			return nil, newCreateFailed("compute pipeline", err.Error(), err)
		}
		p := &Pipeline{pl: native, kind: PipelineCompute, rc: newRefCount()}

		c.mu.Lock()
		c.compute[key] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pipeline), nil
}

func (c *pipelineCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.graphics {
		p.pl.Destroy()
	}
	for _, p := range c.compute {
		p.pl.Destroy()
	}
	for _, t := range c.tables {
		t.Destroy()
	}
	for _, h := range c.tableHeap {
		h.Destroy()
	}
	c.graphics, c.compute, c.tables, c.tableHeap = nil, nil, nil, nil
}
