// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package noop

import (
	"errors"

	"github.com/tessera-gpu/tessera/driver"
)

// NewShaderCode implements driver.GPU.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	cpy := make([]byte, len(data))
	copy(cpy, data)
	return &ShaderCode{data: cpy}, nil
}

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct{ data []byte }

// Destroy implements driver.Destroyer.
func (s *ShaderCode) Destroy() { s.data = nil }

// NewBuffer implements driver.GPU.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("noop: buffer size must be positive")
	}
	b := &Buffer{size: size, visible: visible, usage: usg}
	if visible {
		b.data = make([]byte, size)
	}
	return b, nil
}

// Buffer implements driver.Buffer.
type Buffer struct {
	size    int64
	visible bool
	usage   driver.Usage
	data    []byte
}

// Visible implements driver.Buffer.
func (b *Buffer) Visible() bool { return b.visible }

// Bytes implements driver.Buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Cap implements driver.Buffer.
func (b *Buffer) Cap() int64 { return b.size }

// Destroy implements driver.Destroyer.
func (b *Buffer) Destroy() { b.data = nil }

// NewImage implements driver.GPU.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	if layers <= 0 || levels <= 0 || samples <= 0 {
		return nil, errors.New("noop: image must have at least one layer/level/sample")
	}
	return &Image{pf: pf, size: size, layers: layers, levels: levels, samples: samples, usage: usg}, nil
}

// Image implements driver.Image.
type Image struct {
	pf      driver.PixelFmt
	size    driver.Dim3D
	layers  int
	levels  int
	samples int
	usage   driver.Usage
}

// NewView implements driver.Image.
func (i *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if layer < 0 || layer+layers > i.layers || level < 0 || level+levels > i.levels {
		return nil, errors.New("noop: image view out of bounds")
	}
	return &ImageView{img: i, typ: typ, layer: layer, layers: layers, level: level, levels: levels}, nil
}

// Destroy implements driver.Destroyer.
func (i *Image) Destroy() {}

// ImageView implements driver.ImageView.
type ImageView struct {
	img    *Image
	typ    driver.ViewType
	layer  int
	layers int
	level  int
	levels int
}

// Destroy implements driver.Destroyer.
func (v *ImageView) Destroy() {}

// NewSampler implements driver.GPU.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	s := *spln
	return &Sampler{spln: s}, nil
}

// Sampler implements driver.Sampler.
type Sampler struct{ spln driver.Sampling }

// Destroy implements driver.Destroyer.
func (s *Sampler) Destroy() {}

// NewRenderPass implements driver.GPU.
func (g *GPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	if len(att) == 0 || len(sub) == 0 {
		return nil, errors.New("noop: render pass needs attachments and subpasses")
	}
	a := make([]driver.Attachment, len(att))
	copy(a, att)
	s := make([]driver.Subpass, len(sub))
	copy(s, sub)
	return &RenderPass{att: a, sub: s}, nil
}

// RenderPass implements driver.RenderPass.
type RenderPass struct {
	att []driver.Attachment
	sub []driver.Subpass
}

// NewFB implements driver.RenderPass.
func (p *RenderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	if len(iv) == 0 {
		return nil, errors.New("noop: framebuffer needs at least one view")
	}
	views := make([]driver.ImageView, len(iv))
	copy(views, iv)
	return &Framebuf{pass: p, views: views, width: width, height: height, layers: layers}, nil
}

// Destroy implements driver.Destroyer.
func (p *RenderPass) Destroy() {}

// Framebuf implements driver.Framebuf.
type Framebuf struct {
	pass   *RenderPass
	views  []driver.ImageView
	width  int
	height int
	layers int
}

// Destroy implements driver.Destroyer.
func (f *Framebuf) Destroy() {}

// NewDescHeap implements driver.GPU.
func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	d := make([]driver.Descriptor, len(ds))
	copy(d, ds)
	return &DescHeap{descs: d}, nil
}

// DescHeap implements driver.DescHeap.
type DescHeap struct {
	descs []driver.Descriptor
	count int
}

// New implements driver.DescHeap.
func (h *DescHeap) New(n int) error {
	if n < 0 {
		return errors.New("noop: negative heap copy count")
	}
	h.count = n
	return nil
}

// SetBuffer implements driver.DescHeap.
func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {}

// SetImage implements driver.DescHeap.
func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {}

// SetSampler implements driver.DescHeap.
func (h *DescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {}

// Count implements driver.DescHeap.
func (h *DescHeap) Count() int { return h.count }

// Destroy implements driver.Destroyer.
func (h *DescHeap) Destroy() {}

// NewDescTable implements driver.GPU.
func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	h := make([]driver.DescHeap, len(dh))
	copy(h, dh)
	return &DescTable{heaps: h}, nil
}

// DescTable implements driver.DescTable.
type DescTable struct{ heaps []driver.DescHeap }

// Destroy implements driver.Destroyer.
func (t *DescTable) Destroy() {}

// NewPipeline implements driver.GPU.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	switch s := state.(type) {
	case *driver.GraphState:
		if s.Pass == nil {
			return nil, errors.New("noop: graphics pipeline requires a render pass")
		}
		return &Pipeline{graph: s}, nil
	case *driver.CompState:
		return &Pipeline{comp: s}, nil
	default:
		return nil, errors.New("noop: state must be *driver.GraphState or *driver.CompState")
	}
}

// Pipeline implements driver.Pipeline.
type Pipeline struct {
	graph *driver.GraphState
	comp  *driver.CompState
}

// Destroy implements driver.Destroyer.
func (p *Pipeline) Destroy() {}
