// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tessera-gpu/tessera/driver"
)

// passCache interns driver.RenderPass and driver.Framebuf objects so
// that repeated BeginRenderPass calls with the same attachment
// configuration reuse a single native render pass/framebuffer pair,
// per §4.6. Render passes are keyed on the attachment configuration
// alone (format, sample count, load/store ops); framebuffers are
// additionally keyed on the concrete image views and dimensions.
// Each map has its own singleflight.Group so a burst of submissions
// racing to open the same never-seen-before render pass collapse into
// one gpu.NewRenderPass call.
type passCache struct {
	mu        sync.Mutex
	passes    map[string]driver.RenderPass
	fbs       map[string]driver.Framebuf
	passGroup singleflight.Group
	fbGroup   singleflight.Group
}

func newPassCache() *passCache {
	return &passCache{
		passes: make(map[string]driver.RenderPass),
		fbs:    make(map[string]driver.Framebuf),
	}
}

func passDescKey(desc *RenderPassDescriptor) string {
	var b strings.Builder
	for _, c := range desc.Colors {
		fmt.Fprintf(&b, "c%d:%d:%d:%d", c.View.tex.format, c.View.tex.samples, c.Load, c.Store)
		if c.Resolve != nil {
			fmt.Fprintf(&b, "+r%d", c.Resolve.tex.format)
		}
		b.WriteByte(';')
	}
	if desc.DS != nil {
		fmt.Fprintf(&b, "ds%d:%d:%d:%d:%d:%d;",
			desc.DS.View.tex.format, desc.DS.View.tex.samples,
			desc.DS.DepthLoad, desc.DS.DepthStore, desc.DS.StencilLoad, desc.DS.StencilStore)
	}
	return b.String()
}

func buildAttachments(desc *RenderPassDescriptor) ([]driver.Attachment, driver.Subpass) {
	atts := make([]driver.Attachment, 0, len(desc.Colors)+1)
	sub := driver.Subpass{DS: -1}
	for i, c := range desc.Colors {
		atts = append(atts, driver.Attachment{
			Format:  c.View.tex.format,
			Samples: c.View.tex.samples,
			Load:    [2]driver.LoadOp{c.Load, driver.LDontCare},
			Store:   [2]driver.StoreOp{c.Store, driver.SDontCare},
		})
		sub.Color = append(sub.Color, i)
		if c.Resolve != nil {
			atts = append(atts, driver.Attachment{
				Format:  c.Resolve.tex.format,
				Samples: c.Resolve.tex.samples,
				Load:    [2]driver.LoadOp{driver.LDontCare, driver.LDontCare},
				Store:   [2]driver.StoreOp{driver.SStore, driver.SDontCare},
			})
			sub.MSR = append(sub.MSR, len(atts)-1)
		}
	}
	if desc.DS != nil {
		atts = append(atts, driver.Attachment{
			Format:  desc.DS.View.tex.format,
			Samples: desc.DS.View.tex.samples,
			Load:    [2]driver.LoadOp{desc.DS.DepthLoad, desc.DS.StencilLoad},
			Store:   [2]driver.StoreOp{desc.DS.DepthStore, desc.DS.StencilStore},
		})
		sub.DS = len(atts) - 1
	}
	return atts, sub
}

func (c *passCache) getOrCreatePass(gpu driver.GPU, desc *RenderPassDescriptor) (driver.RenderPass, error) {
	key := passDescKey(desc)

	c.mu.Lock()
	if p, ok := c.passes[key]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.passGroup.Do(key, func() (any, error) {
		c.mu.Lock()
		if p, ok := c.passes[key]; ok {
			c.mu.Unlock()
			return p, nil
		}
		c.mu.Unlock()

		atts, sub := buildAttachments(desc)
		pass, err := gpu.NewRenderPass(atts, []driver.Subpass{sub})
		if err != nil {
			return nil, newCreateFailed("render pass", err.Error(), err)
		}

		c.mu.Lock()
		c.passes[key] = pass
		c.mu.Unlock()
		return pass, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(driver.RenderPass), nil
}

func fbDescKey(pass driver.RenderPass, desc *RenderPassDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%p:%d:%d:%d", pass, desc.Width, desc.Height, desc.Layers)
	for _, c := range desc.Colors {
		fmt.Fprintf(&b, ":%p", c.View.view)
		if c.Resolve != nil {
			fmt.Fprintf(&b, "+%p", c.Resolve.view)
		}
	}
	if desc.DS != nil {
		fmt.Fprintf(&b, ":%p", desc.DS.View.view)
	}
	return b.String()
}

func (c *passCache) getOrCreateFB(pass driver.RenderPass, desc *RenderPassDescriptor) (driver.Framebuf, error) {
	key := fbDescKey(pass, desc)

	c.mu.Lock()
	if fb, ok := c.fbs[key]; ok {
		c.mu.Unlock()
		return fb, nil
	}
	c.mu.Unlock()

	v, err, _ := c.fbGroup.Do(key, func() (any, error) {
		c.mu.Lock()
		if fb, ok := c.fbs[key]; ok {
			c.mu.Unlock()
			return fb, nil
		}
		c.mu.Unlock()

		views := make([]driver.ImageView, 0, len(desc.Colors)+1)
		for _, col := range desc.Colors {
			views = append(views, col.View.view)
			if col.Resolve != nil {
				views = append(views, col.Resolve.view)
			}
		}
		if desc.DS != nil {
			views = append(views, desc.DS.View.view)
		}
		fb, err := pass.NewFB(views, desc.Width, desc.Height, desc.Layers)
		if err != nil {
			return nil, newCreateFailed("framebuffer", err.Error(), err)
		}

		c.mu.Lock()
		c.fbs[key] = fb
		c.mu.Unlock()
		return fb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(driver.Framebuf), nil
}

func (c *passCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fb := range c.fbs {
		fb.Destroy()
	}
	for _, p := range c.passes {
		p.Destroy()
	}
	c.fbs = nil
	c.passes = nil
}
