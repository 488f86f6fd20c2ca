// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"

	"github.com/tessera-gpu/tessera/driver"
	"github.com/tessera-gpu/tessera/internal/noop"
)

func TestPipelineCacheReusesIdenticalGraphicsDesc(t *testing.T) {
	_, g := noop.New()
	passes := newPassCache()
	pipes := newPipelineCache()

	tex := mustTexture(t, g)
	view, err := tex.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}

	vs := &Shader{code: mustShaderCode(t, g, "vert")}
	fs := &Shader{code: mustShaderCode(t, g, "frag")}
	layout := &DescriptorSetLayout{}

	desc := &GraphicsPipelineDesc{
		VertFunc: vs, FragFunc: fs, Layout: layout,
		Topology: driver.TTriangle, Samples: 1,
		Pass: RenderPassDescriptor{
			Colors: []ColorAttachment{{View: view, Load: driver.LClear, Store: driver.SStore}},
			Width:  4, Height: 4, Layers: 1,
		},
	}

	p1, err := pipes.GetGraphics(g, passes, desc)
	if err != nil {
		t.Fatalf("GetGraphics: %v", err)
	}
	p2, err := pipes.GetGraphics(g, passes, desc)
	if err != nil {
		t.Fatalf("GetGraphics (2nd): %v", err)
	}
	if p1 != p2 {
		t.Error("expected the same cached *Pipeline for an identical descriptor")
	}
}

func TestPipelineCacheDistinguishesDescriptors(t *testing.T) {
	_, g := noop.New()
	passes := newPassCache()
	pipes := newPipelineCache()

	tex := mustTexture(t, g)
	view, _ := tex.NewView(driver.IView2D, 0, 1, 0, 1)
	vs := &Shader{code: mustShaderCode(t, g, "vert")}
	fs := &Shader{code: mustShaderCode(t, g, "frag")}
	layout := &DescriptorSetLayout{}

	base := RenderPassDescriptor{
		Colors: []ColorAttachment{{View: view, Load: driver.LClear, Store: driver.SStore}},
		Width:  4, Height: 4, Layers: 1,
	}
	d1 := &GraphicsPipelineDesc{VertFunc: vs, FragFunc: fs, Layout: layout, Topology: driver.TTriangle, Samples: 1, Pass: base}
	d2 := &GraphicsPipelineDesc{VertFunc: vs, FragFunc: fs, Layout: layout, Topology: driver.TLine, Samples: 1, Pass: base}

	p1, err := pipes.GetGraphics(g, passes, d1)
	if err != nil {
		t.Fatalf("GetGraphics d1: %v", err)
	}
	p2, err := pipes.GetGraphics(g, passes, d2)
	if err != nil {
		t.Fatalf("GetGraphics d2: %v", err)
	}
	if p1 == p2 {
		t.Error("expected distinct topologies to produce distinct cached pipelines")
	}
}

func mustShaderCode(t *testing.T, g driver.GPU, src string) driver.ShaderCode {
	t.Helper()
	code, err := g.NewShaderCode([]byte(src))
	if err != nil {
		t.Fatalf("NewShaderCode: %v", err)
	}
	return code
}

func mustTexture(t *testing.T, g driver.GPU) *Texture {
	t.Helper()
	img, err := g.NewImage(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.URenderTarget)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return newTexture(nil, img, driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.URenderTarget)
}
