// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"

	"github.com/tessera-gpu/tessera/driver"
)

func newTestTexture() *Texture {
	return newTexture(nil, nil, driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.URenderTarget|driver.UShaderSample)
}

func TestBuildScopesRenderPass(t *testing.T) {
	tex := newTestTexture()
	view := &TextureView{tex: tex, typ: driver.IView2D, layerCount: 1, levelCount: 1}

	vbuf := &Buffer{res: nil, size: 256}
	cmds := []Command{
		&BeginRenderPass{Desc: RenderPassDescriptor{
			Colors: []ColorAttachment{{View: view, Load: driver.LClear, Store: driver.SStore}},
			Width:  4, Height: 4, Layers: 1,
		}},
		&BindVertexBuffers{Start: 0, Bindings: []VertexBinding{{Buffer: vbuf}}},
		&Draw{VertCount: 3, InstCount: 1},
		&EndRenderPass{},
	}

	scopes, err := buildScopes(cmds)
	if err != nil {
		t.Fatalf("buildScopes: %v", err)
	}
	if len(scopes) != 1 {
		t.Fatalf("got %d scopes, want 1", len(scopes))
	}
	sc := scopes[0]
	if sc.kind != scopeRenderPass {
		t.Fatalf("kind = %v, want scopeRenderPass", sc.kind)
	}

	colorKey := tex.key(0, 0, aspectColor)
	u, ok := sc.uses[colorKey]
	if !ok {
		t.Fatalf("missing color attachment usage")
	}
	if u.layout != driver.LColorTarget {
		t.Errorf("color layout = %v, want LColorTarget", u.layout)
	}
	if u.access&driver.AColorWrite == 0 {
		t.Errorf("color access missing AColorWrite: %v", u.access)
	}

	vbKey := vbuf.key()
	vu, ok := sc.uses[vbKey]
	if !ok {
		t.Fatalf("missing vertex buffer usage")
	}
	if vu.access&driver.AVertexBufRead == 0 {
		t.Errorf("vertex buffer access missing AVertexBufRead: %v", vu.access)
	}
}

func TestBuildScopesComputePass(t *testing.T) {
	buf := &Buffer{size: 64}
	layout := &DescriptorSetLayout{Descriptors: []driver.Descriptor{{Type: driver.DBuffer, Nr: 0}}}
	set := &DescriptorSet{layout: layout, buffers: []boundBuffer{{buf: buf, typ: driver.DBuffer, size: 64}}}

	cmds := []Command{
		&BeginComputePass{},
		&BindDescriptorSets{Start: 0, Sets: []*DescriptorSet{set}},
		&Dispatch{GroupsX: 1, GroupsY: 1, GroupsZ: 1},
		&EndComputePass{},
	}

	scopes, err := buildScopes(cmds)
	if err != nil {
		t.Fatalf("buildScopes: %v", err)
	}
	if len(scopes) != 1 || scopes[0].kind != scopeCompute {
		t.Fatalf("unexpected scopes: %+v", scopes)
	}
	u, ok := scopes[0].uses[buf.key()]
	if !ok {
		t.Fatalf("missing descriptor-bound buffer usage")
	}
	if u.access&driver.AShaderRead == 0 || u.access&driver.AShaderWrite == 0 {
		t.Errorf("DBuffer usage should read+write, got %v", u.access)
	}
}

func TestBuildScopesComputePassGivesEachDispatchItsOwnScope(t *testing.T) {
	buf := &Buffer{size: 64}
	layout := &DescriptorSetLayout{Descriptors: []driver.Descriptor{{Type: driver.DBuffer, Nr: 0}}}
	setA := &DescriptorSet{layout: layout, buffers: []boundBuffer{{buf: buf, typ: driver.DBuffer, size: 64}}}
	setB := &DescriptorSet{layout: layout, buffers: []boundBuffer{{buf: buf, typ: driver.DBuffer, size: 64}}}

	// Two dispatches in the same compute pass both write buf through
	// distinct descriptor-set bindings. Each must produce its own
	// scope so the second dispatch gets a hazard barrier against the
	// first, instead of the two writes being OR-merged into a single
	// registry update as if they were concurrent (§4.1).
	cmds := []Command{
		&BeginComputePass{},
		&BindDescriptorSets{Start: 0, Sets: []*DescriptorSet{setA}},
		&Dispatch{GroupsX: 1, GroupsY: 1, GroupsZ: 1},
		&BindDescriptorSets{Start: 0, Sets: []*DescriptorSet{setB}},
		&Dispatch{GroupsX: 1, GroupsY: 1, GroupsZ: 1},
		&EndComputePass{},
	}

	scopes, err := buildScopes(cmds)
	if err != nil {
		t.Fatalf("buildScopes: %v", err)
	}
	if len(scopes) != 2 {
		t.Fatalf("got %d scopes, want 2 (one per Dispatch)", len(scopes))
	}
	for i, sc := range scopes {
		if sc.kind != scopeCompute {
			t.Fatalf("scope %d kind = %v, want scopeCompute", i, sc.kind)
		}
		u, ok := sc.uses[buf.key()]
		if !ok {
			t.Fatalf("scope %d missing descriptor-bound buffer usage", i)
		}
		if u.access&driver.AShaderWrite == 0 {
			t.Errorf("scope %d access missing AShaderWrite: %v", i, u.access)
		}
	}
	if scopes[0].begin == scopes[1].begin {
		t.Error("the two dispatch scopes must not cover the same command range")
	}
}

func TestBuildScopesCopyIsOwnScope(t *testing.T) {
	a, b := &Buffer{size: 16}, &Buffer{size: 16}
	cmds := []Command{
		&CopyBufferToBuffer{From: a, To: b, Size: 16},
	}
	scopes, err := buildScopes(cmds)
	if err != nil {
		t.Fatalf("buildScopes: %v", err)
	}
	if len(scopes) != 1 || scopes[0].kind != scopeCopy {
		t.Fatalf("unexpected scopes: %+v", scopes)
	}
}

func TestBuildScopesRejectsCommandOutsideScope(t *testing.T) {
	cmds := []Command{&Draw{VertCount: 3}}
	if _, err := buildScopes(cmds); err == nil {
		t.Fatal("expected error for Draw outside a render pass")
	}
}

func TestOrUsageMergesAccessAndSync(t *testing.T) {
	a := subUsage{access: driver.AColorRead, sync: driver.SColorOutput, layout: driver.LColorTarget}
	b := subUsage{access: driver.AColorWrite, sync: driver.SFragmentShading, layout: driver.LUndefined}
	m := orUsage(a, b)
	if m.access != driver.AColorRead|driver.AColorWrite {
		t.Errorf("access = %v", m.access)
	}
	if m.sync != driver.SColorOutput|driver.SFragmentShading {
		t.Errorf("sync = %v", m.sync)
	}
	if m.layout != driver.LColorTarget {
		t.Errorf("layout = %v, want LColorTarget from non-undefined operand", m.layout)
	}
}

func TestOrUsagePanicsOnConflictingLayouts(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on conflicting layouts")
		}
	}()
	orUsage(
		subUsage{layout: driver.LColorTarget},
		subUsage{layout: driver.LShaderRead},
	)
}
