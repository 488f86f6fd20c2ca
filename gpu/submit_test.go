// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"
	"time"

	"github.com/tessera-gpu/tessera/driver"
	"github.com/tessera-gpu/tessera/internal/noop"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := Open(&noop.Driver{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(ctx.Close)
	return ctx
}

func TestContextOpenExposesFourQueues(t *testing.T) {
	ctx := newTestContext(t)
	if ctx.Main().Type() != QueueMain {
		t.Errorf("Main().Type() = %v", ctx.Main().Type())
	}
	if ctx.Transfer().Type() != QueueTransfer {
		t.Errorf("Transfer().Type() = %v", ctx.Transfer().Type())
	}
	if ctx.Compute().Type() != QueueCompute {
		t.Errorf("Compute().Type() = %v", ctx.Compute().Type())
	}
	if ctx.Present().Type() != QueuePresent {
		t.Errorf("Present().Type() = %v", ctx.Present().Type())
	}
}

func TestSubmitCopyBufferToBuffer(t *testing.T) {
	ctx := newTestContext(t)

	a, err := ctx.NewBuffer(64, true, driver.UShaderRead|driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	b, err := ctx.NewBuffer(64, true, driver.UShaderWrite|driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	cb := NewCommandBuffer().CopyBufferToBuffer(a, 0, b, 0, 64)

	job, err := ctx.Transfer().Submit("copy", cb.Commands())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status, err := ctx.Transfer().WaitOn(job, time.Second)
	if err != nil {
		t.Fatalf("WaitOn: %v", err)
	}
	if status != StatusComplete {
		t.Fatalf("status = %v, want StatusComplete", status)
	}
}

func TestSubmitRenderPassProducesDraw(t *testing.T) {
	ctx := newTestContext(t)

	tex, err := ctx.NewTexture(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.URenderTarget|driver.UShaderSample)
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	view, err := tex.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}

	vbuf, err := ctx.NewBuffer(256, true, driver.UVertexData)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	vs, err := ctx.NewShader([]byte("vert"))
	if err != nil {
		t.Fatalf("NewShader: %v", err)
	}
	fs, err := ctx.NewShader([]byte("frag"))
	if err != nil {
		t.Fatalf("NewShader: %v", err)
	}
	layout := ctx.NewDescriptorSetLayout(nil)

	passDesc := RenderPassDescriptor{
		Colors: []ColorAttachment{{View: view, Load: driver.LClear, Store: driver.SStore}},
		Width:  4, Height: 4, Layers: 1,
	}
	pipe, err := ctx.GraphicsPipeline(&GraphicsPipelineDesc{
		VertFunc: vs, FragFunc: fs, Layout: layout,
		Topology: driver.TTriangle, Samples: 1, Pass: passDesc,
	})
	if err != nil {
		t.Fatalf("GraphicsPipeline: %v", err)
	}

	cb := NewCommandBuffer().
		BeginRenderPass(passDesc).
		BindGraphicsPipeline(pipe).
		BindVertexBuffers(0, VertexBinding{Buffer: vbuf}).
		Draw(3, 1, 0, 0).
		EndRenderPass()

	job, err := ctx.Main().Submit("draw", cb.Commands())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if status, err := ctx.Main().WaitOn(job, time.Second); err != nil || status != StatusComplete {
		t.Fatalf("WaitOn: status=%v err=%v", status, err)
	}
}

func TestSubmitReusesCachedRenderPass(t *testing.T) {
	ctx := newTestContext(t)

	tex, _ := ctx.NewTexture(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.URenderTarget)
	view, _ := tex.NewView(driver.IView2D, 0, 1, 0, 1)
	desc := &RenderPassDescriptor{
		Colors: []ColorAttachment{{View: view, Load: driver.LClear, Store: driver.SStore}},
		Width:  4, Height: 4, Layers: 1,
	}

	if err := ctx.resolveRenderPass(desc); err != nil {
		t.Fatalf("resolveRenderPass: %v", err)
	}
	pass1, fb1 := desc.resolved.pass, desc.resolved.fb

	desc.resolved = renderPassResolved{}
	if err := ctx.resolveRenderPass(desc); err != nil {
		t.Fatalf("resolveRenderPass (2nd): %v", err)
	}
	if desc.resolved.pass != pass1 || desc.resolved.fb != fb1 {
		t.Errorf("expected the same cached render pass/framebuffer objects to be reused")
	}
}

func TestCrossQueueSubmitAfterRetiredDependencyCompletes(t *testing.T) {
	ctx := newTestContext(t)

	buf, err := ctx.NewBuffer(64, true, driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	other, err := ctx.NewBuffer(64, true, driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	cb1 := NewCommandBuffer().CopyBufferToBuffer(buf, 0, other, 0, 64)
	job1, err := ctx.Transfer().Submit("w1", cb1.Commands())
	if err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	if _, err := ctx.Transfer().WaitOn(job1, time.Second); err != nil {
		t.Fatalf("WaitOn 1: %v", err)
	}

	cb2 := NewCommandBuffer().CopyBufferToBuffer(buf, 0, other, 0, 64)
	job2, err := ctx.Main().Submit("w2", cb2.Commands())
	if err != nil {
		t.Fatalf("Submit 2: %v", err)
	}
	status, err := ctx.Main().WaitOn(job2, time.Second)
	if err != nil || status != StatusComplete {
		t.Fatalf("WaitOn 2: status=%v err=%v", status, err)
	}
}

func TestWaitOnRejectsJobFromAnotherQueue(t *testing.T) {
	ctx := newTestContext(t)
	buf, _ := ctx.NewBuffer(64, true, driver.UGeneric)
	other, _ := ctx.NewBuffer(64, true, driver.UGeneric)
	cb := NewCommandBuffer().CopyBufferToBuffer(buf, 0, other, 0, 64)
	job, err := ctx.Transfer().Submit("x", cb.Commands())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := ctx.Main().WaitOn(job, time.Second); err == nil {
		t.Fatal("expected error waiting on a job from a different queue")
	}
}
