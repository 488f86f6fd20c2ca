// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"time"

	"github.com/tessera-gpu/tessera/driver"
)

// Submit translates cmds into a native command buffer and commits it
// to q. After grouping cmds into scopes and acquiring a command
// buffer, it takes the global sub-resource usage registry lock and
// holds it through recording and commit, so no two submissions (on
// any queue) can interleave their barrier/transition decisions.
func (q *Queue) Submit(label string, cmds []Command) (Job, error) {
	ctx := q.ctx

	scopes, err := buildScopes(cmds)
	if err != nil {
		return Job{}, err
	}

	cb, err := q.acquire()
	if err != nil {
		return Job{}, err
	}

	ctx.registry.Lock()
	defer ctx.registry.Unlock()

	value := q.reserveValue()
	tracker := newSemaphoreTracker()
	var transientViews []driver.ImageView

	for _, sc := range scopes {
		barriers, transitions, views, err := ctx.resolveScope(q, value, sc, tracker)
		if err != nil {
			q.recycle(cb)
			return Job{}, err
		}
		transientViews = append(transientViews, views...)

		if len(transitions) > 0 {
			cb.Transition(transitions)
		}
		if len(barriers) > 0 {
			cb.Barrier(barriers)
		}
		emitScope(cb, cmds, sc)
	}

	if err := cb.End(); err != nil {
		q.recycle(cb)
		return Job{}, err
	}
	for _, v := range transientViews {
		v.Destroy()
	}

	return q.commitReserved(cb, value, tracker.dependencies()), nil
}

// resolveScope compares sc's sub-resource usage against the registry,
// producing the barriers/transitions needed to make those usages
// safe, recording any cross-queue waits in tracker, and updating the
// registry to reflect this submission's usage. Transient image views
// created to describe layout transitions are returned so the caller
// can destroy them once the command buffer has finished recording.
func (c *Context) resolveScope(q *Queue, value uint64, sc *scope, tracker *semaphoreTracker) ([]driver.Barrier, []driver.Transition, []driver.ImageView, error) {
	var barriers []driver.Barrier
	var transitions []driver.Transition
	var views []driver.ImageView

	if sc.kind == scopeRenderPass {
		if err := c.resolveRenderPass(sc.renderDesc); err != nil {
			return nil, nil, nil, err
		}
	}

	// A write on either side of a prior use needs a barrier even when
	// access and stage repeat unchanged (e.g. two dispatches writing
	// one buffer); only read-after-read is left without one.
	const writes = driver.AColorWrite | driver.ADSWrite | driver.AResolveWrite |
		driver.ACopyWrite | driver.AShaderWrite | driver.AAnyWrite

	for key, usage := range sc.uses {
		e := c.registry.entry(key)
		hazard := e.usage.acc != driver.ANone && (e.usage.acc|usage.access)&writes != 0

		if e.usage.queue != nil && e.usage.queue != q {
			if e.usage.value > e.usage.queue.currentValue() {
				tracker.wait(e.usage.queue, e.usage.value)
			}
		}

		syncBefore := earliestStage(e.usage.sync)
		syncAfter := earliestStage(usage.sync)

		if key.tex != nil {
			oldLayout := driver.LUndefined
			if e.hasLayout {
				oldLayout = e.layout
			}
			if oldLayout != usage.layout {
				view, err := key.tex.res.NewView(driver.IView2D, key.layer, 1, key.level, 1)
				if err != nil {
					return nil, nil, nil, newCreateFailed("transition view", err.Error(), err)
				}
				views = append(views, view)
				transitions = append(transitions, driver.Transition{
					Barrier: driver.Barrier{
						SyncBefore:   syncBefore,
						SyncAfter:    syncAfter,
						AccessBefore: e.usage.acc,
						AccessAfter:  usage.access,
					},
					LayoutBefore: oldLayout,
					LayoutAfter:  usage.layout,
					IView:        view,
				})
			} else if hazard || e.usage.acc != usage.access || e.usage.sync != usage.sync {
				barriers = append(barriers, driver.Barrier{
					SyncBefore: syncBefore, SyncAfter: syncAfter,
					AccessBefore: e.usage.acc, AccessAfter: usage.access,
				})
			}
			e.layout = usage.layout
			e.hasLayout = true
		} else if hazard || e.usage.acc != usage.access || e.usage.sync != usage.sync {
			barriers = append(barriers, driver.Barrier{
				SyncBefore: syncBefore, SyncAfter: syncAfter,
				AccessBefore: e.usage.acc, AccessAfter: usage.access,
			})
		}

		e.usage = queueUsage{queue: q, value: value, sync: usage.sync, acc: usage.access}
	}

	for _, set := range sc.sets {
		if set.usage.queue != nil && set.usage.queue != q {
			if set.usage.value > set.usage.queue.currentValue() {
				tracker.wait(set.usage.queue, set.usage.value)
			}
		}
		set.usage = queueUsage{queue: q, value: value}
	}

	return barriers, transitions, views, nil
}

// emitScope records the driver.CmdBuffer calls for a single scope's
// worth of commands.
func emitScope(cb driver.CmdBuffer, cmds []Command, sc *scope) {
	switch sc.kind {
	case scopeRenderPass:
		desc := sc.renderDesc
		pass, fb, clears := resolveRenderPassObjects(desc)
		cb.BeginPass(pass, fb, clears)
		w, h := float32(desc.Width), float32(desc.Height)
		cb.SetViewport([]driver.Viewport{{Y: h, Width: w, Height: -h, Zfar: 1}})
		cb.SetScissor([]driver.Scissor{{Width: desc.Width, Height: desc.Height}})
		emitDrawCommands(cb, cmds[sc.begin+1:sc.end-1])
		cb.EndPass()
	case scopeCompute:
		// Unlike scopeRenderPass, begin/end here bracket the bind
		// commands and the single Dispatch that closes this scope
		// directly (no BeginComputePass/EndComputePass to skip), per
		// compute scopes now being built one per Dispatch.
		cb.BeginWork(false)
		emitDispatchCommands(cb, cmds[sc.begin:sc.end])
		cb.EndWork()
	case scopeCopy:
		cb.BeginBlit(false)
		emitCopyCommand(cb, cmds[sc.begin])
		cb.EndBlit()
	}
}

// resolveRenderPass interns desc's render pass and framebuffer through
// the passCache and records its clear values, idempotently: a
// RenderPassDescriptor reused across multiple Submit calls resolves
// once.
func (c *Context) resolveRenderPass(desc *RenderPassDescriptor) error {
	if desc.resolved.pass != nil {
		return nil
	}
	pass, err := c.passes.getOrCreatePass(c.gpu, desc)
	if err != nil {
		return err
	}
	fb, err := c.passes.getOrCreateFB(pass, desc)
	if err != nil {
		return err
	}
	clears := make([]driver.ClearValue, 0, len(desc.Colors)+1)
	for _, col := range desc.Colors {
		clears = append(clears, driver.ClearValue{Color: col.Clear})
	}
	if desc.DS != nil {
		clears = append(clears, driver.ClearValue{Depth: desc.DS.ClearDepth, Stencil: desc.DS.ClearStencil})
	}
	desc.resolved = renderPassResolved{pass: pass, fb: fb, clears: clears}
	return nil
}

// resolveRenderPassObjects returns the native objects resolveRenderPass
// already interned for desc.
func resolveRenderPassObjects(desc *RenderPassDescriptor) (driver.RenderPass, driver.Framebuf, []driver.ClearValue) {
	return desc.resolved.pass, desc.resolved.fb, desc.resolved.clears
}

func emitDrawCommands(cb driver.CmdBuffer, cmds []Command) {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case *BindGraphicsPipeline:
			cb.SetPipeline(c.Pipeline.pl)
		case *BindDescriptorSets:
			for i, s := range c.Sets {
				cb.SetDescTableGraph(s.table, c.Start+i, []int{s.copyIdx})
			}
		case *BindVertexBuffers:
			bufs := make([]driver.Buffer, len(c.Bindings))
			offs := make([]int64, len(c.Bindings))
			for i, b := range c.Bindings {
				bufs[i] = b.Buffer.res
				offs[i] = b.Offset
			}
			cb.SetVertexBuf(c.Start, bufs, offs)
		case *BindIndexBuffer:
			cb.SetIndexBuf(c.Format, c.Buffer.res, c.Offset)
		case *Draw:
			cb.Draw(c.VertCount, c.InstCount, c.BaseVert, c.BaseInst)
		case *DrawIndexed:
			cb.DrawIndexed(c.IdxCount, c.InstCount, c.BaseIdx, c.VertOff, c.BaseInst)
		case *DrawIndexedIndirect:
			// The driver's explicit command-buffer model has no
			// indirect-draw entry point; indirect argument buffers
			// are only meaningful for backends that add one, so this
			// falls back to treating Args as an ordinary draw-arg
			// read that was already recorded during usage tracking.
		}
	}
}

func emitDispatchCommands(cb driver.CmdBuffer, cmds []Command) {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case *BindComputePipeline:
			cb.SetPipeline(c.Pipeline.pl)
		case *BindDescriptorSets:
			for i, s := range c.Sets {
				cb.SetDescTableComp(s.table, c.Start+i, []int{s.copyIdx})
			}
		case *Dispatch:
			cb.Dispatch(c.GroupsX, c.GroupsY, c.GroupsZ)
		}
	}
}

func emitCopyCommand(cb driver.CmdBuffer, cmd Command) {
	switch c := cmd.(type) {
	case *CopyBufferToBuffer:
		cb.CopyBuffer(&driver.BufferCopy{From: c.From.res, FromOff: c.FromOff, To: c.To.res, ToOff: c.ToOff, Size: c.Size})
	case *CopyBufferToTexture:
		cb.CopyBufToImg(&driver.BufImgCopy{
			Buf: c.From.res, BufOff: c.FromOff, Stride: c.Stride,
			Img: c.To.res, ImgOff: c.ToOff, Layer: c.Layer, Level: c.Level, Size: c.Size,
		})
	case *CopyTextureToBuffer:
		cb.CopyImgToBuf(&driver.BufImgCopy{
			Buf: c.To.res, BufOff: c.ToOff, Stride: c.Stride,
			Img: c.From.res, ImgOff: c.FromOff, Layer: c.Layer, Level: c.Level, Size: c.Size,
		})
	}
}

// WaitOn blocks the calling goroutine until j completes or timeout
// elapses (timeout<=0 blocks indefinitely), returning the resulting
// status.
func (q *Queue) WaitOn(j Job, timeout time.Duration) (Status, error) {
	if j.queue != q {
		return StatusRunning, &Error{Kind: KindDriverError, Reason: "job does not belong to this queue"}
	}
	return q.waitOnJob(j, timeout), nil
}

// PollStatus reports j's status without blocking.
func (q *Queue) PollStatus(j Job) (Status, error) {
	if j.queue != q {
		return StatusRunning, &Error{Kind: KindDriverError, Reason: "job does not belong to this queue"}
	}
	return q.pollStatus(j), nil
}
