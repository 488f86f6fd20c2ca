// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package noop

import (
	"errors"

	"github.com/tessera-gpu/tessera/driver"
)

// block identifies the kind of logical block currently open in a
// CmdBuffer, mirroring the Begin*/End* nesting the driver.CmdBuffer
// contract describes.
type block int

const (
	blockNone block = iota
	blockPass
	blockWork
	blockBlit
)

// NewCmdBuffer implements driver.GPU.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &CmdBuffer{}, nil
}

// CmdBuffer implements driver.CmdBuffer.
// It counts recorded commands so that tests driving the full
// orchestrator can make basic assertions without inspecting the
// translator's internals directly. End fails if the buffer is not
// recording or a Begin* block is still open; a Begin* call made while
// another block is open is not rejected.
type CmdBuffer struct {
	recording bool
	ended     bool
	cur       block

	Barriers    int
	Transitions int
	Draws       int
	Dispatches  int
	Copies      int
}

var (
	errNotRecording  = errors.New("noop: command buffer is not recording")
	errBlockOpen     = errors.New("noop: a Begin* block is already open")
	errBlockMismatch = errors.New("noop: End* called for the wrong block")
)

// Begin implements driver.CmdBuffer.
func (c *CmdBuffer) Begin() error {
	c.recording = true
	c.ended = false
	c.cur = blockNone
	c.Barriers, c.Transitions, c.Draws, c.Dispatches, c.Copies = 0, 0, 0, 0, 0
	return nil
}

// IsRecording reports whether Begin was called without a matching End.
func (c *CmdBuffer) IsRecording() bool { return c.recording }

func (c *CmdBuffer) openBlock(b block) { c.cur = b }

// BeginPass implements driver.CmdBuffer.
func (c *CmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	c.openBlock(blockPass)
}

// NextSubpass implements driver.CmdBuffer.
func (c *CmdBuffer) NextSubpass() {}

// EndPass implements driver.CmdBuffer.
func (c *CmdBuffer) EndPass() { c.cur = blockNone }

// BeginWork implements driver.CmdBuffer.
func (c *CmdBuffer) BeginWork(wait bool) { c.openBlock(blockWork) }

// EndWork implements driver.CmdBuffer.
func (c *CmdBuffer) EndWork() { c.cur = blockNone }

// BeginBlit implements driver.CmdBuffer.
func (c *CmdBuffer) BeginBlit(wait bool) { c.openBlock(blockBlit) }

// EndBlit implements driver.CmdBuffer.
func (c *CmdBuffer) EndBlit() { c.cur = blockNone }

// SetPipeline implements driver.CmdBuffer.
func (c *CmdBuffer) SetPipeline(pl driver.Pipeline) {}

// SetViewport implements driver.CmdBuffer.
func (c *CmdBuffer) SetViewport(vp []driver.Viewport) {}

// SetScissor implements driver.CmdBuffer.
func (c *CmdBuffer) SetScissor(sciss []driver.Scissor) {}

// SetBlendColor implements driver.CmdBuffer.
func (c *CmdBuffer) SetBlendColor(r, g, b, a float32) {}

// SetStencilRef implements driver.CmdBuffer.
func (c *CmdBuffer) SetStencilRef(value uint32) {}

// SetVertexBuf implements driver.CmdBuffer.
func (c *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {}

// SetIndexBuf implements driver.CmdBuffer.
func (c *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {}

// SetDescTableGraph implements driver.CmdBuffer.
func (c *CmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {}

// SetDescTableComp implements driver.CmdBuffer.
func (c *CmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {}

// Draw implements driver.CmdBuffer.
func (c *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) { c.Draws++ }

// DrawIndexed implements driver.CmdBuffer.
func (c *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) { c.Draws++ }

// Dispatch implements driver.CmdBuffer.
func (c *CmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) { c.Dispatches++ }

// CopyBuffer implements driver.CmdBuffer.
func (c *CmdBuffer) CopyBuffer(param *driver.BufferCopy) { c.Copies++ }

// CopyImage implements driver.CmdBuffer.
func (c *CmdBuffer) CopyImage(param *driver.ImageCopy) { c.Copies++ }

// CopyBufToImg implements driver.CmdBuffer.
func (c *CmdBuffer) CopyBufToImg(param *driver.BufImgCopy) { c.Copies++ }

// CopyImgToBuf implements driver.CmdBuffer.
func (c *CmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) { c.Copies++ }

// Fill implements driver.CmdBuffer.
func (c *CmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {}

// Barrier implements driver.CmdBuffer.
func (c *CmdBuffer) Barrier(b []driver.Barrier) { c.Barriers += len(b) }

// Transition implements driver.CmdBuffer.
func (c *CmdBuffer) Transition(t []driver.Transition) { c.Transitions += len(t) }

// End implements driver.CmdBuffer.
func (c *CmdBuffer) End() error {
	if !c.recording {
		return errNotRecording
	}
	if c.cur != blockNone {
		return errBlockMismatch
	}
	c.recording = false
	c.ended = true
	return nil
}

// Reset implements driver.CmdBuffer.
func (c *CmdBuffer) Reset() error {
	c.recording = false
	c.ended = false
	c.cur = blockNone
	return nil
}

// Destroy implements driver.Destroyer.
func (c *CmdBuffer) Destroy() {}
