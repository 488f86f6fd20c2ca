// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import "github.com/tessera-gpu/tessera/driver"

// QueueType identifies one of the four queue roles a Context exposes.
type QueueType int

// Queue types.
const (
	QueueMain QueueType = iota
	QueueTransfer
	QueueCompute
	QueuePresent
)

func (t QueueType) String() string {
	switch t {
	case QueueMain:
		return "main"
	case QueueTransfer:
		return "transfer"
	case QueueCompute:
		return "compute"
	case QueuePresent:
		return "present"
	default:
		return "unknown queue"
	}
}

// Command is the interface implemented by every entry in a command
// stream. The translator in submit.go walks a []Command exactly once,
// synthesizing the barriers, layout transitions and driver.CmdBuffer
// calls it implies.
type Command interface {
	isCommand()
}

// ColorAttachment binds a texture sub-resource as a color render
// target for the duration of a render pass.
type ColorAttachment struct {
	View    *TextureView
	Load    driver.LoadOp
	Store   driver.StoreOp
	Clear   [4]float32
	Resolve *TextureView
}

// DepthStencilAttachment binds a texture sub-resource as the
// depth/stencil target of a render pass.
type DepthStencilAttachment struct {
	View         *TextureView
	DepthLoad    driver.LoadOp
	DepthStore   driver.StoreOp
	StencilLoad  driver.LoadOp
	StencilStore driver.StoreOp
	ClearDepth   float32
	ClearStencil uint32
}

// RenderPassDescriptor describes the render targets of a render pass.
// It is resolved to a cached driver.RenderPass/driver.Framebuf pair by
// cache_pass.go the first time the submission orchestrator processes
// it (see resolveScope in submit.go).
type RenderPassDescriptor struct {
	Colors []ColorAttachment
	DS     *DepthStencilAttachment
	Width  int
	Height int
	Layers int

	resolved renderPassResolved
}

// renderPassResolved caches the native objects and clear values a
// RenderPassDescriptor resolves to, so translating the same
// BeginRenderPass command again (e.g. a reused CommandBuffer) does not
// repeat the cache lookup's attachment-key construction.
type renderPassResolved struct {
	pass   driver.RenderPass
	fb     driver.Framebuf
	clears []driver.ClearValue
}

// BeginRenderPass opens a render-pass scope. Every Draw*/BindGraphics*
// command up to the matching EndRenderPass belongs to this scope for
// the purpose of sub-resource usage tracking (§4.1).
type BeginRenderPass struct{ Desc RenderPassDescriptor }

func (*BeginRenderPass) isCommand() {}

// EndRenderPass closes the render-pass scope opened by the most recent
// BeginRenderPass.
type EndRenderPass struct{}

func (*EndRenderPass) isCommand() {}

// BeginComputePass opens a compute-pass scope, grouping the dispatches
// that follow until EndComputePass.
type BeginComputePass struct{}

func (*BeginComputePass) isCommand() {}

// EndComputePass closes the compute-pass scope.
type EndComputePass struct{}

func (*EndComputePass) isCommand() {}

// BindGraphicsPipeline sets the pipeline used by subsequent Draw*
// commands.
type BindGraphicsPipeline struct{ Pipeline *Pipeline }

func (*BindGraphicsPipeline) isCommand() {}

// BindComputePipeline sets the pipeline used by subsequent Dispatch
// commands.
type BindComputePipeline struct{ Pipeline *Pipeline }

func (*BindComputePipeline) isCommand() {}

// BindDescriptorSets binds one or more descriptor sets starting at a
// given slot, for use by the currently bound pipeline (graphics or
// compute, whichever a following Draw*/Dispatch consumes).
type BindDescriptorSets struct {
	Start int
	Sets  []*DescriptorSet
}

func (*BindDescriptorSets) isCommand() {}

// VertexBinding binds a single vertex buffer at a given byte offset.
type VertexBinding struct {
	Buffer *Buffer
	Offset int64
}

// BindVertexBuffers binds one or more vertex buffers starting at a
// given slot.
type BindVertexBuffers struct {
	Start    int
	Bindings []VertexBinding
}

func (*BindVertexBuffers) isCommand() {}

// BindIndexBuffer binds the index buffer used by subsequent
// DrawIndexed/DrawIndexedIndirect commands.
type BindIndexBuffer struct {
	Buffer *Buffer
	Offset int64
	Format driver.IndexFmt
}

func (*BindIndexBuffer) isCommand() {}

// Draw draws non-indexed primitives using the currently bound
// graphics pipeline, descriptor sets and vertex buffers.
type Draw struct{ VertCount, InstCount, BaseVert, BaseInst int }

func (*Draw) isCommand() {}

// DrawIndexed draws indexed primitives.
type DrawIndexed struct{ IdxCount, InstCount, BaseIdx, VertOff, BaseInst int }

func (*DrawIndexed) isCommand() {}

// DrawIndexedIndirect describes an indexed draw whose parameters are
// read from a buffer rather than specified in the command stream. The
// sub-resource usage tracker records a read on Args the same way it
// would for an explicit parameter, but Submit records no draw call
// for it: driver.CmdBuffer has no indirect-draw method.
type DrawIndexedIndirect struct {
	Args   *Buffer
	Offset int64
}

func (*DrawIndexedIndirect) isCommand() {}

// Dispatch dispatches compute thread groups using the currently bound
// compute pipeline and descriptor sets.
type Dispatch struct{ GroupsX, GroupsY, GroupsZ int }

func (*Dispatch) isCommand() {}

// CopyBufferToBuffer copies a byte range between two buffers.
type CopyBufferToBuffer struct {
	From     *Buffer
	FromOff  int64
	To       *Buffer
	ToOff    int64
	Size     int64
}

func (*CopyBufferToBuffer) isCommand() {}

// CopyBufferToTexture copies buffer bytes into a texture sub-resource.
type CopyBufferToTexture struct {
	From    *Buffer
	FromOff int64
	Stride  [2]int64
	To      *Texture
	ToOff   driver.Off3D
	Layer   int
	Level   int
	Size    driver.Dim3D
}

func (*CopyBufferToTexture) isCommand() {}

// CopyTextureToBuffer copies a texture sub-resource into buffer bytes.
type CopyTextureToBuffer struct {
	From    *Texture
	FromOff driver.Off3D
	Layer   int
	Level   int
	Size    driver.Dim3D
	To      *Buffer
	ToOff   int64
	Stride  [2]int64
}

func (*CopyTextureToBuffer) isCommand() {}

// CommandBuffer is a fluent builder over the Command IR. It performs
// no validation of its own; bind-state and scope mistakes are caught
// by the translator when the command stream is submitted.
type CommandBuffer struct {
	cmds []Command
}

// NewCommandBuffer returns an empty command-stream builder.
func NewCommandBuffer() *CommandBuffer { return &CommandBuffer{} }

// Commands returns the recorded command stream.
func (b *CommandBuffer) Commands() []Command { return b.cmds }

func (b *CommandBuffer) push(c Command) *CommandBuffer {
	b.cmds = append(b.cmds, c)
	return b
}

// BeginRenderPass appends a BeginRenderPass command.
func (b *CommandBuffer) BeginRenderPass(desc RenderPassDescriptor) *CommandBuffer {
	return b.push(&BeginRenderPass{Desc: desc})
}

// EndRenderPass appends an EndRenderPass command.
func (b *CommandBuffer) EndRenderPass() *CommandBuffer { return b.push(&EndRenderPass{}) }

// BeginComputePass appends a BeginComputePass command.
func (b *CommandBuffer) BeginComputePass() *CommandBuffer { return b.push(&BeginComputePass{}) }

// EndComputePass appends an EndComputePass command.
func (b *CommandBuffer) EndComputePass() *CommandBuffer { return b.push(&EndComputePass{}) }

// BindGraphicsPipeline appends a BindGraphicsPipeline command.
func (b *CommandBuffer) BindGraphicsPipeline(p *Pipeline) *CommandBuffer {
	return b.push(&BindGraphicsPipeline{Pipeline: p})
}

// BindComputePipeline appends a BindComputePipeline command.
func (b *CommandBuffer) BindComputePipeline(p *Pipeline) *CommandBuffer {
	return b.push(&BindComputePipeline{Pipeline: p})
}

// BindDescriptorSets appends a BindDescriptorSets command.
func (b *CommandBuffer) BindDescriptorSets(start int, sets ...*DescriptorSet) *CommandBuffer {
	return b.push(&BindDescriptorSets{Start: start, Sets: sets})
}

// BindVertexBuffers appends a BindVertexBuffers command.
func (b *CommandBuffer) BindVertexBuffers(start int, bindings ...VertexBinding) *CommandBuffer {
	return b.push(&BindVertexBuffers{Start: start, Bindings: bindings})
}

// BindIndexBuffer appends a BindIndexBuffer command.
func (b *CommandBuffer) BindIndexBuffer(buf *Buffer, off int64, format driver.IndexFmt) *CommandBuffer {
	return b.push(&BindIndexBuffer{Buffer: buf, Offset: off, Format: format})
}

// Draw appends a Draw command.
func (b *CommandBuffer) Draw(vertCount, instCount, baseVert, baseInst int) *CommandBuffer {
	return b.push(&Draw{vertCount, instCount, baseVert, baseInst})
}

// DrawIndexed appends a DrawIndexed command.
func (b *CommandBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) *CommandBuffer {
	return b.push(&DrawIndexed{idxCount, instCount, baseIdx, vertOff, baseInst})
}

// DrawIndexedIndirect appends a DrawIndexedIndirect command.
func (b *CommandBuffer) DrawIndexedIndirect(args *Buffer, off int64) *CommandBuffer {
	return b.push(&DrawIndexedIndirect{Args: args, Offset: off})
}

// Dispatch appends a Dispatch command.
func (b *CommandBuffer) Dispatch(x, y, z int) *CommandBuffer {
	return b.push(&Dispatch{x, y, z})
}

// CopyBufferToBuffer appends a CopyBufferToBuffer command.
func (b *CommandBuffer) CopyBufferToBuffer(from *Buffer, fromOff int64, to *Buffer, toOff, size int64) *CommandBuffer {
	return b.push(&CopyBufferToBuffer{from, fromOff, to, toOff, size})
}

// CopyBufferToTexture appends a CopyBufferToTexture command.
func (b *CommandBuffer) CopyBufferToTexture(c CopyBufferToTexture) *CommandBuffer {
	return b.push(&c)
}

// CopyTextureToBuffer appends a CopyTextureToBuffer command.
func (b *CommandBuffer) CopyTextureToBuffer(c CopyTextureToBuffer) *CommandBuffer {
	return b.push(&c)
}
