// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"fmt"

	"github.com/tessera-gpu/tessera/driver"
)

// subUsage is the access a single command or pass scope makes of one
// sub-resource. layout is driver.LUndefined for buffers, which carry
// no layout concept.
type subUsage struct {
	access driver.Access
	sync   driver.Sync
	layout driver.Layout
}

// orUsage merges two usages of the same sub-resource within a single
// scope. Two different required layouts in the same scope (e.g. a
// texture bound as both a sampled input and a render target in one
// render pass) is a caller error rather than something the translator
// can resolve, so it panics instead of returning it as a recoverable
// Error: this mirrors how recording-time misuse aborts per §7, and how
// the teacher's own engine code panics on malformed scene state rather
// than threading an error return through every call site.
func orUsage(a, b subUsage) subUsage {
	layout := a.layout
	switch {
	case a.layout == driver.LUndefined:
		layout = b.layout
	case b.layout == driver.LUndefined:
		layout = a.layout
	case a.layout != b.layout:
		panic(fmt.Sprintf("gpu: conflicting layouts requested for the same sub-resource in a single scope (%v vs %v)", a.layout, b.layout))
	}
	return subUsage{
		access: a.access | b.access,
		sync:   a.sync | b.sync,
		layout: layout,
	}
}

// scopeKind identifies which kind of usage scope a scope value
// represents.
type scopeKind int

const (
	scopeRenderPass scopeKind = iota
	scopeCompute
	scopeCopy
)

// scope is a run of commands whose sub-resource usage is computed
// together, matching §4.1's per-command policy: a render pass is one
// scope encompassing every draw between BeginRenderPass and
// EndRenderPass (draws within a subpass may run concurrently, so
// their usage must be unioned rather than ordered); a compute pass,
// by contrast, gives each Dispatch its own scope covering the binds
// since the previous dispatch (dispatches are not guaranteed
// concurrent with one another, so a hazard between two dispatches
// must still get its own barrier); a single copy command is its own
// scope.
type scope struct {
	kind       scopeKind
	begin, end int // [begin,end) range into the original command slice
	renderDesc *RenderPassDescriptor
	uses       map[subKey]subUsage

	// sets lists the descriptor sets bound anywhere in this scope, so
	// the orchestrator can additionally record (and wait on) each
	// set's own queueUsage entry, independent of the sub-resources it
	// binds (§4.2's descriptor-set binding staleness).
	sets []*DescriptorSet
}

func (s *scope) use(key subKey, u subUsage) {
	if s.uses == nil {
		s.uses = make(map[subKey]subUsage)
	}
	if prev, ok := s.uses[key]; ok {
		u = orUsage(prev, u)
	}
	s.uses[key] = u
}

// bindState is the incrementally-updated bind state the forward pass
// maintains while walking a command stream once.
type bindState struct {
	graphicsPipeline *Pipeline
	computePipeline  *Pipeline
	sets             map[int]*DescriptorSet
	vbufs            map[int]VertexBinding
	ibuf             *BindIndexBuffer
}

func newBindState() *bindState {
	return &bindState{sets: make(map[int]*DescriptorSet), vbufs: make(map[int]VertexBinding)}
}

// buildScopes performs the single forward pass over cmds, producing
// the ordered list of usage scopes the submission orchestrator will
// translate into driver calls.
func buildScopes(cmds []Command) ([]*scope, error) {
	var scopes []*scope
	st := newBindState()

	i := 0
	for i < len(cmds) {
		switch c := cmds[i].(type) {
		case *BeginRenderPass:
			j := i + 1
			sc := &scope{kind: scopeRenderPass, begin: i, renderDesc: &c.Desc}
			for _, ca := range c.Desc.Colors {
				addAttachmentUse(sc, ca.View, driver.LColorTarget, driver.AColorWrite, driver.SColorOutput)
				if ca.Load == driver.LLoad {
					addAttachmentUse(sc, ca.View, driver.LColorTarget, driver.AColorRead, driver.SColorOutput)
				}
				if ca.Resolve != nil {
					addAttachmentUse(sc, ca.Resolve, driver.LResolveDst, driver.AResolveWrite, driver.SResolve)
				}
			}
			if c.Desc.DS != nil {
				access := driver.AAnyRead
				if c.Desc.DS.DepthStore == driver.SStore || c.Desc.DS.StencilStore == driver.SStore {
					access |= driver.ADSWrite
				} else {
					access |= driver.ADSRead
				}
				addAttachmentUse(sc, c.Desc.DS.View, driver.LDSTarget, access, driver.SEarlyFragmentTests|driver.SLateFragmentTests)
			}
			for j < len(cmds) {
				if _, ok := cmds[j].(*EndRenderPass); ok {
					j++
					break
				}
				if err := applyDrawScopeCommand(sc, st, cmds[j]); err != nil {
					return nil, err
				}
				j++
			}
			sc.end = j
			scopes = append(scopes, sc)
			i = j

		case *BeginComputePass:
			// Unlike a render pass, which is one scope spanning the
			// whole pass because subpass draws may run concurrently,
			// each Dispatch forms its own scope from the bind state
			// accumulated so far in this forward walk (§4.1): two
			// dispatches in the same compute
			// pass are not guaranteed to execute concurrently, so a
			// write from one must be visible to a read (or another
			// write) in the next via its own barrier.
			j := i + 1
			segBegin := j
			for j < len(cmds) {
				if _, ok := cmds[j].(*EndComputePass); ok {
					j++
					break
				}
				sc, err := applyDispatchScopeCommand(segBegin, j, st, cmds[j])
				if err != nil {
					return nil, err
				}
				if sc != nil {
					scopes = append(scopes, sc)
					segBegin = j + 1
				}
				j++
			}
			i = j

		case *CopyBufferToBuffer:
			sc := &scope{kind: scopeCopy, begin: i, end: i + 1}
			sc.use(c.From.key(), subUsage{access: driver.ACopyRead, sync: driver.SCopy, layout: driver.LUndefined})
			sc.use(c.To.key(), subUsage{access: driver.ACopyWrite, sync: driver.SCopy, layout: driver.LUndefined})
			scopes = append(scopes, sc)
			i++

		case *CopyBufferToTexture:
			sc := &scope{kind: scopeCopy, begin: i, end: i + 1}
			sc.use(c.From.key(), subUsage{access: driver.ACopyRead, sync: driver.SCopy, layout: driver.LUndefined})
			sc.use(c.To.key(c.Layer, c.Level, colorOrDepthAspect(c.To.format)), subUsage{access: driver.ACopyWrite, sync: driver.SCopy, layout: driver.LCopyDst})
			scopes = append(scopes, sc)
			i++

		case *CopyTextureToBuffer:
			sc := &scope{kind: scopeCopy, begin: i, end: i + 1}
			sc.use(c.From.key(c.Layer, c.Level, colorOrDepthAspect(c.From.format)), subUsage{access: driver.ACopyRead, sync: driver.SCopy, layout: driver.LCopySrc})
			sc.use(c.To.key(), subUsage{access: driver.ACopyWrite, sync: driver.SCopy, layout: driver.LUndefined})
			scopes = append(scopes, sc)
			i++

		case *BindGraphicsPipeline:
			st.graphicsPipeline = c.Pipeline
			i++
		case *BindComputePipeline:
			st.computePipeline = c.Pipeline
			i++
		case *BindDescriptorSets:
			for k, s := range c.Sets {
				st.sets[c.Start+k] = s
			}
			i++
		case *BindVertexBuffers:
			for k, b := range c.Bindings {
				st.vbufs[c.Start+k] = b
			}
			i++
		case *BindIndexBuffer:
			st.ibuf = c
			i++

		default:
			return nil, fmt.Errorf("gpu: command %T used outside of a render or compute pass", c)
		}
	}
	return scopes, nil
}

func colorOrDepthAspect(pf driver.PixelFmt) aspectKind {
	switch pf {
	case driver.D16un, driver.D32f:
		return aspectDepth
	case driver.S8ui:
		return aspectStencil
	case driver.D24unS8ui, driver.D32fS8ui:
		return aspectDepth
	default:
		return aspectColor
	}
}

func addAttachmentUse(sc *scope, v *TextureView, layout driver.Layout, access driver.Access, sync driver.Sync) {
	v.forEachSub(func(layer, level int, aspect aspectKind) {
		sc.use(v.tex.key(layer, level, aspect), subUsage{access: access, sync: sync, layout: layout})
	})
}

// applyDrawScopeCommand folds one render-pass-scope command (a bind
// command or a draw command) into sc, using and updating st.
func applyDrawScopeCommand(sc *scope, st *bindState, cmd Command) error {
	switch c := cmd.(type) {
	case *BindGraphicsPipeline:
		st.graphicsPipeline = c.Pipeline
	case *BindDescriptorSets:
		for k, s := range c.Sets {
			st.sets[c.Start+k] = s
		}
	case *BindVertexBuffers:
		for k, b := range c.Bindings {
			st.vbufs[c.Start+k] = b
		}
	case *BindIndexBuffer:
		st.ibuf = c
	case *Draw:
		addGraphicsDrawUses(sc, st)
	case *DrawIndexed:
		addGraphicsDrawUses(sc, st)
		if st.ibuf != nil {
			sc.use(st.ibuf.Buffer.key(), subUsage{access: driver.AIndexBufRead, sync: driver.SVertexInput})
		}
	case *DrawIndexedIndirect:
		addGraphicsDrawUses(sc, st)
		if st.ibuf != nil {
			sc.use(st.ibuf.Buffer.key(), subUsage{access: driver.AIndexBufRead, sync: driver.SVertexInput})
		}
		sc.use(c.Args.key(), subUsage{access: driver.AAnyRead, sync: driver.SDrawIndirect})
	default:
		return fmt.Errorf("gpu: command %T is not valid inside a render pass", c)
	}
	return nil
}

func addGraphicsDrawUses(sc *scope, st *bindState) {
	for _, b := range st.vbufs {
		sc.use(b.Buffer.key(), subUsage{access: driver.AVertexBufRead, sync: driver.SVertexInput})
	}
	addDescSetUses(sc, st.sets, driver.SVertexShading|driver.SFragmentShading)
}

// applyDispatchScopeCommand folds one compute-pass-scope command into
// the bind state st. A Dispatch closes out and returns a new scope
// covering [segBegin, j] (the binds since the previous dispatch, plus
// this one), so every dispatch in a compute pass gets its own usage
// scope and therefore its own barrier against the one before it; any
// other command only updates st and returns a nil scope.
func applyDispatchScopeCommand(segBegin, j int, st *bindState, cmd Command) (*scope, error) {
	switch c := cmd.(type) {
	case *BindComputePipeline:
		st.computePipeline = c.Pipeline
	case *BindDescriptorSets:
		for k, s := range c.Sets {
			st.sets[c.Start+k] = s
		}
	case *Dispatch:
		sc := &scope{kind: scopeCompute, begin: segBegin, end: j + 1}
		addDescSetUses(sc, st.sets, driver.SComputeShading)
		return sc, nil
	default:
		return nil, fmt.Errorf("gpu: command %T is not valid inside a compute pass", c)
	}
	return nil, nil
}

// addDescSetUses records, for every descriptor currently bound across
// sets, the read/write access and layout it implies.
func addDescSetUses(sc *scope, sets map[int]*DescriptorSet, stages driver.Sync) {
	for _, set := range sets {
		sc.sets = append(sc.sets, set)
		for _, b := range set.buffers {
			if b.buf == nil {
				continue
			}
			access := driver.AShaderRead
			if b.typ == driver.DBuffer {
				access |= driver.AShaderWrite
			}
			sc.use(b.buf.key(), subUsage{access: access, sync: stages})
		}
		for _, t := range set.textures {
			if t.view == nil {
				continue
			}
			layout := driver.LShaderRead
			access := driver.AShaderRead
			if t.typ == driver.DImage {
				layout = driver.LCommon
				access |= driver.AShaderWrite
			}
			addAttachmentUse(sc, t.view, layout, access, stages)
		}
	}
}
