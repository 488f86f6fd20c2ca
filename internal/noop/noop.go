// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package noop implements the driver interfaces without touching any
// real GPU. It exists so that the translator in package gpu can be
// exercised deterministically in tests, the same role a "noop"/"null"
// backend plays in other GPU abstraction libraries.
package noop

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tessera-gpu/tessera/driver"
)

const driverName = "noop"

// Driver implements driver.Driver, handing out a single shared GPU
// instance, as the real driver.Driver contract requires.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

func init() { driver.Register(&Driver{}) }

// Name implements driver.Driver.
func (d *Driver) Name() string { return driverName }

// Open implements driver.Driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		d.gpu = newGPU(d)
	}
	return d.gpu, nil
}

// Close implements driver.Driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gpu = nil
}

// New creates a standalone Driver/GPU pair without registering it
// globally. Tests that need an isolated instance (rather than the
// process-wide registry) use this instead of driver.Drivers.
func New() (*Driver, *GPU) {
	d := &Driver{}
	g := newGPU(d)
	d.gpu = g
	return d, g
}

// pendingCommit is a Commit call awaiting manual completion.
// See GPU.SetAutoComplete.
type pendingCommit struct {
	ch chan<- error
}

// GPU implements driver.GPU (and driver.Presenter) by recording
// enough bookkeeping to validate command-buffer usage, without
// executing anything.
type GPU struct {
	drv *Driver

	auto atomic.Bool

	mu      sync.Mutex
	pending []pendingCommit

	limits driver.Limits
}

func newGPU(d *Driver) *GPU {
	g := &GPU{drv: d, limits: defaultLimits()}
	g.auto.Store(true)
	return g
}

func defaultLimits() driver.Limits {
	return driver.Limits{
		MaxImage1D:        16384,
		MaxImage2D:        16384,
		MaxImageCube:      16384,
		MaxImage3D:        2048,
		MaxLayers:         2048,
		MaxDescHeaps:      8,
		MaxDBuffer:        1 << 16,
		MaxDImage:         1 << 16,
		MaxDConstant:      1 << 14,
		MaxDTexture:       1 << 16,
		MaxDSampler:       4096,
		MaxDBufferRange:   1 << 30,
		MaxDConstantRange: 1 << 16,
		MaxColorTargets:   8,
		MaxFBSize:         [2]int{16384, 16384},
		MaxFBLayers:       2048,
		MaxPointSize:      256,
		MaxViewports:      16,
		MaxVertexIn:       32,
		MaxFragmentIn:     32,
		MaxDispatch:       [3]int{65535, 65535, 65535},
		NonCoherentAtom:   64,
		MinUniformOffset:  256,
		MinStorageOffset:  64,
	}
}

// Driver implements driver.GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Limits implements driver.GPU.
func (g *GPU) Limits() driver.Limits { return g.limits }

var errNotEnded = errors.New("noop: command buffer was not ended")

// Commit implements driver.GPU.
// By default, every submission completes asynchronously but almost
// immediately. Call SetAutoComplete(false) to take manual control of
// completion timing (needed to exercise the garbage collector's
// deferral behavior deterministically).
func (g *GPU) Commit(cb []driver.CmdBuffer, ch chan<- error) {
	for _, c := range cb {
		nc, ok := c.(*CmdBuffer)
		if !ok || nc.recording || !nc.ended {
			go func() { ch <- errNotEnded }()
			return
		}
	}
	if g.auto.Load() {
		go func() { ch <- nil }()
		return
	}
	g.mu.Lock()
	g.pending = append(g.pending, pendingCommit{ch})
	g.mu.Unlock()
}

// SetAutoComplete toggles whether Commit calls complete immediately
// (the default) or wait for CompletePending.
func (g *GPU) SetAutoComplete(auto bool) { g.auto.Store(auto) }

// CompletePending releases up to n queued Commit calls (all of them,
// in FIFO order, if n <= 0), signaling a nil error on each one's
// channel. It returns the number actually completed.
func (g *GPU) CompletePending(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= 0 || n > len(g.pending) {
		n = len(g.pending)
	}
	for i := 0; i < n; i++ {
		g.pending[i].ch <- nil
	}
	g.pending = g.pending[n:]
	return n
}

// PendingCount reports how many Commit calls are awaiting completion.
func (g *GPU) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
