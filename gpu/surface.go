// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"sync"

	"github.com/tessera-gpu/tessera/driver"
	"github.com/tessera-gpu/tessera/wsi"
)

// Surface wraps a driver.Swapchain, adding the acquire/present
// bookkeeping described in §4.5 of the presentation model: at most one
// backbuffer may be acquired and not yet presented at a time, which
// is tracked here the way a single binary semaphore would gate
// acquisition on real Vulkan-class hardware (acquire signals it,
// present waits on and consumes it).
type Surface struct {
	ctx   *Context
	win   wsi.Window
	mu    sync.Mutex
	sc    driver.Swapchain
	count int

	pending     bool
	acquiredIdx int
}

// NewSurface creates a presentable surface over win with the
// requested number of backbuffers.
func (c *Context) NewSurface(win wsi.Window, imageCount int) (*Surface, error) {
	presenter, ok := c.gpu.(driver.Presenter)
	if !ok {
		return nil, &Error{Kind: KindSurfaceCreateFailed, Reason: "driver does not implement presentation"}
	}
	sc, err := presenter.NewSwapchain(win, imageCount)
	if err != nil {
		return nil, newCreateFailed("surface", err.Error(), err)
	}
	return &Surface{ctx: c, win: win, sc: sc, count: imageCount}, nil
}

// Views returns the current backbuffer image views, one per
// configured swapchain image.
func (s *Surface) Views() []driver.ImageView { return s.sc.Views() }

// Format returns the pixel format of the surface's backbuffers.
func (s *Surface) Format() driver.PixelFmt { return s.sc.Format() }

// UpdateSurface reconfigures the surface (e.g. after a window resize).
// It fails with ErrImagePending if an acquired image has not yet been
// presented, since recreating the swapchain while a backbuffer is
// outstanding would leave that SurfaceImage referring to a stale view.
func (s *Surface) UpdateSurface() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return ErrImagePending
	}
	if err := s.sc.Recreate(); err != nil {
		return &Error{Kind: KindSurfaceUpdateFailed, Reason: err.Error(), Err: err}
	}
	return nil
}

// SurfaceImage identifies one acquired backbuffer. It must be used as
// a render target (via its View) and marked rendered before it can be
// presented (§9 open question: an acquired image stays outstanding,
// so AcquireImage and UpdateSurface refuse, until it is presented or
// the Surface is destroyed — there is no separate "release without
// presenting" operation, since the driver
// contract offers no way to signal the backbuffer free without
// presenting or recreating the swapchain).
type SurfaceImage struct {
	surface  *Surface
	index    int
	rendered bool
}

// View returns the image view of the acquired backbuffer.
func (img *SurfaceImage) View() driver.ImageView { return img.surface.sc.Views()[img.index] }

// MarkRendered records that a render pass targeting this image has
// been submitted. Present refuses images that were never rendered to,
// per ErrNoRender.
func (img *SurfaceImage) MarkRendered() { img.rendered = true }

// AcquireImage acquires the next available backbuffer. It fails with
// ErrNoImages if an image is already outstanding.
func (s *Surface) AcquireImage(cb driver.CmdBuffer) (*SurfaceImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return nil, ErrNoImages
	}
	idx, err := s.sc.Next(cb)
	if err != nil {
		return nil, &Error{Kind: KindSurfaceImageAcquireFailed, Reason: err.Error(), Err: err}
	}
	s.pending = true
	s.acquiredIdx = idx
	return &SurfaceImage{surface: s, index: idx}, nil
}

// Present queues img for presentation. An ErrBadImage or ErrNoRender
// refusal leaves the image outstanding; once the swapchain's Present
// has been called, the surface's outstanding-image gate is released
// whether or not it succeeds.
func (s *Surface) Present(img *SurfaceImage, cb driver.CmdBuffer) (PresentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img.surface != s {
		return 0, ErrBadImage
	}
	if !img.rendered {
		return 0, ErrNoRender
	}
	err := s.sc.Present(img.index, cb)
	s.pending = false
	if err != nil {
		return 0, &Error{Kind: KindSurfacePresentFailed, Reason: err.Error(), Err: err}
	}
	return PresentOK, nil
}

// Destroy destroys the underlying swapchain. The caller must ensure no
// queue work referencing its image views is in flight.
func (s *Surface) Destroy() { s.sc.Destroy() }
