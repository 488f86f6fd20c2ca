// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package noop

import (
	"errors"

	"github.com/tessera-gpu/tessera/driver"
	"github.com/tessera-gpu/tessera/wsi"
)

// NewSwapchain implements driver.Presenter.
func (g *GPU) NewSwapchain(win wsi.Window, imageCount int) (driver.Swapchain, error) {
	if imageCount <= 0 {
		return nil, errors.New("noop: swapchain needs at least one image")
	}
	sc := &Swapchain{win: win, format: driver.BGRA8sRGB}
	sc.images = make([]*Image, imageCount)
	sc.views = make([]driver.ImageView, imageCount)
	for i := range sc.images {
		img := &Image{
			pf:      sc.format,
			size:    driver.Dim3D{Width: win.Width(), Height: win.Height(), Depth: 1},
			layers:  1,
			levels:  1,
			samples: 1,
			usage:   driver.URenderTarget,
		}
		v, _ := img.NewView(driver.IView2D, 0, 1, 0, 1)
		sc.images[i] = img
		sc.views[i] = v
	}
	return sc, nil
}

// Swapchain implements driver.Swapchain.
type Swapchain struct {
	win    wsi.Window
	format driver.PixelFmt
	images []*Image
	views  []driver.ImageView
	next   int
}

// Views implements driver.Swapchain.
func (s *Swapchain) Views() []driver.ImageView { return s.views }

// Next implements driver.Swapchain.
func (s *Swapchain) Next(cb driver.CmdBuffer) (int, error) {
	idx := s.next
	s.next = (s.next + 1) % len(s.views)
	return idx, nil
}

// Present implements driver.Swapchain.
func (s *Swapchain) Present(index int, cb driver.CmdBuffer) error {
	if index < 0 || index >= len(s.views) {
		return errors.New("noop: present index out of bounds")
	}
	return nil
}

// Recreate implements driver.Swapchain.
func (s *Swapchain) Recreate() error {
	for i := range s.images {
		s.images[i].size = driver.Dim3D{Width: s.win.Width(), Height: s.win.Height(), Depth: 1}
	}
	return nil
}

// Format implements driver.Swapchain.
func (s *Swapchain) Format() driver.PixelFmt { return s.format }

// Destroy implements driver.Destroyer.
func (s *Swapchain) Destroy() {}
