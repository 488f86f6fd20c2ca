// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package noop

// Window is a minimal wsi.Window implementation for tests that need
// a surface to present to without a real platform window.
type Window struct {
	W, H int
}

// NewWindow creates a Window of the given size.
func NewWindow(w, h int) *Window { return &Window{W: w, H: h} }

// Resize implements wsi.Window.
func (w *Window) Resize(width, height int) error {
	w.W, w.H = width, height
	return nil
}

// Close implements wsi.Window.
func (w *Window) Close() {}

// Width implements wsi.Window.
func (w *Window) Width() int { return w.W }

// Height implements wsi.Window.
func (w *Window) Height() int { return w.H }
