// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package filmic

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
)

// RenderTarget is the drawable surface a RenderPipeline composes frames on.
//
// Targets are created by the host (a window surface, an offscreen texture,
// or a CPU pixmap) and resolved through Host.ResolveSurface. Each backend
// accepts the target kinds it can draw to and rejects the rest in
// Device.Bind.
type RenderTarget interface {
	// Width returns the target width in pixels.
	Width() int

	// Height returns the target height in pixels.
	Height() int

	// Format returns the pixel format of the target.
	Format() gputypes.TextureFormat

	// Resize reallocates the target for new dimensions.
	// The contents are not preserved.
	Resize(width, height int) error
}

// PixelTarget is a RenderTarget with CPU-addressable RGBA8 pixels.
type PixelTarget interface {
	RenderTarget

	// Pixels returns the pixel data, 4 bytes per pixel.
	Pixels() []byte

	// Stride returns the number of bytes per row.
	Stride() int
}

// PixmapTarget is a CPU-backed render target using *image.RGBA.
//
// It is the target of the software backend and of tests that inspect
// rendered pixels.
type PixmapTarget struct {
	img *image.RGBA
}

// NewPixmapTarget creates a CPU-backed render target.
func NewPixmapTarget(width, height int) *PixmapTarget {
	return &PixmapTarget{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Width returns the target width in pixels.
func (t *PixmapTarget) Width() int {
	return t.img.Bounds().Dx()
}

// Height returns the target height in pixels.
func (t *PixmapTarget) Height() int {
	return t.img.Bounds().Dy()
}

// Format returns the pixel format (RGBA8).
func (t *PixmapTarget) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Pixels returns direct access to the pixel data.
func (t *PixmapTarget) Pixels() []byte {
	return t.img.Pix
}

// Stride returns the number of bytes per row.
func (t *PixmapTarget) Stride() int {
	return t.img.Stride
}

// Image returns the underlying *image.RGBA.
// The returned image shares memory with the target.
func (t *PixmapTarget) Image() *image.RGBA {
	return t.img
}

// RGBAAt returns the pixel at (x, y).
func (t *PixmapTarget) RGBAAt(x, y int) color.RGBA {
	return t.img.RGBAAt(x, y)
}

// Resize replaces the pixel buffer. The contents are not preserved.
func (t *PixmapTarget) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: resize to %dx%d", ErrInvalidDimension, width, height)
	}
	if width == t.Width() && height == t.Height() {
		return nil
	}
	t.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

var _ PixelTarget = (*PixmapTarget)(nil)
