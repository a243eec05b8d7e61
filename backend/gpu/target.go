// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/filmic"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// copyRowAlignment is the bytes-per-row alignment of texture to buffer
// copies.
const copyRowAlignment = 256

const targetUsage = gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageTextureBinding

// ErrTargetReleased is returned by a Target after Release.
var ErrTargetReleased = errors.New("gpu: target released")

// Target is an offscreen RGBA8 texture rendered by a Device.
type Target struct {
	dev    *Device
	width  int
	height int
	tex    *wgpu.Texture
	view   *wgpu.TextureView
}

// NewTarget creates an offscreen target of the given size.
func (d *Device) NewTarget(width, height int) (*Target, error) {
	t := &Target{dev: d}
	if err := t.Resize(width, height); err != nil {
		return nil, err
	}
	return t, nil
}

// Width returns the target width in pixels.
func (t *Target) Width() int { return t.width }

// Height returns the target height in pixels.
func (t *Target) Height() int { return t.height }

// Format returns RGBA8Unorm.
func (t *Target) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }

// Resize recreates the texture. The contents are not preserved.
func (t *Target) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: target %dx%d", filmic.ErrInvalidDimension, width, height)
	}
	if t.tex != nil && width == t.width && height == t.height {
		return nil
	}
	device := t.dev.device
	if device == nil {
		return filmic.ErrBackendUnavailable
	}

	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "filmic-target",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         targetUsage,
	})
	if err != nil {
		return allocError("target texture", err)
	}
	view, err := device.CreateTextureView(tex, nil)
	if err != nil {
		tex.Release()
		return allocError("target view", err)
	}

	t.Release()
	t.tex, t.view = tex, view
	t.width, t.height = width, height
	return nil
}

func (t *Target) textureView() (*wgpu.TextureView, error) {
	if t.view == nil {
		return nil, ErrTargetReleased
	}
	return t.view, nil
}

// ReadPixels copies the texture to host memory and returns tightly
// packed RGBA rows.
func (t *Target) ReadPixels(ctx context.Context) ([]byte, error) {
	if t.tex == nil {
		return nil, ErrTargetReleased
	}
	device, queue := t.dev.device, t.dev.queue
	if device == nil {
		return nil, filmic.ErrBackendUnavailable
	}

	rowBytes := uint32(t.width) * 4
	bytesPerRow := alignUp(rowBytes, copyRowAlignment)
	size := uint64(bytesPerRow) * uint64(t.height)

	staging, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "filmic-readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, allocError("readback buffer", err)
	}
	defer staging.Release()

	encoder, err := device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "filmic-readback"})
	if err != nil {
		return nil, allocError("command encoder", err)
	}
	encoder.CopyTextureToBuffer(t.tex, staging, []wgpu.BufferTextureCopy{{
		BufferLayout: wgpu.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: uint32(t.height),
		},
		TextureBase: wgpu.ImageCopyTexture{Texture: t.tex},
		Size: wgpu.Extent3D{
			Width:              uint32(t.width),
			Height:             uint32(t.height),
			DepthOrArrayLayers: 1,
		},
	}})
	cmd, err := encoder.Finish()
	if err != nil {
		return nil, fmt.Errorf("gpu: finish readback: %w", err)
	}
	if _, err := queue.Submit(cmd); err != nil {
		return nil, fmt.Errorf("gpu: submit readback: %w", err)
	}

	if err := staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("gpu: map readback: %w", err)
	}
	defer func() { _ = staging.Unmap() }()
	mapped, err := staging.MappedRange(0, size)
	if err != nil {
		return nil, fmt.Errorf("gpu: mapped range: %w", err)
	}

	src := mapped.Bytes()
	out := make([]byte, int(rowBytes)*t.height)
	for y := range t.height {
		copy(out[y*int(rowBytes):(y+1)*int(rowBytes)], src[y*int(bytesPerRow):])
	}
	return out, nil
}

// Image reads the target back as an *image.RGBA.
func (t *Target) Image(ctx context.Context) (*image.RGBA, error) {
	pix, err := t.ReadPixels(ctx)
	if err != nil {
		return nil, err
	}
	return &image.RGBA{
		Pix:    pix,
		Stride: t.width * 4,
		Rect:   image.Rect(0, 0, t.width, t.height),
	}, nil
}

// Release frees the texture. The target cannot be rendered to or read
// afterwards unless resized.
func (t *Target) Release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

func alignUp(n, a uint32) uint32 {
	return (n + a - 1) / a * a
}

// SurfaceTarget is a window surface texture view provided by the host.
//
// The host swaps in the current frame's view with SetView before each
// render and handles resizes itself; Resize only records the new size.
type SurfaceTarget struct {
	view   gpucontext.TextureView
	format gputypes.TextureFormat
	width  int
	height int
}

// NewSurfaceTarget wraps a host texture view. view must point at a
// *wgpu.TextureView.
func NewSurfaceTarget(view gpucontext.TextureView, format gputypes.TextureFormat, width, height int) *SurfaceTarget {
	return &SurfaceTarget{view: view, format: format, width: width, height: height}
}

// SetView replaces the texture view, typically once per presented frame.
func (s *SurfaceTarget) SetView(view gpucontext.TextureView) { s.view = view }

// Width returns the surface width in pixels.
func (s *SurfaceTarget) Width() int { return s.width }

// Height returns the surface height in pixels.
func (s *SurfaceTarget) Height() int { return s.height }

// Format returns the surface format.
func (s *SurfaceTarget) Format() gputypes.TextureFormat { return s.format }

// Resize records the new surface size.
func (s *SurfaceTarget) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: surface %dx%d", filmic.ErrInvalidDimension, width, height)
	}
	s.width, s.height = width, height
	return nil
}

func (s *SurfaceTarget) textureView() (*wgpu.TextureView, error) {
	if s.view.IsNil() {
		return nil, filmic.ErrSurfaceNotBound
	}
	return (*wgpu.TextureView)(s.view.Pointer()), nil
}

var (
	_ filmic.RenderTarget = (*Target)(nil)
	_ filmic.RenderTarget = (*SurfaceTarget)(nil)
)
