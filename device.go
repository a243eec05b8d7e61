// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package filmic

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// Device is a render backend able to execute tonemap passes.
//
// A Device owns its GPU (or CPU) resources and the bound target. All
// methods except Name and Limits are called with the pipeline lock held,
// so implementations need no locking of their own for a single pipeline.
type Device interface {
	// Name identifies the backend, e.g. "gpu" or "software".
	Name() string

	// Limits reports per-pass resource ceilings.
	Limits() DeviceLimits

	// Bind attaches target as the color attachment of subsequent frames.
	Bind(target RenderTarget) error

	// BeginFrame opens one command batch.
	BeginFrame() (Frame, error)

	// Close releases all backend resources. Further calls fail with
	// ErrBackendUnavailable.
	Close() error
}

// Frame collects the passes of one render and submits them together.
type Frame interface {
	// EncodePass records one viewport-constrained draw. Passes must be
	// encoded in increasing Index order.
	EncodePass(p *Pass) error

	// Submit executes every encoded pass, in order, as one batch.
	Submit() error

	// Discard abandons the frame without touching the target.
	Discard()
}

// DeviceLimits reports backend resource ceilings relevant to band sizing.
type DeviceLimits struct {
	// MaxStorageBufferBindingSize bounds the pixel data of one pass.
	// Zero means unlimited.
	MaxStorageBufferBindingSize uint64
}

// Viewport is the target rectangle a pass writes to, in pixels.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// Pass describes one band of a frame.
type Pass struct {
	Index    int
	Operator Operator
	Uniforms Uniforms
	Pixels   []float32 // band samples, read-only
	Curves   []float32 // 3*CurveSize response values, read-only
	Viewport Viewport
	Load     gputypes.LoadOp
}

// ClearColor is the color the first pass of a frame clears to.
var ClearColor = gputypes.Color{R: 0, G: 0, B: 0, A: 1}

// UniformSize is the size in bytes of the packed Uniforms block,
// padded to a multiple of 16.
const UniformSize = 64

// Uniforms is the per-pass parameter block read by the tonemap shader.
type Uniforms struct {
	Width            float32
	TileHeight       float32
	HDRMin           float32
	HDRMax           float32
	Exposure         [3]float32
	LuminanceWeights [3]float32
	Saturation       float32
	Channels         float32
	DisplayGamma     float32
}

// newUniforms builds the block for one band of img. OperatorLinear
// normalizes by the display window instead of the full sample range.
func newUniforms(img *ImageBuffer, tileHeight int, cs *CurveSet, op Operator, d DisplaySettings) Uniforms {
	u := Uniforms{
		Width:            float32(img.Width()),
		TileHeight:       float32(tileHeight),
		HDRMin:           0,
		HDRMax:           HDRMax,
		Exposure:         cs.ColorFilterExposure,
		LuminanceWeights: cs.LuminanceWeights,
		Saturation:       cs.Saturation,
		Channels:         float32(img.Channels()),
		DisplayGamma:     float32(d.Gamma),
	}
	if op == OperatorLinear {
		u.HDRMin, u.HDRMax = float32(d.Lower), float32(d.Upper)
	}
	return u
}

// Bytes packs the block as 13 little-endian float32 values in shader
// declaration order, zero padded to UniformSize.
func (u Uniforms) Bytes() []byte {
	vals := [13]float32{
		u.Width, u.TileHeight, u.HDRMin, u.HDRMax,
		u.Exposure[0], u.Exposure[1], u.Exposure[2],
		u.LuminanceWeights[0], u.LuminanceWeights[1], u.LuminanceWeights[2],
		u.Saturation, u.Channels, u.DisplayGamma,
	}
	buf := make([]byte, UniformSize)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
