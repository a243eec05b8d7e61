package filmic

import "fmt"

// HDRMax is the fixed ceiling of 16-bit sensor samples. The shader maps
// [0, HDRMax] to [0, 1] before applying exposure.
const HDRMax = 65536.0

// ImageBuffer holds one HDR frame as float32 samples.
//
// Samples are interleaved when Channels is 3 (R, G, B per pixel) and a
// single luminance plane when Channels is 1. An ImageBuffer is never
// modified after construction, so it can be shared freely between the
// controller and pending render actions.
type ImageBuffer struct {
	width    int
	height   int
	channels int
	samples  []float32
}

// NewImageBuffer widens 16-bit samples to float32 without scaling.
// The channel count is inferred from len(samples)/(width*height) and must
// be 1 or 3.
func NewImageBuffer(samples []uint16, width, height int) (*ImageBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, width, height)
	}
	pixels := width * height
	if len(samples) == 0 || len(samples)%pixels != 0 {
		return nil, fmt.Errorf("%w: %d samples for %dx%d image",
			ErrInvalidDimension, len(samples), width, height)
	}
	channels := len(samples) / pixels
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("%w: %d channels, want 1 or 3", ErrInvalidDimension, channels)
	}

	widened := make([]float32, len(samples))
	for i, s := range samples {
		widened[i] = float32(s)
	}
	return &ImageBuffer{
		width:    width,
		height:   height,
		channels: channels,
		samples:  widened,
	}, nil
}

// Width returns the image width in pixels.
func (b *ImageBuffer) Width() int { return b.width }

// Height returns the image height in pixels.
func (b *ImageBuffer) Height() int { return b.height }

// Channels returns 1 for single-plane images and 3 for interleaved RGB.
func (b *ImageBuffer) Channels() int { return b.channels }

// Len returns the number of float32 samples.
func (b *ImageBuffer) Len() int { return len(b.samples) }

// Samples returns the backing sample slice. Callers must not modify it.
func (b *ImageBuffer) Samples() []float32 { return b.samples }

// Band returns the samples covered by r. The returned slice aliases the
// buffer and must be treated as read-only.
func (b *ImageBuffer) Band(r ByteRange) []float32 {
	return b.samples[r.Offset : r.Offset+r.Length : r.Offset+r.Length]
}

// Row returns the samples of row y.
func (b *ImageBuffer) Row(y int) []float32 {
	stride := b.width * b.channels
	return b.samples[y*stride : (y+1)*stride : (y+1)*stride]
}

// Stride returns the number of samples per row.
func (b *ImageBuffer) Stride() int { return b.width * b.channels }
