// Package shader holds the tonemap program and a CPU reference of its
// fragment stages.
//
// The GPU backend compiles Source; the software backend calls the
// FragmentFunc returned by FragmentFor, which evaluates the same math per
// pixel. Both must stay in step.
package shader

import (
	_ "embed"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/filmic"
	"github.com/gogpu/naga"
)

//go:embed shaders/tonemap.wgsl
var tonemapSource string

// Entry points of the tonemap program. Each operator has its own
// fragment stage; all share the vertex stage and bind group layout.
const (
	VertexEntry     = "vs_main"
	FragmentEntry   = "fs_main"
	Uncharted2Entry = "fs_uncharted2"
	LinearEntry     = "fs_linear"
)

// EntryPoint returns the fragment entry point rendering op.
func EntryPoint(op filmic.Operator) string {
	switch op {
	case filmic.OperatorUncharted2:
		return Uncharted2Entry
	case filmic.OperatorLinear:
		return LinearEntry
	default:
		return FragmentEntry
	}
}

// Source returns the WGSL text of the tonemap program.
func Source() string { return tonemapSource }

// QuadVertices is the full-target triangle strip: x, y, u, v per vertex.
var QuadVertices = [16]float32{
	-1, -1, 0, 1,
	1, -1, 1, 1,
	-1, 1, 0, 0,
	1, 1, 1, 0,
}

// VertexStride is the byte stride of QuadVertices.
const VertexStride = 16

var (
	validateOnce sync.Once
	validateErr  error
	spirv        []byte
)

// Validate compiles the tonemap program to SPIR-V once and reports any
// compile error. Later calls return the cached result.
func Validate() ([]byte, error) {
	validateOnce.Do(func() {
		spirv, validateErr = naga.Compile(tonemapSource)
		if validateErr != nil {
			validateErr = fmt.Errorf("shader: compile tonemap: %w", validateErr)
		}
	})
	return spirv, validateErr
}

// outOfBounds is written for fragments whose sample index falls outside
// the band data.
var outOfBounds = [4]float32{1, 0, 0, 1}

// FragmentFunc is the CPU form of one fragment entry point. x and y are
// relative to the band origin; the result is straight RGBA in [0,1].
type FragmentFunc func(u *filmic.Uniforms, samples, curves []float32, x, y int) [4]float32

// FragmentFor returns the CPU fragment stage of op.
func FragmentFor(op filmic.Operator) FragmentFunc {
	switch op {
	case filmic.OperatorUncharted2:
		return Uncharted2Fragment
	case filmic.OperatorLinear:
		return LinearFragment
	default:
		return Fragment
	}
}

// fetch returns the color of pixel (x, y) normalized by the
// [HDRMin, HDRMax] window, or false when the pixel lies outside the band.
func fetch(u *filmic.Uniforms, samples []float32, x, y int) ([3]float32, bool) {
	width := int(u.Width)
	if x < 0 || y < 0 || x >= width || y >= int(u.TileHeight) {
		return [3]float32{}, false
	}
	channels := int(u.Channels)
	index := (y*width + x) * channels
	if index+channels > len(samples) {
		return [3]float32{}, false
	}

	scale := 1 / (u.HDRMax - u.HDRMin)
	if channels == 1 {
		v := (samples[index] - u.HDRMin) * scale
		return [3]float32{v, v, v}, true
	}
	var rgb [3]float32
	for c := range rgb {
		rgb[c] = (samples[index+c] - u.HDRMin) * scale
	}
	return rgb, true
}

// Fragment evaluates the filmic tonemap for pixel (x, y) of a band.
func Fragment(u *filmic.Uniforms, samples, curves []float32, x, y int) [4]float32 {
	rgb, ok := fetch(u, samples, x, y)
	if !ok {
		return outOfBounds
	}
	rgb = Grade(u, curves, rgb)
	return [4]float32{rgb[0], rgb[1], rgb[2], 1}
}

// Uncharted 2 curve constants and linear white point.
const (
	u2A     = 0.15
	u2B     = 0.50
	u2C     = 0.10
	u2D     = 0.20
	u2E     = 0.02
	u2F     = 0.30
	u2White = 11.2

	// u2MaxInput keeps the squared terms of the curve finite.
	u2MaxInput = 1e6
)

// Uncharted2Partial is the unnormalized Uncharted 2 curve.
func Uncharted2Partial(x float32) float32 {
	return (x*(u2A*x+u2C*u2B)+u2D*u2E)/(x*(u2A*x+u2B)+u2D*u2F) - u2E/u2F
}

// Uncharted2Fragment applies the exposure scalars, the Uncharted 2 curve
// scaled to its white point and the display gamma.
func Uncharted2Fragment(u *filmic.Uniforms, samples, _ []float32, x, y int) [4]float32 {
	rgb, ok := fetch(u, samples, x, y)
	if !ok {
		return outOfBounds
	}
	whiteScale := 1 / Uncharted2Partial(u2White)
	for c := range rgb {
		v := rgb[c] * u.Exposure[c]
		if !(v >= 0) {
			v = 0
		}
		v = min(v, u2MaxInput)
		rgb[c] = displayGamma(Uncharted2Partial(v)*whiteScale, u.DisplayGamma)
	}
	return [4]float32{rgb[0], rgb[1], rgb[2], 1}
}

// LinearFragment maps the [HDRMin, HDRMax] window to [0,1] and applies
// the display gamma.
func LinearFragment(u *filmic.Uniforms, samples, _ []float32, x, y int) [4]float32 {
	rgb, ok := fetch(u, samples, x, y)
	if !ok {
		return outOfBounds
	}
	for c := range rgb {
		rgb[c] = displayGamma(rgb[c], u.DisplayGamma)
	}
	return [4]float32{rgb[0], rgb[1], rgb[2], 1}
}

// displayGamma clamps v to [0,1], NaN to 0, and raises it to 1/gamma.
func displayGamma(v, gamma float32) float32 {
	if !(v >= 0) {
		return 0
	}
	v = min(v, 1)
	if !(gamma > 0) {
		return v
	}
	return float32(math.Pow(float64(v), 1/float64(gamma)))
}

// Grade applies exposure, saturation, the square-root encoding and the
// per-channel response tables to a normalized color.
func Grade(u *filmic.Uniforms, curves []float32, rgb [3]float32) [3]float32 {
	for c := range rgb {
		rgb[c] *= u.Exposure[c]
	}

	grey := rgb[0]*u.LuminanceWeights[0] + rgb[1]*u.LuminanceWeights[1] + rgb[2]*u.LuminanceWeights[2]
	for c := range rgb {
		rgb[c] = grey + u.Saturation*(rgb[c]-grey)
	}

	for c := range rgb {
		v := float32(math.Sqrt(float64(max(rgb[c], 0))))
		rgb[c] = SampleCurve(curves, c*filmic.CurveSize, v)
	}
	return rgb
}

// SampleCurve linearly interpolates the 256-entry table starting at
// offset, at normalized position v. Positions outside [0,1], NaN
// included, clamp to the first or last entry.
func SampleCurve(curves []float32, offset int, v float32) float32 {
	const size = filmic.CurveSize - 1
	x := v * size
	if !(x >= 0) {
		x = 0
	}
	x = min(x, size)
	base := float32(math.Floor(float64(x)))
	t := x - base
	i0 := int(base)
	i1 := min(i0+1, size)
	v0, v1 := curves[offset+i0], curves[offset+i1]
	return v0*(1-t) + v1*t
}
