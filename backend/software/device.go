// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package software

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/filmic"
	"github.com/gogpu/filmic/backend"
	"github.com/gogpu/filmic/internal/parallel"
	"github.com/gogpu/filmic/internal/shader"
	"github.com/gogpu/gputypes"
)

func init() {
	backend.Register(backend.NameSoftware, func() (filmic.Device, error) {
		dev, err := Open()
		if err != nil {
			return nil, err
		}
		return dev, nil
	})
}

// ErrFrameDone is returned when a frame is used after Submit or Discard.
var ErrFrameDone = errors.New("software: frame already finished")

// minRowsPerSpan keeps row spans large enough to amortize scheduling.
const minRowsPerSpan = 8

// PassReport records one executed pass.
type PassReport struct {
	Index    int
	Operator filmic.Operator
	Viewport filmic.Viewport
	Load     gputypes.LoadOp
}

// FrameReport records the passes of the last submitted frame.
type FrameReport struct {
	Passes []PassReport
}

// Device is the CPU render device.
type Device struct {
	mu         sync.Mutex
	pool       *parallel.WorkerPool
	maxStorage uint64
	target     filmic.PixelTarget
	back       []byte
	last       FrameReport
	frames     uint64
	closed     bool

	log atomic.Pointer[slog.Logger]
}

// Open creates a software device. It never fails; the error return
// matches the other backends.
func Open(opts ...Option) (*Device, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Device{
		pool:       parallel.NewWorkerPool(o.workers),
		maxStorage: o.maxStorage,
	}, nil
}

// Name returns backend.NameSoftware.
func (d *Device) Name() string { return backend.NameSoftware }

// Limits reports the emulated storage buffer limit.
func (d *Device) Limits() filmic.DeviceLimits {
	return filmic.DeviceLimits{MaxStorageBufferBindingSize: d.maxStorage}
}

// SetLogger sets the device logger. Nil restores filmic.Logger.
func (d *Device) SetLogger(l *slog.Logger) {
	d.log.Store(l)
}

func (d *Device) logger() *slog.Logger {
	if l := d.log.Load(); l != nil {
		return l
	}
	return filmic.Logger()
}

// Bind attaches target. It must be an RGBA8 filmic.PixelTarget.
func (d *Device) Bind(target filmic.RenderTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return filmic.ErrBackendUnavailable
	}
	pt, ok := target.(filmic.PixelTarget)
	if !ok {
		return fmt.Errorf("software: %w: %T has no CPU pixels", filmic.ErrSurfaceNotBound, target)
	}
	if f := pt.Format(); f != gputypes.TextureFormatRGBA8Unorm {
		return fmt.Errorf("software: %w: unsupported format %v", filmic.ErrSurfaceNotBound, f)
	}
	d.target = pt
	return nil
}

// BeginFrame opens a frame recording passes for the bound target.
func (d *Device) BeginFrame() (filmic.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, filmic.ErrBackendUnavailable
	}
	if d.target == nil {
		return nil, filmic.ErrSurfaceNotBound
	}
	return &frame{dev: d}, nil
}

// LastFrame returns the passes of the most recently submitted frame.
func (d *Device) LastFrame() FrameReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return FrameReport{Passes: append([]PassReport(nil), d.last.Passes...)}
}

// Frames returns the number of frames submitted so far.
func (d *Device) Frames() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Close stops the worker pool. Close is safe to call multiple times.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.pool.Close()
	d.target = nil
	d.back = nil
	return nil
}

// execute runs passes into the back buffer and publishes it to the
// target.
func (d *Device) execute(passes []filmic.Pass) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return filmic.ErrBackendUnavailable
	}
	target := d.target
	if target == nil {
		return filmic.ErrSurfaceNotBound
	}

	pix := target.Pixels()
	if cap(d.back) < len(pix) {
		d.back = make([]byte, len(pix))
	}
	back := d.back[:len(pix)]
	copy(back, pix)

	width, height, stride := target.Width(), target.Height(), target.Stride()
	report := make([]PassReport, 0, len(passes))
	for i := range passes {
		p := &passes[i]
		if p.Load == gputypes.LoadOpClear {
			clear8(back, filmic.ClearColor)
		}
		d.shade(back, stride, width, height, p)
		report = append(report, PassReport{Index: p.Index, Operator: p.Operator, Viewport: p.Viewport, Load: p.Load})
	}

	copy(pix, back)
	d.last = FrameReport{Passes: report}
	d.frames++

	d.logger().Debug("software frame submitted", "passes", len(passes), "width", width, "height", height)
	return nil
}

// shade evaluates the fragment stage over the pass viewport, clipped to
// the target.
func (d *Device) shade(dst []byte, stride, width, height int, p *filmic.Pass) {
	vp := p.Viewport
	x0, x1 := max(vp.X, 0), min(vp.X+vp.Width, width)
	y0, y1 := max(vp.Y, 0), min(vp.Y+vp.Height, height)
	if x0 >= x1 || y0 >= y1 {
		return
	}

	u := p.Uniforms
	fragment := shader.FragmentFor(p.Operator)
	d.pool.ForRows(y1-y0, minRowsPerSpan, func(start, end int) {
		for y := y0 + start; y < y0+end; y++ {
			row := dst[y*stride:]
			for x := x0; x < x1; x++ {
				c := fragment(&u, p.Pixels, p.Curves, x-vp.X, y-vp.Y)
				o := x * 4
				row[o+0] = unorm8(c[0])
				row[o+1] = unorm8(c[1])
				row[o+2] = unorm8(c[2])
				row[o+3] = unorm8(c[3])
			}
		}
	})
}

func clear8(buf []byte, c gputypes.Color) {
	px := [4]byte{unorm8(float32(c.R)), unorm8(float32(c.G)), unorm8(float32(c.B)), unorm8(float32(c.A))}
	for i := 0; i+4 <= len(buf); i += 4 {
		copy(buf[i:i+4], px[:])
	}
}

// unorm8 converts a [0,1] channel to 8 bits, rounding to nearest.
func unorm8(v float32) byte {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}

var _ filmic.Device = (*Device)(nil)
