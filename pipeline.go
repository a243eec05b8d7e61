package filmic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
)

// FrameStats describes the most recent successful render.
type FrameStats struct {
	Width, Height int
	Operator      Operator
	Layout        TileLayout
	Passes        int
	Duration      time.Duration
}

// RenderPipeline renders ImageBuffers onto a bound target as a sequence
// of band passes submitted in one batch.
//
// Bind and Render are serialized by an internal mutex, so a render
// running on the coalescer goroutine never observes a half-rebound
// surface.
type RenderPipeline struct {
	mu        sync.Mutex
	device    Device
	evaluator CurveEvaluator
	scheduler *TileScheduler
	operator  Operator
	display   DisplaySettings
	target    RenderTarget
	width     int
	height    int
	stats     FrameStats
}

// NewRenderPipeline creates a pipeline drawing with dev and evaluating
// curves with eval. dev may be nil, in which case Render fails with
// ErrBackendUnavailable until SetDevice is called.
//
// Unless WithTilePolicy is given, the band policy is DefaultTilePolicy
// capped by the device storage buffer limit. Invalid WithOperator or
// WithDisplaySettings values fall back to OperatorHable and
// DefaultDisplaySettings.
func NewRenderPipeline(dev Device, eval CurveEvaluator, opts ...PipelineOption) *RenderPipeline {
	o := pipelineOptions{policy: DefaultTilePolicy, display: DefaultDisplaySettings}
	for _, opt := range opts {
		opt(&o)
	}
	if eval != nil && o.curveCache > 0 {
		eval = NewCachedEvaluator(eval, o.curveCache)
	}

	policy := o.policy
	if !o.policySet && dev != nil {
		policy.MaxBandBytes = dev.Limits().MaxStorageBufferBindingSize
	}
	if !o.operator.Valid() {
		o.operator = OperatorHable
	}
	if o.display.Validate() != nil {
		o.display = DefaultDisplaySettings
	}
	return &RenderPipeline{
		device:    dev,
		evaluator: eval,
		scheduler: NewTileScheduler(policy),
		operator:  o.operator,
		display:   o.display,
	}
}

// SetOperator selects the tone operator of later renders.
func (p *RenderPipeline) SetOperator(op Operator) error {
	if !op.Valid() {
		return fmt.Errorf("filmic: set operator: unknown %v", op)
	}
	p.mu.Lock()
	p.operator = op
	p.mu.Unlock()
	return nil
}

// Operator returns the current tone operator.
func (p *RenderPipeline) Operator() Operator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.operator
}

// SetDisplaySettings replaces the window and gamma used by
// OperatorUncharted2 and OperatorLinear.
func (p *RenderPipeline) SetDisplaySettings(d DisplaySettings) error {
	if err := d.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.display = d
	p.mu.Unlock()
	return nil
}

// DisplaySettings returns the current display settings.
func (p *RenderPipeline) DisplaySettings() DisplaySettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.display
}

// SetDevice replaces the render device. The previous binding is dropped;
// callers must Bind again before rendering.
func (p *RenderPipeline) SetDevice(dev Device) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.device = dev
	p.target = nil
	if dev != nil {
		policy := p.scheduler.Policy()
		policy.MaxBandBytes = dev.Limits().MaxStorageBufferBindingSize
		p.scheduler.SetPolicy(policy)
	}
}

// Device returns the current render device, or nil.
func (p *RenderPipeline) Device() Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

// Bind attaches target sized to width x height. The target is resized
// when its dimensions differ.
func (p *RenderPipeline) Bind(target RenderTarget, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: bind %dx%d", ErrInvalidDimension, width, height)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return ErrBackendUnavailable
	}
	if target == nil {
		return ErrSurfaceNotBound
	}
	if target.Width() != width || target.Height() != height {
		if err := target.Resize(width, height); err != nil {
			return fmt.Errorf("filmic: resize surface: %w", err)
		}
	}
	if err := p.device.Bind(target); err != nil {
		return fmt.Errorf("filmic: bind surface to %s backend: %w", p.device.Name(), err)
	}
	p.target = target
	p.width, p.height = width, height

	Logger().Info("surface bound",
		"backend", p.device.Name(), "width", width, "height", height)
	return nil
}

// Ready reports whether Render could run: a device is set and a surface
// is bound.
func (p *RenderPipeline) Ready() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyLocked()
}

func (p *RenderPipeline) readyLocked() error {
	if p.device == nil {
		return ErrBackendUnavailable
	}
	if p.target == nil {
		return ErrSurfaceNotBound
	}
	return nil
}

// Stats returns statistics of the last successful render.
func (p *RenderPipeline) Stats() FrameStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Render tonemaps img with params onto the bound surface.
//
// The image is split into bands by the tile scheduler. Each band becomes
// one pass whose viewport covers its rows; the first pass clears the
// surface and later passes load it. All passes are submitted together,
// and on any failure nothing is submitted, leaving the previous frame.
func (p *RenderPipeline) Render(ctx context.Context, img *ImageBuffer, params ToneParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.readyLocked(); err != nil {
		return err
	}
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidDimension)
	}
	if img.Width() != p.width || img.Height() != p.height {
		return fmt.Errorf("%w: image %dx%d, surface %dx%d",
			ErrInvalidDimension, img.Width(), img.Height(), p.width, p.height)
	}
	if p.evaluator == nil {
		return renderError("evaluate curves", -1, errors.New("no curve evaluator"))
	}

	start := time.Now()
	cs, err := p.evaluator.Evaluate(ctx, params)
	if err != nil {
		return renderError("evaluate curves", -1, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	layout, err := p.scheduler.Layout(img.Height(), img.Width(), img.Channels())
	if err != nil {
		return renderError("tile layout", -1, err)
	}

	frame, err := p.device.BeginFrame()
	if err != nil {
		return renderError("begin frame", -1, err)
	}

	curves := cs.Flatten()
	uniforms := newUniforms(img, layout.TileHeight, cs, p.operator, p.display)
	for i, r := range layout.Ranges {
		y, h := layout.Rows(i)
		load := gputypes.LoadOpLoad
		if i == 0 {
			load = gputypes.LoadOpClear
		}
		pass := &Pass{
			Index:    i,
			Operator: p.operator,
			Uniforms: uniforms,
			Pixels:   img.Band(r),
			Curves:   curves,
			Viewport: Viewport{X: 0, Y: y, Width: img.Width(), Height: h},
			Load:     load,
		}
		if err := frame.EncodePass(pass); err != nil {
			frame.Discard()
			return renderError("encode pass", i, err)
		}
	}

	if err := frame.Submit(); err != nil {
		return renderError("submit", -1, err)
	}

	p.stats = FrameStats{
		Width:    img.Width(),
		Height:   img.Height(),
		Operator: p.operator,
		Layout:   layout,
		Passes:   layout.Count,
		Duration: time.Since(start),
	}
	Logger().Debug("frame rendered",
		"backend", p.device.Name(),
		"operator", p.operator,
		"tiles", layout.Count,
		"tile_height", layout.TileHeight,
		"elapsed", p.stats.Duration)
	return nil
}
