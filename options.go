package filmic

import (
	"log/slog"
	"time"
)

// PipelineOption configures a RenderPipeline during creation.
//
// Example:
//
//	p := filmic.NewRenderPipeline(dev, hable.New(),
//	    filmic.WithCurveCache(16),
//	    filmic.WithTilePolicy(filmic.TilePolicy{MinTiles: 4}))
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	policy     TilePolicy
	policySet  bool
	curveCache int
	operator   Operator
	display    DisplaySettings
}

// WithTilePolicy sets the band policy. It replaces the default policy
// derived from the device limits.
func WithTilePolicy(p TilePolicy) PipelineOption {
	return func(o *pipelineOptions) {
		o.policy = p
		o.policySet = true
	}
}

// WithCurveCache memoizes curve evaluation, keeping up to size curve sets
// keyed by parameter value. Without it every render evaluates curves.
func WithCurveCache(size int) PipelineOption {
	return func(o *pipelineOptions) {
		o.curveCache = size
	}
}

// WithOperator selects the tone operator. The default is OperatorHable.
func WithOperator(op Operator) PipelineOption {
	return func(o *pipelineOptions) {
		o.operator = op
	}
}

// WithDisplaySettings sets the window and gamma of OperatorUncharted2 and
// OperatorLinear. The default is DefaultDisplaySettings.
func WithDisplaySettings(d DisplaySettings) PipelineOption {
	return func(o *pipelineOptions) {
		o.display = d
	}
}

// CoalescerOption configures an ActionCoalescer.
type CoalescerOption func(*coalescerOptions)

type coalescerOptions struct {
	interval time.Duration
}

// DefaultTickInterval is the coalescer cadence, 30 ticks per second.
const DefaultTickInterval = time.Second / 30

// WithTickInterval sets the period between ticks. Non-positive values
// keep DefaultTickInterval.
func WithTickInterval(d time.Duration) CoalescerOption {
	return func(o *coalescerOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	params  ToneParams
	onError func(error)
	logger  *slog.Logger
}

// WithInitialParams sets the parameters used before the first SetParams.
// The default is DefaultToneParams.
func WithInitialParams(p ToneParams) ControllerOption {
	return func(o *controllerOptions) {
		o.params = p
	}
}

// WithErrorHandler receives failures of renders executed by the
// coalescer. The default handler logs them at warn level.
func WithErrorHandler(fn func(error)) ControllerOption {
	return func(o *controllerOptions) {
		o.onError = fn
	}
}

// WithControllerLogger sets a logger for this controller instead of the
// package logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(o *controllerOptions) {
		o.logger = l
	}
}
