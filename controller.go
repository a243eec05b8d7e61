package filmic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Host is implemented by the application that owns the display surface.
//
// The controller never creates surfaces itself; it asks the host for one
// whenever the image dimensions change.
type Host interface {
	// ResolveSurface returns the render target for a width x height image.
	ResolveSurface(width, height int) (RenderTarget, error)

	// ImageChanged is called after a new image was loaded and its surface
	// bound, e.g. to reset zoom or scroll state.
	ImageChanged(width, height int)
}

// FrameInfo describes a completed render.
type FrameInfo struct {
	Params ToneParams
	Stats  FrameStats
}

// FrameObserver is an optional Host extension notified after each
// successful render.
type FrameObserver interface {
	FrameRendered(FrameInfo)
}

// HostFuncs adapts plain functions to Host and FrameObserver.
// Nil fields are skipped; a nil Surface makes ResolveSurface fail with
// ErrSurfaceNotBound.
type HostFuncs struct {
	Surface        func(width, height int) (RenderTarget, error)
	OnImageChanged func(width, height int)
	OnFrame        func(FrameInfo)
}

// ResolveSurface calls h.Surface.
func (h HostFuncs) ResolveSurface(width, height int) (RenderTarget, error) {
	if h.Surface == nil {
		return nil, ErrSurfaceNotBound
	}
	return h.Surface(width, height)
}

// ImageChanged calls h.OnImageChanged if set.
func (h HostFuncs) ImageChanged(width, height int) {
	if h.OnImageChanged != nil {
		h.OnImageChanged(width, height)
	}
}

// FrameRendered calls h.OnFrame if set.
func (h HostFuncs) FrameRendered(info FrameInfo) {
	if h.OnFrame != nil {
		h.OnFrame(info)
	}
}

// Controller binds the current image and tone parameters to a render
// pipeline, scheduling renders through an ActionCoalescer.
//
// One Controller is created per display surface and closed at shutdown.
// All methods are safe for concurrent use.
type Controller struct {
	// loadMu serializes SetImage so the bound surface always matches the
	// published image.
	loadMu sync.Mutex

	mu     sync.Mutex
	image  *ImageBuffer
	params ToneParams

	pipeline  *RenderPipeline
	coalescer *ActionCoalescer
	host      Host
	observer  FrameObserver
	onError   func(error)
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller. The coalescer is used as given;
// the caller decides whether it ticks on its own (Start) or is driven
// with Tick.
func NewController(pipeline *RenderPipeline, coalescer *ActionCoalescer, host Host, opts ...ControllerOption) *Controller {
	o := controllerOptions{params: DefaultToneParams}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		params:    o.params,
		pipeline:  pipeline,
		coalescer: coalescer,
		host:      host,
		onError:   o.onError,
		log:       o.logger,
	}
	if obs, ok := host.(FrameObserver); ok {
		c.observer = obs
	}
	if c.onError == nil {
		c.onError = c.logError
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

func (c *Controller) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return Logger()
}

func (c *Controller) logError(err error) {
	c.logger().Warn("render failed", "err", err)
}

// SetImage replaces the current image, resolves a surface for its size
// and binds it to the pipeline. The host is then told the image changed.
//
// On failure the previous image stays current.
func (c *Controller) SetImage(samples []uint16, width, height int) error {
	img, err := NewImageBuffer(samples, width, height)
	if err != nil {
		return err
	}
	if c.host == nil {
		return fmt.Errorf("%w: controller has no host", ErrSurfaceNotBound)
	}

	if err := c.load(img); err != nil {
		return err
	}
	c.logger().Info("image loaded",
		"width", width, "height", height, "channels", img.Channels())
	c.host.ImageChanged(width, height)
	return nil
}

// load binds a surface sized for img and publishes img as current.
func (c *Controller) load(img *ImageBuffer) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	width, height := img.Width(), img.Height()
	target, err := c.host.ResolveSurface(width, height)
	if err != nil {
		return fmt.Errorf("filmic: resolve surface: %w", err)
	}
	if target == nil {
		return ErrSurfaceNotBound
	}
	if err := c.pipeline.Bind(target, width, height); err != nil {
		return err
	}

	c.mu.Lock()
	c.image = img
	c.mu.Unlock()
	return nil
}

// SetParams replaces the current tone parameters. It does not render.
func (c *Controller) SetParams(p ToneParams) {
	c.mu.Lock()
	c.params = p
	c.mu.Unlock()
}

// Params returns the current tone parameters.
func (c *Controller) Params() ToneParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// Image returns the current image, or nil before the first SetImage.
func (c *Controller) Image() *ImageBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image
}

// RequestRender schedules a render of the current image with a snapshot
// of the current parameters. Later SetParams calls do not affect it.
//
// Without an image RequestRender does nothing and returns nil. If the
// pipeline cannot render it returns ErrBackendUnavailable or
// ErrSurfaceNotBound immediately. Failures of the scheduled render
// itself are passed to the error handler.
func (c *Controller) RequestRender() error {
	c.mu.Lock()
	img, params := c.image, c.params
	c.mu.Unlock()

	if img == nil {
		return nil
	}
	if err := c.pipeline.Ready(); err != nil {
		return err
	}

	c.coalescer.Push(func() {
		c.render(img, params)
	})
	return nil
}

func (c *Controller) render(img *ImageBuffer, params ToneParams) {
	err := c.pipeline.Render(c.ctx, img, params)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.onError(err)
		return
	}
	if c.observer != nil {
		c.observer.FrameRendered(FrameInfo{Params: params, Stats: c.pipeline.Stats()})
	}
}

// Close cancels in-flight curve evaluation. Renders requested after
// Close fail with context.Canceled and are not reported.
func (c *Controller) Close() {
	c.cancel()
}
