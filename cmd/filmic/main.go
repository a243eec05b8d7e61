// Command filmic tonemaps a 16-bit TIFF or PNG through the filmic pipeline
// and writes the displayed frame as an 8-bit PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/filmic"
	"github.com/gogpu/filmic/backend"
	"github.com/gogpu/filmic/backend/gpu"
	"github.com/gogpu/filmic/backend/software"
	"github.com/gogpu/filmic/hable"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fail(err)
	}
}

type config struct {
	in, out   string
	backend   string
	maxSize   int
	preview   int
	timeout   time.Duration
	verbose   bool
	params    filmic.ToneParams
	curveSets int
	operator  filmic.Operator
	display   filmic.DisplaySettings
}

func parseFlags(args []string) (config, error) {
	c := config{params: filmic.DefaultToneParams, display: filmic.DefaultDisplaySettings}
	fs := flag.NewFlagSet("filmic", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&c.in, "in", "", "input 16-bit TIFF or PNG")
	fs.StringVar(&c.out, "out", "", "output PNG")
	fs.StringVar(&c.backend, "backend", os.Getenv("FILMIC_BACKEND"), "render backend: gpu, software or empty for the best available")
	fs.IntVar(&c.maxSize, "max", 0, "bound the source to this many pixels per side before rendering (0 keeps the full size)")
	fs.IntVar(&c.preview, "preview", 0, "scale the output to this width (0 keeps the rendered size)")
	fs.DurationVar(&c.timeout, "timeout", 30*time.Second, "give up when no frame was rendered after this long")
	fs.BoolVar(&c.verbose, "v", false, "log pipeline diagnostics to stderr")
	fs.IntVar(&c.curveSets, "curve-cache", 0, "memoize this many evaluated curve sets (0 disables)")
	operator := fs.String("operator", filmic.OperatorHable.String(), "tone operator: hable, uncharted2 or linear")
	fs.Float64Var(&c.display.Lower, "lower", c.display.Lower, "lowest sample shown by the linear operator")
	fs.Float64Var(&c.display.Upper, "upper", c.display.Upper, "sample shown as white by the linear operator")
	fs.Float64Var(&c.display.Gamma, "display-gamma", c.display.Gamma, "display gamma of the uncharted2 and linear operators")

	p := &c.params
	fs.Float64Var(&p.Saturation, "saturation", p.Saturation, "saturation")
	fs.Float64Var(&p.ExposureBias, "exposure", p.ExposureBias, "exposure bias in stops")
	fs.Float64Var(&p.Contrast, "contrast", p.Contrast, "contrast around mid grey")
	fs.Float64Var(&p.ToeStrength, "toe-strength", p.ToeStrength, "toe strength [0,1]")
	fs.Float64Var(&p.ToeLength, "toe-length", p.ToeLength, "toe length [0,1]")
	fs.Float64Var(&p.ShoulderStrength, "shoulder-strength", p.ShoulderStrength, "shoulder strength in stops")
	fs.Float64Var(&p.ShoulderLength, "shoulder-length", p.ShoulderLength, "shoulder length [0,1]")
	fs.Float64Var(&p.ShoulderAngle, "shoulder-angle", p.ShoulderAngle, "shoulder angle [0,1]")
	fs.Float64Var(&p.Gamma, "gamma", p.Gamma, "curve gamma")
	fs.Float64Var(&p.PostGamma, "post-gamma", p.PostGamma, "gamma applied after the curve")
	fs.Float64Var(&p.Red, "red", p.Red, "red white-balance multiplier")
	fs.Float64Var(&p.Green, "green", p.Green, "green white-balance multiplier")
	fs.Float64Var(&p.Blue, "blue", p.Blue, "blue white-balance multiplier")

	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.in == "" || c.out == "" {
		fs.Usage()
		return c, errors.New("missing required arguments -in and -out")
	}
	if err := c.params.Validate(); err != nil {
		return c, err
	}
	op, err := filmic.ParseOperator(*operator)
	if err != nil {
		return c, err
	}
	c.operator = op
	if err := c.display.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cfg.verbose {
		l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		filmic.SetLogger(l)
		backend.SetLogger(l)
	}

	src, err := decodeFile(cfg.in)
	if err != nil {
		return err
	}
	src = bound(src, cfg.maxSize)
	samples, width, height := toSamples(src)

	dev, err := openDevice(cfg.backend)
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	out, stats, err := render(ctx, dev, cfg, samples, width, height)
	if err != nil {
		return err
	}
	if cfg.preview > 0 {
		out = scaleToWidth(out, cfg.preview)
	}
	if err := encodePNG(cfg.out, out); err != nil {
		return err
	}

	pr := message.NewPrinter(language.English)
	pr.Printf("%s: %d x %d, %d samples, %s in %d bands of %d rows on %s in %v\n",
		cfg.out, width, height, len(samples), stats.Operator, stats.Passes, stats.Layout.TileHeight,
		dev.Name(), stats.Duration.Round(time.Microsecond))
	return nil
}

func openDevice(name string) (filmic.Device, error) {
	if name == "" {
		return backend.OpenDefault()
	}
	return backend.Open(name)
}

// surfaces creates render targets suited to dev and reads them back.
type surfaces struct {
	dev    filmic.Device
	target filmic.RenderTarget
}

func (s *surfaces) resolve(width, height int) (filmic.RenderTarget, error) {
	if s.target != nil {
		return s.target, nil
	}
	switch d := s.dev.(type) {
	case *gpu.Device:
		t, err := d.NewTarget(width, height)
		if err != nil {
			return nil, err
		}
		s.target = t
	case *software.Device:
		s.target = filmic.NewPixmapTarget(width, height)
	default:
		return nil, fmt.Errorf("%w: no surface for %s backend", filmic.ErrSurfaceNotBound, s.dev.Name())
	}
	return s.target, nil
}

func (s *surfaces) read(ctx context.Context) (*image.RGBA, error) {
	switch t := s.target.(type) {
	case *gpu.Target:
		return t.Image(ctx)
	case *filmic.PixmapTarget:
		return t.Image(), nil
	}
	return nil, filmic.ErrSurfaceNotBound
}

func (s *surfaces) release() {
	if t, ok := s.target.(*gpu.Target); ok {
		t.Release()
	}
}

// render drives one frame through the controller and its coalescer, the
// same path an interactive host takes on every slider change.
func render(ctx context.Context, dev filmic.Device, cfg config, samples []uint16, width, height int) (*image.RGBA, filmic.FrameStats, error) {
	opts := []filmic.PipelineOption{
		filmic.WithOperator(cfg.operator),
		filmic.WithDisplaySettings(cfg.display),
	}
	if cfg.curveSets > 0 {
		opts = append(opts, filmic.WithCurveCache(cfg.curveSets))
	}
	pipeline := filmic.NewRenderPipeline(dev, hable.New(), opts...)

	coalescer := filmic.NewActionCoalescer()
	coalescer.Start(ctx)
	defer coalescer.Close()

	surf := &surfaces{dev: dev}
	defer surf.release()

	frames := make(chan filmic.FrameInfo, 1)
	failures := make(chan error, 1)
	ctrl := filmic.NewController(pipeline, coalescer,
		filmic.HostFuncs{
			Surface: surf.resolve,
			OnFrame: func(info filmic.FrameInfo) { frames <- info },
		},
		filmic.WithInitialParams(cfg.params),
		filmic.WithErrorHandler(func(err error) { failures <- err }),
	)
	defer ctrl.Close()

	if err := ctrl.SetImage(samples, width, height); err != nil {
		return nil, filmic.FrameStats{}, err
	}
	if err := ctrl.RequestRender(); err != nil {
		return nil, filmic.FrameStats{}, err
	}

	select {
	case info := <-frames:
		img, err := surf.read(ctx)
		return img, info.Stats, err
	case err := <-failures:
		return nil, filmic.FrameStats{}, err
	case <-ctx.Done():
		return nil, filmic.FrameStats{}, fmt.Errorf("waiting for frame: %w", ctx.Err())
	}
}

func fail(err error) {
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
