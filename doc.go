// Package filmic renders 16-bit HDR frames to a display surface through a
// parametric filmic tone curve.
//
// # Overview
//
// A frame flows through four pieces:
//
//   - [ImageBuffer] holds the widened samples (one plane or interleaved RGB).
//   - A [CurveEvaluator] turns [ToneParams] into a [CurveSet]: three 256-entry
//     response tables plus exposure, luminance weights and saturation.
//     The hable subpackage provides the piecewise Hable filmic curve.
//   - [RenderPipeline] splits the image into equal-height bands chosen by the
//     [TileScheduler] and encodes one viewport-constrained pass per band. The
//     first pass clears the surface and the rest load it, and all passes are
//     submitted as one batch, so the host never sees a partial frame.
//   - [Controller] holds the current image and parameters and schedules
//     renders through an [ActionCoalescer], which ticks at 30 Hz and runs only
//     the most recent request.
//
// # Quick Start
//
//	dev, err := backend.OpenDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	pipeline := filmic.NewRenderPipeline(dev, hable.New(), filmic.WithCurveCache(16))
//	coalescer := filmic.NewActionCoalescer()
//	coalescer.Start(ctx)
//	defer coalescer.Close()
//
//	target := filmic.NewPixmapTarget(w, h)
//	ctrl := filmic.NewController(pipeline, coalescer, filmic.HostFuncs{
//	    Surface: func(w, h int) (filmic.RenderTarget, error) { return target, nil },
//	})
//	if err := ctrl.SetImage(samples, w, h); err != nil {
//	    log.Fatal(err)
//	}
//	ctrl.SetParams(params)
//	_ = ctrl.RequestRender()
//
// # Operators
//
// The default [OperatorHable] draws the baked CurveSet tables.
// [WithOperator] or [RenderPipeline.SetOperator] switch to
// [OperatorUncharted2], the fixed Uncharted 2 curve, or [OperatorLinear], a
// windowed preview of the raw samples. Both use [DisplaySettings] for their
// gamma. All operators share the band and pass sequence.
//
// # Backends
//
// Render devices implement [Device]. The backend package keeps a registry
// with the WebGPU backend (backend/gpu) ahead of the CPU backend
// (backend/software); OpenDefault falls back to software when no GPU
// adapter is available.
//
// # Logging
//
// filmic is silent by default. Use [SetLogger] to route diagnostics to a
// log/slog logger.
package filmic
