package filmic

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
)

// =============================================================================
// Test doubles
// =============================================================================

// recordingDevice is a Device that records submitted passes instead of
// drawing them.
type recordingDevice struct {
	mu        sync.Mutex
	limits    DeviceLimits
	bound     RenderTarget
	bindErr   error
	beginErr  error
	failPass  int // index of the pass whose encoding fails, or -1
	frames    []*recordingFrame
	submitted [][]Pass
	closed    bool
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{failPass: -1}
}

func (d *recordingDevice) Name() string         { return "recording" }
func (d *recordingDevice) Limits() DeviceLimits { return d.limits }

func (d *recordingDevice) Bind(target RenderTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bindErr != nil {
		return d.bindErr
	}
	d.bound = target
	return nil
}

func (d *recordingDevice) BeginFrame() (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrBackendUnavailable
	}
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	f := &recordingFrame{dev: d}
	d.frames = append(d.frames, f)
	return f, nil
}

func (d *recordingDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// lastSubmitted returns the passes of the most recent submitted frame.
func (d *recordingDevice) lastSubmitted() []Pass {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submitted) == 0 {
		return nil
	}
	return d.submitted[len(d.submitted)-1]
}

func (d *recordingDevice) submitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submitted)
}

type recordingFrame struct {
	dev       *recordingDevice
	passes    []Pass
	submitted bool
	discarded bool
}

func (f *recordingFrame) EncodePass(p *Pass) error {
	if p.Index == f.dev.failPass {
		return ErrResourceAllocation
	}
	f.passes = append(f.passes, *p)
	return nil
}

func (f *recordingFrame) Submit() error {
	f.submitted = true
	f.dev.mu.Lock()
	f.dev.submitted = append(f.dev.submitted, f.passes)
	f.dev.mu.Unlock()
	return nil
}

func (f *recordingFrame) Discard() { f.discarded = true }

// identityEvaluator returns linear response tables with unit scalars.
func identityEvaluator() CurveEvaluator {
	return CurveEvaluatorFunc(func(_ context.Context, p ToneParams) (*CurveSet, error) {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		cs := &CurveSet{
			ColorFilterExposure: [3]float32{1, 1, 1},
			LuminanceWeights:    [3]float32{0.25, 0.5, 0.25},
			Saturation:          float32(p.Saturation),
		}
		for c := range cs.Curves {
			for i := range cs.Curves[c] {
				cs.Curves[c][i] = float32(i) / (CurveSize - 1)
			}
		}
		return cs, nil
	})
}

// grayImage returns a single-channel image filled with v.
func grayImage(t *testing.T, width, height int, v uint16) *ImageBuffer {
	t.Helper()
	samples := make([]uint16, width*height)
	for i := range samples {
		samples[i] = v
	}
	img, err := NewImageBuffer(samples, width, height)
	if err != nil {
		t.Fatalf("NewImageBuffer() error = %v", err)
	}
	return img
}

func boundPipeline(t *testing.T, dev *recordingDevice, width, height int, opts ...PipelineOption) *RenderPipeline {
	t.Helper()
	p := NewRenderPipeline(dev, identityEvaluator(), opts...)
	if err := p.Bind(NewPixmapTarget(width, height), width, height); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	return p
}

// =============================================================================
// Render Tests
// =============================================================================

func TestRenderPipeline_PassSequence(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 100, 9)
	img := grayImage(t, 100, 9, 1000)

	if err := p.Render(context.Background(), img, DefaultToneParams); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	passes := dev.lastSubmitted()
	if len(passes) != 3 {
		t.Fatalf("submitted %d passes, want 3", len(passes))
	}
	for i, pass := range passes {
		if pass.Index != i {
			t.Errorf("pass %d Index = %d", i, pass.Index)
		}
		wantLoad := gputypes.LoadOpLoad
		if i == 0 {
			wantLoad = gputypes.LoadOpClear
		}
		if pass.Load != wantLoad {
			t.Errorf("pass %d Load = %v, want %v", i, pass.Load, wantLoad)
		}
		wantVP := Viewport{X: 0, Y: i * 3, Width: 100, Height: 3}
		if pass.Viewport != wantVP {
			t.Errorf("pass %d Viewport = %+v, want %+v", i, pass.Viewport, wantVP)
		}
		if len(pass.Pixels) != 300 {
			t.Errorf("pass %d len(Pixels) = %d, want 300", i, len(pass.Pixels))
		}
		if len(pass.Curves) != 3*CurveSize {
			t.Errorf("pass %d len(Curves) = %d, want %d", i, len(pass.Curves), 3*CurveSize)
		}
	}

	u := passes[0].Uniforms
	if u.Width != 100 || u.TileHeight != 3 || u.HDRMax != HDRMax || u.Channels != 1 {
		t.Errorf("Uniforms = %+v", u)
	}
	if u.Saturation != 1 {
		t.Errorf("Uniforms.Saturation = %v, want 1", u.Saturation)
	}
}

func TestRenderPipeline_BandsCoverImage(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 5, 10)

	samples := make([]uint16, 5*10*3)
	for i := range samples {
		samples[i] = uint16(i)
	}
	img, err := NewImageBuffer(samples, 5, 10)
	if err != nil {
		t.Fatalf("NewImageBuffer() error = %v", err)
	}
	if err := p.Render(context.Background(), img, DefaultToneParams); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var got []float32
	for _, pass := range dev.lastSubmitted() {
		got = append(got, pass.Pixels...)
	}
	if len(got) != len(samples) {
		t.Fatalf("bands hold %d samples, want %d", len(got), len(samples))
	}
	for i, v := range got {
		if v != float32(i) {
			t.Fatalf("sample %d = %v, want %d", i, v, i)
		}
	}
}

func TestRenderPipeline_NotReady(t *testing.T) {
	img := grayImage(t, 4, 3, 0)

	p := NewRenderPipeline(nil, identityEvaluator())
	if err := p.Render(context.Background(), img, DefaultToneParams); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Render() without device error = %v, want ErrBackendUnavailable", err)
	}
	if err := p.Bind(NewPixmapTarget(4, 3), 4, 3); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Bind() without device error = %v, want ErrBackendUnavailable", err)
	}

	p.SetDevice(newRecordingDevice())
	if err := p.Render(context.Background(), img, DefaultToneParams); !errors.Is(err, ErrSurfaceNotBound) {
		t.Errorf("Render() without surface error = %v, want ErrSurfaceNotBound", err)
	}
	if err := p.Bind(nil, 4, 3); !errors.Is(err, ErrSurfaceNotBound) {
		t.Errorf("Bind(nil) error = %v, want ErrSurfaceNotBound", err)
	}
}

func TestRenderPipeline_SetDeviceDropsBinding(t *testing.T) {
	p := boundPipeline(t, newRecordingDevice(), 4, 3)
	if err := p.Ready(); err != nil {
		t.Fatalf("Ready() = %v, want nil", err)
	}
	next := newRecordingDevice()
	p.SetDevice(next)
	if p.Device() != next {
		t.Error("Device() did not return the replacement")
	}
	if err := p.Ready(); !errors.Is(err, ErrSurfaceNotBound) {
		t.Errorf("Ready() after SetDevice = %v, want ErrSurfaceNotBound", err)
	}
}

func TestRenderPipeline_BindErrors(t *testing.T) {
	dev := newRecordingDevice()
	p := NewRenderPipeline(dev, identityEvaluator())

	if err := p.Bind(NewPixmapTarget(4, 4), 0, 4); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("Bind(0x4) error = %v, want ErrInvalidDimension", err)
	}

	dev.bindErr = ErrSurfaceNotBound
	if err := p.Bind(NewPixmapTarget(4, 4), 4, 4); !errors.Is(err, ErrSurfaceNotBound) {
		t.Errorf("Bind() error = %v, want device error", err)
	}
	if err := p.Ready(); !errors.Is(err, ErrSurfaceNotBound) {
		t.Errorf("Ready() after failed Bind = %v, want ErrSurfaceNotBound", err)
	}
}

func TestRenderPipeline_BindResizesTarget(t *testing.T) {
	dev := newRecordingDevice()
	p := NewRenderPipeline(dev, identityEvaluator())
	target := NewPixmapTarget(1, 1)

	if err := p.Bind(target, 10, 6); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if target.Width() != 10 || target.Height() != 6 {
		t.Errorf("target size = %dx%d, want 10x6", target.Width(), target.Height())
	}
	if dev.bound != target {
		t.Error("device was not bound to the target")
	}
}

func TestRenderPipeline_DimensionMismatch(t *testing.T) {
	p := boundPipeline(t, newRecordingDevice(), 4, 3)

	if err := p.Render(context.Background(), grayImage(t, 4, 6, 0), DefaultToneParams); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("Render(4x6 on 4x3) error = %v, want ErrInvalidDimension", err)
	}
	if err := p.Render(context.Background(), nil, DefaultToneParams); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("Render(nil) error = %v, want ErrInvalidDimension", err)
	}
}

func TestRenderPipeline_EncodeFailureDiscardsFrame(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 4, 9)
	dev.failPass = 1

	err := p.Render(context.Background(), grayImage(t, 4, 9, 0), DefaultToneParams)
	if !errors.Is(err, ErrResourceAllocation) {
		t.Fatalf("Render() error = %v, want ErrResourceAllocation", err)
	}
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("Render() error %T is not *RenderError", err)
	}
	if re.Tile != 1 || re.Op != "encode pass" {
		t.Errorf("RenderError = %+v, want encode pass at tile 1", re)
	}
	if dev.submitCount() != 0 {
		t.Errorf("submitted %d frames, want 0", dev.submitCount())
	}
	if f := dev.frames[0]; !f.discarded || f.submitted {
		t.Errorf("frame discarded=%v submitted=%v, want discarded only", f.discarded, f.submitted)
	}
}

func TestRenderPipeline_BeginFrameFailure(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 4, 3)
	_ = dev.Close()

	err := p.Render(context.Background(), grayImage(t, 4, 3, 0), DefaultToneParams)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Render() on closed device error = %v, want ErrBackendUnavailable", err)
	}
}

func TestRenderPipeline_EvaluatorFailure(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 4, 3)

	params := DefaultToneParams
	params.Contrast = math.NaN()
	err := p.Render(context.Background(), grayImage(t, 4, 3, 0), params)
	var re *RenderError
	if !errors.As(err, &re) || re.Op != "evaluate curves" || re.Tile != -1 {
		t.Errorf("Render() error = %v, want evaluate curves RenderError", err)
	}
	if len(dev.frames) != 0 {
		t.Errorf("began %d frames, want 0", len(dev.frames))
	}

	none := NewRenderPipeline(dev, nil)
	if err := none.Bind(NewPixmapTarget(4, 3), 4, 3); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := none.Render(context.Background(), grayImage(t, 4, 3, 0), DefaultToneParams); err == nil {
		t.Error("Render() without evaluator should fail")
	}
}

func TestRenderPipeline_CanceledContext(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 4, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Render(ctx, grayImage(t, 4, 3, 0), DefaultToneParams)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Render() error = %v, want context.Canceled", err)
	}
	if dev.submitCount() != 0 {
		t.Errorf("submitted %d frames, want 0", dev.submitCount())
	}
}

func TestRenderPipeline_PolicyFromDeviceLimits(t *testing.T) {
	dev := newRecordingDevice()
	// One 8-pixel RGB row is 96 bytes; 150 allows only single-row bands.
	dev.limits.MaxStorageBufferBindingSize = 150
	p := boundPipeline(t, dev, 8, 10)

	img, err := NewImageBuffer(make([]uint16, 8*10*3), 8, 10)
	if err != nil {
		t.Fatalf("NewImageBuffer() error = %v", err)
	}
	if err := p.Render(context.Background(), img, DefaultToneParams); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := len(dev.lastSubmitted()); got != 10 {
		t.Errorf("submitted %d passes, want 10", got)
	}
}

func TestRenderPipeline_ExplicitPolicyWins(t *testing.T) {
	dev := newRecordingDevice()
	dev.limits.MaxStorageBufferBindingSize = 150
	p := boundPipeline(t, dev, 8, 12, WithTilePolicy(TilePolicy{MinTiles: 4}))

	if err := p.Render(context.Background(), grayImage(t, 8, 12, 0), DefaultToneParams); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := len(dev.lastSubmitted()); got != 4 {
		t.Errorf("submitted %d passes, want 4", got)
	}
}

func TestRenderPipeline_CurveCache(t *testing.T) {
	dev := newRecordingDevice()
	calls := 0
	eval := CurveEvaluatorFunc(func(ctx context.Context, p ToneParams) (*CurveSet, error) {
		calls++
		return identityEvaluator().Evaluate(ctx, p)
	})
	p := NewRenderPipeline(dev, eval, WithCurveCache(4))
	if err := p.Bind(NewPixmapTarget(4, 3), 4, 3); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	img := grayImage(t, 4, 3, 0)

	for range 3 {
		if err := p.Render(context.Background(), img, DefaultToneParams); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("evaluator called %d times, want 1", calls)
	}
	if dev.submitCount() != 3 {
		t.Errorf("submitted %d frames, want 3", dev.submitCount())
	}
}

func TestRenderPipeline_Stats(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 6, 10)

	if got := p.Stats(); got.Passes != 0 {
		t.Errorf("Stats() before render = %+v, want zero", got)
	}
	if err := p.Render(context.Background(), grayImage(t, 6, 10, 0), DefaultToneParams); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	s := p.Stats()
	if s.Width != 6 || s.Height != 10 || s.Passes != 5 || s.Layout.TileHeight != 2 {
		t.Errorf("Stats() = %+v, want 6x10 in 5 passes of 2 rows", s)
	}
}

func TestRenderPipeline_Idempotent(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 4, 6)
	img := grayImage(t, 4, 6, 500)

	for range 2 {
		if err := p.Render(context.Background(), img, DefaultToneParams); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
	}
	a, b := dev.submitted[0], dev.submitted[1]
	if len(a) != len(b) {
		t.Fatalf("pass counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Viewport != b[i].Viewport || a[i].Uniforms != b[i].Uniforms || a[i].Load != b[i].Load {
			t.Errorf("pass %d differs between identical renders", i)
		}
	}
}

// =============================================================================
// Operator Tests
// =============================================================================

func TestRenderPipeline_DefaultOperator(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 4, 3)
	if p.Operator() != OperatorHable {
		t.Errorf("Operator() = %v, want hable", p.Operator())
	}
	if p.DisplaySettings() != DefaultDisplaySettings {
		t.Errorf("DisplaySettings() = %+v, want defaults", p.DisplaySettings())
	}
	if err := p.Render(context.Background(), grayImage(t, 4, 3, 10), DefaultToneParams); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, pass := range dev.lastSubmitted() {
		if pass.Operator != OperatorHable {
			t.Errorf("pass %d Operator = %v, want hable", pass.Index, pass.Operator)
		}
		if pass.Uniforms.DisplayGamma != 2.2 {
			t.Errorf("pass %d DisplayGamma = %v, want 2.2", pass.Index, pass.Uniforms.DisplayGamma)
		}
	}
}

func TestRenderPipeline_OperatorUniforms(t *testing.T) {
	display := DisplaySettings{Lower: 1000, Upper: 40000, Gamma: 1.8}
	tests := []struct {
		op             Operator
		hdrMin, hdrMax float32
	}{
		{OperatorHable, 0, HDRMax},
		{OperatorUncharted2, 0, HDRMax},
		{OperatorLinear, 1000, 40000},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			dev := newRecordingDevice()
			p := boundPipeline(t, dev, 4, 9, WithOperator(tt.op), WithDisplaySettings(display))
			if err := p.Render(context.Background(), grayImage(t, 4, 9, 10), DefaultToneParams); err != nil {
				t.Fatalf("Render() error = %v", err)
			}

			passes := dev.lastSubmitted()
			if len(passes) != 3 {
				t.Fatalf("submitted %d passes, want 3", len(passes))
			}
			for _, pass := range passes {
				if pass.Operator != tt.op {
					t.Errorf("pass %d Operator = %v, want %v", pass.Index, pass.Operator, tt.op)
				}
				u := pass.Uniforms
				if u.HDRMin != tt.hdrMin || u.HDRMax != tt.hdrMax || u.DisplayGamma != 1.8 {
					t.Errorf("pass %d window [%v, %v] gamma %v", pass.Index, u.HDRMin, u.HDRMax, u.DisplayGamma)
				}
			}
			if got := p.Stats().Operator; got != tt.op {
				t.Errorf("Stats().Operator = %v, want %v", got, tt.op)
			}
		})
	}
}

func TestRenderPipeline_SetOperator(t *testing.T) {
	dev := newRecordingDevice()
	p := boundPipeline(t, dev, 4, 3)

	if err := p.SetOperator(OperatorLinear); err != nil {
		t.Fatalf("SetOperator() error = %v", err)
	}
	if err := p.SetOperator(Operator(42)); err == nil {
		t.Error("SetOperator(42) should fail")
	}
	if p.Operator() != OperatorLinear {
		t.Errorf("Operator() = %v, want linear", p.Operator())
	}

	bad := DisplaySettings{Lower: 5, Upper: 5, Gamma: 1}
	if err := p.SetDisplaySettings(bad); err == nil {
		t.Error("SetDisplaySettings(empty window) should fail")
	}
	good := DisplaySettings{Lower: 0, Upper: 100, Gamma: 1}
	if err := p.SetDisplaySettings(good); err != nil {
		t.Fatalf("SetDisplaySettings() error = %v", err)
	}

	if err := p.Render(context.Background(), grayImage(t, 4, 3, 50), DefaultToneParams); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	pass := dev.lastSubmitted()[0]
	if pass.Operator != OperatorLinear || pass.Uniforms.HDRMax != 100 {
		t.Errorf("pass = operator %v, window max %v; want linear, 100", pass.Operator, pass.Uniforms.HDRMax)
	}
}

func TestRenderPipeline_InvalidOperatorOptions(t *testing.T) {
	p := NewRenderPipeline(newRecordingDevice(), identityEvaluator(),
		WithOperator(Operator(9)),
		WithDisplaySettings(DisplaySettings{Lower: 1, Upper: 0, Gamma: 1}))
	if p.Operator() != OperatorHable {
		t.Errorf("Operator() = %v, want hable fallback", p.Operator())
	}
	if p.DisplaySettings() != DefaultDisplaySettings {
		t.Errorf("DisplaySettings() = %+v, want defaults", p.DisplaySettings())
	}
}

func BenchmarkRenderPipeline_Render(b *testing.B) {
	dev := newRecordingDevice()
	p := NewRenderPipeline(dev, identityEvaluator(), WithCurveCache(1))
	if err := p.Bind(NewPixmapTarget(640, 480), 640, 480); err != nil {
		b.Fatal(err)
	}
	img, err := NewImageBuffer(make([]uint16, 640*480*3), 640, 480)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		if err := p.Render(ctx, img, DefaultToneParams); err != nil {
			b.Fatal(err)
		}
	}
}
