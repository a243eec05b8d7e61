package hable

import (
	"context"
	"fmt"
	"math"

	"github.com/gogpu/filmic"
)

// Contrast is applied in log2 space around this scene value.
const (
	ContrastMidpoint = 0.18
	contrastEpsilon  = 1e-5
)

// LuminanceWeights define the grey used by the saturation mix.
var LuminanceWeights = [3]float32{0.25, 0.5, 0.25}

// Evaluator turns filmic.ToneParams into baked response tables.
// It is stateless and safe for concurrent use.
type Evaluator struct{}

// New returns an Evaluator.
func New() *Evaluator { return &Evaluator{} }

// Evaluate bakes p into a CurveSet. It fails on NaN or infinite
// parameters and when ctx is done.
func (e *Evaluator) Evaluate(ctx context.Context, p filmic.ToneParams) (*filmic.CurveSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("hable: %w", err)
	}

	curve := NewCurve(DirectFromUser(UserParams{
		ToeStrength:      p.ToeStrength,
		ToeLength:        p.ToeLength,
		ShoulderStrength: p.ShoulderStrength,
		ShoulderLength:   p.ShoulderLength,
		ShoulderAngle:    p.ShoulderAngle,
		Gamma:            p.Gamma,
	}))
	table := Bake(curve, max(0, p.Contrast), max(1e-3, p.PostGamma))

	exposure := math.Exp2(p.ExposureBias)
	cs := &filmic.CurveSet{
		ColorFilterExposure: [3]float32{
			exposureScalar(p.Red * exposure),
			exposureScalar(p.Green * exposure),
			exposureScalar(p.Blue * exposure),
		},
		LuminanceWeights: LuminanceWeights,
		Saturation:       float32(p.Saturation),
	}
	for c := range cs.Curves {
		cs.Curves[c] = table
	}
	return cs, nil
}

// exposureScalar narrows v to float32, saturating at the largest finite
// value. A zero multiplier times an infinite exposure stays zero.
func exposureScalar(v float64) float32 {
	if math.IsNaN(v) {
		return 0
	}
	return float32(min(max(v, -math.MaxFloat32), math.MaxFloat32))
}

// Bake samples contrast, curve and post gamma at the square-root encoded
// table positions. Results are clamped to [0,1].
func Bake(curve *Curve, contrast, postGamma float64) [filmic.CurveSize]float32 {
	var out [filmic.CurveSize]float32
	logMid := math.Log2(ContrastMidpoint)
	for i := range out {
		x := float64(i) / (filmic.CurveSize - 1)
		x *= x

		v := logContrast(x, logMid, contrast)
		v = curve.Eval(v)
		v = math.Pow(max(v, 0), postGamma)
		out[i] = float32(min(max(v, 0), 1))
	}
	return out
}

func logContrast(x, logMid, contrast float64) float64 {
	lx := math.Log2(x + contrastEpsilon)
	adj := logMid + (lx-logMid)*contrast
	return max(0, math.Exp2(adj)-contrastEpsilon)
}

var _ filmic.CurveEvaluator = (*Evaluator)(nil)
