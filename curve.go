package filmic

import (
	"context"
	"fmt"

	"github.com/gogpu/filmic/internal/cache"
)

// CurveSize is the number of entries in each channel response table.
const CurveSize = 256

// CurveSet is the evaluated form of a ToneParams: three response tables
// plus the linear scalars applied before table lookup.
//
// A CurveSet is immutable once returned by a CurveEvaluator and may be
// shared between renders.
type CurveSet struct {
	// Curves holds the R, G and B response tables. Entry i corresponds to
	// the square-root-encoded input i/255.
	Curves [3][CurveSize]float32

	// ColorFilterExposure is multiplied into each channel first.
	ColorFilterExposure [3]float32

	// LuminanceWeights define the grey used by the saturation mix.
	LuminanceWeights [3]float32

	// Saturation scales the distance of each channel from grey.
	Saturation float32
}

// Flatten returns the response tables as one channel-major slice of
// 3*CurveSize values, the layout the tonemap shader indexes.
func (c *CurveSet) Flatten() []float32 {
	out := make([]float32, 0, 3*CurveSize)
	for ch := range c.Curves {
		out = append(out, c.Curves[ch][:]...)
	}
	return out
}

// CurveEvaluator turns a parameter set into a CurveSet.
// Implementations must be deterministic: equal inputs yield equal outputs.
// Evaluate may block and should honor ctx cancellation.
type CurveEvaluator interface {
	Evaluate(ctx context.Context, p ToneParams) (*CurveSet, error)
}

// CurveEvaluatorFunc adapts a function to the CurveEvaluator interface.
type CurveEvaluatorFunc func(ctx context.Context, p ToneParams) (*CurveSet, error)

// Evaluate calls f(ctx, p).
func (f CurveEvaluatorFunc) Evaluate(ctx context.Context, p ToneParams) (*CurveSet, error) {
	return f(ctx, p)
}

// CachedEvaluator memoizes another evaluator by parameter value.
type CachedEvaluator struct {
	next  CurveEvaluator
	cache *cache.Cache[ToneParams, *CurveSet]
}

// DefaultCurveCacheSize is the number of curve sets kept by NewCachedEvaluator
// when size is not positive.
const DefaultCurveCacheSize = 32

// NewCachedEvaluator wraps next so that repeated evaluation of an equal
// ToneParams returns the stored CurveSet without calling next again.
func NewCachedEvaluator(next CurveEvaluator, size int) *CachedEvaluator {
	if size <= 0 {
		size = DefaultCurveCacheSize
	}
	return &CachedEvaluator{
		next:  next,
		cache: cache.New[ToneParams, *CurveSet](size),
	}
}

// Evaluate returns the cached CurveSet for p or evaluates and stores it.
// Failed evaluations are not cached.
func (e *CachedEvaluator) Evaluate(ctx context.Context, p ToneParams) (*CurveSet, error) {
	if cs, ok := e.cache.Get(p); ok {
		return cs, nil
	}
	cs, err := e.next.Evaluate(ctx, p)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("filmic: curve evaluator returned nil curve set")
	}
	e.cache.Set(p, cs)
	return cs, nil
}

// Stats reports hit and miss counts of the underlying cache.
func (e *CachedEvaluator) Stats() cache.Stats {
	return e.cache.Stats()
}
