// Package hable evaluates John Hable's piecewise power filmic curve.
//
// The curve has three segments: a power-law toe, a linear section with
// optional gamma, and a mirrored power-law shoulder that reaches 1 at the
// white point W. Evaluator bakes the curve, together with a log contrast
// around mid grey and a post gamma, into the 256-entry response tables of
// a filmic.CurveSet:
//
//	pipeline := filmic.NewRenderPipeline(dev, hable.New())
//
// Table entry i is the response at input (i/255)^2, matching the square
// root encoding the tonemap shader applies before lookup.
package hable
