package hable

import "math"

// perceptualGamma shapes the toe length control so small lengths are
// easier to dial in.
const perceptualGamma = 2.2

// UserParams are the artist-facing curve controls.
type UserParams struct {
	ToeStrength      float64 // [0,1]
	ToeLength        float64 // [0,1]
	ShoulderStrength float64 // stops, >= 0
	ShoulderLength   float64 // [0,1]
	ShoulderAngle    float64 // [0,1]
	Gamma            float64
}

// DirectParams place the segment joints explicitly.
type DirectParams struct {
	X0, Y0     float64 // toe to linear joint
	X1, Y1     float64 // linear to shoulder joint
	W          float64 // white point
	OvershootX float64
	OvershootY float64
	Gamma      float64
}

// DirectFromUser converts user controls to joint positions. Out-of-range
// controls are clamped.
func DirectFromUser(u UserParams) DirectParams {
	toeLength := math.Pow(saturate(u.ToeLength), perceptualGamma)
	toeStrength := saturate(u.ToeStrength)
	shoulderAngle := saturate(u.ShoulderAngle)
	shoulderLength := max(1e-5, saturate(u.ShoulderLength))
	shoulderStrength := max(0, u.ShoulderStrength)

	x0 := toeLength * 0.5
	y0 := (1 - toeStrength) * x0

	remainingY := 1 - y0
	initialW := x0 + remainingY
	y1Offset := (1 - shoulderLength) * remainingY
	x1 := x0 + y1Offset
	y1 := y0 + y1Offset

	w := initialW + math.Exp2(shoulderStrength) - 1

	return DirectParams{
		X0:         x0,
		Y0:         y0,
		X1:         x1,
		Y1:         y1,
		W:          w,
		OvershootX: w * 2 * shoulderAngle * shoulderStrength,
		OvershootY: 0.5 * shoulderAngle * shoulderStrength,
		Gamma:      max(1e-3, u.Gamma),
	}
}

// segment is y = exp(lnA + B ln((x-offsetX)*scaleX)) * scaleY + offsetY,
// with y = offsetY where the power base is not positive.
type segment struct {
	offsetX, offsetY float64
	scaleX, scaleY   float64
	lnA, b           float64
}

func (s segment) eval(x float64) float64 {
	x0 := (x - s.offsetX) * s.scaleX
	y0 := 0.0
	if x0 > 0 {
		y0 = math.Exp(s.lnA + s.b*math.Log(x0))
	}
	return y0*s.scaleY + s.offsetY
}

// Curve is a fitted three-segment filmic curve.
type Curve struct {
	w        float64
	x0, x1   float64
	segments [3]segment
}

// NewCurve fits the toe, linear and shoulder segments to p and scales
// the result so that Eval(W) is 1.
func NewCurve(p DirectParams) *Curve {
	c := &Curve{w: p.W}

	// Work in a space where W is 1.
	x0 := p.X0 / p.W
	x1 := p.X1 / p.W
	overshootX := p.OvershootX / p.W
	g := p.Gamma

	m, b := slopeIntercept(x0, x1, p.Y0, p.Y1)
	c.segments[1] = segment{
		offsetX: -(b / m),
		scaleX:  1,
		scaleY:  1,
		lnA:     g * math.Log(m),
		b:       g,
	}
	toeM := linearGammaDerivative(m, b, g, x0)
	shoulderM := linearGammaDerivative(m, b, g, x1)

	y0 := max(1e-5, math.Pow(p.Y0, g))
	y1 := max(1e-5, math.Pow(p.Y1, g))
	overshootY := math.Pow(1+p.OvershootY, g) - 1

	c.x0, c.x1 = x0, x1

	lnA, bt := solveAB(x0, y0, toeM)
	c.segments[0] = segment{scaleX: 1, scaleY: 1, lnA: lnA, b: bt}

	sx := 1 + overshootX - x1
	sy := 1 + overshootY - y1
	lnA, bs := solveAB(sx, sy, shoulderM)
	c.segments[2] = segment{
		offsetX: 1 + overshootX,
		offsetY: 1 + overshootY,
		scaleX:  -1,
		scaleY:  -1,
		lnA:     lnA,
		b:       bs,
	}

	inv := 1 / c.segments[2].eval(1)
	for i := range c.segments {
		c.segments[i].offsetY *= inv
		c.segments[i].scaleY *= inv
	}
	return c
}

// W returns the white point: the input that maps to 1.
func (c *Curve) W() float64 { return c.w }

// Eval maps a linear scene value to display response.
func (c *Curve) Eval(x float64) float64 {
	nx := x / c.w
	switch {
	case nx < c.x0:
		return c.segments[0].eval(nx)
	case nx < c.x1:
		return c.segments[1].eval(nx)
	default:
		return c.segments[2].eval(nx)
	}
}

// solveAB finds f(x) = exp(lnA + B ln x) with f(x0) = y0 and f'(x0) = m.
func solveAB(x0, y0, m float64) (lnA, b float64) {
	b = (m * x0) / y0
	lnA = math.Log(y0) - b*math.Log(x0)
	return lnA, b
}

func slopeIntercept(x0, x1, y0, y1 float64) (m, b float64) {
	dx := x1 - x0
	m = 1
	if dx != 0 {
		m = (y1 - y0) / dx
	}
	return m, y0 - x0*m
}

// linearGammaDerivative is d/dx (mx+b)^g.
func linearGammaDerivative(m, b, g, x float64) float64 {
	return g * m * math.Pow(m*x+b, g-1)
}

func saturate(v float64) float64 {
	return min(max(v, 0), 1)
}
