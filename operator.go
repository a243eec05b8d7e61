package filmic

import (
	"fmt"
	"math"
	"strings"
)

// Operator selects the tone curve a RenderPipeline draws with.
//
// Every operator runs through the same banded pass sequence; only the
// fragment program differs.
type Operator uint8

const (
	// OperatorHable applies exposure, saturation and the baked filmic
	// response tables of the CurveSet.
	OperatorHable Operator = iota

	// OperatorUncharted2 applies the CurveSet exposure scalars followed by
	// the fixed Uncharted 2 filmic curve and the display gamma.
	OperatorUncharted2

	// OperatorLinear maps the display window [Lower, Upper] of raw samples
	// to [0,1] and applies the display gamma. It previews the HDR data
	// without tone mapping.
	OperatorLinear

	operatorCount
)

var operatorNames = [operatorCount]string{"hable", "uncharted2", "linear"}

// String returns the lower-case operator name.
func (o Operator) String() string {
	if o < operatorCount {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", uint8(o))
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool { return o < operatorCount }

// ParseOperator returns the operator named s, ignoring case.
func ParseOperator(s string) (Operator, error) {
	for i, name := range operatorNames {
		if strings.EqualFold(s, name) {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("filmic: unknown operator %q, want one of %s",
		s, strings.Join(operatorNames[:], ", "))
}

// DisplaySettings configure the operators that do not bake response
// tables.
type DisplaySettings struct {
	// Lower and Upper bound the raw sample window of OperatorLinear.
	Lower float64
	Upper float64

	// Gamma is the display gamma of OperatorUncharted2 and OperatorLinear;
	// output is raised to 1/Gamma.
	Gamma float64
}

// DefaultDisplaySettings cover the full 16-bit range with a 2.2 display
// gamma.
var DefaultDisplaySettings = DisplaySettings{
	Lower: 0,
	Upper: HDRMax,
	Gamma: 2.2,
}

// Validate reports non-finite fields, an empty window and a non-positive
// gamma.
func (d DisplaySettings) Validate() error {
	for _, v := range [...]float64{d.Lower, d.Upper, d.Gamma} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("filmic: display settings %+v are not finite", d)
		}
	}
	if d.Upper <= d.Lower {
		return fmt.Errorf("filmic: display window [%v, %v] is empty", d.Lower, d.Upper)
	}
	if d.Gamma <= 0 {
		return fmt.Errorf("filmic: display gamma %v must be positive", d.Gamma)
	}
	return nil
}
