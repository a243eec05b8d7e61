package filmic

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ToneParams is the user-facing filmic parameter set.
//
// ToneParams is a comparable value type: assigning it copies every field,
// which is how render requests take their snapshot. No bounds are enforced
// here; range handling belongs to the CurveEvaluator.
type ToneParams struct {
	Saturation       float64
	ExposureBias     float64 // stops
	Contrast         float64
	ToeStrength      float64
	ToeLength        float64
	ShoulderStrength float64 // stops of headroom above white
	ShoulderLength   float64
	ShoulderAngle    float64
	Gamma            float64
	PostGamma        float64

	// Red, Green and Blue are linear white-balance multipliers folded into
	// the color-filter exposure scalars.
	Red   float64
	Green float64
	Blue  float64
}

// DefaultToneParams is the canonical default parameter set.
var DefaultToneParams = ToneParams{
	Saturation:       1.0,
	ExposureBias:     0.0,
	Contrast:         1.0,
	ToeStrength:      0.25,
	ToeLength:        0.5,
	ShoulderStrength: 0.25,
	ShoulderLength:   0.5,
	ShoulderAngle:    0.25,
	Gamma:            1.0,
	PostGamma:        1.0,
	Red:              1.0,
	Green:            1.0,
	Blue:             1.0,
}

// Validate reports NaN or infinite fields.
func (p ToneParams) Validate() error {
	for _, f := range p.fields() {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("filmic: tone parameter %s is %v", f.name, f.value)
		}
	}
	return nil
}

// String formats the parameters as space-separated name=value pairs
// rounded to at most 8 fraction digits.
func (p ToneParams) String() string {
	pr := message.NewPrinter(language.English)
	var sb strings.Builder
	for i, f := range p.fields() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.name)
		sb.WriteByte('=')
		sb.WriteString(pr.Sprint(number.Decimal(f.value, number.MaxFractionDigits(8), number.NoSeparator())))
	}
	return sb.String()
}

type namedField struct {
	name  string
	value float64
}

func (p ToneParams) fields() []namedField {
	return []namedField{
		{"saturation", p.Saturation},
		{"exposureBias", p.ExposureBias},
		{"contrast", p.Contrast},
		{"toeStrength", p.ToeStrength},
		{"toeLength", p.ToeLength},
		{"shoulderStrength", p.ShoulderStrength},
		{"shoulderLength", p.ShoulderLength},
		{"shoulderAngle", p.ShoulderAngle},
		{"gamma", p.Gamma},
		{"postGamma", p.PostGamma},
		{"red", p.Red},
		{"green", p.Green},
		{"blue", p.Blue},
	}
}
