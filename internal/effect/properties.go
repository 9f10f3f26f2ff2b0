package effect

import (
	"encoding/hex"
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/cwbudde/boldbrush/internal/brush"
	"github.com/cwbudde/boldbrush/internal/paint"
)

// Variant selects the finishing pipeline.
type Variant string

const (
	// VariantBold paints coloured strokes over a background.
	VariantBold Variant = "bold"
	// VariantImpasto embosses stroke relief over a softened copy of the source.
	VariantImpasto Variant = "impasto"
)

// Background selects what shows through between bold strokes.
type Background string

const (
	BackgroundOriginal    Background = "original"
	BackgroundBlur        Background = "blur"
	BackgroundSecondary   Background = "secondary_colour"
	BackgroundTransparent Background = "transparent"
)

// ErrUnsupportedValue is wrapped by validation errors for out-of-range or
// unknown property values.
var ErrUnsupportedValue = errors.New("unsupported property value")

// ValidationError reports a property that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// Is makes every ValidationError match ErrUnsupportedValue.
func (e *ValidationError) Is(target error) bool {
	return target == ErrUnsupportedValue
}

// Colour is an sRGB colour that reads and writes as "#rrggbb" or "#rrggbbaa".
type Colour color.NRGBA

// ParseColour parses "#rrggbb" or "#rrggbbaa"; the leading '#' is optional.
func ParseColour(s string) (Colour, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return Colour{}, fmt.Errorf("%w: colour %q", ErrUnsupportedValue, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Colour{}, fmt.Errorf("%w: colour %q", ErrUnsupportedValue, s)
	}
	c := Colour{R: b[0], G: b[1], B: b[2], A: 255}
	if len(b) == 4 {
		c.A = b[3]
	}
	return c, nil
}

func (c Colour) String() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// MarshalText implements encoding.TextMarshaler.
func (c Colour) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Colour) UnmarshalText(text []byte) error {
	parsed, err := ParseColour(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// NRGBA returns the colour as a color.NRGBA.
func (c Colour) NRGBA() color.NRGBA {
	return color.NRGBA(c)
}

// Properties is one snapshot of the user configuration for a render.
type Properties struct {
	Variant Variant `json:"variant"`

	// Radius is the stroke length in pixels for the finest pass.
	Radius             int `json:"radius"`
	StrokeWidthPercent int `json:"strokeWidthPercent"`
	// Blendiness is inverse stroke opacity in percent.
	Blendiness          int `json:"blendiness"`
	PreserveFineDetails int `json:"preserveFineDetails"`

	Background  Background `json:"background"`
	StrokeStyle string     `json:"strokeStyle"`
	Antialias   bool       `json:"antialias"`

	DirectionType   paint.Direction `json:"directionType"`
	StrokeDirection float64         `json:"strokeDirection"`

	Emphasis        paint.Emphasis `json:"emphasis"`
	EmphasisColour  Colour         `json:"emphasisColour"`
	SecondaryColour Colour         `json:"secondaryColour"`

	ImpastoPercent            int     `json:"impastoPercent"`
	ImpastoFineStrokesPercent int     `json:"impastoFineStrokesPercent"`
	ImpastoDirection          float64 `json:"impastoDirection"`
}

// DefaultProperties returns the out-of-the-box configuration.
func DefaultProperties() Properties {
	return Properties{
		Variant:                   VariantBold,
		Radius:                    20,
		StrokeWidthPercent:        40,
		Blendiness:                50,
		PreserveFineDetails:       50,
		Background:                BackgroundBlur,
		StrokeStyle:               brush.StyleRandom,
		Antialias:                 true,
		DirectionType:             paint.DirectionTowardsSimilar,
		StrokeDirection:           0,
		Emphasis:                  paint.EmphasisSmooth,
		EmphasisColour:            Colour{B: 255, A: 255},
		SecondaryColour:           Colour{R: 255, G: 255, B: 255, A: 255},
		ImpastoPercent:            25,
		ImpastoFineStrokesPercent: 25,
		ImpastoDirection:          90,
	}
}

// Validate checks enumerations and ranges. The stroke style is checked
// against a brush library separately.
func (p Properties) Validate() error {
	switch p.Variant {
	case VariantBold, VariantImpasto:
	default:
		return &ValidationError{Field: "variant", Reason: fmt.Sprintf("unknown value %q", p.Variant)}
	}
	ranges := []struct {
		field    string
		v        float64
		min, max float64
	}{
		{"radius", float64(p.Radius), 4, 100},
		{"strokeWidthPercent", float64(p.StrokeWidthPercent), 1, 100},
		{"blendiness", float64(p.Blendiness), 0, 100},
		{"preserveFineDetails", float64(p.PreserveFineDetails), 0, 100},
		{"strokeDirection", p.StrokeDirection, 0, 360},
		{"impastoPercent", float64(p.ImpastoPercent), 0, 100},
		{"impastoFineStrokesPercent", float64(p.ImpastoFineStrokesPercent), 0, 100},
		{"impastoDirection", p.ImpastoDirection, 0, 360},
	}
	for _, r := range ranges {
		if r.v < r.min || r.v > r.max {
			return &ValidationError{Field: r.field, Reason: fmt.Sprintf("must be between %g and %g, got %g", r.min, r.max, r.v)}
		}
	}
	switch p.Background {
	case BackgroundOriginal, BackgroundBlur, BackgroundSecondary, BackgroundTransparent:
	default:
		return &ValidationError{Field: "background", Reason: fmt.Sprintf("unknown value %q", p.Background)}
	}
	if p.StrokeStyle == "" {
		return &ValidationError{Field: "strokeStyle", Reason: "cannot be empty"}
	}
	if err := p.DirectionType.Validate(); err != nil {
		return &ValidationError{Field: "directionType", Reason: err.Error()}
	}
	if err := p.Emphasis.Validate(); err != nil {
		return &ValidationError{Field: "emphasis", Reason: err.Error()}
	}
	return nil
}

// StrokeWidth is the base stroke width in pixels: max(1, radius*percent/50).
func (p Properties) StrokeWidth() int {
	return max(1, p.Radius*p.StrokeWidthPercent/50)
}

// Passes returns how many stroke passes the variant paints.
func (p Properties) Passes() int {
	if p.Variant == VariantImpasto {
		return 3
	}
	return 2
}

// DrawingProperties holds the fields that change which strokes are drawn.
type DrawingProperties struct {
	Variant            Variant
	Radius             int
	StrokeWidthPercent int
	Blendiness         int
	StrokeStyle        string
	Antialias          bool
	DirectionType      paint.Direction
	StrokeDirection    float64
	Emphasis           paint.Emphasis
	EmphasisColour     Colour
}

// ShaderProperties holds the fields that only affect the finishing blend.
type ShaderProperties struct {
	PreserveFineDetails       int
	Background                Background
	SecondaryColour           Colour
	ImpastoPercent            int
	ImpastoFineStrokesPercent int
	ImpastoDirection          float64
}

// DrawingProperties projects p onto the stroke-relevant fields.
func (p Properties) DrawingProperties() DrawingProperties {
	d := DrawingProperties{
		Variant:            p.Variant,
		Radius:             p.Radius,
		StrokeWidthPercent: p.StrokeWidthPercent,
		Blendiness:         p.Blendiness,
		StrokeStyle:        p.StrokeStyle,
		DirectionType:      p.DirectionType,
		StrokeDirection:    p.StrokeDirection,
		Emphasis:           p.Emphasis,
	}
	// Bold strokes are always antialiased.
	if p.Variant == VariantImpasto {
		d.Antialias = p.Antialias
	} else {
		d.Antialias = true
	}
	if p.Emphasis == paint.EmphasisSpecifiedColour {
		d.EmphasisColour = p.EmphasisColour
	}
	return d
}

// ShaderProperties projects p onto the blend-only fields.
func (p Properties) ShaderProperties() ShaderProperties {
	return ShaderProperties{
		PreserveFineDetails:       p.PreserveFineDetails,
		Background:                p.Background,
		SecondaryColour:           p.SecondaryColour,
		ImpastoPercent:            p.ImpastoPercent,
		ImpastoFineStrokesPercent: p.ImpastoFineStrokesPercent,
		ImpastoDirection:          p.ImpastoDirection,
	}
}

// calibrationKey holds the fields that invalidate the sort-key calibration.
type calibrationKey struct {
	radius          int
	direction       paint.Direction
	strokeDirection float64
	emphasis        paint.Emphasis
	emphasisColour  Colour
}

func (p Properties) calibrationKey() calibrationKey {
	d := p.DrawingProperties()
	return calibrationKey{
		radius:          d.Radius,
		direction:       d.DirectionType,
		strokeDirection: d.StrokeDirection,
		emphasis:        d.Emphasis,
		emphasisColour:  d.EmphasisColour,
	}
}

// UpdateAction is the work needed to move from one snapshot to another.
type UpdateAction int

const (
	// UpdateNone means nothing changed.
	UpdateNone UpdateAction = iota
	// UpdateOutput means only shader properties changed: recompose cached layers.
	UpdateOutput
	// RecreateOutput means strokes must be generated and drawn again.
	RecreateOutput
)

func (a UpdateAction) String() string {
	switch a {
	case UpdateNone:
		return "none"
	case UpdateOutput:
		return "update_output"
	default:
		return "recreate_output"
	}
}

// Inspect compares two snapshots and returns the cheapest sufficient update.
func Inspect(old, new Properties) UpdateAction {
	if old == new {
		return UpdateNone
	}
	if old.DrawingProperties() == new.DrawingProperties() {
		return UpdateOutput
	}
	return RecreateOutput
}
