package paint

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
)

// Emphasis decides which strokes are painted last and therefore stay visible.
type Emphasis string

const (
	EmphasisSpecifiedColour Emphasis = "specified_colour"
	EmphasisColourful       Emphasis = "colourful"
	EmphasisGrey            Emphasis = "grey"
	EmphasisLight           Emphasis = "light"
	EmphasisDark            Emphasis = "dark"
	EmphasisSmooth          Emphasis = "smooth"
	EmphasisRough           Emphasis = "rough"
)

// ErrUnsupportedEmphasis is returned for an Emphasis outside the known set.
var ErrUnsupportedEmphasis = errors.New("unsupported emphasis")

// SupportedEmphases lists the emphasis modes in display order.
func SupportedEmphases() []Emphasis {
	return []Emphasis{
		EmphasisSpecifiedColour,
		EmphasisColourful,
		EmphasisGrey,
		EmphasisLight,
		EmphasisDark,
		EmphasisSmooth,
		EmphasisRough,
	}
}

// ParseEmphasis accepts the canonical names and the US spellings.
func ParseEmphasis(name string) (Emphasis, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "color", "colour")
	e := Emphasis(strings.ReplaceAll(n, "-", "_"))
	if err := e.Validate(); err != nil {
		return "", err
	}
	return e, nil
}

// Validate returns ErrUnsupportedEmphasis for unknown values.
func (e Emphasis) Validate() error {
	for _, known := range SupportedEmphases() {
		if e == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedEmphasis, string(e))
}

// SortFunctions returns the primary and secondary sort keys for e.
// emphasisColour is only used by EmphasisSpecifiedColour.
func SortFunctions(e Emphasis, emphasisColour color.NRGBA) (SortFunc, SortFunc, error) {
	midGrey := func(s Stroke) int32 { return int32(absInt(Intensity(s.DrawColor) - 127)) }
	intensity := func(s Stroke) int32 { return int32(Intensity(s.DrawColor)) }
	saturation := func(s Stroke) int32 { return int32(Saturation(s.DrawColor)) }
	contrast := func(s Stroke) int32 { return int32(RoundTripDistance(s.DrawColor, s.MidColor, s.EndColor)) }

	switch e {
	case EmphasisSpecifiedColour:
		return func(s Stroke) int32 { return -int32(Distance(emphasisColour, s.DrawColor)) }, intensity, nil
	case EmphasisColourful:
		return saturation, midGrey, nil
	case EmphasisGrey:
		return negate(saturation), negate(midGrey), nil
	case EmphasisLight:
		return intensity, saturation, nil
	case EmphasisDark:
		return negate(intensity), saturation, nil
	case EmphasisSmooth:
		return negate(contrast), midGrey, nil
	case EmphasisRough:
		return contrast, midGrey, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedEmphasis, string(e))
	}
}

func negate(f SortFunc) SortFunc {
	return func(s Stroke) int32 { return -f(s) }
}
