package paint

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
)

// Direction selects how each stroke's orientation is chosen.
type Direction string

const (
	// DirectionTowardsSimilar points strokes along the line of least colour change.
	DirectionTowardsSimilar Direction = "towards_similar_pixels"
	// DirectionByColour rotates strokes by the sampled hue.
	DirectionByColour Direction = "depends_on_colour"
	// DirectionFixed paints every stroke at the configured angle.
	DirectionFixed Direction = "one_direction"
)

// ErrUnsupportedDirection is returned for a Direction outside the known set.
var ErrUnsupportedDirection = errors.New("unsupported direction type")

// SupportedDirections lists the direction types in display order.
func SupportedDirections() []Direction {
	return []Direction{DirectionTowardsSimilar, DirectionByColour, DirectionFixed}
}

// ParseDirection accepts the canonical names plus a few short aliases.
func ParseDirection(name string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "towards_similar_pixels", "similar":
		return DirectionTowardsSimilar, nil
	case "depends_on_colour", "depends_on_color", "colour", "color":
		return DirectionByColour, nil
	case "one_direction", "fixed":
		return DirectionFixed, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDirection, name)
	}
}

// Validate returns ErrUnsupportedDirection for unknown values.
func (d Direction) Validate() error {
	switch d {
	case DirectionTowardsSimilar, DirectionByColour, DirectionFixed:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDirection, string(d))
	}
}

const (
	angleSteps = 18
	stepAngle  = math.Pi / (angleSteps + 1)
)

// ringOffsets returns the candidate stroke vectors for DirectionTowardsSimilar:
// a half turn in angleSteps steps, scaled to radius and rounded half-to-even.
// Consecutive duplicates are dropped, which also removes a leading zero vector.
func ringOffsets(radius int) []image.Point {
	out := make([]image.Point, 0, angleSteps)
	var prev image.Point
	for i := 0; i < angleSteps; i++ {
		a := float64(i) * stepAngle
		sin, cos := float32(math.Sin(a)), float32(math.Cos(a))
		v := image.Pt(
			int(math.RoundToEven(float64(sin*float32(radius)))),
			int(math.RoundToEven(float64(cos*float32(radius)))),
		)
		if v == prev {
			continue
		}
		prev = v
		out = append(out, v)
	}
	return out
}

// unitVector returns (sin, cos) of angle given in degrees.
func unitVector(degrees float64) (x, y float64) {
	return math.Sincos(degrees * math.Pi / 180)
}

// scaleRound multiplies (x, y) by k and rounds half up.
func scaleRound(x, y, k float64) image.Point {
	return image.Pt(roundHalfUp(x*k), roundHalfUp(y*k))
}
