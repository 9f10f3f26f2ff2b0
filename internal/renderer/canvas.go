// Package renderer turns stroke draw commands into pixels.
package renderer

import (
	"image"
	"image/color"
	"math"

	"github.com/cwbudde/boldbrush/internal/brush"
	"github.com/cwbudde/boldbrush/internal/paint"
)

// Mode selects how a filled shape combines with the layer underneath.
type Mode uint8

const (
	// ModeOver composites the colour over the layer.
	ModeOver Mode = iota
	// ModeCopy replaces the layer under the shape's coverage.
	ModeCopy
	// ModeErase clears the layer to transparent under the shape's coverage.
	ModeErase
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "copy"
	case ModeErase:
		return "erase"
	default:
		return "over"
	}
}

// Command is one shape fill handed to a canvas.
type Command struct {
	Shape     string
	LOD       int
	Transform Affine
	// Colour is premultiplied linear light with the stroke opacity applied.
	Colour color.RGBA64
	Mode   Mode
}

// Canvas is a drawing target for stroke commands.
type Canvas interface {
	// Draw fills geom, mapped through cmd.Transform, onto the layer.
	Draw(geom *brush.Geometry, cmd Command)
	// Layer returns the premultiplied linear-light pixels drawn so far.
	Layer() *image.RGBA64
	// Commands returns how many commands were submitted.
	Commands() int
}

// Affine maps geometry space to page space:
// x' = A*x + C*y + E, y' = B*x + D*y + F.
type Affine struct {
	A, B, C, D, E, F float32
}

// Apply maps p to page space.
func (m Affine) Apply(p brush.Point) (x, y float32) {
	return m.A*p.X + m.C*p.Y + m.E, m.B*p.X + m.D*p.Y + m.F
}

// StrokeTransform maps the geometry length axis onto the stroke vector and the
// width axis onto its perpendicular scaled by widthRatio, with the origin moved
// to the stroke start plus offset.
func StrokeTransform(s paint.Stroke, widthRatio float32, offset image.Point) Affine {
	v := s.Vector()
	vx, vy := float32(v.X), float32(v.Y)
	return Affine{
		A: vy * widthRatio, B: -vx * widthRatio,
		C: vx, D: vy,
		E: float32(s.Start.X + offset.X), F: float32(s.Start.Y + offset.Y),
	}
}

// pixelBounds returns the pixel rectangle covering geom after transformation.
func (m Affine) pixelBounds(geom *brush.Geometry) image.Rectangle {
	corners := [4]brush.Point{
		geom.Min,
		{X: geom.Max.X, Y: geom.Min.Y},
		{X: geom.Min.X, Y: geom.Max.Y},
		geom.Max,
	}
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for _, c := range corners {
		x, y := m.Apply(c)
		minX, minY = min(minX, x), min(minY, y)
		maxX, maxY = max(maxX, x), max(maxY, y)
	}
	return image.Rect(
		int(math.Floor(float64(minX))), int(math.Floor(float64(minY))),
		int(math.Ceil(float64(maxX)))+1, int(math.Ceil(float64(maxY)))+1,
	)
}
