package brush

import (
	"math"

	"golang.org/x/image/math/fixed"
)

// Point is a position in geometry space: X runs across the stroke in
// [-0.5, 0.5], Y runs along it in [0, 1].
type Point struct {
	X, Y float32
}

// Geometry is a brush outline flattened to polygons at one level of detail.
type Geometry struct {
	Name     string
	LOD      int
	Contours [][]Point
	Min, Max Point
}

// Segments returns the total number of polygon edges.
func (g *Geometry) Segments() int {
	n := 0
	for _, c := range g.Contours {
		n += len(c)
	}
	return n
}

// flattener turns a rasterx path into polygons. It implements rasterx.Adder.
type flattener struct {
	tolerance float32
	toUnit    func(fixed.Point26_6) Point

	contours [][]Point
	current  []Point
}

func (f *flattener) Start(a fixed.Point26_6) {
	f.flush()
	f.current = []Point{f.toUnit(a)}
}

func (f *flattener) Line(b fixed.Point26_6) {
	f.current = append(f.current, f.toUnit(b))
}

func (f *flattener) QuadBezier(b, c fixed.Point26_6) {
	p0 := f.last()
	p1, p2 := f.toUnit(b), f.toUnit(c)
	dd := hypot(p0.X-2*p1.X+p2.X, p0.Y-2*p1.Y+p2.Y)
	n := segmentsFor(dd/8, f.tolerance)
	for i := 1; i <= n; i++ {
		t := float32(i) / float32(n)
		u := 1 - t
		f.current = append(f.current, Point{
			X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
			Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
		})
	}
}

func (f *flattener) CubeBezier(b, c, d fixed.Point26_6) {
	p0 := f.last()
	p1, p2, p3 := f.toUnit(b), f.toUnit(c), f.toUnit(d)
	dd := max(
		hypot(p0.X-2*p1.X+p2.X, p0.Y-2*p1.Y+p2.Y),
		hypot(p1.X-2*p2.X+p3.X, p1.Y-2*p2.Y+p3.Y),
	)
	n := segmentsFor(dd*3/4, f.tolerance)
	for i := 1; i <= n; i++ {
		t := float32(i) / float32(n)
		u := 1 - t
		f.current = append(f.current, Point{
			X: u*u*u*p0.X + 3*u*u*t*p1.X + 3*u*t*t*p2.X + t*t*t*p3.X,
			Y: u*u*u*p0.Y + 3*u*u*t*p1.Y + 3*u*t*t*p2.Y + t*t*t*p3.Y,
		})
	}
}

func (f *flattener) Stop(closeLoop bool) {
	f.flush()
}

func (f *flattener) last() Point {
	if len(f.current) == 0 {
		return Point{}
	}
	return f.current[len(f.current)-1]
}

func (f *flattener) flush() {
	// Fewer than three points encloses no area.
	if len(f.current) >= 3 {
		f.contours = append(f.contours, f.current)
	}
	f.current = nil
}

func (f *flattener) geometry(name string, lod int) *Geometry {
	f.flush()
	g := &Geometry{Name: name, LOD: lod, Contours: f.contours}
	first := true
	for _, c := range g.Contours {
		for _, p := range c {
			if first {
				g.Min, g.Max = p, p
				first = false
				continue
			}
			g.Min.X, g.Min.Y = min(g.Min.X, p.X), min(g.Min.Y, p.Y)
			g.Max.X, g.Max.Y = max(g.Max.X, p.X), max(g.Max.Y, p.Y)
		}
	}
	return g
}

// segmentsFor returns how many line segments keep a curve with the given
// deviation estimate within tolerance.
func segmentsFor(deviation, tolerance float32) int {
	if deviation <= tolerance {
		return 1
	}
	n := int(math.Ceil(math.Sqrt(float64(deviation / tolerance))))
	return min(max(n, 1), 64)
}

func hypot(x, y float32) float32 {
	return float32(math.Hypot(float64(x), float64(y)))
}
