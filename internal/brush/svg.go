package brush

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
)

// ErrBadShape is returned when a shape file has no usable outline.
var ErrBadShape = errors.New("invalid brush shape")

// Flattening tolerance per level of detail, in geometry units.
var lodTolerance = [NumLODs]float32{0.02, 0.004}

// NumLODs is the number of detail levels kept per shape.
const NumLODs = 2

type svgDocument struct {
	XMLName xml.Name `xml:"svg"`
	ViewBox string   `xml:"viewBox,attr"`
	Paths   []struct {
		D string `xml:"d,attr"`
	} `xml:"path"`
}

// viewBox is the SVG user-space rectangle that maps onto geometry space.
type viewBox struct {
	minX, minY, width, height float64
}

func parseViewBox(s string) (viewBox, error) {
	if strings.TrimSpace(s) == "" {
		return viewBox{minX: -50, minY: 0, width: 100, height: 100}, nil
	}
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != 4 {
		return viewBox{}, fmt.Errorf("%w: viewBox %q", ErrBadShape, s)
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return viewBox{}, fmt.Errorf("%w: viewBox %q: %v", ErrBadShape, s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return viewBox{}, fmt.Errorf("%w: viewBox %q has no area", ErrBadShape, s)
	}
	return viewBox{minX: v[0], minY: v[1], width: v[2], height: v[3]}, nil
}

// toUnit maps a user-space point so the viewBox spans x in [-0.5, 0.5] and y in [0, 1].
func (vb viewBox) toUnit(p fixed.Point26_6) Point {
	x := float64(p.X)/64 - vb.minX - vb.width/2
	y := float64(p.Y)/64 - vb.minY
	return Point{X: float32(x / vb.width), Y: float32(y / vb.height)}
}

// parseShape reads the first path of an SVG document and flattens it at every LOD.
func parseShape(name string, r io.Reader) (*Shape, error) {
	var doc svgDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadShape, name, err)
	}
	if len(doc.Paths) == 0 || strings.TrimSpace(doc.Paths[0].D) == "" {
		return nil, fmt.Errorf("%w: %s: no path data", ErrBadShape, name)
	}
	vb, err := parseViewBox(doc.ViewBox)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var cursor oksvg.PathCursor
	if err := cursor.CompilePath(doc.Paths[0].D); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadShape, name, err)
	}
	path := append(rasterx.Path(nil), cursor.Path...)

	shape := &Shape{Name: name}
	for lod := 0; lod < NumLODs; lod++ {
		f := &flattener{tolerance: lodTolerance[lod], toUnit: vb.toUnit}
		path.AddTo(f)
		g := f.geometry(name, lod)
		if len(g.Contours) == 0 {
			return nil, fmt.Errorf("%w: %s: outline encloses no area", ErrBadShape, name)
		}
		shape.LODs[lod] = g
	}
	return shape, nil
}
