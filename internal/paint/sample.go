package paint

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrNoSource is returned when an operation needs a source image that has not been set.
var ErrNoSource = errors.New("source image not set")

// Sampler reads straight-alpha pixels from a source image, clamping every
// lookup into the image bounds.
type Sampler struct {
	img    *image.NRGBA
	bounds image.Rectangle
}

// NewSampler wraps img. The image is read but never modified.
func NewSampler(img *image.NRGBA) (*Sampler, error) {
	if img == nil {
		return nil, ErrNoSource
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrNoSource, b)
	}
	return &Sampler{img: img, bounds: b}, nil
}

// Bounds returns the source bounds.
func (s *Sampler) Bounds() image.Rectangle {
	return s.bounds
}

// Image returns the wrapped source image.
func (s *Sampler) Image() *image.NRGBA {
	return s.img
}

// Clamp moves p into the half-open bounds [Min, Max).
func (s *Sampler) Clamp(p image.Point) image.Point {
	return image.Pt(clampHalfOpen(p.X, s.bounds.Min.X, s.bounds.Max.X), clampHalfOpen(p.Y, s.bounds.Min.Y, s.bounds.Max.Y))
}

// At returns the pixel at p after clamping.
func (s *Sampler) At(p image.Point) color.NRGBA {
	p = s.Clamp(p)
	i := s.img.PixOffset(p.X, p.Y)
	px := s.img.Pix[i : i+4 : i+4]
	return color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]}
}

func clampHalfOpen(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v >= hi {
		return hi - 1
	}
	return v
}
