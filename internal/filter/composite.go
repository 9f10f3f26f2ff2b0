package filter

import (
	"image"
	"image/color"
	"math"
)

// pixel is one RGBA sample in [0, 1].
type pixel [4]float64

func loadPixel(pix []uint8, i int) pixel {
	c := getRGBA64(pix, i)
	return pixel{float64(c.R) / 0xffff, float64(c.G) / 0xffff, float64(c.B) / 0xffff, float64(c.A) / 0xffff}
}

func storePixel(pix []uint8, i int, p pixel) {
	var c [4]uint16
	for ch, v := range p {
		c[ch] = uint16(math.Round(min(max(v, 0), 1) * 0xffff))
	}
	// Colour channels may not exceed alpha.
	for ch := 0; ch < 3; ch++ {
		c[ch] = min(c[ch], c[3])
	}
	putRGBA64(pix, i, color.RGBA64{R: c[0], G: c[1], B: c[2], A: c[3]})
}

// straight divides the colour channels of a premultiplied pixel by alpha.
func (p pixel) straight() pixel {
	if p[3] == 0 {
		return pixel{}
	}
	return pixel{p[0] / p[3], p[1] / p[3], p[2] / p[3], p[3]}
}

func (p pixel) premultiplied() pixel {
	return pixel{p[0] * p[3], p[1] * p[3], p[2] * p[3], p[3]}
}

func distance(a, b pixel) float64 {
	var sum float64
	for ch := range a {
		d := a[ch] - b[ch]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func lerp(a, b pixel, t float64) pixel {
	var out pixel
	for ch := range a {
		out[ch] = a[ch] + (b[ch]-a[ch])*t
	}
	return out
}

// each calls fn with the pixel offsets of a and b over their shared bounds.
func each(a, b *image.RGBA64, fn func(ai, bi int)) {
	r := a.Bounds().Intersect(b.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		ai, bi := a.PixOffset(r.Min.X, y), b.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			fn(ai, bi)
			ai += 8
			bi += 8
		}
	}
}

// Clone returns a copy of img.
func Clone(img *image.RGBA64) *image.RGBA64 {
	out := &image.RGBA64{Pix: make([]uint8, len(img.Pix)), Stride: img.Stride, Rect: img.Rect}
	copy(out.Pix, img.Pix)
	return out
}

// Fill returns an image covering r flooded with a premultiplied colour.
func Fill(r image.Rectangle, c color.RGBA64) *image.RGBA64 {
	img := image.NewRGBA64(r)
	if c == (color.RGBA64{}) {
		return img
	}
	for i := 0; i < len(img.Pix); i += 8 {
		putRGBA64(img.Pix, i, c)
	}
	return img
}

// Over composites src over dst in place. Both are premultiplied.
func Over(dst, src *image.RGBA64) {
	each(dst, src, func(di, si int) {
		s := getRGBA64(src.Pix, si)
		if s.A == 0 {
			return
		}
		if s.A == 0xffff {
			putRGBA64(dst.Pix, di, s)
			return
		}
		d := getRGBA64(dst.Pix, di)
		keep := uint32(0xffff - s.A)
		putRGBA64(dst.Pix, di, color.RGBA64{
			R: s.R + uint16(uint32(d.R)*keep/0xffff),
			G: s.G + uint16(uint32(d.G)*keep/0xffff),
			B: s.B + uint16(uint32(d.B)*keep/0xffff),
			A: s.A + uint16(uint32(d.A)*keep/0xffff),
		})
	})
}

// ResetAlpha returns img's straight colour carrying original's alpha.
func ResetAlpha(original, img *image.RGBA64) *image.RGBA64 {
	out := Clone(img)
	each(original, out, func(oi, ii int) {
		o := loadPixel(original.Pix, oi)
		p := loadPixel(out.Pix, ii).straight()
		p[3] = o[3]
		storePixel(out.Pix, ii, p.premultiplied())
	})
	return out
}

// AlphaPolicy decides the alpha of a pixel after fine details are restored.
type AlphaPolicy uint8

const (
	// AlphaMin keeps the smaller of the restored and the original alpha.
	AlphaMin AlphaPolicy = iota
	// AlphaOriginal always takes the original alpha.
	AlphaOriginal
)

// RestoreFineDetails blends the original back into painted where the two
// differ. The share of the original grows with the RGBA distance between them:
// amount = clamp(distance*fraction*10, 0, 1).
func RestoreFineDetails(original, painted *image.RGBA64, fraction float64, policy AlphaPolicy) *image.RGBA64 {
	out := Clone(painted)
	each(original, out, func(oi, pi int) {
		o := loadPixel(original.Pix, oi).straight()
		s := loadPixel(out.Pix, pi).straight()

		amount := min(max(distance(s, o)*fraction*10, 0), 1)
		p := lerp(s, o, amount)
		if policy == AlphaOriginal {
			p[3] = o[3]
		} else {
			p[3] = min(p[3], o[3])
		}
		storePixel(out.Pix, pi, p.premultiplied())
	})
	return out
}

// OverlayImpasto adds the emboss relief, centred on mid grey, to img:
// rgb += fraction * (emboss.rgb - 0.5).
func OverlayImpasto(img, emboss *image.RGBA64, fraction float64) *image.RGBA64 {
	out := Clone(img)
	each(out, emboss, func(oi, ei int) {
		p := loadPixel(out.Pix, oi)
		e := loadPixel(emboss.Pix, ei).straight()
		for ch := 0; ch < 3; ch++ {
			p[ch] += fraction * (e[ch] - 0.5)
		}
		storePixel(out.Pix, oi, p)
	})
	return out
}
