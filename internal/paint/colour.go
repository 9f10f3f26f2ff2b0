package paint

import (
	"image/color"
	"math"
)

// Hue returns the hue of c in whole degrees, [0, 360). Greys have hue 0.
func Hue(c color.NRGBA) int {
	r, g, b := int(c.R), int(c.G), int(c.B)
	if r == g && g == b {
		return 0
	}
	lo, hi := minMaxRGB(r, g, b)
	delta := hi - lo

	var hue int
	switch hi {
	case r:
		hue = (g - b) * 60 / delta
	case g:
		hue = (b-r)*60/delta + 120
	default:
		hue = (r-g)*60/delta + 240
	}
	return (hue + 360) % 360
}

// Saturation returns the HSL-style saturation of c in [0, 255]. Greys have saturation 0.
func Saturation(c color.NRGBA) int {
	r, g, b := int(c.R), int(c.G), int(c.B)
	if r == g && g == b {
		return 0
	}
	lo, hi := minMaxRGB(r, g, b)

	div := hi + lo
	if div > 255 {
		div = 2*255 - hi - lo
	}
	return (hi - lo) * 255 / div
}

// Intensity returns the perceptual luma of c in [0, 255].
func Intensity(c color.NRGBA) int {
	return (7471*int(c.B) + 38470*int(c.G) + 19595*int(c.R)) >> 16
}

// Premultiply scales the colour channels of c by its alpha.
func Premultiply(c color.NRGBA) color.RGBA {
	a := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R)*a + 127) / 255),
		G: uint8((uint32(c.G)*a + 127) / 255),
		B: uint8((uint32(c.B)*a + 127) / 255),
		A: c.A,
	}
}

// Distance is the rounded euclidean distance between a and b over
// premultiplied R, G, B and A.
func Distance(a, b color.NRGBA) int {
	return premultipliedDistance(Premultiply(a), Premultiply(b))
}

// RoundTripDistance sums the pairwise distances a→b, b→c and c→a.
func RoundTripDistance(a, b, c color.NRGBA) int {
	ap, bp, cp := Premultiply(a), Premultiply(b), Premultiply(c)
	return premultipliedDistance(ap, bp) + premultipliedDistance(bp, cp) + premultipliedDistance(cp, ap)
}

func premultipliedDistance(a, b color.RGBA) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	da := int(a.A) - int(b.A)
	return roundHalfUp(math.Sqrt(float64(dr*dr + dg*dg + db*db + da*da)))
}

// Blend4 averages four colours weighted by their alpha.
// The result is transparent when all four are.
func Blend4(c1, c2, c3, c4 color.NRGBA) color.NRGBA {
	a1, a2, a3, a4 := int(c1.A), int(c2.A), int(c3.A), int(c4.A)
	a := a1 + a2 + a3 + a4
	if a == 0 {
		return color.NRGBA{}
	}
	blend := func(v1, v2, v3, v4 uint8) uint8 {
		sum := int(v1)*a1 + int(v2)*a2 + int(v3)*a3 + int(v4)*a4
		return uint8((sum + a/2) / a)
	}
	return color.NRGBA{
		R: blend(c1.R, c2.R, c3.R, c4.R),
		G: blend(c1.G, c2.G, c3.G, c4.G),
		B: blend(c1.B, c2.B, c3.B, c4.B),
		A: uint8((a + 2) / 4),
	}
}

func minMaxRGB(r, g, b int) (lo, hi int) {
	lo, hi = r, g
	if g < r {
		lo, hi = g, r
	}
	if b > hi {
		hi = b
	} else if b < lo {
		lo = b
	}
	return lo, hi
}

// roundHalfUp rounds to the nearest integer with halves going up.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
