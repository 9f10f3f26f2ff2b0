// Package filter holds the colour-space conversions and image filters used to
// finish a painted canvas.
package filter

import (
	"image"
	"image/color"
	"math"
)

var (
	// 8-bit sRGB to 16-bit linear light.
	decodeLUT [256]uint16
	// 16-bit linear light to 8-bit sRGB.
	encodeLUT [1 << 16]uint8
)

func init() {
	for i := range decodeLUT {
		decodeLUT[i] = uint16(math.Round(srgbToLinear(float64(i)/255) * 0xffff))
	}
	for i := range encodeLUT {
		encodeLUT[i] = uint8(math.Round(linearToSRGB(float64(i)/0xffff) * 255))
	}
}

func srgbToLinear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func linearToSRGB(v float64) float64 {
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

// ToLinear converts a straight-alpha sRGB image to premultiplied linear light.
func ToLinear(src *image.NRGBA) *image.RGBA64 {
	b := src.Bounds()
	dst := image.NewRGBA64(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := src.PixOffset(b.Min.X, y)
		di := dst.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			c := LinearColour(color.NRGBA{src.Pix[si], src.Pix[si+1], src.Pix[si+2], src.Pix[si+3]}, 1)
			putRGBA64(dst.Pix, di, c)
			si += 4
			di += 8
		}
	}
	return dst
}

// ToSRGB converts a premultiplied linear-light image to straight-alpha sRGB.
func ToSRGB(src *image.RGBA64) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := src.PixOffset(b.Min.X, y)
		di := dst.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			c := getRGBA64(src.Pix, si)
			if c.A != 0 {
				a := uint32(c.A)
				dst.Pix[di+0] = encodeLUT[min(uint32(c.R)*0xffff/a, 0xffff)]
				dst.Pix[di+1] = encodeLUT[min(uint32(c.G)*0xffff/a, 0xffff)]
				dst.Pix[di+2] = encodeLUT[min(uint32(c.B)*0xffff/a, 0xffff)]
				dst.Pix[di+3] = uint8((a + 128) / 257)
			}
			si += 8
			di += 4
		}
	}
	return dst
}

// LinearColour converts a straight sRGB colour to premultiplied linear light
// with its alpha scaled by opacity.
func LinearColour(c color.NRGBA, opacity float64) color.RGBA64 {
	a := float64(c.A) / 255 * min(max(opacity, 0), 1)
	return color.RGBA64{
		R: uint16(math.Round(float64(decodeLUT[c.R]) * a)),
		G: uint16(math.Round(float64(decodeLUT[c.G]) * a)),
		B: uint16(math.Round(float64(decodeLUT[c.B]) * a)),
		A: uint16(math.Round(a * 0xffff)),
	}
}

func getRGBA64(pix []uint8, i int) color.RGBA64 {
	s := pix[i : i+8 : i+8]
	return color.RGBA64{
		R: uint16(s[0])<<8 | uint16(s[1]),
		G: uint16(s[2])<<8 | uint16(s[3]),
		B: uint16(s[4])<<8 | uint16(s[5]),
		A: uint16(s[6])<<8 | uint16(s[7]),
	}
}

func putRGBA64(pix []uint8, i int, c color.RGBA64) {
	s := pix[i : i+8 : i+8]
	s[0], s[1] = uint8(c.R>>8), uint8(c.R)
	s[2], s[3] = uint8(c.G>>8), uint8(c.G)
	s[4], s[5] = uint8(c.B>>8), uint8(c.B)
	s[6], s[7] = uint8(c.A>>8), uint8(c.A)
}
