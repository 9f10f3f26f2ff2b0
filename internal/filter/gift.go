package filter

import (
	"image"
	"math"

	"github.com/disintegration/gift"
)

// apply runs filters over src and returns a new image placed at src's origin.
func apply(src *image.RGBA64, filters ...gift.Filter) *image.RGBA64 {
	g := gift.New(filters...)
	dst := image.NewRGBA64(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	dst.Rect = dst.Rect.Add(src.Bounds().Min.Sub(dst.Rect.Min))
	return dst
}

// Blur applies a Gaussian blur with the given standard deviation. Pixels past
// the edge repeat the edge.
func Blur(img *image.RGBA64, sigma float32) *image.RGBA64 {
	if sigma <= 0 {
		return Clone(img)
	}
	return apply(img, gift.GaussianBlur(sigma))
}

// Opacity scales alpha by fraction.
func Opacity(img *image.RGBA64, fraction float32) *image.RGBA64 {
	fraction = min(max(fraction, 0), 1)
	return apply(img, gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
		return r, g, b, a * fraction
	}))
}

// Emboss returns a grey relief of img lit from direction degrees,
// counter-clockwise from the +x axis. Flat areas come out at 0.5.
func Emboss(img *image.RGBA64, height float32, direction float64) *image.RGBA64 {
	return apply(img, gift.Grayscale(), gift.Convolution(embossKernel(height, direction), false, false, false, 0.5))
}

// embossKernel is a 3x3 directional derivative along the light vector.
func embossKernel(height float32, direction float64) []float32 {
	sin, cos := math.Sincos(direction * math.Pi / 180)
	// Image rows grow downwards.
	lx, ly := cos, -sin
	k := make([]float32, 0, 9)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			k = append(k, height*float32(float64(dx)*lx+float64(dy)*ly)/2)
		}
	}
	return k
}
