package filter

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// ErrSizeMismatch is returned when two compared images differ in size.
var ErrSizeMismatch = errors.New("image dimensions must match")

// MSE computes the mean squared error over sRGB channels, ignoring alpha.
func MSE(current, reference *image.NRGBA) (float64, error) {
	bounds := current.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width != reference.Bounds().Dx() || height != reference.Bounds().Dy() {
		return 0, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, bounds, reference.Bounds())
	}
	if width == 0 || height == 0 {
		return 0, nil
	}

	rb := reference.Bounds()
	var sum float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := current.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			j := reference.PixOffset(rb.Min.X+x, rb.Min.Y+y)

			dr := float64(current.Pix[i+0]) - float64(reference.Pix[j+0])
			dg := float64(current.Pix[i+1]) - float64(reference.Pix[j+1])
			db := float64(current.Pix[i+2]) - float64(reference.Pix[j+2])
			sum += dr*dr + dg*dg + db*db
		}
	}

	// Mean over pixels and channels
	return sum / float64(width*height*3), nil
}

// DiffImage creates a false-colour difference image: black where the images
// agree, red where they differ most.
func DiffImage(reference, painted *image.NRGBA) *image.NRGBA {
	bounds := reference.Bounds().Intersect(painted.Bounds())
	diff := image.NewNRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			a := reference.NRGBAAt(x, y)
			b := painted.NRGBAAt(x, y)

			dr := float64(a.R) - float64(b.R)
			dg := float64(a.G) - float64(b.G)
			db := float64(a.B) - float64(b.B)
			mag := math.Sqrt(dr*dr + dg*dg + db*db)

			// Max distance is 255*sqrt(3) ≈ 441.7
			diff.SetNRGBA(x, y, color.NRGBA{uint8(min(255, mag*255/441.7)), 0, 0, 255})
		}
	}
	return diff
}
