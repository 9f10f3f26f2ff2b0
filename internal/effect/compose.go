package effect

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/cwbudde/boldbrush/internal/filter"
)

func colourRGB(r, g, b uint8) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// fineDetailFraction maps the preserve-fine-details percentage onto the
// restore blend strength.
func fineDetailFraction(percent int) float64 {
	return math.Pow(float64(percent)/100, 3)
}

func (e *Effect) blurredSource() *image.RGBA64 {
	if e.blurred == nil {
		e.blurred = filter.Blur(e.linear, backgroundBlurSigma)
	}
	return e.blurred
}

// compose runs the finishing blend over the cached layers using the current
// shader properties.
func (e *Effect) compose() *image.NRGBA {
	var out *image.NRGBA
	if e.props.Variant == VariantImpasto {
		out = e.composeImpasto()
	} else {
		out = e.composeBold()
	}
	e.restoreOutsideSelection(out)
	return out
}

// restoreOutsideSelection copies the source over every band of out that lies
// outside the painted selection.
func (e *Effect) restoreOutsideSelection(out *image.NRGBA) {
	b, sel := out.Bounds(), e.selection.Intersect(out.Bounds())
	if sel == b {
		return
	}
	src := e.src.Image()
	if sel.Empty() {
		draw.Draw(out, b, src, b.Min, draw.Src)
		return
	}
	bands := [4]image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, sel.Min.Y),
		image.Rect(b.Min.X, sel.Max.Y, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, sel.Min.Y, sel.Min.X, sel.Max.Y),
		image.Rect(sel.Max.X, sel.Min.Y, b.Max.X, sel.Max.Y),
	}
	for _, r := range bands {
		if !r.Empty() {
			draw.Draw(out, r, src, r.Min, draw.Src)
		}
	}
}

// background builds the layer painted under bold strokes.
func (e *Effect) background() *image.RGBA64 {
	bounds := e.linear.Bounds()
	switch e.props.Background {
	case BackgroundOriginal:
		return filter.Clone(e.linear)
	case BackgroundSecondary:
		return filter.Fill(bounds, filter.LinearColour(e.props.SecondaryColour.NRGBA(), 1))
	case BackgroundTransparent:
		return filter.Fill(bounds, color.RGBA64{})
	default:
		return filter.ResetAlpha(e.linear, e.blurredSource())
	}
}

func (e *Effect) composeBold() *image.NRGBA {
	painted := e.background()
	filter.Over(painted, e.layer)
	restored := filter.RestoreFineDetails(e.linear, painted, fineDetailFraction(e.props.PreserveFineDetails), filter.AlphaMin)
	return filter.ToSRGB(restored)
}

func (e *Effect) composeImpasto() *image.NRGBA {
	base := filter.RestoreFineDetails(e.linear, e.blurredSource(), fineDetailFraction(e.props.PreserveFineDetails), filter.AlphaOriginal)

	relief := filter.Clone(base)
	filter.Over(relief, filter.Opacity(e.softLayer, float32(e.props.ImpastoFineStrokesPercent)/100))
	emboss := filter.Emboss(relief, embossHeight, e.props.ImpastoDirection)

	out := filter.OverlayImpasto(base, emboss, float64(e.props.ImpastoPercent)/100)
	return filter.ToSRGB(out)
}
