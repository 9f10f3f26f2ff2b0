package effect

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/cwbudde/boldbrush/internal/brush"
	"github.com/cwbudde/boldbrush/internal/paint"
	"github.com/cwbudde/boldbrush/internal/renderer"
)

func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// gradientImage has hue varying along x and brightness along y, with a dark
// bar so strokes have edges to follow.
func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{uint8(x * 255 / w), uint8(y * 255 / h), uint8(255 - x*255/w), 255}
			if x > w/3 && x < w/3+6 {
				c = color.NRGBA{10, 10, 10, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func newEffect(t *testing.T, backend string, img image.Image, edit func(p *Properties)) *Effect {
	t.Helper()
	e := New(Options{Backend: backend, Workers: 2})
	if err := e.SetSource(img); err != nil {
		t.Fatalf("SetSource failed: %v", err)
	}
	p := DefaultProperties()
	if edit != nil {
		edit(&p)
	}
	if _, err := e.SetProperties(context.Background(), p); err != nil {
		t.Fatalf("SetProperties failed: %v", err)
	}
	return e
}

func TestPassGeometry(t *testing.T) {
	p := DefaultProperties()

	tests := []struct {
		name                  string
		edit                  func(p *Properties)
		pass                  int
		width, radius, stride int
	}{
		{"bold wide pass", nil, 2, 48, 60, 24},
		{"bold fine pass", nil, 1, 16, 20, 8},
		{"impasto widest pass", func(p *Properties) { p.Variant = VariantImpasto }, 3, 83, 103, 41},
		{"impasto middle pass", func(p *Properties) { p.Variant = VariantImpasto }, 2, 45, 56, 22},
		{"stride floor towards similar", func(p *Properties) { p.Radius, p.StrokeWidthPercent = 4, 1 }, 1, 1, 4, 2},
		{"stride floor fixed direction", func(p *Properties) {
			p.Radius, p.StrokeWidthPercent, p.DirectionType = 4, 1, paint.DirectionFixed
		}, 1, 1, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := p
			if tt.edit != nil {
				tt.edit(&q)
			}
			w, r, s := passGeometry(q, tt.pass)
			if w != tt.width || r != tt.radius || s != tt.stride {
				t.Errorf("Expected (%d,%d,%d), got (%d,%d,%d)", tt.width, tt.radius, tt.stride, w, r, s)
			}
		})
	}
}

func TestRenderWithoutSource(t *testing.T) {
	e := New(Options{})
	if _, err := e.Render(context.Background(), image.Rectangle{}); !errors.Is(err, paint.ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
	if err := e.SetSource(image.NewNRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, paint.ErrNoSource) {
		t.Errorf("Expected ErrNoSource for empty image, got %v", err)
	}
}

func TestUniformImageIsPreserved(t *testing.T) {
	grey := color.NRGBA{128, 128, 128, 255}
	src := uniformImage(100, 100, grey)
	e := newEffect(t, "cpu", src, nil)

	cal, ok := e.Calibration()
	if !ok {
		t.Fatal("Expected calibration after SetProperties")
	}
	if cal.Sort1.Range() != 0 || cal.Sort2.Range() != 0 {
		t.Errorf("Expected collapsed ranges, got %d and %d", cal.Sort1.Range(), cal.Sort2.Range())
	}

	res, err := e.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if res.Outcome != OutcomeDone {
		t.Fatalf("Expected done, got %s", res.Outcome)
	}
	if len(res.Passes) != 2 {
		t.Fatalf("Expected 2 passes, got %d", len(res.Passes))
	}
	for _, ps := range res.Passes {
		if ps.Strokes > 0 && ps.Buckets != 1 {
			t.Errorf("Pass %d: expected a single bucket, got %d", ps.Pass, ps.Buckets)
		}
	}

	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			c := res.Image.NRGBAAt(x, y)
			if absDiff(c.R, 128) > 1 || absDiff(c.G, 128) > 1 || absDiff(c.B, 128) > 1 || c.A != 255 {
				t.Fatalf("Pixel (%d,%d) drifted to %v", x, y, c)
			}
		}
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestCancelledBeforeStartReturnsSource(t *testing.T) {
	src := gradientImage(60, 40)
	e := newEffect(t, "cpu", src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Render(ctx, image.Rectangle{})
	if err != nil {
		t.Fatalf("Cancellation should not be an error, got %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Errorf("Expected cancelled, got %s", res.Outcome)
	}
	if !bytes.Equal(res.Image.Pix, src.Pix) {
		t.Error("Cancelled render must return the source unchanged")
	}
}

func TestCancelMidRenderKeepsPreviousLayers(t *testing.T) {
	src := gradientImage(120, 80)

	var cancel context.CancelFunc
	e := New(Options{Workers: 1, Progress: func(p Progress) {
		if p.Stage == StageDrawing && cancel != nil {
			cancel()
		}
	}})
	if err := e.SetSource(src); err != nil {
		t.Fatalf("SetSource failed: %v", err)
	}

	first, err := e.Render(context.Background(), image.Rectangle{})
	if err != nil || first.Outcome != OutcomeDone {
		t.Fatalf("First render failed: %v", err)
	}

	var ctx context.Context
	ctx, cancel = context.WithCancel(context.Background())
	second, err := e.Render(ctx, image.Rectangle{})
	cancel = nil
	if err != nil {
		t.Fatalf("Cancellation should not be an error, got %v", err)
	}
	if second.Outcome != OutcomeCancelled {
		t.Fatalf("Expected cancelled, got %s", second.Outcome)
	}
	if len(second.Passes) != 1 {
		t.Errorf("Expected the first pass to finish before cancelling, got %d passes", len(second.Passes))
	}
	if !bytes.Equal(second.Image.Pix, src.Pix) {
		t.Error("Cancelled render must return the source unchanged")
	}

	again, err := e.Update()
	if err != nil {
		t.Fatalf("Update after cancel failed: %v", err)
	}
	if !bytes.Equal(again.Pix, first.Image.Pix) {
		t.Error("Cached layers from the first render should survive a cancelled render")
	}
}

func TestUpdateMatchesFullRender(t *testing.T) {
	src := gradientImage(64, 48)
	e := newEffect(t, "cpu", src, nil)

	if _, err := e.Update(); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("Expected ErrNotRendered, got %v", err)
	}
	if _, err := e.Render(context.Background(), image.Rectangle{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	next := e.Properties()
	next.PreserveFineDetails = 90
	next.Background = BackgroundSecondary
	action, err := e.SetProperties(context.Background(), next)
	if err != nil {
		t.Fatalf("SetProperties failed: %v", err)
	}
	if action != UpdateOutput {
		t.Fatalf("Expected UpdateOutput, got %v", action)
	}
	updated, err := e.Update()
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fresh := newEffect(t, "cpu", src, func(p *Properties) {
		p.PreserveFineDetails = 90
		p.Background = BackgroundSecondary
	})
	want, err := fresh.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Fresh render failed: %v", err)
	}
	if !bytes.Equal(updated.Pix, want.Image.Pix) {
		t.Error("Update should produce the same pixels as a full render")
	}
}

func TestRecreateInvalidatesUpdate(t *testing.T) {
	e := newEffect(t, "cpu", gradientImage(40, 40), nil)
	if _, err := e.Render(context.Background(), image.Rectangle{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	next := e.Properties()
	next.Radius = 12
	action, err := e.SetProperties(context.Background(), next)
	if err != nil {
		t.Fatalf("SetProperties failed: %v", err)
	}
	if action != RecreateOutput {
		t.Fatalf("Expected RecreateOutput, got %v", action)
	}
	if _, err := e.Update(); !errors.Is(err, ErrStaleLayers) {
		t.Errorf("Expected ErrStaleLayers, got %v", err)
	}
}

func TestSetPropertiesRejectsUnknownStyle(t *testing.T) {
	e := newEffect(t, "cpu", gradientImage(20, 20), nil)
	before := e.Properties()

	bad := before
	bad.StrokeStyle = "Sponge"
	if _, err := e.SetProperties(context.Background(), bad); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("Expected ErrUnsupportedValue, got %v", err)
	}
	if e.Properties() != before {
		t.Error("Failed SetProperties must not change the configuration")
	}
}

func TestRecordedPaintOrderIsDeterministic(t *testing.T) {
	src := gradientImage(80, 60)
	render := func() []renderer.Command {
		e := newEffect(t, "record", src, nil)
		res, err := e.Render(context.Background(), image.Rectangle{})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		rec, ok := res.Canvas.(*renderer.Recorder)
		if !ok {
			t.Fatalf("Expected *renderer.Recorder, got %T", res.Canvas)
		}
		total := 0
		for _, ps := range res.Passes {
			total += ps.Strokes
		}
		if rec.Commands() != total || res.Commands != total {
			t.Fatalf("Expected %d commands, got %d", total, rec.Commands())
		}
		return rec.Records()
	}

	a, b := render(), render()
	if len(a) == 0 {
		t.Fatal("Expected strokes")
	}
	if len(a) != len(b) {
		t.Fatalf("Command counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Command %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	for _, cmd := range a {
		if cmd.Shape == brush.RectangleName || cmd.Shape == "Novelty heart" {
			t.Errorf("Random style must not pick %q", cmd.Shape)
		}
	}
}

func TestThinStrokesUseRectangle(t *testing.T) {
	e := newEffect(t, "record", gradientImage(40, 40), func(p *Properties) {
		p.Radius, p.StrokeWidthPercent = 4, 1
	})
	res, err := e.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	records := res.Canvas.(*renderer.Recorder).Records()
	fine := res.Passes[len(res.Passes)-1]
	if fine.StrokeWidth != 1 || fine.Strokes == 0 {
		t.Fatalf("Expected a width-1 final pass with strokes, got %+v", fine)
	}
	for _, cmd := range records[len(records)-fine.Strokes:] {
		if cmd.Shape != brush.RectangleName || cmd.LOD != 0 {
			t.Fatalf("Expected rectangle at LOD 0, got %q LOD %d", cmd.Shape, cmd.LOD)
		}
	}
}

func TestFixedStyleUsesDetailedGeometry(t *testing.T) {
	e := newEffect(t, "record", gradientImage(60, 60), func(p *Properties) {
		p.StrokeStyle = "Flat"
	})
	res, err := e.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for _, cmd := range res.Canvas.(*renderer.Recorder).Records() {
		if cmd.Shape != "Flat" || cmd.LOD != 1 {
			t.Fatalf("Expected Flat at LOD 1, got %q LOD %d", cmd.Shape, cmd.LOD)
		}
		if cmd.Colour.A != 0x8000 {
			t.Fatalf("Expected half opacity from blendiness 50, got alpha %#x", cmd.Colour.A)
		}
	}
}

func TestImpastoDrawsReliefCommands(t *testing.T) {
	e := newEffect(t, "record", gradientImage(60, 60), func(p *Properties) {
		p.Variant = VariantImpasto
	})
	res, err := e.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if len(res.Passes) != 3 {
		t.Fatalf("Expected 3 passes, got %d", len(res.Passes))
	}
	records := res.Canvas.(*renderer.Recorder).Records()
	if len(records) == 0 || len(records)%3 != 0 {
		t.Fatalf("Expected three commands per stroke, got %d", len(records))
	}
	for i := 0; i < len(records); i += 3 {
		shadow, highlight, erase := records[i], records[i+1], records[i+2]
		if shadow.Mode != renderer.ModeCopy || highlight.Mode != renderer.ModeCopy || erase.Mode != renderer.ModeErase {
			t.Fatalf("Unexpected modes %v %v %v", shadow.Mode, highlight.Mode, erase.Mode)
		}
		if shadow.Transform.F != erase.Transform.F-1 || highlight.Transform.F != erase.Transform.F+1 {
			t.Fatalf("Expected shadow above and highlight below the stroke")
		}
	}
}

func TestImpastoRenderKeepsAlpha(t *testing.T) {
	e := newEffect(t, "cpu", gradientImage(50, 50), func(p *Properties) {
		p.Variant = VariantImpasto
	})
	res, err := e.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for i := 3; i < len(res.Image.Pix); i += 4 {
		if res.Image.Pix[i] != 255 {
			t.Fatalf("Expected opaque output, found alpha %d", res.Image.Pix[i])
		}
	}

	next := e.Properties()
	next.ImpastoPercent = 100
	if _, err := e.SetProperties(context.Background(), next); err != nil {
		t.Fatalf("SetProperties failed: %v", err)
	}
	if _, err := e.Update(); err != nil {
		t.Errorf("Update failed: %v", err)
	}
}

func TestSelectionLimitsStrokes(t *testing.T) {
	src := gradientImage(80, 80)
	full := newEffect(t, "record", src, nil)
	all, err := full.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	part := newEffect(t, "record", src, nil)
	some, err := part.Render(context.Background(), image.Rect(0, 0, 40, 40))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if some.Commands == 0 || some.Commands >= all.Commands {
		t.Errorf("Expected fewer strokes for a quarter selection: %d vs %d", some.Commands, all.Commands)
	}

	fullCal, _ := full.Calibration()
	partCal, _ := part.Calibration()
	if fullCal != partCal {
		t.Error("Calibration must cover the whole source regardless of selection")
	}
}

func TestSelectionKeepsSourceOutside(t *testing.T) {
	src := gradientImage(120, 120)
	sel := image.Rect(0, 0, 40, 40)

	for _, variant := range []Variant{VariantBold, VariantImpasto} {
		t.Run(string(variant), func(t *testing.T) {
			e := newEffect(t, "cpu", src, func(p *Properties) { p.Variant = variant })
			res, err := e.Render(context.Background(), sel)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			changedInside := false
			for y := 0; y < 120; y++ {
				for x := 0; x < 120; x++ {
					got, want := res.Image.NRGBAAt(x, y), src.NRGBAAt(x, y)
					if image.Pt(x, y).In(sel) {
						changedInside = changedInside || got != want
						continue
					}
					if got != want {
						t.Fatalf("Pixel (%d,%d) outside selection changed: expected %v, got %v", x, y, want, got)
					}
				}
			}
			if !changedInside {
				t.Error("Expected the selection to be painted")
			}

			// Recomposing keeps the same clip.
			next := e.Properties()
			next.PreserveFineDetails = 0
			if _, err := e.SetProperties(context.Background(), next); err != nil {
				t.Fatalf("SetProperties failed: %v", err)
			}
			updated, err := e.Update()
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			if got, want := updated.NRGBAAt(100, 100), src.NRGBAAt(100, 100); got != want {
				t.Errorf("Update changed a pixel outside the selection: expected %v, got %v", want, got)
			}
		})
	}
}

func TestSelectionOutsideSourceKeepsEverything(t *testing.T) {
	src := gradientImage(40, 40)
	e := newEffect(t, "cpu", src, nil)
	res, err := e.Render(context.Background(), image.Rect(100, 100, 120, 120))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.Equal(res.Image.Pix, src.Pix) {
		t.Error("Expected the source unchanged for a selection outside the image")
	}
}

func TestOriginalBackgroundWithInvisibleStrokes(t *testing.T) {
	src := gradientImage(60, 60)
	e := newEffect(t, "cpu", src, func(p *Properties) {
		p.Background = BackgroundOriginal
		p.Blendiness = 100
	})
	res, err := e.Render(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if res.Commands == 0 {
		t.Fatal("Expected strokes to be submitted")
	}
	if !bytes.Equal(res.Image.Pix, src.Pix) {
		t.Error("Fully blended strokes over the original background should leave the source unchanged")
	}
}

func TestTransparentBackground(t *testing.T) {
	src := gradientImage(60, 60)

	t.Run("uncovered pixels are transparent", func(t *testing.T) {
		e := newEffect(t, "cpu", src, func(p *Properties) {
			p.Background = BackgroundTransparent
			p.Blendiness = 100
			p.PreserveFineDetails = 0
		})
		res, err := e.Render(context.Background(), image.Rectangle{})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		for y := 0; y < 60; y++ {
			for x := 0; x < 60; x++ {
				if a := res.Image.NRGBAAt(x, y).A; a != 0 {
					t.Fatalf("Pixel (%d,%d): expected alpha 0, got %d", x, y, a)
				}
			}
		}
	})

	t.Run("strokes never exceed source alpha", func(t *testing.T) {
		translucent := gradientImage(60, 60)
		for i := 3; i < len(translucent.Pix); i += 4 {
			translucent.Pix[i] = 160
		}
		e := newEffect(t, "cpu", translucent, func(p *Properties) {
			p.Background = BackgroundTransparent
			p.PreserveFineDetails = 0
		})
		res, err := e.Render(context.Background(), image.Rectangle{})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		painted := 0
		for y := 0; y < 60; y++ {
			for x := 0; x < 60; x++ {
				a := res.Image.NRGBAAt(x, y).A
				if a > 160 {
					t.Fatalf("Pixel (%d,%d): alpha %d exceeds source alpha 160", x, y, a)
				}
				if a > 0 {
					painted++
				}
			}
		}
		if painted == 0 {
			t.Error("Expected strokes to leave visible pixels")
		}
	})
}

func TestInvalidateDeviceDropsCache(t *testing.T) {
	e := newEffect(t, "cpu", gradientImage(30, 30), nil)
	if _, err := e.Render(context.Background(), image.Rectangle{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	gen := e.Library().Generation()
	e.InvalidateDevice()
	if e.Library().Generation() != gen+1 {
		t.Errorf("Expected library generation %d, got %d", gen+1, e.Library().Generation())
	}
	if _, err := e.Update(); !errors.Is(err, ErrNotRendered) {
		t.Errorf("Expected ErrNotRendered after device loss, got %v", err)
	}
	if _, err := e.Render(context.Background(), image.Rectangle{}); err != nil {
		t.Errorf("Render after device loss failed: %v", err)
	}
}
