// Package effect runs the multi-pass brush-stroke render and the finishing
// blend that turns the stroke layer into the output image.
package effect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/boldbrush/internal/brush"
	"github.com/cwbudde/boldbrush/internal/filter"
	"github.com/cwbudde/boldbrush/internal/paint"
	"github.com/cwbudde/boldbrush/internal/renderer"
)

var (
	// ErrNotRendered is returned by Update before any complete render.
	ErrNotRendered = errors.New("nothing rendered yet")
	// ErrStaleLayers is returned by Update when drawing properties changed
	// since the cached layers were painted.
	ErrStaleLayers = errors.New("drawing properties changed since last render")
)

const (
	// Strokes narrower than this use the plain rectangle.
	rectangleBelowWidth = 2
	// Strokes at least this wide use the detailed geometry.
	detailFromWidth = 5
	// Standard deviation of the background blur.
	backgroundBlurSigma = 20
	// Standard deviation applied to the impasto height layer.
	heightBlurSigma = 1
	// Emboss height for the impasto relief.
	embossHeight = 3
)

// Outcome says how a render ended.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeCancelled Outcome = "cancelled"
)

// Stage is a step of the render state machine.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageCalibrating Stage = "calibrating"
	StageGenerating  Stage = "generating"
	StageBucketing   Stage = "bucketing"
	StageDrawing     Stage = "drawing"
	StageCompositing Stage = "compositing"
	StageDone        Stage = "done"
	StageCancelled   Stage = "cancelled"
)

// Progress is reported on every stage transition.
type Progress struct {
	Stage  Stage
	Pass   int
	Passes int
	// Strokes is the number of strokes in the current pass, once known.
	Strokes int
}

// PassStats describes one completed stroke pass.
type PassStats struct {
	Pass        int           `json:"pass"`
	StrokeWidth int           `json:"strokeWidth"`
	Radius      int           `json:"radius"`
	Stride      int           `json:"stride"`
	Strokes     int           `json:"strokes"`
	Buckets     int           `json:"buckets"`
	Duration    time.Duration `json:"duration"`
}

// Result is the outcome of Render.
type Result struct {
	Image    *image.NRGBA
	Outcome  Outcome
	Passes   []PassStats
	Commands int
	// Canvas is the drawing target of the render, nil when cancelled.
	Canvas renderer.Canvas
}

// Options configures an Effect.
type Options struct {
	// Backend names the renderer backend, see renderer.NormalizeBackend.
	Backend string
	// Workers bounds concurrent stroke generation. Zero means GOMAXPROCS.
	Workers int
	// Library supplies brush shapes. Nil means brush.Default().
	Library *brush.Library
	// Progress is called on each stage transition while the effect lock is
	// held. It must not call back into the Effect.
	Progress func(Progress)
}

// Effect holds a source image, a configuration and the layers cached from
// the last complete render.
type Effect struct {
	mu   sync.Mutex
	opts Options
	lib  *brush.Library

	props Properties
	sort1 paint.SortFunc
	sort2 paint.SortFunc

	src    *paint.Sampler
	linear *image.RGBA64
	// Blurred source, built on first use.
	blurred *image.RGBA64

	cal        paint.Calibration
	calKey     calibrationKey
	calibrated bool

	// Layers from the last complete render.
	layer        *image.RGBA64
	softLayer    *image.RGBA64
	layerDrawing DrawingProperties
	// Pixels outside the painted selection keep the source.
	selection image.Rectangle
	rendered  bool
}

// New creates an effect configured with DefaultProperties.
func New(opts Options) *Effect {
	lib := opts.Library
	if lib == nil {
		lib = brush.Default()
	}
	e := &Effect{opts: opts, lib: lib}
	e.props = DefaultProperties()
	e.sort1, e.sort2, _ = paint.SortFunctions(e.props.Emphasis, e.props.EmphasisColour.NRGBA())
	return e
}

// Library returns the brush library the effect draws with.
func (e *Effect) Library() *brush.Library {
	return e.lib
}

// SetSource replaces the source image. Calibration and cached layers are dropped.
func (e *Effect) SetSource(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("%w: empty image", paint.ErrNoSource)
	}
	nrgba := image.NewNRGBA(img.Bounds())
	draw.Draw(nrgba, nrgba.Bounds(), img, img.Bounds().Min, draw.Src)
	src, err := paint.NewSampler(nrgba)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = src
	e.linear = filter.ToLinear(nrgba)
	e.blurred = nil
	e.calibrated = false
	e.dropLayers()
	slog.Debug("Source set", "width", nrgba.Bounds().Dx(), "height", nrgba.Bounds().Dy())
	return nil
}

// Properties returns the current configuration.
func (e *Effect) Properties() Properties {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.props
}

// SetProperties validates p, makes it current and returns the update it
// requires. Calibration is redone when the radius, direction or emphasis
// changed and a source is set. On error nothing changes.
func (e *Effect) SetProperties(ctx context.Context, p Properties) (UpdateAction, error) {
	if err := p.Validate(); err != nil {
		return UpdateNone, err
	}
	if err := e.lib.ValidateStyle(p.StrokeStyle); err != nil {
		return UpdateNone, &ValidationError{Field: "strokeStyle", Reason: err.Error()}
	}
	sort1, sort2, err := paint.SortFunctions(p.Emphasis, p.EmphasisColour.NRGBA())
	if err != nil {
		return UpdateNone, &ValidationError{Field: "emphasis", Reason: err.Error()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	action := Inspect(e.props, p)

	var cal paint.Calibration
	key := p.calibrationKey()
	recalibrate := e.src != nil && (!e.calibrated || e.calKey != key)
	if recalibrate {
		cal, err = e.calibrate(ctx, p, sort1, sort2)
		if err != nil {
			return UpdateNone, err
		}
	}

	e.props = p
	e.sort1, e.sort2 = sort1, sort2
	if recalibrate {
		e.cal, e.calKey, e.calibrated = cal, key, true
	}
	slog.Debug("Properties set", "action", action.String(), "recalibrated", recalibrate)
	return action, nil
}

// InvalidateDevice drops all brush geometry and cached layers, as after a
// lost rendering device. The next Render rebuilds them.
func (e *Effect) InvalidateDevice() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lib.Invalidate()
	e.dropLayers()
}

// Calibration returns the sort-key ranges used for bucketing and whether
// they have been computed.
func (e *Effect) Calibration() (paint.Calibration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cal, e.calibrated
}

func (e *Effect) dropLayers() {
	e.layer, e.softLayer = nil, nil
	e.rendered = false
}

func (e *Effect) report(p Progress) {
	if e.opts.Progress != nil {
		e.opts.Progress(p)
	}
}

func (e *Effect) calibrate(ctx context.Context, p Properties, sort1, sort2 paint.SortFunc) (paint.Calibration, error) {
	e.report(Progress{Stage: StageCalibrating})
	return paint.Calibrate(ctx, e.src, paint.GenerateParams{
		Radius:          p.Radius,
		Direction:       p.DirectionType,
		StrokeDirection: p.StrokeDirection,
		Sort1:           sort1,
		Sort2:           sort2,
		Workers:         e.opts.Workers,
	})
}

// Render paints every pass over selection and composes the output. The zero
// rectangle means the whole source; outside the selection the output equals
// the source. Cancellation through ctx is not an
// error: the result then carries OutcomeCancelled and an unmodified copy of
// the source, and the previous cached layers are kept.
func (e *Effect) Render(ctx context.Context, selection image.Rectangle) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src == nil {
		return nil, paint.ErrNoSource
	}
	bounds := e.src.Bounds()
	if selection == (image.Rectangle{}) {
		selection = bounds
	}
	selection = selection.Intersect(bounds)

	if !e.calibrated || e.calKey != e.props.calibrationKey() {
		cal, err := e.calibrate(ctx, e.props, e.sort1, e.sort2)
		if err != nil {
			if isCancellation(err) {
				return e.cancelled(nil), nil
			}
			return nil, err
		}
		e.cal, e.calKey, e.calibrated = cal, e.props.calibrationKey(), true
	}

	drawing := e.props.DrawingProperties()
	canvas, cleanup, err := renderer.NewCanvasForBackend(e.opts.Backend, bounds, drawing.Antialias)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	passes := e.props.Passes()
	result := &Result{Outcome: OutcomeDone}
	for pass := passes; pass >= 1; pass-- {
		if ctx.Err() != nil {
			return e.cancelled(result.Passes), nil
		}
		stats, err := e.paintPass(ctx, canvas, pass, passes, selection)
		if err != nil {
			if isCancellation(err) {
				return e.cancelled(result.Passes), nil
			}
			return nil, fmt.Errorf("pass %d: %w", pass, err)
		}
		result.Passes = append(result.Passes, stats)
	}

	e.report(Progress{Stage: StageCompositing, Passes: passes})
	e.layer = canvas.Layer()
	e.softLayer = nil
	if e.props.Variant == VariantImpasto {
		e.softLayer = filter.Blur(e.layer, heightBlurSigma)
	}
	e.layerDrawing = drawing
	e.selection = selection
	e.rendered = true

	result.Image = e.compose()
	result.Commands = canvas.Commands()
	result.Canvas = canvas
	e.report(Progress{Stage: StageDone, Passes: passes})
	slog.Info("Render complete", "variant", e.props.Variant, "passes", len(result.Passes), "commands", result.Commands)
	return result, nil
}

// Update recomposes the output from the cached layers with the current
// shader properties, without generating or drawing strokes.
func (e *Effect) Update() (*image.NRGBA, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.rendered {
		return nil, ErrNotRendered
	}
	if e.props.DrawingProperties() != e.layerDrawing {
		return nil, ErrStaleLayers
	}
	return e.compose(), nil
}

func (e *Effect) cancelled(passes []PassStats) *Result {
	e.report(Progress{Stage: StageCancelled})
	src := e.src.Image()
	img := &image.NRGBA{Pix: make([]uint8, len(src.Pix)), Stride: src.Stride, Rect: src.Rect}
	copy(img.Pix, src.Pix)
	slog.Info("Render cancelled", "completed_passes", len(passes))
	return &Result{Image: img, Outcome: OutcomeCancelled, Passes: passes}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// passMultiplier scales width and radius; it grows with the pass number so
// the first passes painted are the widest.
func passMultiplier(v Variant, pass int) float64 {
	if v == VariantImpasto {
		return math.Pow(float64(pass), 1.5)
	}
	return float64(int(1)<<pass - 1)
}

// passGeometry returns stroke width, radius and sampling stride for a pass.
func passGeometry(p Properties, pass int) (width, radius, stride int) {
	m := passMultiplier(p.Variant, pass)
	width = int(float64(p.StrokeWidth()) * m)
	radius = int(float64(p.Radius) * m)
	floor := 1
	if p.DirectionType == paint.DirectionTowardsSimilar {
		floor = 2
	}
	return width, radius, max(floor, width/2)
}

func (e *Effect) paintPass(ctx context.Context, canvas renderer.Canvas, pass, passes int, selection image.Rectangle) (PassStats, error) {
	start := time.Now()
	width, radius, stride := passGeometry(e.props, pass)
	stats := PassStats{Pass: pass, StrokeWidth: width, Radius: radius, Stride: stride}

	e.report(Progress{Stage: StageGenerating, Pass: pass, Passes: passes})
	strokes, err := paint.GenerateStrokes(ctx, e.src, paint.GenerateParams{
		SampleArea:      selection,
		Stride:          stride,
		Radius:          radius,
		Direction:       e.props.DirectionType,
		StrokeDirection: e.props.StrokeDirection,
		Sort1:           e.sort1,
		Sort2:           e.sort2,
		Workers:         e.opts.Workers,
	})
	if err != nil {
		return stats, err
	}
	stats.Strokes = len(strokes)
	if len(strokes) == 0 || radius <= 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	e.report(Progress{Stage: StageBucketing, Pass: pass, Passes: passes, Strokes: len(strokes)})
	grid := paint.BucketStrokes(strokes, e.cal, paint.DefaultBuckets)
	stats.Buckets = grid.NonEmpty()

	lod := 0
	if width >= detailFromWidth {
		lod = 1
	}
	pick, err := e.shapePicker(width, lod)
	if err != nil {
		return stats, err
	}

	e.report(Progress{Stage: StageDrawing, Pass: pass, Passes: passes, Strokes: len(strokes)})
	widthRatio := float32(width) / float32(radius)
	drawStroke := e.boldStroke
	if e.props.Variant == VariantImpasto {
		drawStroke = e.impastoStroke
	}
	grid.Each(func(bucket []paint.Stroke) {
		for _, s := range bucket {
			drawStroke(canvas, pick(s), s, widthRatio)
		}
	})

	stats.Duration = time.Since(start)
	slog.Info("Pass complete", "pass", pass, "stroke_width", width, "radius", radius,
		"stride", stride, "strokes", len(strokes), "buckets", stats.Buckets, "duration", stats.Duration)
	return stats, nil
}

// shapePicker returns the geometry choice for a pass.
func (e *Effect) shapePicker(width, lod int) (func(paint.Stroke) *brush.Geometry, error) {
	if width < rectangleBelowWidth {
		g, err := e.lib.Rectangle()
		if err != nil {
			return nil, err
		}
		return func(paint.Stroke) *brush.Geometry { return g }, nil
	}
	if e.props.StrokeStyle == brush.StyleRandom {
		geoms, err := e.lib.Random(lod)
		if err != nil {
			return nil, err
		}
		// Keyed by the stroke itself so re-renders keep their shapes.
		return func(s paint.Stroke) *brush.Geometry {
			return paint.Choose(geoms, int32(s.Start.X), int32(s.End.Y))
		}, nil
	}
	shape, err := e.lib.Shape(e.props.StrokeStyle)
	if err != nil {
		return nil, err
	}
	g := shape.LODs[lod]
	return func(paint.Stroke) *brush.Geometry { return g }, nil
}

func (e *Effect) boldStroke(canvas renderer.Canvas, geom *brush.Geometry, s paint.Stroke, widthRatio float32) {
	opacity := float64(100-e.props.Blendiness) / 100
	canvas.Draw(geom, renderer.Command{
		Shape:     geom.Name,
		LOD:       geom.LOD,
		Transform: renderer.StrokeTransform(s, widthRatio, image.Point{}),
		Colour:    filter.LinearColour(s.DrawColor, opacity),
	})
}

var (
	impastoShadow    = filter.LinearColour(colourRGB(0, 10, 30), 1)
	impastoHighlight = filter.LinearColour(colourRGB(255, 245, 235), 1)
)

// impastoStroke draws the stroke's relief: a shadow above, a highlight
// below, then clears its own footprint.
func (e *Effect) impastoStroke(canvas renderer.Canvas, geom *brush.Geometry, s paint.Stroke, widthRatio float32) {
	base := renderer.Command{Shape: geom.Name, LOD: geom.LOD}

	shadow := base
	shadow.Transform = renderer.StrokeTransform(s, widthRatio, image.Pt(0, -1))
	shadow.Colour, shadow.Mode = impastoShadow, renderer.ModeCopy
	canvas.Draw(geom, shadow)

	highlight := base
	highlight.Transform = renderer.StrokeTransform(s, widthRatio, image.Pt(0, 1))
	highlight.Colour, highlight.Mode = impastoHighlight, renderer.ModeCopy
	canvas.Draw(geom, highlight)

	erase := base
	erase.Transform = renderer.StrokeTransform(s, widthRatio, image.Point{})
	erase.Mode = renderer.ModeErase
	canvas.Draw(geom, erase)
}
