package paint

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidStride is returned when the sampling stride is not positive.
var ErrInvalidStride = errors.New("stride must be positive")

// ErrMissingSortFunc is returned when either sort function is nil.
var ErrMissingSortFunc = errors.New("sort functions not set")

// GenerateParams configures one stroke generation run.
type GenerateParams struct {
	// SampleArea is the grid origin and extent. Samples are clamped to the
	// source bounds, not to this area.
	SampleArea image.Rectangle
	Stride     int
	Radius     int

	Direction       Direction
	StrokeDirection float64 // degrees, used by DirectionByColour and DirectionFixed

	Sort1, Sort2 SortFunc

	// Workers bounds the number of rows generated concurrently.
	// Zero means GOMAXPROCS.
	Workers int
}

// GenerateStrokes samples the source on a jittered grid and returns one stroke
// per accepted cell, in row-major order. The result is identical for identical
// inputs regardless of Workers.
func GenerateStrokes(ctx context.Context, src *Sampler, p GenerateParams) ([]Stroke, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	if p.Stride <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStride, p.Stride)
	}
	if p.Sort1 == nil || p.Sort2 == nil {
		return nil, ErrMissingSortFunc
	}
	if err := p.Direction.Validate(); err != nil {
		return nil, err
	}

	gen := &generator{src: src, p: p}
	switch p.Direction {
	case DirectionTowardsSimilar:
		gen.ring = ringOffsets(p.Radius)
	case DirectionFixed:
		gen.normalX, gen.normalY = unitVector(p.StrokeDirection - 90)
	}

	numRows := p.SampleArea.Dy() / p.Stride
	if numRows <= 0 || p.SampleArea.Dx() <= 0 {
		return nil, nil
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rows := make([][]Stroke, numRows)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for row := 0; row < numRows; row++ {
		if gctx.Err() != nil {
			break
		}
		row := row
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[row] = gen.row(row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range rows {
		total += len(r)
	}
	strokes := make([]Stroke, 0, total)
	for _, r := range rows {
		strokes = append(strokes, r...)
	}
	return strokes, nil
}

type generator struct {
	src  *Sampler
	p    GenerateParams
	ring []image.Point

	normalX, normalY float64
}

func (g *generator) row(row int) []Stroke {
	area := g.p.SampleArea
	stride := g.p.Stride
	y := area.Min.Y + row*stride

	var out []Stroke
	for x := area.Min.X; x < area.Max.X; x += stride {
		sample := image.Pt(
			x+int(Randomish(int32(y+stride), int32(x))%int32(stride)),
			y+int(Randomish(int32(x+stride), int32(y))%int32(stride)),
		)
		s, ok := g.cell(sample)
		if !ok {
			continue
		}
		s.Sort1 = g.p.Sort1(s)
		s.Sort2 = g.p.Sort2(s)
		out = append(out, s)
	}
	return out
}

func (g *generator) cell(sample image.Point) (Stroke, bool) {
	current := g.src.At(sample)

	switch g.p.Direction {
	case DirectionTowardsSimilar:
		return g.towardsSimilar(sample, current)
	case DirectionByColour:
		grey := 1 - float64(Saturation(current))/255
		hueWeight := 1 - grey*grey
		angle := g.p.StrokeDirection - 90 + float64((Hue(current)+180)%360-180)*hueWeight
		nx, ny := unitVector(angle)
		return g.alongNormal(sample, current, nx, ny)
	default:
		return g.alongNormal(sample, current, g.normalX, g.normalY)
	}
}

// towardsSimilar tries every ring offset and keeps the one whose two ends
// differ least from the sample. The stroke runs from the mirrored end to the
// matched end so the sample sits in its middle.
func (g *generator) towardsSimilar(sample image.Point, current color.NRGBA) (Stroke, bool) {
	best := -1
	var s Stroke
	for i := len(g.ring) - 1; i >= 0; i-- {
		offset := g.ring[i]
		near := sample.Add(offset)
		mid := sample.Sub(offset)
		nearColor := g.src.At(near)
		midColor := g.src.At(mid)

		diff := Distance(current, nearColor) + Distance(current, midColor)
		if best < 0 || diff < best {
			best = diff
			s.End, s.EndColor = near, nearColor
			s.Start, s.StartColor = mid, midColor
		}
	}
	if best < 0 {
		return Stroke{}, false
	}
	s.MidColor = current
	s.DrawColor = Blend4(s.StartColor, s.MidColor, s.MidColor, s.EndColor)
	return s, true
}

// alongNormal lays a stroke of length radius from the sample along (nx, ny),
// skipping it when the far end or midpoint is fully transparent.
func (g *generator) alongNormal(sample image.Point, current color.NRGBA, nx, ny float64) (Stroke, bool) {
	radius := float64(g.p.Radius)
	end := sample.Add(scaleRound(nx, ny, radius))
	endColor := g.src.At(end)
	if endColor.A == 0 {
		return Stroke{}, false
	}
	midColor := g.src.At(sample.Add(scaleRound(nx, ny, radius*0.5)))
	if midColor.A == 0 {
		return Stroke{}, false
	}
	return Stroke{
		Start:      sample,
		End:        end,
		StartColor: current,
		MidColor:   midColor,
		EndColor:   endColor,
		DrawColor:  midColor,
	}, true
}

// CalibrationDivisor sets the calibration grid: stride is min(width, height)
// divided by this value.
const CalibrationDivisor = 15

// Calibrate generates strokes over the whole source at a coarse stride and
// returns their sort-key ranges. SampleArea and Stride in p are overridden.
func Calibrate(ctx context.Context, src *Sampler, p GenerateParams) (Calibration, error) {
	if src == nil {
		return Calibration{}, ErrNoSource
	}
	b := src.Bounds()
	p.SampleArea = b
	p.Stride = max(1, min(b.Dx(), b.Dy())/CalibrationDivisor)
	strokes, err := GenerateStrokes(ctx, src, p)
	if err != nil {
		return Calibration{}, fmt.Errorf("calibration: %w", err)
	}
	return CalibrationOf(strokes), nil
}
