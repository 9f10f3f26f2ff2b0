package paint

import (
	"image"
	"image/color"
)

// Stroke is one brush stroke sampled from the source image.
type Stroke struct {
	Start image.Point `json:"start"`
	End   image.Point `json:"end"`

	DrawColor  color.NRGBA `json:"drawColor"`
	StartColor color.NRGBA `json:"startColor"`
	MidColor   color.NRGBA `json:"midColor"`
	EndColor   color.NRGBA `json:"endColor"`

	// Sort keys, filled in once the colours are known.
	Sort1 int32 `json:"sort1"`
	Sort2 int32 `json:"sort2"`
}

// Vector returns End - Start.
func (s Stroke) Vector() image.Point {
	return s.End.Sub(s.Start)
}

// SortFunc scores a stroke for paint ordering. Higher scores paint later.
type SortFunc func(s Stroke) int32
