package renderer

import (
	"image"

	"github.com/cwbudde/boldbrush/internal/brush"
)

// Recorder is a canvas that keeps the submitted commands and draws nothing.
// It backs dry runs and paint-order checks.
type Recorder struct {
	bounds  image.Rectangle
	layer   *image.RGBA64
	records []Command
}

// NewRecorder creates a recorder for a canvas covering bounds.
func NewRecorder(bounds image.Rectangle) *Recorder {
	return &Recorder{bounds: bounds}
}

// Draw records cmd. The shape name is taken from geom when cmd has none.
func (r *Recorder) Draw(geom *brush.Geometry, cmd Command) {
	if cmd.Shape == "" && geom != nil {
		cmd.Shape = geom.Name
	}
	r.records = append(r.records, cmd)
}

// Layer returns a transparent layer of the canvas size.
func (r *Recorder) Layer() *image.RGBA64 {
	if r.layer == nil {
		r.layer = image.NewRGBA64(r.bounds)
	}
	return r.layer
}

// Commands returns how many commands were recorded.
func (r *Recorder) Commands() int {
	return len(r.records)
}

// Records returns the recorded commands in submission order.
func (r *Recorder) Records() []Command {
	return append([]Command(nil), r.records...)
}
