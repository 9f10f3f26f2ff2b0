package store

import (
	"fmt"
	"image"
	"time"

	"github.com/cwbudde/boldbrush/internal/effect"
)

// Record is the persisted description of one render: its inputs and what
// each pass produced. The result pixels live next to it in result.png.
type Record struct {
	// RenderID is the unique identifier for this render
	RenderID string `json:"renderId"`

	// SourcePath is the source image the render was painted from
	SourcePath string `json:"sourcePath"`

	// Width and Height are the source dimensions in pixels
	Width  int `json:"width"`
	Height int `json:"height"`

	// Properties is the configuration the result was composed with
	Properties effect.Properties `json:"properties"`

	// Selection is the region strokes were generated for; empty means all
	Selection image.Rectangle `json:"selection"`

	Backend string `json:"backend"`

	// Outcome is "done" or "cancelled"
	Outcome effect.Outcome `json:"outcome"`

	Passes   []effect.PassStats `json:"passes"`
	Commands int                `json:"commands"`

	// MSE compares the result with the source over sRGB channels
	MSE float64 `json:"mse"`

	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// RecordInfo contains metadata about a render without pass details.
type RecordInfo struct {
	RenderID   string         `json:"renderId"`
	SourcePath string         `json:"sourcePath"`
	Variant    effect.Variant `json:"variant"`
	Outcome    effect.Outcome `json:"outcome"`
	Strokes    int            `json:"strokes"`
	MSE        float64        `json:"mse"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewRecord creates a record from a finished render.
func NewRecord(renderID, sourcePath string, props effect.Properties, selection image.Rectangle, backend string, res *effect.Result, mse float64, took time.Duration) *Record {
	r := &Record{
		RenderID:   renderID,
		SourcePath: sourcePath,
		Properties: props,
		Selection:  selection,
		Backend:    backend,
		MSE:        mse,
		Duration:   took,
		Timestamp:  time.Now(),
	}
	if res != nil {
		r.Outcome = res.Outcome
		r.Passes = res.Passes
		r.Commands = res.Commands
		if res.Image != nil {
			r.Width, r.Height = res.Image.Bounds().Dx(), res.Image.Bounds().Dy()
		}
	}
	return r
}

// Strokes returns the total number of strokes over all passes.
func (r *Record) Strokes() int {
	n := 0
	for _, p := range r.Passes {
		n += p.Strokes
	}
	return n
}

// ToInfo converts a full Record to RecordInfo (metadata only).
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		RenderID:   r.RenderID,
		SourcePath: r.SourcePath,
		Variant:    r.Properties.Variant,
		Outcome:    r.Outcome,
		Strokes:    r.Strokes(),
		MSE:        r.MSE,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks that the record has the fields a reload needs.
func (r *Record) Validate() error {
	if r.RenderID == "" {
		return &ValidationError{Field: "RenderID", Reason: "cannot be empty"}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return &ValidationError{Field: "Width/Height", Reason: "must be positive"}
	}
	switch r.Outcome {
	case effect.OutcomeDone, effect.OutcomeCancelled:
	default:
		return &ValidationError{Field: "Outcome", Reason: fmt.Sprintf("unknown value %q", r.Outcome)}
	}
	if r.MSE < 0 {
		return &ValidationError{Field: "MSE", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if err := r.Properties.Validate(); err != nil {
		return &ValidationError{Field: "Properties", Reason: err.Error()}
	}
	for i, p := range r.Passes {
		if p.Strokes < 0 || p.StrokeWidth <= 0 {
			return &ValidationError{Field: fmt.Sprintf("Passes[%d]", i), Reason: "invalid pass statistics"}
		}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsReusable reports whether a saved render can be recomposed for props
// without painting again: same source and same drawing properties.
func (r *Record) IsReusable(sourcePath string, props effect.Properties) error {
	if r.SourcePath != sourcePath {
		return &CompatibilityError{Field: "SourcePath", Expected: r.SourcePath, Actual: sourcePath}
	}
	if r.Properties.DrawingProperties() != props.DrawingProperties() {
		return &CompatibilityError{
			Field:    "DrawingProperties",
			Expected: fmt.Sprintf("%+v", r.Properties.DrawingProperties()),
			Actual:   fmt.Sprintf("%+v", props.DrawingProperties()),
		}
	}
	return nil
}

// CompatibilityError represents a mismatch between a record and new inputs.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
