package store

import "image"

// Store defines the interface for render persistence operations.
// Implementations must be thread-safe and handle concurrent access gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the render doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRender atomically saves the record and, when img is non-nil, the
	// result image for the given render. Existing files are overwritten.
	SaveRender(renderID string, record *Record, img *image.NRGBA) error

	// LoadRender retrieves the record for the given render.
	// Returns ErrNotFound if no record exists for this renderID.
	LoadRender(renderID string) (*Record, error)

	// LoadResult decodes the saved result image.
	// Returns ErrNotFound if no result was saved.
	LoadResult(renderID string) (*image.NRGBA, error)

	// ListRenders returns metadata for all saved renders.
	ListRenders() ([]RecordInfo, error)

	// DeleteRender removes the record and all associated artifacts:
	//   - render.json
	//   - result.png
	//   - trace.jsonl.zst
	DeleteRender(renderID string) error
}

// ErrNotFound is returned when a requested render does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing render error.
type NotFoundError struct {
	RenderID string
}

func (e *NotFoundError) Error() string {
	if e.RenderID != "" {
		return "render not found: " + e.RenderID
	}
	return "render not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
