package renderer

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Backend identifies a canvas implementation.
type Backend string

const (
	BackendCPU    Backend = "cpu"
	BackendRecord Backend = "record"
)

// ErrUnknownBackend is returned when the name does not match a known backend.
var ErrUnknownBackend = errors.New("unknown renderer backend")

var noopCleanup = func() {}

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cpu", "software":
		return BackendCPU
	case "record", "dry-run", "dryrun":
		return BackendRecord
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendCPU, BackendRecord}
}

// NewCanvasForBackend constructs the requested canvas covering bounds and returns
// an optional cleanup hook.
func NewCanvasForBackend(name string, bounds image.Rectangle, antialias bool) (Canvas, func(), error) {
	switch NormalizeBackend(name) {
	case BackendCPU:
		return NewCPUCanvas(bounds, antialias), noopCleanup, nil
	case BackendRecord:
		return NewRecorder(bounds), noopCleanup, nil
	default:
		return nil, noopCleanup, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
