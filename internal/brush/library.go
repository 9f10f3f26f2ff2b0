// Package brush loads brush outlines and keeps them flattened, per level of
// detail, for the stroke renderer.
package brush

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

//go:embed shapes/*.svg
var embedded embed.FS

const (
	// StyleRandom selects a shape per stroke instead of one fixed shape.
	StyleRandom = "Random"
	// RectangleName is the minimal quad used for very thin strokes.
	RectangleName = "Rectangle"
)

// Shapes whose name contains one of these are never picked at random.
var excludedFromRandom = []string{RectangleName, "Novelty"}

// ErrUnknownShape is returned when a style names no loaded shape.
var ErrUnknownShape = errors.New("unknown brush shape")

// Shape is a named brush outline at every level of detail.
type Shape struct {
	Name string
	LODs [NumLODs]*Geometry
}

// Library owns every loaded shape, keyed by display name. It is built lazily
// and can be invalidated and rebuilt as a unit.
type Library struct {
	mu         sync.Mutex
	fsys       fs.FS
	shapes     map[string]*Shape
	names      []string
	random     [NumLODs][]*Geometry
	generation int
}

// NewLibrary creates a library that reads *.svg files from the root of fsys.
func NewLibrary(fsys fs.FS) *Library {
	return &Library{fsys: fsys}
}

// Default returns a library over the built-in shapes.
func Default() *Library {
	sub, err := fs.Sub(embedded, "shapes")
	if err != nil {
		panic(err)
	}
	return NewLibrary(sub)
}

// PrettifyName turns a file name like "dry_bristle.svg" into "Dry bristle".
func PrettifyName(file string) string {
	base := strings.TrimSuffix(path.Base(file), path.Ext(file))
	base = strings.Join(strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' }), " ")
	if base == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(base)
	return string(unicode.ToUpper(r)) + base[size:]
}

// Invalidate drops all loaded geometry. The next lookup rebuilds it.
func (l *Library) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
	slog.Debug("Brush library invalidated", "generation", l.generation)
}

// Rebuild drops and reloads all geometry immediately.
func (l *Library) Rebuild() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
	return l.load()
}

// Generation increases every time the library is invalidated.
func (l *Library) Generation() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// Names returns the display names of all shapes, sorted.
func (l *Library) Names() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensure(); err != nil {
		return nil, err
	}
	return append([]string(nil), l.names...), nil
}

// Shape returns the shape with the given display name.
func (l *Library) Shape(name string) (*Shape, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensure(); err != nil {
		return nil, err
	}
	s, ok := l.shapes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, name)
	}
	return s, nil
}

// Random returns the geometries eligible for random selection at lod.
func (l *Library) Random(lod int) ([]*Geometry, error) {
	if lod < 0 || lod >= NumLODs {
		return nil, fmt.Errorf("level of detail %d out of range", lod)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensure(); err != nil {
		return nil, err
	}
	if len(l.random[lod]) == 0 {
		return nil, fmt.Errorf("%w: no shapes eligible for random style", ErrUnknownShape)
	}
	return l.random[lod], nil
}

// Rectangle returns the low-detail quad used for thin strokes.
func (l *Library) Rectangle() (*Geometry, error) {
	s, err := l.Shape(RectangleName)
	if err != nil {
		return nil, err
	}
	return s.LODs[0], nil
}

// ValidateStyle checks that style is StyleRandom or a loaded shape name.
func (l *Library) ValidateStyle(style string) error {
	if style == StyleRandom {
		return nil
	}
	_, err := l.Shape(style)
	return err
}

func (l *Library) reset() {
	l.shapes = nil
	l.names = nil
	l.random = [NumLODs][]*Geometry{}
	l.generation++
}

func (l *Library) ensure() error {
	if l.shapes != nil {
		return nil
	}
	return l.load()
}

func (l *Library) load() error {
	files, err := fs.Glob(l.fsys, "*.svg")
	if err != nil {
		return fmt.Errorf("failed to list brush shapes: %w", err)
	}
	sort.Strings(files)

	shapes := make(map[string]*Shape, len(files))
	names := make([]string, 0, len(files))
	var random [NumLODs][]*Geometry
	for _, file := range files {
		name := PrettifyName(file)
		f, err := l.fsys.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open brush shape %s: %w", file, err)
		}
		shape, err := parseShape(name, f)
		f.Close()
		if err != nil {
			return err
		}
		shapes[name] = shape
		names = append(names, name)
		if eligibleForRandom(name) {
			for lod := range random {
				random[lod] = append(random[lod], shape.LODs[lod])
			}
		}
	}
	sort.Strings(names)

	l.shapes, l.names, l.random = shapes, names, random
	slog.Debug("Brush library loaded", "shapes", len(names), "generation", l.generation)
	return nil
}

func eligibleForRandom(name string) bool {
	for _, ex := range excludedFromRandom {
		if strings.Contains(name, ex) {
			return false
		}
	}
	return true
}
