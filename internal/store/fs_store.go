package store

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Renders are stored in a directory structure: <baseDir>/renders/<renderID>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func renderDir(baseDir, renderID string) string {
	return filepath.Join(baseDir, "renders", renderID)
}

func (fs *FSStore) recordPath(renderID string) string {
	return filepath.Join(renderDir(fs.baseDir, renderID), "render.json")
}

func (fs *FSStore) resultPath(renderID string) string {
	return filepath.Join(renderDir(fs.baseDir, renderID), "result.png")
}

// writeAtomic writes data through a temp file and renames it into place.
func writeAtomic(path string, write func(*os.File) error) error {
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveRender atomically saves a render record and its result image.
// The image is written first so a visible record always has its pixels.
func (fs *FSStore) SaveRender(renderID string, record *Record, img *image.NRGBA) error {
	if renderID == "" {
		return fmt.Errorf("renderID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	dir := renderDir(fs.baseDir, renderID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create render directory: %w", err)
	}

	if img != nil {
		err := writeAtomic(fs.resultPath(renderID), func(f *os.File) error {
			if err := png.Encode(f, img); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	err = writeAtomic(fs.recordPath(renderID), func(f *os.File) error {
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("Render saved", "renderID", renderID, "dir", dir)
	return nil
}

// LoadRender retrieves the record for the given render.
func (fs *FSStore) LoadRender(renderID string) (*Record, error) {
	if renderID == "" {
		return nil, fmt.Errorf("renderID cannot be empty")
	}

	path := fs.recordPath(renderID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RenderID: renderID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	slog.Debug("Render loaded", "renderID", renderID, "path", path)
	return &record, nil
}

// LoadResult decodes result.png for the given render.
func (fs *FSStore) LoadResult(renderID string) (*image.NRGBA, error) {
	if renderID == "" {
		return nil, fmt.Errorf("renderID cannot be empty")
	}

	f, err := os.Open(fs.resultPath(renderID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RenderID: renderID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open result: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba, nil
	}
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out, nil
}

// ListRenders returns metadata for all saved renders.
func (fs *FSStore) ListRenders() ([]RecordInfo, error) {
	rendersDir := filepath.Join(fs.baseDir, "renders")

	entries, err := os.ReadDir(rendersDir)
	if os.IsNotExist(err) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read renders directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		renderID := entry.Name()
		if _, err := os.Stat(fs.recordPath(renderID)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadRender(renderID)
		if err != nil {
			slog.Warn("Failed to load render for listing", "renderID", renderID, "error", err)
			continue
		}

		infos = append(infos, record.ToInfo())
	}

	slog.Debug("Listed renders", "count", len(infos))
	return infos, nil
}

// DeleteRender removes the render directory and everything in it.
func (fs *FSStore) DeleteRender(renderID string) error {
	if renderID == "" {
		return fmt.Errorf("renderID cannot be empty")
	}

	dir := renderDir(fs.baseDir, renderID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RenderID: renderID}
	} else if err != nil {
		return fmt.Errorf("failed to stat render directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove render directory: %w", err)
	}

	slog.Debug("Render deleted", "renderID", renderID, "path", dir)
	return nil
}
