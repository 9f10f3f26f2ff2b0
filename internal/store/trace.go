package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cwbudde/boldbrush/internal/effect"
)

// TraceFile is the name of the per-render pass trace.
const TraceFile = "trace.jsonl.zst"

// TraceEntry is one line of the pass trace: the statistics of a finished
// pass. Each entry is serialized as a JSON line inside a zstd stream.
type TraceEntry struct {
	effect.PassStats

	// Timestamp records when the pass finished
	Timestamp time.Time `json:"timestamp"`
}

// TraceWriter writes trace entries to a zstd-compressed JSONL file.
// It is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	enc    *zstd.Encoder
	writer *bufio.Writer
	path   string
}

func tracePath(baseDir, renderID string) string {
	return filepath.Join(renderDir(baseDir, renderID), TraceFile)
}

// NewTraceWriter creates a trace writer at <baseDir>/renders/<renderID>/trace.jsonl.zst.
// With append set, a new zstd frame is appended to the existing file; the
// reader decodes concatenated frames as one stream.
func NewTraceWriter(baseDir, renderID string, append bool) (*TraceWriter, error) {
	if err := os.MkdirAll(renderDir(baseDir, renderID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}

	path := tracePath(baseDir, renderID)

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	return &TraceWriter{
		file:   file,
		enc:    enc,
		writer: bufio.NewWriterSize(enc, 64*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry. It is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush pushes buffered entries through the encoder to disk. The flushed
// block is decodable before Close.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.enc.Flush(); err != nil {
		return fmt.Errorf("failed to flush zstd encoder: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data, ends the zstd frame and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.enc.Close()
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.enc.Close(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to close zstd encoder: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a zstd-compressed JSONL file.
type TraceReader struct {
	file    *os.File
	dec     *zstd.Decoder
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of the given render.
func NewTraceReader(baseDir, renderID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, renderID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RenderID: renderID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	dec, err := zstd.NewReader(file, zstd.WithDecoderConcurrency(1))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{file: file, dec: dec, scanner: scanner}, nil
}

// Read reads the next trace entry. Returns io.EOF when no more entries are
// available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining trace entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close releases the decoder and closes the file.
func (tr *TraceReader) Close() error {
	tr.dec.Close()
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace file for the given render.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, renderID string) error {
	err := os.Remove(tracePath(baseDir, renderID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
