package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cwbudde/boldbrush/internal/effect"
)

func passEntry(pass, strokes int) TraceEntry {
	return TraceEntry{
		PassStats: effect.PassStats{
			Pass:        pass,
			StrokeWidth: 8 * pass,
			Radius:      10 * pass,
			Stride:      4 * pass,
			Strokes:     strokes,
			Buckets:     pass * pass,
			Duration:    time.Duration(pass) * time.Millisecond,
		},
		Timestamp: time.Now(),
	}
}

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	renderID := "test-render-123"

	writer, err := NewTraceWriter(tmpDir, renderID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{passEntry(3, 10), passEntry(2, 40), passEntry(1, 160)}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "renders", renderID, "trace.jsonl.zst")
	if writer.Path() != tracePath {
		t.Errorf("Expected path %s, got %s", tracePath, writer.Path())
	}
	if _, err := os.Stat(tracePath); os.IsNotExist(err) {
		t.Fatalf("Trace file not created: %s", tracePath)
	}

	reader, err := NewTraceReader(tmpDir, renderID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}
	for i, entry := range readEntries {
		if entry.PassStats != entries[i].PassStats {
			t.Errorf("Entry %d: expected %+v, got %+v", i, entries[i].PassStats, entry.PassStats)
		}
	}
}

func TestTraceWriter_IsCompressed(t *testing.T) {
	tmpDir := t.TempDir()
	renderID := "test-render-zstd"

	writer, err := NewTraceWriter(tmpDir, renderID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i := 0; i < 100; i++ {
		writer.Write(passEntry(1, i))
	}
	writer.Close()

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}

	// zstd frame magic number
	magic := []byte{0x28, 0xb5, 0x2f, 0xfd}
	if len(data) < 4 || string(data[:4]) != string(magic) {
		t.Fatalf("Expected zstd magic, got % x", data[:min(4, len(data))])
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("Failed to create decoder: %v", err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(data, nil)
	if err != nil {
		t.Fatalf("Failed to decode trace: %v", err)
	}
	if len(data) >= len(plain) {
		t.Errorf("Expected compression, got %d bytes for %d plain bytes", len(data), len(plain))
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	renderID := "test-render-append"

	writer, err := NewTraceWriter(tmpDir, renderID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	if err := writer.Write(passEntry(2, 5)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	writer, err = NewTraceWriter(tmpDir, renderID, true)
	if err != nil {
		t.Fatalf("Failed to create trace writer in append mode: %v", err)
	}
	if err := writer.Write(passEntry(1, 20)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, renderID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Pass != 2 {
		t.Errorf("First entry: expected pass 2, got %d", entries[0].Pass)
	}
	if entries[1].Pass != 1 {
		t.Errorf("Second entry: expected pass 1, got %d", entries[1].Pass)
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	renderID := "test-render-flush"

	writer, err := NewTraceWriter(tmpDir, renderID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(passEntry(1, 3)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	// Flushed entries are readable while the writer is still open
	reader, err := NewTraceReader(tmpDir, renderID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entry, err := reader.Read()
	if err != nil {
		t.Fatalf("Failed to read flushed entry: %v", err)
	}
	if entry.Strokes != 3 {
		t.Errorf("Expected 3 strokes, got %d", entry.Strokes)
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	renderID := "test-render-iter"

	writer, err := NewTraceWriter(tmpDir, renderID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := writer.Write(passEntry(1, i*10)); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, renderID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read entry: %v", err)
		}
		if entry.Strokes != count*10 {
			t.Errorf("Entry %d: expected %d strokes, got %d", count, count*10, entry.Strokes)
		}
		count++
	}

	if count != 5 {
		t.Errorf("Expected to read 5 entries, got %d", count)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "nonexistent-render")
	if err == nil {
		t.Fatal("Expected error for nonexistent trace file")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError, got: %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	renderID := "test-render-delete"

	writer, err := NewTraceWriter(tmpDir, renderID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(passEntry(1, 1))
	writer.Close()

	if err := DeleteTrace(tmpDir, renderID); err != nil {
		t.Fatalf("Failed to delete trace: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists after delete")
	}

	if err := DeleteTrace(tmpDir, "nonexistent-render"); err != nil {
		t.Errorf("DeleteTrace should not error for nonexistent file, got: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	renderID := "test-render-concurrent"

	writer, err := NewTraceWriter(tmpDir, renderID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			if err := writer.Write(passEntry(1, n)); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, renderID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}
