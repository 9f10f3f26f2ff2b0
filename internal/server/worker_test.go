package server

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/boldbrush/internal/effect"
	"github.com/cwbudde/boldbrush/internal/store"
)

// newTestRender creates a manager backed by a temp store and one pending
// render over the test image.
func newTestRender(t *testing.T) (*RenderManager, *store.FSStore, string) {
	t.Helper()

	tmpDir := t.TempDir()
	imgPath := filepath.Join(tmpDir, "test.png")
	createTestImage(t, imgPath)

	st, err := store.NewFSStore(filepath.Join(tmpDir, "data"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	rm := NewRenderManager(st)

	req := NewRenderRequest()
	req.SourcePath = imgPath
	render := rm.CreateRender(req)
	return rm, st, render.ID
}

func waitForState(t *testing.T, rm *RenderManager, id string, states ...RenderState) *Render {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		r, _ := rm.GetRender(id)
		for _, s := range states {
			if r.State == s {
				return r
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	r, _ := rm.GetRender(id)
	t.Fatalf("Render did not reach %v in time, state %s (%s)", states, r.State, r.Error)
	return nil
}

func TestRunRender_Success(t *testing.T) {
	rm, st, id := newTestRender(t)

	if err := runRender(context.Background(), rm, id); err != nil {
		t.Fatalf("runRender should succeed: %v", err)
	}

	r, _ := rm.GetRender(id)
	if r.State != StateCompleted {
		t.Fatalf("Render should be completed, got %s (%s)", r.State, r.Error)
	}
	if len(r.Passes) != 2 {
		t.Errorf("Expected 2 passes for bold, got %d", len(r.Passes))
	}
	if r.Commands == 0 || r.Strokes == 0 {
		t.Errorf("Expected strokes to be drawn, got %d commands %d strokes", r.Commands, r.Strokes)
	}
	_, result, _ := rm.images(id)
	if result == nil || result.Bounds() != image.Rect(0, 0, 50, 50) {
		t.Fatalf("Expected 50x50 result, got %v", result)
	}

	rec, err := st.LoadRender(id)
	if err != nil {
		t.Fatalf("Record should be saved: %v", err)
	}
	if rec.Outcome != effect.OutcomeDone || rec.Width != 50 {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Saved record should be valid: %v", err)
	}

	reader, err := store.NewTraceReader(st.BaseDir(), id)
	if err != nil {
		t.Fatalf("Trace should be saved: %v", err)
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(entries) != 2 || entries[0].Pass != 2 || entries[1].Pass != 1 {
		t.Errorf("Expected passes 2 then 1 in trace, got %+v", entries)
	}
}

func TestRunRender_InvalidImage(t *testing.T) {
	rm := NewRenderManager(nil)
	req := NewRenderRequest()
	req.SourcePath = "/nonexistent/image.png"
	render := rm.CreateRender(req)

	if err := runRender(context.Background(), rm, render.ID); err == nil {
		t.Error("runRender should fail with invalid image path")
	}

	r, _ := rm.GetRender(render.ID)
	if r.State != StateFailed {
		t.Errorf("Render should be failed, got %s", r.State)
	}
	if r.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunRender_Cancellation(t *testing.T) {
	rm, st, id := newTestRender(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runRender(ctx, rm, id); err == nil {
		t.Error("runRender should return error when cancelled")
	}

	r, _ := rm.GetRender(id)
	if r.State != StateCancelled {
		t.Errorf("Render should be cancelled, got %s", r.State)
	}

	// A cancelled render shows the untouched source.
	source, result, _ := rm.images(id)
	if result == nil {
		t.Fatal("Cancelled render should expose the source")
	}
	if string(result.Pix) != string(source.Pix) {
		t.Error("Cancelled result should equal the source")
	}

	if _, err := st.LoadRender(id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Cancelled render should not be saved, got %v", err)
	}
}

func TestUpdateProperties_ShaderOnly(t *testing.T) {
	rm, st, id := newTestRender(t)
	if err := runRender(context.Background(), rm, id); err != nil {
		t.Fatalf("runRender failed: %v", err)
	}
	_, before, _ := rm.images(id)

	action, err := rm.UpdateProperties(context.Background(), id, []byte(`{"preserveFineDetails": 0, "background": "secondary_colour"}`))
	if err != nil {
		t.Fatalf("UpdateProperties failed: %v", err)
	}
	if action != effect.UpdateOutput {
		t.Fatalf("Expected update_output, got %s", action)
	}

	r, _ := rm.GetRender(id)
	if r.State != StateCompleted {
		t.Errorf("Recomposition should not repaint, state %s", r.State)
	}
	if r.Updates != 1 {
		t.Errorf("Expected 1 update, got %d", r.Updates)
	}
	if r.Request.Properties.Background != effect.BackgroundSecondary {
		t.Errorf("Properties not merged: %+v", r.Request.Properties)
	}
	if r.Request.Properties.Radius != 20 {
		t.Errorf("Unchanged fields should keep their values, radius %d", r.Request.Properties.Radius)
	}

	_, after, _ := rm.images(id)
	if string(after.Pix) == string(before.Pix) {
		t.Error("Result should change after recomposition")
	}

	rec, err := st.LoadRender(id)
	if err != nil {
		t.Fatalf("LoadRender failed: %v", err)
	}
	if rec.Properties.PreserveFineDetails != 0 {
		t.Errorf("Saved record should carry new properties, got pfd %d", rec.Properties.PreserveFineDetails)
	}

	// Same body again changes nothing.
	action, err = rm.UpdateProperties(context.Background(), id, []byte(`{"preserveFineDetails": 0}`))
	if err != nil || action != effect.UpdateNone {
		t.Errorf("Expected no-op update, got %s, %v", action, err)
	}
}

func TestUpdateProperties_Recreate(t *testing.T) {
	rm, _, id := newTestRender(t)
	if err := runRender(context.Background(), rm, id); err != nil {
		t.Fatalf("runRender failed: %v", err)
	}

	action, err := rm.UpdateProperties(context.Background(), id, []byte(`{"radius": 10}`))
	if err != nil {
		t.Fatalf("UpdateProperties failed: %v", err)
	}
	if action != effect.RecreateOutput {
		t.Fatalf("Expected recreate_output, got %s", action)
	}

	r := waitForState(t, rm, id, StateCompleted, StateFailed)
	if r.State != StateCompleted {
		t.Fatalf("Repaint failed: %s", r.Error)
	}
	if len(r.Passes) == 0 || r.Passes[len(r.Passes)-1].Radius != 10 {
		t.Errorf("Expected last pass radius 10, got %+v", r.Passes)
	}
}

func TestUpdateProperties_Errors(t *testing.T) {
	rm, _, id := newTestRender(t)
	if err := runRender(context.Background(), rm, id); err != nil {
		t.Fatalf("runRender failed: %v", err)
	}

	tests := []struct {
		name string
		body string
		want error
	}{
		{"malformed json", `{"radius":`, ErrBadProperties},
		{"radius out of range", `{"radius": 1}`, effect.ErrUnsupportedValue},
		{"unknown background", `{"background": "plaid"}`, effect.ErrUnsupportedValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rm.UpdateProperties(context.Background(), id, []byte(tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			r, _ := rm.GetRender(id)
			if r.Request.Properties != effect.DefaultProperties() {
				t.Error("Properties should be unchanged after a failed update")
			}
		})
	}

	if _, err := rm.UpdateProperties(context.Background(), "nonexistent", []byte(`{}`)); !errors.Is(err, ErrRenderNotFound) {
		t.Errorf("Expected ErrRenderNotFound, got %v", err)
	}

	rm.UpdateRender(id, func(r *Render) { r.State = StateRunning })
	if _, err := rm.UpdateProperties(context.Background(), id, []byte(`{}`)); !errors.Is(err, ErrRenderBusy) {
		t.Errorf("Expected ErrRenderBusy, got %v", err)
	}
}

func TestStart_RejectsSecondStart(t *testing.T) {
	rm, _, id := newTestRender(t)

	firstCancelled := false
	rm.UpdateRender(id, func(r *Render) {
		r.State = StatePending
		r.cancel = func() { firstCancelled = true }
	})

	if err := rm.Start(id); !errors.Is(err, ErrRenderBusy) {
		t.Fatalf("Expected ErrRenderBusy for a pending render, got %v", err)
	}
	if !rm.Cancel(id) {
		t.Fatal("Cancel should reach the pending render")
	}
	if !firstCancelled {
		t.Error("Cancel should call the cancel func of the first start")
	}

	rm.UpdateRender(id, func(r *Render) { r.State = StateRunning })
	if err := rm.Start(id); !errors.Is(err, ErrRenderBusy) {
		t.Errorf("Expected ErrRenderBusy for a running render, got %v", err)
	}
}

// createTestImage writes a white 50x50 PNG with a red square.
func createTestImage(t *testing.T, path string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	white := color.NRGBA{255, 255, 255, 255}
	red := color.NRGBA{255, 0, 0, 255}

	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, white)
		}
	}
	for y := 20; y < 30; y++ {
		for x := 20; x < 30; x++ {
			img.Set(x, y, red)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}
