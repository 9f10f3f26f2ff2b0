package server

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/boldbrush/internal/effect"
	"github.com/cwbudde/boldbrush/internal/store"
)

// RenderState represents the current state of a render
type RenderState string

const (
	StatePending   RenderState = "pending"
	StateRunning   RenderState = "running"
	StateCompleted RenderState = "completed"
	StateFailed    RenderState = "failed"
	StateCancelled RenderState = "cancelled"
)

// Selection is a rectangle in source pixels. The zero value selects the
// whole source.
type Selection struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the selection to an image.Rectangle.
func (s Selection) Rect() image.Rectangle {
	return image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
}

// RenderRequest is the body of POST /api/v1/renders.
type RenderRequest struct {
	SourcePath string            `json:"sourcePath"`
	Properties effect.Properties `json:"properties"`
	Selection  Selection         `json:"selection"`
	Backend    string            `json:"backend,omitempty"`
	Workers    int               `json:"workers,omitempty"`
}

// NewRenderRequest returns a request carrying the default properties, so a
// decoded body only needs the fields it changes.
func NewRenderRequest() RenderRequest {
	return RenderRequest{Properties: effect.DefaultProperties()}
}

// Render is one painting job and its latest outcome.
type Render struct {
	ID      string        `json:"id"`
	State   RenderState   `json:"state"`
	Request RenderRequest `json:"request"`

	Stage   effect.Stage       `json:"stage,omitempty"`
	Pass    int                `json:"pass"`
	Passes  []effect.PassStats `json:"passes,omitempty"`
	Strokes int                `json:"strokes"`

	Commands int     `json:"commands"`
	MSE      float64 `json:"mse"`
	// Updates counts recompositions done without repainting.
	Updates int `json:"updates"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`

	effect *effect.Effect
	source *image.NRGBA
	result *image.NRGBA
	cancel context.CancelFunc
}

// RenderManager manages the lifecycle of renders
type RenderManager struct {
	mu          sync.RWMutex
	renders     map[string]*Render
	broadcaster *EventBroadcaster
	store       store.Store
}

// NewRenderManager creates a new RenderManager. st may be nil, in which
// case renders live in memory only.
func NewRenderManager(st store.Store) *RenderManager {
	return &RenderManager{
		renders:     make(map[string]*Render),
		broadcaster: NewEventBroadcaster(),
		store:       st,
	}
}

// CreateRender registers a new pending render for req.
func (rm *RenderManager) CreateRender(req RenderRequest) *Render {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r := &Render{
		ID:        uuid.New().String(),
		State:     StatePending,
		Request:   req,
		StartTime: time.Now(),
	}

	rm.renders[r.ID] = r
	snapshot := *r
	return &snapshot
}

// GetRender returns a snapshot of the render with the given ID.
func (rm *RenderManager) GetRender(id string) (*Render, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	r, exists := rm.renders[id]
	if !exists {
		return nil, false
	}
	snapshot := *r
	snapshot.Passes = append([]effect.PassStats(nil), r.Passes...)
	return &snapshot, true
}

// ListRenders returns snapshots of all renders
func (rm *RenderManager) ListRenders() []*Render {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	renders := make([]*Render, 0, len(rm.renders))
	for _, r := range rm.renders {
		snapshot := *r
		renders = append(renders, &snapshot)
	}
	return renders
}

// UpdateRender atomically updates a render using the provided function
func (rm *RenderManager) UpdateRender(id string, updateFn func(*Render)) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r, exists := rm.renders[id]
	if !exists {
		return fmt.Errorf("render not found: %s", id)
	}

	updateFn(r)
	return nil
}

// GetRunningRenders returns all renders currently in the running state
func (rm *RenderManager) GetRunningRenders() []*Render {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	running := make([]*Render, 0)
	for _, r := range rm.renders {
		if r.State == StateRunning || r.State == StatePending {
			snapshot := *r
			running = append(running, &snapshot)
		}
	}
	return running
}

// Cancel stops a pending or running render. It reports false when the
// render does not exist or has already finished.
func (rm *RenderManager) Cancel(id string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r, exists := rm.renders[id]
	if !exists || r.cancel == nil {
		return false
	}
	if r.State != StateRunning && r.State != StatePending {
		return false
	}
	r.cancel()
	return true
}

// images returns the source and latest result of a render.
func (rm *RenderManager) images(id string) (source, result *image.NRGBA, ok bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	r, exists := rm.renders[id]
	if !exists {
		return nil, nil, false
	}
	return r.source, r.result, true
}

// CancelAll stops every pending or running render.
func (rm *RenderManager) CancelAll() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, r := range rm.renders {
		if r.cancel != nil && (r.State == StateRunning || r.State == StatePending) {
			r.cancel()
		}
	}
}
