package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/boldbrush/internal/effect"
)

// ProgressEvent is one stage transition or final outcome of a render.
type ProgressEvent struct {
	RenderID string             `json:"renderId"`
	State    RenderState        `json:"state"`
	Stage    effect.Stage       `json:"stage,omitempty"`
	Pass     int                `json:"pass,omitempty"`
	Strokes  int                `json:"strokes,omitempty"`
	Passes   []effect.PassStats `json:"passes,omitempty"`
	MSE      float64            `json:"mse,omitempty"`
	Error    string             `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// EventBroadcaster manages SSE connections per render
type EventBroadcaster struct {
	mu        sync.RWMutex
	clients   map[string]map[chan ProgressEvent]bool // renderID -> set of client channels
	lastEvent map[string]ProgressEvent               // renderID -> last event for new clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ProgressEvent]bool),
		lastEvent: make(map[string]ProgressEvent),
	}
}

// Subscribe adds a client to receive events for a render
func (eb *EventBroadcaster) Subscribe(renderID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 10) // Buffered to prevent blocking

	if eb.clients[renderID] == nil {
		eb.clients[renderID] = make(map[chan ProgressEvent]bool)
	}
	eb.clients[renderID][ch] = true

	// Send last event if available (for reconnecting clients)
	if lastEvent, ok := eb.lastEvent[renderID]; ok {
		select {
		case ch <- lastEvent:
		default:
			// Channel full, skip
		}
	}

	slog.Debug("SSE client subscribed", "renderID", renderID, "total_clients", len(eb.clients[renderID]))
	return ch
}

// Unsubscribe removes a client from receiving events
func (eb *EventBroadcaster) Unsubscribe(renderID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[renderID]; ok {
		delete(clients, ch)
		close(ch)

		if len(clients) == 0 {
			delete(eb.clients, renderID)
		}
	}

	slog.Debug("SSE client unsubscribed", "renderID", renderID)
}

// Broadcast sends an event to all subscribed clients of its render
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	// Store last event
	eb.lastEvent[event.RenderID] = event

	clients, ok := eb.clients[event.RenderID]
	if !ok || len(clients) == 0 {
		return
	}

	slog.Debug("Broadcasting event", "renderID", event.RenderID, "clients", len(clients), "stage", event.Stage)

	for ch := range clients {
		select {
		case ch <- event:
			// Event sent successfully
		default:
			// Channel full, skip this client (prevents blocking)
			slog.Warn("SSE channel full, skipping event", "renderID", event.RenderID)
		}
	}
}

// handleRenderStream handles SSE connections for render progress
func (s *Server) handleRenderStream(w http.ResponseWriter, r *http.Request, renderID string) {
	render, exists := s.renderManager.GetRender(renderID)
	if !exists {
		http.Error(w, "Render not found", http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Get flusher
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe to events
	eventChan := s.renderManager.broadcaster.Subscribe(renderID)
	defer s.renderManager.broadcaster.Unsubscribe(renderID, eventChan)

	// Send initial event with current render state
	initialEvent := ProgressEvent{
		RenderID:  render.ID,
		State:     render.State,
		Stage:     render.Stage,
		Pass:      render.Pass,
		Strokes:   render.Strokes,
		Passes:    render.Passes,
		MSE:       render.MSE,
		Error:     render.Error,
		Timestamp: time.Now(),
	}

	if err := writeSSEEvent(w, initialEvent); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	// Set up ping ticker to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	// Listen for events and client disconnect
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			slog.Debug("SSE client disconnected", "renderID", renderID)
			return

		case event, ok := <-eventChan:
			if !ok {
				// Channel closed
				return
			}

			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			// Send ping to keep connection alive
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// SSE format: "data: {json}\n\n"
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
