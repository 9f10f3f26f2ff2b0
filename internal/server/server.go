// Package server exposes renders over HTTP: create, inspect, stream, update
// and cancel them, and fetch their images.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nfnt/resize"

	"github.com/cwbudde/boldbrush/internal/brush"
	"github.com/cwbudde/boldbrush/internal/effect"
	"github.com/cwbudde/boldbrush/internal/filter"
	"github.com/cwbudde/boldbrush/internal/renderer"
	"github.com/cwbudde/boldbrush/internal/store"
)

const (
	defaultPreviewSize = 256
	maxPreviewSize     = 2048
	maxBodyBytes       = 1 << 20
)

// Server represents the HTTP server
type Server struct {
	renderManager *RenderManager
	store         store.Store
	addr          string
	server        *http.Server
}

// NewServer creates a new HTTP server. st may be nil to keep renders in
// memory only.
func NewServer(addr string, st store.Store) *Server {
	return &Server{
		renderManager: NewRenderManager(st),
		store:         st,
		addr:          addr,
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/renders", s.handleRenders)
	mux.HandleFunc("/api/v1/renders/", s.handleRendersWithID)
	mux.HandleFunc("/api/v1/backends", s.handleBackends)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running renders and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.renderManager.CancelAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRenders handles /api/v1/renders
func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRender(w, r)
	case http.MethodGet:
		s.handleListRenders(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRendersWithID handles /api/v1/renders/:id/*
func (s *Server) handleRendersWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/renders/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Render ID required", http.StatusBadRequest)
		return
	}

	renderID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetRenderStatus(w, r, renderID)
		case http.MethodPatch:
			s.handleUpdateRender(w, r, renderID)
		case http.MethodDelete:
			s.handleCancelRender(w, r, renderID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "status":
		s.handleGetRenderStatus(w, r, renderID)
	case "result.png":
		s.handleGetResultImage(w, r, renderID)
	case "diff.png":
		s.handleGetDiffImage(w, r, renderID)
	case "preview.png":
		s.handleGetPreviewImage(w, r, renderID)
	case "trace":
		s.handleGetTrace(w, r, renderID)
	case "stream":
		s.handleRenderStream(w, r, renderID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateRender handles POST /api/v1/renders
func (s *Server) handleCreateRender(w http.ResponseWriter, r *http.Request) {
	req := NewRenderRequest()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if req.SourcePath == "" {
		http.Error(w, "sourcePath is required", http.StatusBadRequest)
		return
	}
	if err := req.Properties.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := brush.Default().ValidateStyle(req.Properties.StrokeStyle); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !slices.Contains(renderer.SupportedBackends(), renderer.NormalizeBackend(req.Backend)) {
		http.Error(w, fmt.Sprintf("%v: %s", renderer.ErrUnknownBackend, req.Backend), http.StatusBadRequest)
		return
	}
	if req.Selection.Width < 0 || req.Selection.Height < 0 {
		http.Error(w, "selection width and height must not be negative", http.StatusBadRequest)
		return
	}

	render := s.renderManager.CreateRender(req)
	if err := s.renderManager.Start(render.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, render)
}

// handleListRenders handles GET /api/v1/renders
func (s *Server) handleListRenders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.renderManager.ListRenders())
}

// handleBackends handles GET /api/v1/backends
func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, renderer.SupportedBackends())
}

// handleGetRenderStatus handles GET /api/v1/renders/:id[/status]
func (s *Server) handleGetRenderStatus(w http.ResponseWriter, r *http.Request, renderID string) {
	render, exists := s.renderManager.GetRender(renderID)
	if !exists {
		http.Error(w, "Render not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if render.EndTime != nil {
		elapsed = render.EndTime.Sub(render.StartTime)
	} else {
		elapsed = time.Since(render.StartTime)
	}

	// Strokes per second over the finished passes
	sps := float64(0)
	var painting time.Duration
	strokes := 0
	for _, p := range render.Passes {
		painting += p.Duration
		strokes += p.Strokes
	}
	if painting > 0 {
		sps = float64(strokes) / painting.Seconds()
	}

	response := map[string]interface{}{
		"id":        render.ID,
		"state":     render.State,
		"stage":     render.Stage,
		"request":   render.Request,
		"pass":      render.Pass,
		"passes":    render.Passes,
		"strokes":   render.Strokes,
		"commands":  render.Commands,
		"mse":       render.MSE,
		"updates":   render.Updates,
		"elapsed":   elapsed.Seconds(),
		"sps":       sps,
		"startTime": render.StartTime,
		"endTime":   render.EndTime,
		"error":     render.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleUpdateRender handles PATCH /api/v1/renders/:id
func (s *Server) handleUpdateRender(w http.ResponseWriter, r *http.Request, renderID string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	action, err := s.renderManager.UpdateProperties(r.Context(), renderID, body)
	switch {
	case errors.Is(err, ErrRenderNotFound):
		http.Error(w, "Render not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrRenderBusy):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, ErrBadProperties), errors.Is(err, effect.ErrUnsupportedValue):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if action == effect.RecreateOutput {
		status = http.StatusAccepted
	}
	render, _ := s.renderManager.GetRender(renderID)
	writeJSON(w, status, map[string]interface{}{
		"action": action.String(),
		"render": render,
	})
}

// handleCancelRender handles DELETE /api/v1/renders/:id
func (s *Server) handleCancelRender(w http.ResponseWriter, r *http.Request, renderID string) {
	render, exists := s.renderManager.GetRender(renderID)
	if !exists {
		http.Error(w, "Render not found", http.StatusNotFound)
		return
	}
	if !s.renderManager.Cancel(renderID) {
		http.Error(w, fmt.Sprintf("Render is %s", render.State), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": renderID, "state": "cancelling"})
}

// resultImage returns the latest result from memory or the store.
func (s *Server) resultImage(renderID string) (*image.NRGBA, int) {
	_, result, _ := s.renderManager.images(renderID)
	if result != nil {
		return result, http.StatusOK
	}
	if s.store != nil {
		img, err := s.store.LoadResult(renderID)
		if err == nil {
			return img, http.StatusOK
		}
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("Failed to load result", "render_id", renderID, "error", err)
			return nil, http.StatusInternalServerError
		}
	}
	return nil, http.StatusNotFound
}

// handleGetResultImage handles GET /api/v1/renders/:id/result.png
func (s *Server) handleGetResultImage(w http.ResponseWriter, r *http.Request, renderID string) {
	img, status := s.resultImage(renderID)
	if img == nil {
		http.Error(w, "No result yet", status)
		return
	}
	writePNG(w, img)
}

// handleGetDiffImage handles GET /api/v1/renders/:id/diff.png
func (s *Server) handleGetDiffImage(w http.ResponseWriter, r *http.Request, renderID string) {
	source, result, exists := s.renderManager.images(renderID)
	if !exists {
		http.Error(w, "Render not found", http.StatusNotFound)
		return
	}
	if result == nil || source == nil {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	}
	writePNG(w, filter.DiffImage(source, result))
}

// handleGetPreviewImage handles GET /api/v1/renders/:id/preview.png?size=N
func (s *Server) handleGetPreviewImage(w http.ResponseWriter, r *http.Request, renderID string) {
	size := defaultPreviewSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPreviewSize {
			http.Error(w, fmt.Sprintf("size must be between 1 and %d", maxPreviewSize), http.StatusBadRequest)
			return
		}
		size = n
	}

	img, status := s.resultImage(renderID)
	if img == nil {
		http.Error(w, "No result yet", status)
		return
	}
	writePNG(w, resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3))
}

// handleGetTrace handles GET /api/v1/renders/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, renderID string) {
	if dir, ok := s.store.(interface{ BaseDir() string }); ok {
		reader, err := store.NewTraceReader(dir.BaseDir(), renderID)
		if err == nil {
			defer reader.Close()
			entries, err := reader.ReadAll()
			if err != nil {
				http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, entries)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Failed to open trace: %v", err), http.StatusInternalServerError)
			return
		}
	}

	render, exists := s.renderManager.GetRender(renderID)
	if !exists {
		http.Error(w, "Render not found", http.StatusNotFound)
		return
	}
	ts := time.Now()
	if render.EndTime != nil {
		ts = *render.EndTime
	}
	entries := make([]store.TraceEntry, 0, len(render.Passes))
	for _, p := range render.Passes {
		entries = append(entries, store.TraceEntry{PassStats: p, Timestamp: ts})
	}
	writeJSON(w, http.StatusOK, entries)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}
