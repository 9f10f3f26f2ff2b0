package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/cwbudde/boldbrush/internal/effect"
	"github.com/cwbudde/boldbrush/internal/filter"
	"github.com/cwbudde/boldbrush/internal/imageio"
	"github.com/cwbudde/boldbrush/internal/renderer"
	"github.com/cwbudde/boldbrush/internal/store"
)

var (
	// ErrRenderNotFound is returned for an unknown render ID.
	ErrRenderNotFound = errors.New("render not found")
	// ErrRenderBusy is returned when a render is changed while it runs.
	ErrRenderBusy = errors.New("render is still running")
	// ErrBadProperties wraps property bodies that cannot be decoded.
	ErrBadProperties = errors.New("invalid properties")
)

// Start launches the render in the background. It returns ErrRenderBusy
// while an earlier start of the same render is still pending or running.
func (rm *RenderManager) Start(id string) error {
	ctx, cancel := context.WithCancel(context.Background())
	busy := false
	err := rm.UpdateRender(id, func(r *Render) {
		if r.State == StateRunning || (r.State == StatePending && r.cancel != nil) {
			busy = true
			return
		}
		r.State = StatePending
		r.cancel = cancel
		r.Error = ""
		r.EndTime = nil
	})
	if err != nil {
		cancel()
		return err
	}
	if busy {
		cancel()
		return ErrRenderBusy
	}

	go func() {
		defer cancel()
		if err := runRender(ctx, rm, id); err != nil {
			slog.Debug("Render worker returned", "render_id", id, "error", err)
		}
	}()
	return nil
}

// runRender paints one render to completion, cancellation or failure.
// The effect of a render is kept so later property changes can reuse its
// calibration and cached layers.
func runRender(ctx context.Context, rm *RenderManager, id string) error {
	r, exists := rm.GetRender(id)
	if !exists {
		return fmt.Errorf("%w: %s", ErrRenderNotFound, id)
	}

	if err := rm.UpdateRender(id, func(r *Render) {
		r.State = StateRunning
		r.Stage = effect.StageIdle
	}); err != nil {
		return err
	}

	slog.Info("Starting render", "render_id", id, "source", r.Request.SourcePath)

	src := r.source
	eff := r.effect
	if eff == nil {
		img, err := imageio.Load(r.Request.SourcePath)
		if err != nil {
			markRenderFailed(rm, id, err)
			return err
		}
		src = img
		eff = effect.New(effect.Options{
			Backend:  r.Request.Backend,
			Workers:  r.Request.Workers,
			Progress: rm.progressFunc(id),
		})
		if err := eff.SetSource(src); err != nil {
			markRenderFailed(rm, id, err)
			return err
		}
		rm.UpdateRender(id, func(r *Render) {
			r.source = src
			r.effect = eff
		})
		slog.Info("Loaded source image", "render_id", id, "width", src.Bounds().Dx(), "height", src.Bounds().Dy())
	}

	if _, err := eff.SetProperties(ctx, r.Request.Properties); err != nil {
		if ctx.Err() != nil {
			markRenderCancelled(rm, id)
			return ctx.Err()
		}
		markRenderFailed(rm, id, err)
		return err
	}

	start := time.Now()
	res, err := eff.Render(ctx, r.Request.Selection.Rect())
	if err != nil {
		markRenderFailed(rm, id, err)
		return err
	}
	elapsed := time.Since(start)

	if res.Outcome == effect.OutcomeCancelled {
		rm.UpdateRender(id, func(r *Render) { r.Passes = res.Passes })
		markRenderCancelled(rm, id)
		return context.Canceled
	}

	mse, err := filter.MSE(res.Image, src)
	if err != nil {
		slog.Warn("Failed to compute deviation", "render_id", id, "error", err)
	}

	endTime := time.Now()
	strokes := 0
	for _, p := range res.Passes {
		strokes += p.Strokes
	}
	err = rm.UpdateRender(id, func(r *Render) {
		r.State = StateCompleted
		r.Stage = effect.StageDone
		r.Passes = res.Passes
		r.Strokes = strokes
		r.Commands = res.Commands
		r.MSE = mse
		r.result = res.Image
		r.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	if err := rm.persist(id, res, mse, elapsed, true); err != nil {
		slog.Warn("Failed to persist render", "render_id", id, "error", err)
	}

	slog.Info("Render completed",
		"render_id", id,
		"elapsed", elapsed,
		"passes", len(res.Passes),
		"strokes", strokes,
		"mse", mse,
	)

	rm.broadcaster.Broadcast(ProgressEvent{
		RenderID:  id,
		State:     StateCompleted,
		Stage:     effect.StageDone,
		Passes:    res.Passes,
		Strokes:   strokes,
		MSE:       mse,
		Timestamp: time.Now(),
	})
	return nil
}

// progressFunc forwards effect progress to the render state and its stream.
// It runs under the effect lock and must not call back into the effect.
func (rm *RenderManager) progressFunc(id string) func(effect.Progress) {
	return func(p effect.Progress) {
		var state RenderState
		rm.UpdateRender(id, func(r *Render) {
			r.Stage = p.Stage
			r.Pass = p.Pass
			if p.Strokes > 0 {
				r.Strokes = p.Strokes
			}
			state = r.State
		})
		rm.broadcaster.Broadcast(ProgressEvent{
			RenderID:  id,
			State:     state,
			Stage:     p.Stage,
			Pass:      p.Pass,
			Strokes:   p.Strokes,
			Timestamp: time.Now(),
		})
	}
}

// UpdateProperties merges the JSON object body into the render's current
// properties. Shader-only changes recompose the cached layers in place;
// anything else paints the render again in the background.
func (rm *RenderManager) UpdateProperties(ctx context.Context, id string, body []byte) (effect.UpdateAction, error) {
	r, exists := rm.GetRender(id)
	if !exists {
		return effect.UpdateNone, fmt.Errorf("%w: %s", ErrRenderNotFound, id)
	}
	if r.State == StateRunning || r.State == StatePending {
		return effect.UpdateNone, ErrRenderBusy
	}

	props := r.Request.Properties
	if err := json.Unmarshal(body, &props); err != nil {
		return effect.UpdateNone, fmt.Errorf("%w: %v", ErrBadProperties, err)
	}

	if r.effect == nil {
		// The first render failed before the source was loaded.
		if err := props.Validate(); err != nil {
			return effect.UpdateNone, err
		}
		rm.UpdateRender(id, func(r *Render) { r.Request.Properties = props })
		return effect.RecreateOutput, rm.Start(id)
	}

	action, err := r.effect.SetProperties(ctx, props)
	if err != nil {
		return effect.UpdateNone, err
	}
	rm.UpdateRender(id, func(r *Render) { r.Request.Properties = props })

	switch action {
	case effect.UpdateNone:
		return action, nil
	case effect.UpdateOutput:
		img, err := r.effect.Update()
		if errors.Is(err, effect.ErrNotRendered) || errors.Is(err, effect.ErrStaleLayers) {
			// The last run was cancelled or failed; nothing to recompose.
			return effect.RecreateOutput, rm.Start(id)
		}
		if err != nil {
			return action, err
		}
		mse, _ := filter.MSE(img, r.source)
		rm.UpdateRender(id, func(r *Render) {
			r.result = img
			r.MSE = mse
			r.Updates++
		})
		res := &effect.Result{Image: img, Outcome: effect.OutcomeDone, Passes: r.Passes, Commands: r.Commands}
		if err := rm.persist(id, res, mse, 0, false); err != nil {
			slog.Warn("Failed to persist render", "render_id", id, "error", err)
		}
		slog.Info("Render recomposed", "render_id", id, "mse", mse)
		rm.broadcaster.Broadcast(ProgressEvent{
			RenderID:  id,
			State:     StateCompleted,
			Stage:     effect.StageDone,
			Passes:    r.Passes,
			Strokes:   r.Strokes,
			MSE:       mse,
			Timestamp: time.Now(),
		})
		return action, nil
	default:
		return action, rm.Start(id)
	}
}

// persist saves the record and result, and with trace set, replaces the
// pass trace. It is a no-op without a store.
func (rm *RenderManager) persist(id string, res *effect.Result, mse float64, took time.Duration, trace bool) error {
	if rm.store == nil {
		return nil
	}
	r, exists := rm.GetRender(id)
	if !exists {
		return fmt.Errorf("%w: %s", ErrRenderNotFound, id)
	}

	backend := string(renderer.NormalizeBackend(r.Request.Backend))
	rec := store.NewRecord(id, r.Request.SourcePath, r.Request.Properties, r.Request.Selection.Rect(), backend, res, mse, took)
	if err := rm.store.SaveRender(id, rec, res.Image); err != nil {
		return err
	}

	if !trace {
		return nil
	}
	dir, ok := rm.store.(interface{ BaseDir() string })
	if !ok {
		return nil
	}
	tw, err := store.NewTraceWriter(dir.BaseDir(), id, false)
	if err != nil {
		return err
	}
	for _, p := range res.Passes {
		if err := tw.Write(store.TraceEntry{PassStats: p, Timestamp: rec.Timestamp}); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

// markRenderFailed marks a render as failed with an error message
func markRenderFailed(rm *RenderManager, id string, err error) {
	endTime := time.Now()
	rm.UpdateRender(id, func(r *Render) {
		r.State = StateFailed
		r.Error = err.Error()
		r.EndTime = &endTime
	})
	rm.broadcaster.Broadcast(ProgressEvent{RenderID: id, State: StateFailed, Error: err.Error(), Timestamp: endTime})
	slog.Error("Render failed", "render_id", id, "error", err)
}

// markRenderCancelled marks a render as cancelled. The previous result, if
// any, stays available.
func markRenderCancelled(rm *RenderManager, id string) {
	endTime := time.Now()
	rm.UpdateRender(id, func(r *Render) {
		r.State = StateCancelled
		r.Stage = effect.StageCancelled
		r.EndTime = &endTime
		if r.result == nil && r.source != nil {
			r.result = cloneNRGBA(r.source)
		}
	})
	rm.broadcaster.Broadcast(ProgressEvent{RenderID: id, State: StateCancelled, Stage: effect.StageCancelled, Timestamp: endTime})
	slog.Info("Render cancelled", "render_id", id)
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}
