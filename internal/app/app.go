// Package app wires the lipsynth subsystems into a runnable renderer.
//
// The App struct owns the full lifecycle: New resolves the collaborators,
// prepares the character canvas and mouth shapes, and assembles the render
// pipeline; Run executes one render; Shutdown tears everything down in
// reverse order.
//
// For testing, inject mock implementations via functional options
// (WithDecoder, WithMatter, etc.). When an option is not provided, New
// resolves the registered implementation named in the config.
package app

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/lipsynth/internal/asset"
	"github.com/MrWong99/lipsynth/internal/composite"
	"github.com/MrWong99/lipsynth/internal/config"
	"github.com/MrWong99/lipsynth/internal/observe"
	"github.com/MrWong99/lipsynth/internal/render"
	"github.com/MrWong99/lipsynth/pkg/decode"
	"github.com/MrWong99/lipsynth/pkg/encode"
	"github.com/MrWong99/lipsynth/pkg/matting"
	"github.com/MrWong99/lipsynth/pkg/viseme"
)

// App owns the collaborator lifetimes and runs the render pipeline.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	// Collaborators resolved in New and torn down in Shutdown.
	decoder    decode.Provider
	matter     matting.Matter
	newEncoder render.EncoderFactory
	muxer      encode.Muxer
	metrics    *observe.Metrics

	// Prepared once in New and shared read-only afterwards.
	compositor *composite.Compositor
	shapes     *asset.ShapeSet

	pipeline *render.Pipeline

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
// Injected collaborators are still closed on Shutdown when they implement
// [io.Closer], the same as registry-built ones.
type Option func(*App)

// WithDecoder injects an audio decoder instead of resolving one from the
// registry.
func WithDecoder(d decode.Provider) Option {
	return func(a *App) { a.decoder = d }
}

// WithMatter injects a background matter instead of resolving one from the
// registry.
func WithMatter(m matting.Matter) Option {
	return func(a *App) { a.matter = m }
}

// WithEncoderFactory injects a video encoder factory instead of resolving
// one from the registry.
func WithEncoderFactory(f render.EncoderFactory) Option {
	return func(a *App) { a.newEncoder = f }
}

// WithMuxer injects an audio muxer instead of resolving one from the
// registry.
func WithMuxer(m encode.Muxer) Option {
	return func(a *App) { a.muxer = m }
}

// WithMetrics injects a metrics handle instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by resolving the configured collaborators through the
// registry, loading and matting the character, assembling the base canvas,
// loading the mouth shapes, and constructing the render pipeline. Use
// Option functions to inject test doubles for any collaborator.
//
// New performs all preparation synchronously so that Run starts with every
// asset in memory and every collaborator ready.
func New(ctx context.Context, cfg *config.Config, registry *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		registry: registry,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Collaborators ─────────────────────────────────────────────────
	if err := a.initCollaborators(); err != nil {
		return nil, fmt.Errorf("app: init collaborators: %w", err)
	}

	// ── 2. Character canvas ──────────────────────────────────────────────
	if err := a.initCanvas(ctx); err != nil {
		return nil, fmt.Errorf("app: init canvas: %w", err)
	}

	// ── 3. Mouth shapes ──────────────────────────────────────────────────
	if err := a.initShapes(); err != nil {
		return nil, fmt.Errorf("app: init shapes: %w", err)
	}

	// ── 4. Render pipeline ───────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCollaborators resolves the configured decoder, matter, encoder
// factory and muxer, skipping any slot an Option already filled.
func (a *App) initCollaborators() error {
	if a.decoder == nil {
		d, err := a.registry.CreateDecoder(a.cfg)
		if err != nil {
			return err
		}
		a.decoder = d
	}
	if a.matter == nil {
		m, err := a.registry.CreateMatter(a.cfg)
		if err != nil {
			return err
		}
		a.matter = m
	}
	if a.newEncoder == nil {
		f, err := a.registry.CreateEncoder(a.cfg)
		if err != nil {
			return err
		}
		a.newEncoder = f
	}
	if a.muxer == nil {
		m, err := a.registry.CreateMuxer(a.cfg)
		if err != nil {
			return err
		}
		a.muxer = m
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// Collaborators that hold resources surface them through io.Closer.
	a.registerCloser(a.decoder)
	a.registerCloser(a.matter)
	a.registerCloser(a.muxer)

	slog.Info("collaborators resolved",
		"decoder", a.cfg.Audio.Decoder,
		"matting", a.cfg.Character.Matting,
		"encoder", a.cfg.Render.Encoder)
	return nil
}

// initCanvas loads the character art, strips its background, blends it
// over the backdrop and fixes the mouth anchor. The result is the base
// every output frame starts from.
func (a *App) initCanvas(ctx context.Context) error {
	character, err := asset.LoadImage(a.cfg.Character.Image)
	if err != nil {
		return err
	}
	matted, err := a.matter.Matte(ctx, character)
	if err != nil {
		return err
	}

	var background *image.NRGBA
	if a.cfg.Character.Background != "" {
		background, err = asset.LoadImage(a.cfg.Character.Background)
		if err != nil {
			return err
		}
	}
	base, err := asset.AssembleCanvas(matted, background)
	if err != nil {
		return err
	}

	a.compositor, err = composite.New(base, a.cfg.Character.Anchor.Rect())
	if err != nil {
		return err
	}

	slog.Info("canvas assembled",
		"character", a.cfg.Character.Image,
		"width", base.Bounds().Dx(),
		"height", base.Bounds().Dy(),
		"matting", a.cfg.Character.Matting)
	return nil
}

// initShapes loads every bound mouth overlay and verifies it fits the
// anchor.
func (a *App) initShapes() error {
	shapes, err := asset.LoadShapes(
		a.cfg.Shapes.Dir,
		a.cfg.Shapes.LabelFiles(),
		a.cfg.Shapes.TargetWidth,
		a.cfg.Character.Anchor.Rect(),
	)
	if err != nil {
		return err
	}
	a.shapes = shapes

	slog.Info("mouth shapes loaded", "dir", a.cfg.Shapes.Dir, "count", shapes.Len())
	return nil
}

// initPipeline assembles the render pipeline from the resolved
// collaborators and the prepared assets.
func (a *App) initPipeline() error {
	p, err := render.New(render.Config{
		AudioPath:        a.cfg.Audio.Path,
		OutputPath:       a.cfg.Render.Output,
		FrameDuration:    a.cfg.Audio.FrameDuration(),
		HopDuration:      a.cfg.Audio.HopDuration(),
		EnergyScale:      a.cfg.Audio.EnergyScale.Scale(),
		AutoThresholds:   a.cfg.Classifier.ThresholdMode == config.ThresholdAuto,
		SilenceThreshold: a.cfg.Classifier.SilenceThreshold,
		LoudThreshold:    a.cfg.Classifier.LoudThreshold,
		RotationPeriod:   a.cfg.Classifier.RotationPeriod,
		FPS:              a.cfg.Render.FPS,
		MinHoldFrames:    a.cfg.Render.MinHoldFrames,
		Workers:          a.cfg.Render.Workers,
	}, render.Deps{
		Decoder:    a.decoder,
		Compositor: a.compositor,
		Shapes:     a.shapes,
		NewEncoder: a.newEncoder,
		Muxer:      a.muxer,
		Metrics:    a.metrics,
	})
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// registerCloser queues v's Close for Shutdown when it holds resources.
func (a *App) registerCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes one render and returns its result. Run blocks until the
// output file exists or the run fails; cancelling ctx aborts the render
// between frames and removes partial outputs.
func (a *App) Run(ctx context.Context) (*render.Result, error) {
	slog.Info("render starting",
		"audio", a.cfg.Audio.Path,
		"output", a.cfg.Render.Output,
		"fps", a.cfg.Render.FPS,
		"workers", a.cfg.Render.Workers)
	return a.pipeline.Run(ctx)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down the collaborators in reverse-init order. It respects
// the context deadline: if ctx expires before all closers finish, the
// remaining closers are skipped and the context error is returned.
// Subsequent calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Canvas returns the assembled base canvas bounds.
func (a *App) Canvas() image.Rectangle {
	return a.compositor.Bounds()
}

// BoundShapes returns the labels with a loaded mouth overlay, sorted.
func (a *App) BoundShapes() []viseme.Label {
	return a.shapes.Labels()
}
