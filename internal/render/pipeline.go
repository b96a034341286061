// Package render drives one complete lip-sync render: decode the audio,
// extract per-frame energy, classify visemes, build the frame schedule,
// composite mouth overlays over the base canvas in parallel, stream the
// frames to the encoder in presentation order, and remux the original audio
// into the final file.
//
// The pipeline is the only component that sequences fallible collaborator
// calls; every failure is wrapped in a [StageError] naming the stage that
// produced it.
package render

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lipsynth/internal/asset"
	"github.com/MrWong99/lipsynth/internal/composite"
	"github.com/MrWong99/lipsynth/internal/observe"
	"github.com/MrWong99/lipsynth/pkg/audio"
	"github.com/MrWong99/lipsynth/pkg/decode"
	"github.com/MrWong99/lipsynth/pkg/encode"
	"github.com/MrWong99/lipsynth/pkg/viseme"
)

// Stage names used in errors, spans, metrics, and the stats summary.
const (
	StageDecode    = "decode"
	StageEnergy    = "energy"
	StageClassify  = "classify"
	StageSchedule  = "schedule"
	StageComposite = "composite"
	StageEncode    = "encode"
	StageMux       = "mux"
)

// progressInterval is the number of encoded frames between progress log
// lines.
const progressInterval = 50

// StageError wraps a failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("render: stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// EncoderFactory produces an encoder writing a silent video to dest with
// the given frame geometry. The pipeline owns dest's lifecycle: it derives
// the path from the output file and removes it after muxing.
type EncoderFactory func(dest string, width, height, fps int) (encode.Encoder, error)

// Config carries the validated settings for one render run.
type Config struct {
	// AudioPath is the input audio file driving the animation.
	AudioPath string
	// OutputPath is the final video file. It only appears once the run
	// succeeds; intermediates are derived from it and cleaned up.
	OutputPath string

	// FrameDuration and HopDuration set the energy analysis window and the
	// spacing between consecutive windows.
	FrameDuration time.Duration
	HopDuration   time.Duration
	// EnergyScale selects linear RMS or decibel energies.
	EnergyScale audio.Scale

	// AutoThresholds derives the silence and loud cutoffs from the clip's
	// own energy distribution instead of the explicit thresholds below.
	AutoThresholds   bool
	SilenceThreshold float64
	LoudThreshold    float64
	// RotationPeriod is the loud-region mouth rotation cadence in analysis
	// frames.
	RotationPeriod int

	// FPS is the output video frame rate.
	FPS int
	// MinHoldFrames suppresses mouth changes held shorter than this many
	// video frames. Values below 2 disable smoothing.
	MinHoldFrames int
	// Workers is the compositing parallelism. Zero or negative means one
	// worker per CPU.
	Workers int
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Decoder    decode.Provider
	Compositor *composite.Compositor
	Shapes     *asset.ShapeSet
	NewEncoder EncoderFactory
	Muxer      encode.Muxer

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// Result summarises a finished render run.
type Result struct {
	// Frames is the number of video frames written.
	Frames int
	// Duration is the decoded audio duration, which the video matches.
	Duration time.Duration
	// Output is the final video path.
	Output string
	// AllNeutral reports that the energy distribution was flat and the
	// whole clip rendered with the resting mouth.
	AllNeutral bool
	// Stats is the latency summary collected during the run.
	Stats Snapshot
}

// Pipeline renders one audio file into a lip-synced video. A Pipeline is
// single-use; construct a fresh one per run.
type Pipeline struct {
	cfg   Config
	deps  Deps
	stats *Stats
}

// New validates cfg and deps and returns a ready Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	var errs []error
	if cfg.AudioPath == "" {
		errs = append(errs, fmt.Errorf("render: audio path must not be empty"))
	}
	if cfg.OutputPath == "" {
		errs = append(errs, fmt.Errorf("render: output path must not be empty"))
	}
	if cfg.FPS <= 0 {
		errs = append(errs, fmt.Errorf("render: fps %d must be positive", cfg.FPS))
	}
	if deps.Decoder == nil {
		errs = append(errs, fmt.Errorf("render: decoder must not be nil"))
	}
	if deps.Compositor == nil {
		errs = append(errs, fmt.Errorf("render: compositor must not be nil"))
	}
	if deps.Shapes == nil {
		errs = append(errs, fmt.Errorf("render: shape set must not be nil"))
	}
	if deps.NewEncoder == nil {
		errs = append(errs, fmt.Errorf("render: encoder factory must not be nil"))
	}
	if deps.Muxer == nil {
		errs = append(errs, fmt.Errorf("render: muxer must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Pipeline{cfg: cfg, deps: deps, stats: NewStats(512)}, nil
}

// Run executes the full render and blocks until the output file exists or
// the run fails. Cancelling ctx aborts between frames and leaves no partial
// output behind.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "render.run")
	defer span.End()

	res, err := p.run(ctx, observe.Logger(ctx))
	switch {
	case err == nil:
		p.deps.Metrics.RecordRun(ctx, "ok")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		p.deps.Metrics.RecordRun(ctx, "cancelled")
	default:
		p.deps.Metrics.RecordRun(ctx, "error")
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger) (*Result, error) {
	var buf *audio.Buffer
	if err := p.stage(ctx, StageDecode, func(ctx context.Context) error {
		var err error
		buf, err = p.deps.Decoder.Decode(ctx, p.cfg.AudioPath)
		return err
	}); err != nil {
		return nil, err
	}
	log.Info("audio decoded",
		"path", p.cfg.AudioPath,
		"samples", len(buf.Samples),
		"sample_rate", buf.SampleRate,
		"duration", buf.Duration())

	var energies []float64
	if err := p.stage(ctx, StageEnergy, func(context.Context) error {
		ext := audio.Extractor{
			FrameDuration: p.cfg.FrameDuration,
			HopDuration:   p.cfg.HopDuration,
			Scale:         p.cfg.EnergyScale,
		}
		var err error
		energies, err = ext.Energies(buf)
		return err
	}); err != nil {
		return nil, err
	}

	var (
		labels     []viseme.Label
		allNeutral bool
	)
	if err := p.stage(ctx, StageClassify, func(context.Context) error {
		var err error
		labels, allNeutral, err = p.classify(energies)
		return err
	}); err != nil {
		return nil, err
	}
	if allNeutral {
		log.Warn("energy distribution is flat, rendering the resting mouth throughout",
			"audio_frames", len(energies))
	}

	var sched *viseme.Schedule
	if err := p.stage(ctx, StageSchedule, func(context.Context) error {
		total := viseme.TotalFrames(buf.Duration(), p.cfg.FPS)
		var err error
		sched, err = viseme.Build(labels, p.cfg.HopDuration, p.cfg.FPS, total, p.cfg.MinHoldFrames)
		return err
	}); err != nil {
		return nil, err
	}
	log.Info("schedule built",
		"video_frames", sched.Len(),
		"segments", len(sched.Entries()),
		"fps", p.cfg.FPS)

	bounds := p.deps.Compositor.Bounds()
	silent := p.cfg.OutputPath + ".silent.mp4"
	enc, err := p.deps.NewEncoder(silent, bounds.Dx(), bounds.Dy(), p.cfg.FPS)
	if err != nil {
		return nil, &StageError{Stage: StageEncode, Err: err}
	}
	defer os.Remove(silent)

	if err := p.renderFrames(ctx, log, sched, enc); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, StageEncode, enc.Finalize); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, StageMux, func(ctx context.Context) error {
		return p.deps.Muxer.Mux(ctx, silent, p.cfg.AudioPath, p.cfg.OutputPath)
	}); err != nil {
		return nil, err
	}

	snap := p.stats.Snapshot()
	log.Info("render complete",
		"output", p.cfg.OutputPath,
		"frames", snap.Frames,
		"composite_p50", snap.Composite.P50,
		"composite_p95", snap.Composite.P95,
		"encode_p50", snap.Encode.P50)

	return &Result{
		Frames:     sched.Len(),
		Duration:   buf.Duration(),
		Output:     p.cfg.OutputPath,
		AllNeutral: allNeutral,
		Stats:      snap,
	}, nil
}

// stage runs fn under a child span, records its wall-clock duration, and
// tags any failure with the stage name.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "render."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	p.deps.Metrics.RecordStage(ctx, name, d.Seconds())
	p.stats.RecordStage(name, d)
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// classify derives thresholds and labels every energy frame. An automatic
// threshold pair that collapses (flat distribution, e.g. digital silence)
// cannot split the energy range into zones; the clip then renders with the
// resting mouth throughout instead of failing the run.
func (p *Pipeline) classify(energies []float64) ([]viseme.Label, bool, error) {
	silence, loud := p.cfg.SilenceThreshold, p.cfg.LoudThreshold
	if p.cfg.AutoThresholds {
		silence, loud = viseme.AutoThresholds(energies)
		if loud <= silence {
			return make([]viseme.Label, len(energies)), true, nil
		}
	}

	cls, err := viseme.NewClassifier(viseme.ClassifierConfig{
		SilenceThreshold: silence,
		LoudThreshold:    loud,
		RotationPeriod:   p.cfg.RotationPeriod,
	})
	if err != nil {
		return nil, false, err
	}
	return cls.Classify(energies), false, nil
}

// renderFrames composites every scheduled frame across the worker pool and
// streams them to enc strictly in presentation order.
func (p *Pipeline) renderFrames(ctx context.Context, log *slog.Logger, sched *viseme.Schedule, enc encode.Encoder) error {
	ctx, span := observe.StartSpan(ctx, "render."+StageComposite)
	defer span.End()

	total := sched.Len()
	workers := min(p.cfg.Workers, total)

	eg, egCtx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	results := make(chan renderedFrame, workers)

	workerGroup, workerCtx := errgroup.WithContext(egCtx)

	// Feeder hands out indices in order so worker skew, and therefore the
	// re-sequencing buffer, stays bounded by the worker count.
	workerGroup.Go(func() error {
		defer close(jobs)
		for i := range total {
			select {
			case jobs <- i:
			case <-workerCtx.Done():
				return workerCtx.Err()
			}
		}
		return nil
	})

	for range workers {
		workerGroup.Go(func() error {
			for idx := range jobs {
				frame, err := p.compositeFrame(workerCtx, sched, idx)
				if err != nil {
					return &StageError{Stage: StageComposite, Err: err}
				}
				select {
				case results <- renderedFrame{index: idx, image: frame}:
					p.deps.Metrics.EncodeQueueDepth.Add(workerCtx, 1)
				case <-workerCtx.Done():
					return workerCtx.Err()
				}
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer close(results)
		return workerGroup.Wait()
	})

	// The single consumer restores presentation order and owns the encoder.
	eg.Go(func() error {
		var h frameHeap
		next := 0
		for rf := range results {
			heap.Push(&h, rf)
			for h.Len() > 0 && h[0].index == next {
				out := heap.Pop(&h).(renderedFrame)
				p.deps.Metrics.EncodeQueueDepth.Add(egCtx, -1)

				start := time.Now()
				if err := enc.Append(egCtx, out.image); err != nil {
					return &StageError{Stage: StageEncode, Err: err}
				}
				d := time.Since(start)
				p.stats.RecordEncode(d)
				p.deps.Metrics.RecordStage(egCtx, StageEncode, d.Seconds())

				next++
				if next%progressInterval == 0 {
					log.Info("render progress", "frames", next, "total", total)
				}
			}
		}
		return nil
	})

	return eg.Wait()
}

// compositeFrame renders a single output frame. Neutral resolves to a nil
// overlay, which the compositor turns into an untouched copy of the base.
func (p *Pipeline) compositeFrame(ctx context.Context, sched *viseme.Schedule, idx int) (*image.NRGBA, error) {
	label, err := sched.LabelAt(idx)
	if err != nil {
		return nil, err
	}
	overlay, err := p.deps.Shapes.Resolve(label)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	frame, err := p.deps.Compositor.Compose(overlay)
	if err != nil {
		return nil, err
	}
	d := time.Since(start)
	p.stats.RecordComposite(d)
	p.deps.Metrics.RecordFrames(ctx, 1)
	p.deps.Metrics.RecordStage(ctx, StageComposite, d.Seconds())
	return frame, nil
}
