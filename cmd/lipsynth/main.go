// Command lipsynth renders a lip-synced character video from an audio file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/MrWong99/lipsynth/internal/app"
	"github.com/MrWong99/lipsynth/internal/config"
	"github.com/MrWong99/lipsynth/internal/observe"
	"github.com/MrWong99/lipsynth/internal/render"
	"github.com/MrWong99/lipsynth/pkg/decode"
	"github.com/MrWong99/lipsynth/pkg/decode/ffmpegdec"
	"github.com/MrWong99/lipsynth/pkg/decode/wavfile"
	"github.com/MrWong99/lipsynth/pkg/encode"
	"github.com/MrWong99/lipsynth/pkg/encode/ffmpegenc"
	"github.com/MrWong99/lipsynth/pkg/matting"
	"github.com/MrWong99/lipsynth/pkg/matting/chromakey"
	"github.com/MrWong99/lipsynth/pkg/matting/rembg"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "", "input audio file (overrides audio.path)")
	outPath := flag.String("out", "", "output video file (overrides render.output)")
	logLevel := flag.String("log-level", "", "log verbosity: debug, info, warn or error (overrides observe.log_level)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lipsynth: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lipsynth: %v\n", err)
		}
		return 1
	}
	if err := applyOverrides(cfg, *audioPath, *outPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "lipsynth: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Observe.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("lipsynth starting",
		"config", *configPath,
		"audio", cfg.Audio.Path,
		"output", cfg.Render.Output,
		"log_level", cfg.Observe.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Observe.ServiceName,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Collaborator registry ─────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinCollaborators(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	res, err := application.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Warn("render cancelled")
	case err != nil:
		slog.Error("render failed", "err", err)
		return 1
	default:
		slog.Info("render finished",
			"output", res.Output,
			"frames", res.Frames,
			"duration", res.Duration,
			"all_neutral", res.AllNeutral,
		)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	if res == nil {
		return 1
	}
	return 0
}

// applyOverrides folds the CLI flags into the loaded config and re-checks
// the fields flags can change.
func applyOverrides(cfg *config.Config, audioPath, outPath, logLevel string) error {
	if audioPath != "" {
		cfg.Audio.Path = audioPath
	}
	if outPath != "" {
		cfg.Render.Output = outPath
	}
	if logLevel != "" {
		lvl := config.LogLevel(logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("log level %q is invalid; valid values: debug, info, warn, error", logLevel)
		}
		cfg.Observe.LogLevel = lvl
	}
	if cfg.Audio.Path == "" {
		return fmt.Errorf("an input audio file is required: set audio.path or pass -audio")
	}
	return nil
}

// ── Collaborator wiring ───────────────────────────────────────────────────────

// builtinCollaborators maps collaborator kinds to the implementations that
// ship with lipsynth. Used for startup logging.
var builtinCollaborators = map[string][]string{
	"decoder": {"wav", "ffmpeg"},
	"matting": {"chromakey", "rembg", "none"},
	"encoder": {"ffmpeg"},
	"muxer":   {"ffmpeg"},
}

// registerBuiltinCollaborators wires all built-in collaborator factories
// into reg. Each factory reads its own section of the config and constructs
// the appropriate implementation.
func registerBuiltinCollaborators(reg *config.Registry) {
	// ── Decoders ──────────────────────────────────────────────────────────────

	reg.RegisterDecoder("wav", func(*config.Config) (decode.Provider, error) {
		return wavfile.New(), nil
	})

	reg.RegisterDecoder("ffmpeg", func(cfg *config.Config) (decode.Provider, error) {
		var opts []ffmpegdec.Option
		if cfg.Render.FFmpegPath != "" {
			opts = append(opts, ffmpegdec.WithFFmpegPath(cfg.Render.FFmpegPath))
		}
		return ffmpegdec.New(opts...), nil
	})

	// ── Matters ───────────────────────────────────────────────────────────────

	reg.RegisterMatter("chromakey", func(cfg *config.Config) (matting.Matter, error) {
		var opts []chromakey.Option
		if cfg.Character.ChromaTolerance > 0 {
			opts = append(opts, chromakey.WithTolerance(cfg.Character.ChromaTolerance))
		}
		return chromakey.New(opts...), nil
	})

	reg.RegisterMatter("rembg", func(cfg *config.Config) (matting.Matter, error) {
		return rembg.New(cfg.Character.RembgURL, rembg.WithTransport(observe.Transport(nil, nil)))
	})

	reg.RegisterMatter("none", func(*config.Config) (matting.Matter, error) {
		return matting.Passthrough{}, nil
	})

	// ── Encoders + muxers ─────────────────────────────────────────────────────
	// The ffmpeg encoder and muxer share the binary override.

	reg.RegisterEncoder("ffmpeg", func(cfg *config.Config) (render.EncoderFactory, error) {
		var opts []ffmpegenc.Option
		if cfg.Render.FFmpegPath != "" {
			opts = append(opts, ffmpegenc.WithFFmpegPath(cfg.Render.FFmpegPath))
		}
		return func(dest string, width, height, fps int) (encode.Encoder, error) {
			return ffmpegenc.New(dest, width, height, fps, opts...)
		}, nil
	})

	reg.RegisterMuxer("ffmpeg", func(cfg *config.Config) (encode.Muxer, error) {
		var opts []ffmpegenc.Option
		if cfg.Render.FFmpegPath != "" {
			opts = append(opts, ffmpegenc.WithFFmpegPath(cfg.Render.FFmpegPath))
		}
		return ffmpegenc.NewMuxer(opts...), nil
	})

	// Debug log of all registered collaborators.
	for kind, names := range builtinCollaborators {
		for _, name := range names {
			slog.Debug("registered collaborator", "kind", kind, "name", name)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         lipsynth — run summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", cfg.Audio.Path)
	printRow("Decoder", string(cfg.Audio.Decoder))
	printRow("Energy", fmt.Sprintf("%s %dms/%dms", cfg.Audio.EnergyScale, cfg.Audio.FrameDurationMS, cfg.Audio.HopDurationMS))
	printRow("Thresholds", thresholdSummary(cfg.Classifier))
	printRow("Character", cfg.Character.Image)
	printRow("Matting", string(cfg.Character.Matting))
	printRow("Anchor", fmt.Sprintf("%dx%d at %d,%d", cfg.Character.Anchor.W, cfg.Character.Anchor.H, cfg.Character.Anchor.X, cfg.Character.Anchor.Y))
	printRow("Shapes", fmt.Sprintf("%d bound", len(cfg.Shapes.Files)))
	printRow("Output", cfg.Render.Output)
	printRow("Encoder", fmt.Sprintf("%s, %d fps", cfg.Render.Encoder, cfg.Render.FPS))
	printRow("Workers", workerSummary(cfg.Render.Workers))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not set)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func thresholdSummary(c config.ClassifierConfig) string {
	if c.ThresholdMode == config.ThresholdAuto {
		return "auto"
	}
	return fmt.Sprintf("%.3g to %.3g", c.SilenceThreshold, c.LoudThreshold)
}

func workerSummary(n int) string {
	if n <= 0 {
		return fmt.Sprintf("%d (auto)", runtime.GOMAXPROCS(0))
	}
	return strconv.Itoa(n)
}
