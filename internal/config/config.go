// Package config provides the configuration schema, loader, and
// collaborator registry for the lipsynth renderer.
package config

import (
	"image"
	"log/slog"
	"time"

	"github.com/MrWong99/lipsynth/pkg/audio"
	"github.com/MrWong99/lipsynth/pkg/viseme"
)

// LogLevel controls log verbosity for the renderer.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to the corresponding slog level. Unrecognised values
// map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// DecoderName selects the audio decoder implementation.
type DecoderName string

const (
	// DecoderWAV decodes RIFF/WAVE files in process.
	DecoderWAV DecoderName = "wav"

	// DecoderFFmpeg shells out to ffmpeg and accepts any format the
	// binary can read.
	DecoderFFmpeg DecoderName = "ffmpeg"
)

// IsValid reports whether d is a recognised decoder name.
func (d DecoderName) IsValid() bool {
	return d == DecoderWAV || d == DecoderFFmpeg
}

// MattingMode selects how the character image gains transparency.
type MattingMode string

const (
	// MattingChromaKey keys out the flat background color sampled from
	// the image's top-left pixel.
	MattingChromaKey MattingMode = "chromakey"

	// MattingRembg sends the image to a rembg HTTP service.
	MattingRembg MattingMode = "rembg"

	// MattingNone uses the image as-is.
	MattingNone MattingMode = "none"
)

// IsValid reports whether m is a recognised matting mode.
func (m MattingMode) IsValid() bool {
	switch m {
	case MattingChromaKey, MattingRembg, MattingNone:
		return true
	}
	return false
}

// ThresholdMode selects how the classifier thresholds are derived.
type ThresholdMode string

const (
	// ThresholdFixed uses the configured silence and loud values verbatim.
	ThresholdFixed ThresholdMode = "fixed"

	// ThresholdAuto derives both thresholds from the clip's own energy
	// distribution.
	ThresholdAuto ThresholdMode = "auto"
)

// IsValid reports whether t is a recognised threshold mode.
func (t ThresholdMode) IsValid() bool {
	return t == ThresholdFixed || t == ThresholdAuto
}

// EnergyScale selects the energy unit fed to the classifier.
type EnergyScale string

const (
	EnergyLinear EnergyScale = "linear"
	EnergyDB     EnergyScale = "db"
)

// IsValid reports whether e is a recognised energy scale.
func (e EnergyScale) IsValid() bool {
	return e == EnergyLinear || e == EnergyDB
}

// Scale converts e to the extractor's scale constant.
func (e EnergyScale) Scale() audio.Scale {
	if e == EnergyDB {
		return audio.ScaleDecibel
	}
	return audio.ScaleLinear
}

// EncoderName selects the video encoder implementation.
type EncoderName string

const (
	// EncoderFFmpeg pipes raw frames into an ffmpeg subprocess.
	EncoderFFmpeg EncoderName = "ffmpeg"
)

// IsValid reports whether e is a recognised encoder name.
func (e EncoderName) IsValid() bool {
	return e == EncoderFFmpeg
}

// Rectangle is a YAML-friendly rectangle given as origin plus size.
type Rectangle struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// Rect converts r to an [image.Rectangle].
func (r Rectangle) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Empty reports whether r covers no pixels.
func (r Rectangle) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Config is the root configuration structure for lipsynth.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Character  CharacterConfig  `yaml:"character"`
	Shapes     ShapesConfig     `yaml:"shapes"`
	Render     RenderConfig     `yaml:"render"`
	Observe    ObserveConfig    `yaml:"observe"`
}

// AudioConfig holds input and energy analysis settings.
type AudioConfig struct {
	// Path is the input audio file. May be overridden by the -audio flag.
	Path string `yaml:"path"`

	// Decoder selects the registered decoder implementation.
	Decoder DecoderName `yaml:"decoder"`

	// FrameDurationMS is the energy analysis window in milliseconds.
	FrameDurationMS int `yaml:"frame_duration_ms"`

	// HopDurationMS is the spacing between analysis windows in
	// milliseconds. 0 means the frame duration (no overlap).
	HopDurationMS int `yaml:"hop_duration_ms"`

	// EnergyScale selects linear RMS or decibel energies.
	EnergyScale EnergyScale `yaml:"energy_scale"`
}

// FrameDuration returns the analysis window as a [time.Duration].
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMS) * time.Millisecond
}

// HopDuration returns the window spacing as a [time.Duration].
func (a AudioConfig) HopDuration() time.Duration {
	return time.Duration(a.HopDurationMS) * time.Millisecond
}

// ClassifierConfig holds the energy-to-viseme mapping settings.
type ClassifierConfig struct {
	// ThresholdMode selects fixed or automatic thresholds.
	ThresholdMode ThresholdMode `yaml:"threshold_mode"`

	// SilenceThreshold is the energy below which the mouth rests. Used in
	// fixed mode.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// LoudThreshold is the energy at or above which the mouth rotates
	// through the loud ring. Used in fixed mode; must exceed
	// SilenceThreshold.
	LoudThreshold float64 `yaml:"loud_threshold"`

	// RotationPeriod is how many analysis frames a ring shape is held
	// before rotating to the next.
	RotationPeriod int `yaml:"rotation_period"`
}

// CharacterConfig describes the character image and mouth anchor.
type CharacterConfig struct {
	// Image is the character source image (PNG).
	Image string `yaml:"image"`

	// Background is an optional backdrop blended behind the matted
	// character. Empty means a plain white canvas.
	Background string `yaml:"background"`

	// Matting selects how the character gains transparency.
	Matting MattingMode `yaml:"matting"`

	// ChromaTolerance is the Euclidean RGB distance treated as background
	// by the chromakey matter. 0 selects the default of 15.
	ChromaTolerance int `yaml:"chroma_tolerance"`

	// RembgURL is the rembg service base URL. Required when Matting is
	// "rembg".
	RembgURL string `yaml:"rembg_url"`

	// Anchor is the mouth region on the character image. Overlays are
	// centered inside it.
	Anchor Rectangle `yaml:"anchor"`
}

// ShapesConfig describes the mouth shape assets.
type ShapesConfig struct {
	// Dir is the directory holding the shape images.
	Dir string `yaml:"dir"`

	// TargetWidth rescales every shape to this width in pixels,
	// preserving aspect ratio. 0 disables rescaling.
	TargetWidth int `yaml:"target_width"`

	// Files maps viseme label names (e.g. "A", "W_Q") to file names
	// relative to Dir. "Neutral" cannot be bound.
	Files map[string]string `yaml:"files"`
}

// LabelFiles converts the validated Files map to label keys. Call after
// [Validate]; unknown names are skipped here because validation already
// rejected them.
func (s ShapesConfig) LabelFiles() map[viseme.Label]string {
	out := make(map[viseme.Label]string, len(s.Files))
	for name, file := range s.Files {
		if l, ok := viseme.LookupLabel(name); ok && l != viseme.Neutral {
			out[l] = file
		}
	}
	return out
}

// RenderConfig holds output video settings.
type RenderConfig struct {
	// FPS is the output frame rate.
	FPS int `yaml:"fps"`

	// MinHoldFrames keeps each mouth shape on screen for at least this
	// many video frames. 0 selects the default of 2; 1 disables
	// smoothing.
	MinHoldFrames int `yaml:"min_hold_frames"`

	// Workers is the compositing parallelism. 0 means one worker per
	// CPU; 1 renders serially.
	Workers int `yaml:"workers"`

	// Output is the final video path. May be overridden by the -out flag.
	Output string `yaml:"output"`

	// Encoder selects the registered encoder implementation.
	Encoder EncoderName `yaml:"encoder"`

	// FFmpegPath overrides the ffmpeg binary used by ffmpeg-backed
	// collaborators.
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// ObserveConfig holds logging and telemetry settings.
type ObserveConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ServiceName is reported as the OpenTelemetry service name.
	ServiceName string `yaml:"service_name"`
}
