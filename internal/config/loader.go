package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/lipsynth/pkg/viseme"
)

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config]. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with the documented defaults, so a
// minimal config names only the character, its anchor, and the shapes.
func applyDefaults(cfg *Config) {
	if cfg.Audio.Decoder == "" {
		cfg.Audio.Decoder = DecoderWAV
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		cfg.Audio.FrameDurationMS = 20
	}
	if cfg.Audio.HopDurationMS <= 0 {
		cfg.Audio.HopDurationMS = cfg.Audio.FrameDurationMS
	}
	if cfg.Audio.EnergyScale == "" {
		cfg.Audio.EnergyScale = EnergyLinear
	}

	if cfg.Classifier.ThresholdMode == "" {
		cfg.Classifier.ThresholdMode = ThresholdFixed
	}
	if cfg.Classifier.SilenceThreshold == 0 {
		cfg.Classifier.SilenceThreshold = 0.01
	}
	if cfg.Classifier.LoudThreshold == 0 {
		cfg.Classifier.LoudThreshold = 0.25
	}
	if cfg.Classifier.RotationPeriod <= 0 {
		cfg.Classifier.RotationPeriod = 3
	}

	if cfg.Character.Matting == "" {
		cfg.Character.Matting = MattingChromaKey
	}
	if cfg.Character.ChromaTolerance <= 0 {
		cfg.Character.ChromaTolerance = 15
	}

	if cfg.Render.FPS <= 0 {
		cfg.Render.FPS = 30
	}
	if cfg.Render.MinHoldFrames <= 0 {
		cfg.Render.MinHoldFrames = 2
	}
	if cfg.Render.Output == "" {
		cfg.Render.Output = "out.mp4"
	}
	if cfg.Render.Encoder == "" {
		cfg.Render.Encoder = EncoderFFmpeg
	}
	if cfg.Render.FFmpegPath == "" {
		cfg.Render.FFmpegPath = "ffmpeg"
	}

	if cfg.Observe.LogLevel == "" {
		cfg.Observe.LogLevel = LogInfo
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = "lipsynth"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Audio.Decoder.IsValid() {
		errs = append(errs, fmt.Errorf("audio.decoder %q is invalid; valid values: wav, ffmpeg", cfg.Audio.Decoder))
	}
	if !cfg.Audio.EnergyScale.IsValid() {
		errs = append(errs, fmt.Errorf("audio.energy_scale %q is invalid; valid values: linear, db", cfg.Audio.EnergyScale))
	}
	if cfg.Audio.HopDurationMS > cfg.Audio.FrameDurationMS {
		errs = append(errs, fmt.Errorf("audio.hop_duration_ms %d must not exceed frame_duration_ms %d",
			cfg.Audio.HopDurationMS, cfg.Audio.FrameDurationMS))
	}

	if !cfg.Classifier.ThresholdMode.IsValid() {
		errs = append(errs, fmt.Errorf("classifier.threshold_mode %q is invalid; valid values: fixed, auto", cfg.Classifier.ThresholdMode))
	}
	if cfg.Classifier.ThresholdMode == ThresholdFixed {
		if cfg.Classifier.SilenceThreshold < 0 {
			errs = append(errs, fmt.Errorf("classifier.silence_threshold %v must be non-negative", cfg.Classifier.SilenceThreshold))
		}
		if cfg.Classifier.LoudThreshold <= cfg.Classifier.SilenceThreshold {
			errs = append(errs, fmt.Errorf("classifier.loud_threshold %v must exceed silence_threshold %v",
				cfg.Classifier.LoudThreshold, cfg.Classifier.SilenceThreshold))
		}
	}

	if cfg.Character.Image == "" {
		errs = append(errs, errors.New("character.image is required"))
	}
	if !cfg.Character.Matting.IsValid() {
		errs = append(errs, fmt.Errorf("character.matting %q is invalid; valid values: chromakey, rembg, none", cfg.Character.Matting))
	}
	if cfg.Character.Matting == MattingRembg && cfg.Character.RembgURL == "" {
		errs = append(errs, errors.New("character.rembg_url is required when matting is rembg"))
	}
	if cfg.Character.Anchor.Empty() {
		errs = append(errs, fmt.Errorf("character.anchor %dx%d must have positive size",
			cfg.Character.Anchor.W, cfg.Character.Anchor.H))
	}

	if cfg.Shapes.Dir == "" {
		errs = append(errs, errors.New("shapes.dir is required"))
	}
	if len(cfg.Shapes.Files) == 0 {
		errs = append(errs, errors.New("shapes.files must bind at least one mouth shape"))
	}
	for name, file := range cfg.Shapes.Files {
		if file == "" {
			errs = append(errs, fmt.Errorf("shapes.files[%s] has an empty file name", name))
		}
		label, ok := viseme.LookupLabel(name)
		switch {
		case !ok:
			if s := suggestLabel(name); s != "" {
				errs = append(errs, fmt.Errorf("shapes.files key %q is not a viseme label; did you mean %q?", name, s))
			} else {
				errs = append(errs, fmt.Errorf("shapes.files key %q is not a viseme label", name))
			}
		case label == viseme.Neutral:
			errs = append(errs, fmt.Errorf("shapes.files key %q cannot be bound; the resting mouth is the unmodified base", name))
		}
	}
	if cfg.Shapes.TargetWidth < 0 {
		errs = append(errs, fmt.Errorf("shapes.target_width %d must be non-negative", cfg.Shapes.TargetWidth))
	}

	if !cfg.Render.Encoder.IsValid() {
		errs = append(errs, fmt.Errorf("render.encoder %q is invalid; valid values: ffmpeg", cfg.Render.Encoder))
	}
	if cfg.Render.Workers < 0 {
		errs = append(errs, fmt.Errorf("render.workers %d must be non-negative", cfg.Render.Workers))
	}

	if !cfg.Observe.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("observe.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Observe.LogLevel))
	}

	return errors.Join(errs...)
}

// suggestLabel returns the closest mouth label name to key by Levenshtein
// distance, or "" when nothing is within editing distance 2.
func suggestLabel(key string) string {
	const maxDistance = 2
	best, bestDist := "", maxDistance+1
	upper := strings.ToUpper(key)
	for _, l := range viseme.MouthLabels() {
		name := l.String()
		if d := matchr.Levenshtein(upper, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}
