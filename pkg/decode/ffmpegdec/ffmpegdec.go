// Package ffmpegdec provides a decode.Provider backed by the ffmpeg CLI.
//
// It handles every compressed format ffmpeg can read (MP3, AAC, Opus, FLAC,
// audio tracks inside video containers) by probing the source's native sample
// rate with ffprobe and then streaming the first audio track through ffmpeg
// as signed 16-bit little-endian mono PCM on stdout. Both binaries must be on
// PATH unless overridden via options.
//
// Usage:
//
//	dec := ffmpegdec.New(ffmpegdec.WithSampleRate(16000))
//	buf, err := dec.Decode(ctx, "speech.mp3")
package ffmpegdec

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/lipsynth/pkg/audio"
	"github.com/MrWong99/lipsynth/pkg/decode"
)

const (
	defaultFFmpegPath  = "ffmpeg"
	defaultFFprobePath = "ffprobe"
)

// Compile-time assertion that Decoder implements decode.Provider.
var _ decode.Provider = (*Decoder)(nil)

// Option is a functional option for configuring a Decoder.
type Option func(*Decoder)

// WithFFmpegPath overrides the ffmpeg binary location. Defaults to "ffmpeg"
// resolved via PATH.
func WithFFmpegPath(path string) Option {
	return func(d *Decoder) {
		d.ffmpegPath = path
	}
}

// WithFFprobePath overrides the ffprobe binary location. Defaults to
// "ffprobe" resolved via PATH.
func WithFFprobePath(path string) Option {
	return func(d *Decoder) {
		d.ffprobePath = path
	}
}

// WithSampleRate forces the decoded output to the given rate in Hz instead
// of the source's native rate. Zero keeps the native rate, which is the
// default.
func WithSampleRate(rate int) Option {
	return func(d *Decoder) {
		d.sampleRate = rate
	}
}

// Decoder implements decode.Provider by shelling out to ffprobe and ffmpeg.
// Safe for concurrent use; each Decode spawns its own processes.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
	sampleRate  int
}

// New creates an ffmpeg-backed decoder with the given options applied.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		ffmpegPath:  defaultFFmpegPath,
		ffprobePath: defaultFFprobePath,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode probes the native sample rate of path's first audio track, streams
// it through ffmpeg as mono s16le PCM and normalises into [-1, 1] floats.
// All failures wrap decode.ErrDecode.
func (d *Decoder) Decode(ctx context.Context, path string) (*audio.Buffer, error) {
	rate := d.sampleRate
	if rate <= 0 {
		probed, err := d.probeSampleRate(ctx, path)
		if err != nil {
			return nil, err
		}
		rate = probed
	}

	raw, err := d.runDecode(ctx, path, rate)
	if err != nil {
		return nil, err
	}

	samples, err := parseS16LE(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", decode.ErrDecode, path, err)
	}

	buf := &audio.Buffer{Samples: samples, SampleRate: rate}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", decode.ErrDecode, path, err)
	}
	return buf, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	SampleRate string `json:"sample_rate"`
}

func (d *Decoder) probeSampleRate(ctx context.Context, path string) (int, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffprobePath, probeArgs(path)...)
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: probe %q: %w: %s", decode.ErrDecode, path, err, strings.TrimSpace(stderr.String()))
	}

	rate, err := parseProbeOutput(output)
	if err != nil {
		return 0, fmt.Errorf("%w: probe %q: %w", decode.ErrDecode, path, err)
	}
	return rate, nil
}

func (d *Decoder) runDecode(ctx context.Context, path string, rate int) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpegPath, decodeArgs(path, rate)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: decode %q: %w: %s", decode.ErrDecode, path, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate",
		"-of", "json",
		path,
	}
}

func decodeArgs(path string, rate int) []string {
	return []string{
		"-nostats", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0:a:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	}
}

func parseProbeOutput(output []byte) (int, error) {
	var ff ffprobeOutput
	if err := json.Unmarshal(output, &ff); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(ff.Streams) == 0 {
		return 0, fmt.Errorf("no audio stream found")
	}
	rate, err := strconv.Atoi(ff.Streams[0].SampleRate)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %q", ff.Streams[0].SampleRate)
	}
	return rate, nil
}

// parseS16LE converts a signed 16-bit little-endian PCM byte stream into
// floats in [-1, 1].
func parseS16LE(raw []byte) ([]float64, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd byte count %d in s16le stream", len(raw))
	}
	out := make([]float64, len(raw)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		out[i] = float64(v) / 32768
	}
	return out, nil
}
