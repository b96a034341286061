// Package ffmpegenc implements the encode interfaces against the ffmpeg CLI.
//
// The Encoder feeds raw RGBA frames into a long-lived ffmpeg process over
// stdin and lets libx264 produce an H.264 stream in yuv420p for maximum
// player compatibility. The Muxer runs a second, short ffmpeg pass that
// copies the finished video stream and transcodes the audio track to AAC,
// writing to a temporary .partial file that is renamed into place only on
// success.
package ffmpegenc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/lipsynth/pkg/encode"
)

const defaultFFmpegPath = "ffmpeg"

// Compile-time assertions against the encode interfaces.
var (
	_ encode.Encoder = (*Encoder)(nil)
	_ encode.Muxer   = (*Muxer)(nil)
)

// Option is a functional option shared by Encoder and Muxer construction.
type Option func(*options)

type options struct {
	ffmpegPath string
}

// WithFFmpegPath overrides the ffmpeg binary location. Defaults to "ffmpeg"
// resolved via PATH.
func WithFFmpegPath(path string) Option {
	return func(o *options) {
		o.ffmpegPath = path
	}
}

func applyOptions(opts []Option) options {
	o := options{ffmpegPath: defaultFFmpegPath}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Encoder streams RGBA frames into an ffmpeg process producing a silent
// H.264 video at dest. The process is started on the first Append; that
// call's context governs the process lifetime.
type Encoder struct {
	dest   string
	width  int
	height int
	fps    int
	opts   options

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    bytes.Buffer
	frames    int
	finalized bool
}

// New creates an Encoder writing a silent video to dest. Every appended
// frame must measure width x height.
func New(dest string, width, height, fps int, opts ...Option) (*Encoder, error) {
	if dest == "" {
		return nil, fmt.Errorf("%w: dest must not be empty", encode.ErrEncode)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid frame size %dx%d", encode.ErrEncode, width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: invalid frame rate %d", encode.ErrEncode, fps)
	}
	return &Encoder{
		dest:   dest,
		width:  width,
		height: height,
		fps:    fps,
		opts:   applyOptions(opts),
	}, nil
}

// Append validates frame dimensions and writes the frame's raw RGBA bytes
// to the encoder process, starting it on first use.
func (e *Encoder) Append(ctx context.Context, frame *image.NRGBA) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", encode.ErrEncode)
	}
	if w, h := frame.Bounds().Dx(), frame.Bounds().Dy(); w != e.width || h != e.height {
		return fmt.Errorf("%w: frame is %dx%d, want %dx%d", encode.ErrEncode, w, h, e.width, e.height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return fmt.Errorf("%w: append after finalize", encode.ErrEncode)
	}
	if e.cmd == nil {
		if err := e.start(ctx); err != nil {
			return err
		}
	}

	if _, err := e.stdin.Write(packRGBA(frame)); err != nil {
		return fmt.Errorf("%w: write frame %d: %w: %s",
			encode.ErrEncode, e.frames, err, strings.TrimSpace(e.stderr.String()))
	}
	e.frames++
	return nil
}

// Finalize closes the frame stream and waits for ffmpeg to finish the
// silent video. Finalizing without any appended frames is an error since it
// would produce an empty stream.
func (e *Encoder) Finalize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return nil
	}
	e.finalized = true

	if e.cmd == nil {
		return fmt.Errorf("%w: no frames appended", encode.ErrEncode)
	}
	if err := e.stdin.Close(); err != nil {
		return fmt.Errorf("%w: close frame stream: %w", encode.ErrEncode, err)
	}
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("%w: ffmpeg after %d frames: %w: %s",
			encode.ErrEncode, e.frames, err, strings.TrimSpace(e.stderr.String()))
	}
	return nil
}

func (e *Encoder) start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.opts.ffmpegPath, encodeArgs(e.dest, e.width, e.height, e.fps)...)
	cmd.Stderr = &e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: open stdin pipe: %w", encode.ErrEncode, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %w", encode.ErrEncode, err)
	}
	e.cmd = cmd
	e.stdin = stdin
	return nil
}

// packRGBA returns the frame's pixels as a tightly packed RGBA byte stream.
// Frames from the compositor are already tight, so this is usually a
// zero-copy view.
func packRGBA(frame *image.NRGBA) []byte {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	if frame.Stride == 4*w && b.Min == (image.Point{}) {
		return frame.Pix[:4*w*h]
	}
	packed := make([]byte, 0, 4*w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := frame.PixOffset(b.Min.X, y)
		packed = append(packed, frame.Pix[row:row+4*w]...)
	}
	return packed
}

// Muxer combines a silent video and an audio file with a single ffmpeg
// pass. Safe for concurrent use.
type Muxer struct {
	opts options
}

// NewMuxer creates a Muxer with the given options applied.
func NewMuxer(opts ...Option) *Muxer {
	return &Muxer{opts: applyOptions(opts)}
}

// Mux writes the combined file to outPath via an intermediate .partial file
// so a failed run never leaves a truncated output behind.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	partial := outPath + ".partial"

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.opts.ffmpegPath, muxArgs(videoPath, audioPath, partial)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("%w: mux %q + %q: %w: %s",
			encode.ErrMux, videoPath, audioPath, err, strings.TrimSpace(stderr.String()))
	}
	if err := os.Rename(partial, outPath); err != nil {
		os.Remove(partial)
		return fmt.Errorf("%w: finalize %q: %w", encode.ErrMux, outPath, err)
	}
	return nil
}

func encodeArgs(dest string, width, height, fps int) []string {
	return []string{
		"-nostats", "-hide_banner", "-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-f", "mp4",
		dest,
	}
}

func muxArgs(videoPath, audioPath, dest string) []string {
	return []string{
		"-nostats", "-hide_banner", "-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		"-movflags", "+faststart",
		"-f", "mp4",
		dest,
	}
}
