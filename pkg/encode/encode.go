// Package encode defines the interfaces for turning composited frames into
// a playable video file.
//
// An Encoder consumes finished frames one at a time in presentation order
// and produces a silent video stream. A Muxer then pairs that stream with
// the original audio file into the final container. The split mirrors the
// two-pass layout of the render: frames are streamed out while compositing
// is still running, and the audio track is attached once at the end.
//
// The ffmpegenc subpackage implements both against the ffmpeg CLI; the mock
// subpackage records frames in memory for tests.
package encode

import (
	"context"
	"errors"
	"image"
)

// ErrEncode is returned when the video stream cannot be produced, including
// malformed frames and encoder process failures.
var ErrEncode = errors.New("encode: video encode failed")

// ErrMux is returned when the silent video and the audio track cannot be
// combined into the final output file.
var ErrMux = errors.New("encode: audio mux failed")

// Encoder consumes composited frames in presentation order.
//
// Append and Finalize must be called from a single goroutine; implementations
// are not required to serialise concurrent calls.
type Encoder interface {
	// Append submits the next frame. Every frame must have identical
	// dimensions; a mismatch wraps ErrEncode. The encoder must not retain
	// frame after Append returns.
	Append(ctx context.Context, frame *image.NRGBA) error

	// Finalize flushes the stream and completes the silent video. No Append
	// may follow. Finalize is idempotent; repeated calls return nil.
	Finalize(ctx context.Context) error
}

// Muxer combines a finished silent video with an audio file.
type Muxer interface {
	// Mux writes videoPath's video stream plus audioPath's audio track to
	// outPath. The output appears atomically: on failure no file is left at
	// outPath. Failures wrap ErrMux.
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
}
