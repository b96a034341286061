// Package audio holds the in-memory audio representation shared by the
// pipeline: a decoded mono sample buffer and frame-level energy extraction.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidAudio is returned when a buffer is empty or reports a
// non-positive sample rate.
var ErrInvalidAudio = errors.New("audio: invalid audio")

// Buffer is a decoded mono audio signal with samples normalized to
// [-1, 1]. A Buffer is immutable once decoded and is shared read-only
// across every stage of a run.
type Buffer struct {
	// Samples holds the mono signal, one value per sample.
	Samples []float64

	// SampleRate in Hz (e.g. 16000, 44100, 48000).
	SampleRate int
}

// Duration returns the buffer length as wall-clock time.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(b.Samples)) * int64(time.Second) / int64(b.SampleRate))
}

// Validate checks that the buffer is usable for energy extraction.
// It wraps [ErrInvalidAudio] with the specific problem.
func (b *Buffer) Validate() error {
	if b == nil || len(b.Samples) == 0 {
		return fmt.Errorf("%w: empty sample buffer", ErrInvalidAudio)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, b.SampleRate)
	}
	return nil
}

// DownmixMono averages interleaved multi-channel samples into a mono
// signal. Input length that is not a multiple of channels is truncated to
// whole sample frames. channels < 2 returns the input unchanged.
func DownmixMono(interleaved []float64, channels int) []float64 {
	if channels < 2 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}
