// Package decode defines the Provider interface for audio decoding backends.
//
// A decode provider turns an audio file on disk into a mono PCM buffer at the
// file's native sample rate. The pipeline only ever consumes mono float
// samples, so providers are responsible for downmixing multi-channel sources
// and normalising integer PCM into the [-1, 1] range.
//
// Two implementations ship with this module: wavfile decodes RIFF/WAV files
// in-process, and ffmpegdec shells out to ffmpeg for everything else (MP3,
// AAC, Opus, video containers). The mock subpackage provides a test double.
package decode

import (
	"context"
	"errors"

	"github.com/MrWong99/lipsynth/pkg/audio"
)

// ErrDecode is returned when an audio file cannot be read, is not in a
// format the provider understands, or yields no usable samples.
var ErrDecode = errors.New("decode: audio decode failed")

// Provider is the abstraction over any audio decoding backend.
//
// Implementations must be safe for concurrent use; a single Provider may
// decode several files in parallel test runs.
type Provider interface {
	// Decode reads the audio file at path and returns its samples as a
	// validated mono buffer at the source's native sample rate.
	//
	// Decoding failures wrap ErrDecode. The returned buffer is owned by the
	// caller; providers must not retain references to it.
	Decode(ctx context.Context, path string) (*audio.Buffer, error)
}
