// Package wavfile provides a decode.Provider for RIFF/WAV files.
//
// It reads the full PCM payload in-process via github.com/go-audio/wav,
// normalises 8/16/24/32-bit integer samples into [-1, 1] floats and downmixes
// interleaved channels to mono by averaging. No external tooling is required,
// which makes it the default decoder for the common capture formats.
package wavfile

import (
	"context"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/MrWong99/lipsynth/pkg/audio"
	"github.com/MrWong99/lipsynth/pkg/decode"
)

// Compile-time assertion that Decoder implements decode.Provider.
var _ decode.Provider = (*Decoder)(nil)

// Decoder implements decode.Provider for WAV files. The zero value is ready
// to use.
type Decoder struct{}

// New returns a WAV file decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode reads the WAV file at path into a mono buffer at the file's native
// sample rate. All failures wrap decode.ErrDecode.
func (d *Decoder) Decode(ctx context.Context, path string) (*audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("wavfile: context already cancelled: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", decode.ErrDecode, path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %q is not a valid WAV file", decode.ErrDecode, path)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read PCM from %q: %w", decode.ErrDecode, path, err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, fmt.Errorf("%w: %q contains no samples", decode.ErrDecode, path)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = pcm.SourceBitDepth
	}
	samples, err := normalize(pcm.Data, bitDepth)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", decode.ErrDecode, path, err)
	}

	buf := &audio.Buffer{
		Samples:    audio.DownmixMono(samples, pcm.Format.NumChannels),
		SampleRate: pcm.Format.SampleRate,
	}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", decode.ErrDecode, path, err)
	}
	return buf, nil
}

// normalize scales integer PCM samples into [-1, 1]. 8-bit WAV stores
// unsigned samples centred on 128; all deeper formats are signed.
func normalize(data []int, bitDepth int) ([]float64, error) {
	out := make([]float64, len(data))
	switch bitDepth {
	case 8:
		for i, v := range data {
			out[i] = (float64(v) - 128) / 128
		}
	case 16, 24, 32:
		scale := float64(int64(1) << (bitDepth - 1))
		for i, v := range data {
			out[i] = float64(v) / scale
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	return out, nil
}
