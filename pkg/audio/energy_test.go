package audio_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/lipsynth/pkg/audio"
)

// constantBuffer returns a buffer of n samples all set to amplitude.
func constantBuffer(n int, rate int, amplitude float64) *audio.Buffer {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return &audio.Buffer{Samples: samples, SampleRate: rate}
}

func TestEnergies_ZeroBufferIsZero(t *testing.T) {
	t.Parallel()

	ex := audio.Extractor{FrameDuration: 20 * time.Millisecond}
	energies, err := ex.Energies(constantBuffer(16000, 16000, 0))
	if err != nil {
		t.Fatalf("Energies() error: %v", err)
	}
	if len(energies) != 50 {
		t.Fatalf("got %d frames, want 50", len(energies))
	}
	for i, e := range energies {
		if e != 0 {
			t.Errorf("frame %d: energy = %v, want 0", i, e)
		}
	}
}

func TestEnergies_ConstantAmplitudeIsRMS(t *testing.T) {
	t.Parallel()

	// RMS of a constant signal equals its absolute amplitude.
	ex := audio.Extractor{FrameDuration: 20 * time.Millisecond}
	energies, err := ex.Energies(constantBuffer(16000, 16000, 0.5))
	if err != nil {
		t.Fatalf("Energies() error: %v", err)
	}
	for i, e := range energies {
		if math.Abs(e-0.5) > 1e-9 {
			t.Fatalf("frame %d: energy = %v, want 0.5", i, e)
		}
	}
}

func TestEnergies_NonNegative(t *testing.T) {
	t.Parallel()

	buf := &audio.Buffer{SampleRate: 8000, Samples: make([]float64, 8000)}
	for i := range buf.Samples {
		buf.Samples[i] = math.Sin(float64(i) * 0.1)
	}
	for _, scale := range []audio.Scale{audio.ScaleLinear, audio.ScaleDecibel} {
		ex := audio.Extractor{FrameDuration: 25 * time.Millisecond, Scale: scale}
		energies, err := ex.Energies(buf)
		if err != nil {
			t.Fatalf("Energies() error: %v", err)
		}
		for i, e := range energies {
			if e < 0 {
				t.Errorf("scale %v frame %d: energy = %v, want >= 0", scale, i, e)
			}
		}
	}
}

func TestEnergies_DecibelSilenceIsZero(t *testing.T) {
	t.Parallel()

	ex := audio.Extractor{FrameDuration: 20 * time.Millisecond, Scale: audio.ScaleDecibel}
	energies, err := ex.Energies(constantBuffer(3200, 16000, 0))
	if err != nil {
		t.Fatalf("Energies() error: %v", err)
	}
	for i, e := range energies {
		if e != 0 {
			t.Errorf("frame %d: decibel energy of silence = %v, want 0", i, e)
		}
	}
}

func TestFrames_TruncatedLastFrame(t *testing.T) {
	t.Parallel()

	// 16100 samples at 16 kHz with 20 ms frames: 50 full frames of 320
	// samples plus a 100-sample tail.
	ex := audio.Extractor{FrameDuration: 20 * time.Millisecond}
	frames, err := ex.Frames(constantBuffer(16100, 16000, 0.25))
	if err != nil {
		t.Fatalf("Frames() error: %v", err)
	}

	var last audio.Frame
	count := 0
	for f, e := range frames {
		if f.Index != count {
			t.Fatalf("frame index = %d, want %d", f.Index, count)
		}
		if e < 0 {
			t.Fatalf("frame %d: negative energy %v", f.Index, e)
		}
		last = f
		count++
	}
	if count != 51 {
		t.Fatalf("got %d frames, want 51", count)
	}
	if got := last.End - last.Start; got != 100 {
		t.Errorf("last frame length = %d samples, want 100 (truncated tail)", got)
	}
	if last.End != 16100 {
		t.Errorf("last frame End = %d, want 16100 (full coverage)", last.End)
	}
}

func TestFrames_Restartable(t *testing.T) {
	t.Parallel()

	buf := &audio.Buffer{SampleRate: 16000, Samples: make([]float64, 4800)}
	for i := range buf.Samples {
		buf.Samples[i] = math.Sin(float64(i) * 0.01)
	}
	ex := audio.Extractor{FrameDuration: 20 * time.Millisecond}
	frames, err := ex.Frames(buf)
	if err != nil {
		t.Fatalf("Frames() error: %v", err)
	}

	collect := func() []float64 {
		var out []float64
		for _, e := range frames {
			out = append(out, e)
		}
		return out
	}
	first, second := collect(), collect()
	if len(first) != len(second) {
		t.Fatalf("restarted iteration yielded %d frames, first pass %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("frame %d: restarted energy %v != first pass %v", i, second[i], first[i])
		}
	}
}

func TestFrames_OverlappingHop(t *testing.T) {
	t.Parallel()

	// 10 ms hop on 20 ms frames doubles the frame count.
	ex := audio.Extractor{
		FrameDuration: 20 * time.Millisecond,
		HopDuration:   10 * time.Millisecond,
	}
	buf := constantBuffer(16000, 16000, 0.1)
	if got := ex.FrameCount(buf); got != 100 {
		t.Errorf("FrameCount() = %d, want 100", got)
	}
	energies, err := ex.Energies(buf)
	if err != nil {
		t.Fatalf("Energies() error: %v", err)
	}
	if len(energies) != 100 {
		t.Errorf("got %d energies, want 100", len(energies))
	}
}

func TestFrames_InvalidBuffer(t *testing.T) {
	t.Parallel()

	ex := audio.Extractor{FrameDuration: 20 * time.Millisecond}

	if _, err := ex.Frames(&audio.Buffer{SampleRate: 16000}); !errors.Is(err, audio.ErrInvalidAudio) {
		t.Errorf("empty buffer: err = %v, want ErrInvalidAudio", err)
	}
	if _, err := ex.Frames(&audio.Buffer{Samples: []float64{0.1}, SampleRate: 0}); !errors.Is(err, audio.ErrInvalidAudio) {
		t.Errorf("zero rate: err = %v, want ErrInvalidAudio", err)
	}
}

func TestFrames_InvalidWindow(t *testing.T) {
	t.Parallel()

	buf := constantBuffer(1600, 16000, 0.1)

	if _, err := (audio.Extractor{}).Frames(buf); err == nil {
		t.Error("zero frame duration should fail")
	}
	ex := audio.Extractor{FrameDuration: 10 * time.Millisecond, HopDuration: 20 * time.Millisecond}
	if _, err := ex.Frames(buf); err == nil {
		t.Error("hop longer than frame should fail")
	}
}
