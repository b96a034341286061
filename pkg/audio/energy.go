package audio

import (
	"fmt"
	"iter"
	"math"
	"time"
)

// Scale selects the unit energy values are reported in.
type Scale int

const (
	// ScaleLinear reports plain RMS amplitude.
	ScaleLinear Scale = iota

	// ScaleDecibel reports RMS on a decibel scale relative to the silence
	// floor, so silence maps to exactly 0 and values stay non-negative.
	ScaleDecibel
)

// defaultDBFloor keeps the decibel conversion finite for silent frames.
const defaultDBFloor = 1e-6

// Frame identifies one analysis window as slice bounds into a [Buffer].
type Frame struct {
	// Index is the position of this frame in the sequence, starting at 0.
	Index int

	// Start and End are sample offsets into Buffer.Samples; End is
	// exclusive. The final frame may be shorter than the nominal length:
	// the tail is truncated, never zero-padded and never dropped.
	Start, End int
}

// Extractor splits a buffer into fixed-duration frames and computes one
// scalar loudness value (root-mean-square amplitude) per frame.
//
// FrameDuration must be positive. HopDuration defaults to FrameDuration
// (non-overlapping framing) and may be shorter for overlapped framing,
// but never longer: every sample belongs to at least one frame.
type Extractor struct {
	FrameDuration time.Duration
	HopDuration   time.Duration
	Scale         Scale

	// DBFloor is added to the RMS before the logarithm in decibel mode.
	// Zero selects defaultDBFloor.
	DBFloor float64
}

// Frames returns a lazy, restartable iterator over (frame, energy) pairs
// covering the entire buffer in order. Ranging over the result twice
// produces identical sequences. Returns [ErrInvalidAudio] for an empty
// buffer or non-positive sample rate.
func (e Extractor) Frames(buf *Buffer) (iter.Seq2[Frame, float64], error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	frameLen, hopLen, err := e.windowSamples(buf.SampleRate)
	if err != nil {
		return nil, err
	}
	samples := buf.Samples
	return func(yield func(Frame, float64) bool) {
		for i, start := 0, 0; start < len(samples); i, start = i+1, start+hopLen {
			end := min(start+frameLen, len(samples))
			f := Frame{Index: i, Start: start, End: end}
			if !yield(f, e.energy(samples[start:end])) {
				return
			}
		}
	}, nil
}

// Energies collects one energy value per frame, in frame order.
func (e Extractor) Energies(buf *Buffer) ([]float64, error) {
	frames, err := e.Frames(buf)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, e.FrameCount(buf))
	for _, energy := range frames {
		out = append(out, energy)
	}
	return out, nil
}

// FrameCount reports how many frames Frames would yield for buf, or 0 if
// the buffer or extractor configuration is invalid.
func (e Extractor) FrameCount(buf *Buffer) int {
	if buf.Validate() != nil {
		return 0
	}
	_, hopLen, err := e.windowSamples(buf.SampleRate)
	if err != nil {
		return 0
	}
	return (len(buf.Samples) + hopLen - 1) / hopLen
}

// windowSamples converts the configured durations into sample counts.
func (e Extractor) windowSamples(rate int) (frameLen, hopLen int, err error) {
	if e.FrameDuration <= 0 {
		return 0, 0, fmt.Errorf("audio: frame duration %v must be positive", e.FrameDuration)
	}
	hop := e.HopDuration
	if hop == 0 {
		hop = e.FrameDuration
	}
	if hop < 0 || hop > e.FrameDuration {
		return 0, 0, fmt.Errorf("audio: hop duration %v must be in (0, %v]", hop, e.FrameDuration)
	}
	frameLen = durationSamples(rate, e.FrameDuration)
	hopLen = durationSamples(rate, hop)
	if frameLen == 0 || hopLen == 0 {
		return 0, 0, fmt.Errorf("audio: window shorter than one sample at %d Hz", rate)
	}
	return frameLen, hopLen, nil
}

func durationSamples(rate int, d time.Duration) int {
	return int(int64(rate) * int64(d) / int64(time.Second))
}

// energy computes the loudness of one frame on the configured scale.
func (e Extractor) energy(samples []float64) float64 {
	r := rms(samples)
	if e.Scale != ScaleDecibel {
		return r
	}
	floor := e.DBFloor
	if floor <= 0 {
		floor = defaultDBFloor
	}
	return 20 * (math.Log10(r+floor) - math.Log10(floor))
}

// rms returns the root-mean-square amplitude of samples; 0 for an empty
// slice.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
