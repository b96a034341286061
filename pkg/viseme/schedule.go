package viseme

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrFrameOutOfRange is returned by [Schedule.LabelAt] for indices
// outside [0, Len).
var ErrFrameOutOfRange = errors.New("viseme: frame index out of range")

// Entry is a run of consecutive output frames sharing one label.
// From is inclusive, To exclusive. Entries of a schedule are contiguous:
// each From equals the previous To, the first From is 0 and the last To
// equals the schedule length.
type Entry struct {
	From, To int
	Label    Label
}

// Schedule holds one label per output video frame. It is immutable after
// Build and safe for concurrent readers.
type Schedule struct {
	labels  []Label
	entries []Entry
}

// TotalFrames returns the number of output frames for an audio duration
// at the given frame rate, rounded half away from zero.
func TotalFrames(d time.Duration, fps int) int {
	if d <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(fps)))
}

// Build resamples per-audio-frame labels onto the output video timeline
// and smooths the result.
//
// labels holds one label per audio analysis frame, hop apart in time.
// Each output frame's center timestamp is mapped to the audio frame
// covering it; timestamps past the final audio frame clamp to the last
// label (labels are categorical, so values are held, never
// interpolated). minHold then suppresses flicker in a single forward
// pass: once a label is emitted it is held for at least minHold output
// frames before a change is accepted, so every run except possibly the
// final one is at least minHold long. minHold of 0 or 1 disables
// smoothing.
func Build(labels []Label, hop time.Duration, fps, total, minHold int) (*Schedule, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("viseme: no labels to schedule")
	}
	if hop <= 0 {
		return nil, fmt.Errorf("viseme: hop %v must be positive", hop)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("viseme: fps %d must be positive", fps)
	}
	if total <= 0 {
		return nil, fmt.Errorf("viseme: total frames %d must be positive", total)
	}
	if minHold < 0 {
		return nil, fmt.Errorf("viseme: min hold %d must be non-negative", minHold)
	}

	out := make([]Label, total)
	hopSec := hop.Seconds()
	for i := range total {
		center := (float64(i) + 0.5) / float64(fps)
		idx := int(center / hopSec)
		if idx >= len(labels) {
			idx = len(labels) - 1
		}
		out[i] = labels[idx]
	}

	if minHold > 1 {
		cur, held := out[0], 1
		for i := 1; i < total; i++ {
			if out[i] != cur && held >= minHold {
				cur, held = out[i], 1
				continue
			}
			if out[i] == cur {
				held++
			} else {
				out[i] = cur
				held++
			}
		}
	}

	return &Schedule{labels: out, entries: runs(out)}, nil
}

// runs compresses a dense label slice into contiguous entries.
func runs(labels []Label) []Entry {
	var entries []Entry
	start := 0
	for i := 1; i <= len(labels); i++ {
		if i == len(labels) || labels[i] != labels[start] {
			entries = append(entries, Entry{From: start, To: i, Label: labels[start]})
			start = i
		}
	}
	return entries
}

// Len returns the number of output frames covered by the schedule.
func (s *Schedule) Len() int {
	return len(s.labels)
}

// LabelAt returns the label active at output frame index i. Indices
// outside [0, Len) fail with [ErrFrameOutOfRange].
func (s *Schedule) LabelAt(i int) (Label, error) {
	if i < 0 || i >= len(s.labels) {
		return Neutral, fmt.Errorf("%w: %d of %d", ErrFrameOutOfRange, i, len(s.labels))
	}
	return s.labels[i], nil
}

// Entries returns the schedule as contiguous label runs. The returned
// slice is shared; callers must not modify it.
func (s *Schedule) Entries() []Entry {
	return s.entries
}
