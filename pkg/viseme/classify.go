package viseme

import (
	"fmt"
	"math"
	"sort"
)

// Default shape orderings. Bands cover the mid zone from quiet to loud;
// the ring is cycled while the signal stays loud.
var (
	defaultBands = []Label{M, E, A, O}
	defaultRing  = []Label{A, E, O, U, WQ, L, TH, M}
)

// ClassifierConfig holds the threshold table driving classification.
// Thresholds are compared against energies on whatever scale the
// extractor produced them (linear RMS or relative decibels).
type ClassifierConfig struct {
	// SilenceThreshold: energies below it classify as Neutral.
	SilenceThreshold float64

	// LoudThreshold: energies at or above it enter the rotation ring.
	// Must be greater than SilenceThreshold.
	LoudThreshold float64

	// RotationPeriod is how many consecutive loud frames a ring label is
	// held before the ring advances. Minimum 1.
	RotationPeriod int

	// Bands partition [SilenceThreshold, LoudThreshold) into equal-width
	// zones, quietest first. Empty selects the default [M, E, A, O].
	Bands []Label

	// Ring is the rotation order while loud. Empty selects the default
	// [A, E, O, U, W_Q, L, TH, M].
	Ring []Label
}

// Classifier maps energy values onto labels using a fixed threshold
// table. It holds no mutable state; the rotation state machine lives in
// a single pass of [Classifier.Classify], so the same energy sequence
// always produces the same label sequence.
type Classifier struct {
	silence float64
	loud    float64
	period  int
	bands   []Label
	ring    []Label
}

// NewClassifier validates cfg and builds a Classifier.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.SilenceThreshold < 0 {
		return nil, fmt.Errorf("viseme: silence threshold %v must be non-negative", cfg.SilenceThreshold)
	}
	if cfg.LoudThreshold <= cfg.SilenceThreshold {
		return nil, fmt.Errorf("viseme: loud threshold %v must exceed silence threshold %v",
			cfg.LoudThreshold, cfg.SilenceThreshold)
	}
	if cfg.RotationPeriod < 1 {
		return nil, fmt.Errorf("viseme: rotation period %d must be at least 1", cfg.RotationPeriod)
	}
	bands := cfg.Bands
	if len(bands) == 0 {
		bands = defaultBands
	}
	ring := cfg.Ring
	if len(ring) == 0 {
		ring = defaultRing
	}
	for _, l := range bands {
		if l == Neutral {
			return nil, fmt.Errorf("viseme: bands must not contain %s", Neutral)
		}
	}
	for _, l := range ring {
		if l == Neutral {
			return nil, fmt.Errorf("viseme: ring must not contain %s", Neutral)
		}
	}
	return &Classifier{
		silence: cfg.SilenceThreshold,
		loud:    cfg.LoudThreshold,
		period:  cfg.RotationPeriod,
		bands:   append([]Label(nil), bands...),
		ring:    append([]Label(nil), ring...),
	}, nil
}

// Classify maps each energy value to a label, in order:
//
//   - below the silence threshold: Neutral;
//   - between the thresholds: the band whose equal-width zone contains
//     the value, evaluated quiet to loud, first match wins;
//   - at or above the loud threshold: the current ring label, with the
//     ring advancing after every RotationPeriod consecutive loud frames.
//
// Leaving the loud zone resets the ring to its first label, so every
// loud burst starts with the same shape.
func (c *Classifier) Classify(energies []float64) []Label {
	out := make([]Label, len(energies))
	pos, run := 0, 0
	for i, e := range energies {
		switch {
		case e < c.silence:
			out[i] = Neutral
			pos, run = 0, 0
		case e < c.loud:
			out[i] = c.band(e)
			pos, run = 0, 0
		default:
			if run == c.period {
				pos = (pos + 1) % len(c.ring)
				run = 0
			}
			out[i] = c.ring[pos]
			run++
		}
	}
	return out
}

// band selects the label whose zone contains e within [silence, loud).
func (c *Classifier) band(e float64) Label {
	width := (c.loud - c.silence) / float64(len(c.bands))
	idx := int((e - c.silence) / width)
	if idx >= len(c.bands) {
		idx = len(c.bands) - 1
	}
	return c.bands[idx]
}

// AutoThresholds derives a silence and loud threshold from the energy
// distribution of one run: the 20th and 85th percentile (nearest-rank).
// A flat distribution collapses both to the same value; NewClassifier
// rejects that, so callers should fall back to fixed thresholds or treat
// the run as all-Neutral (a signal without dynamics carries no speech).
func AutoThresholds(energies []float64) (silence, loud float64) {
	if len(energies) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), energies...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.20), percentile(sorted, 0.85)
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice using nearest-rank.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
