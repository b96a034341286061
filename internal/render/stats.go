package render

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stats collects render latency samples for the end-of-run summary. The
// per-frame stages (composite, encode) feed bounded ring buffers from which
// percentiles are computed on demand; one-shot stages record a single
// duration each.
//
// Thread-safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	composite latencyBuffer
	encode    latencyBuffer

	stages map[string]time.Duration
	frames int64
}

// NewStats creates a Stats with the given window size (maximum number of
// per-frame latency samples retained per stage).
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = 256
	}
	return &Stats{
		composite: newLatencyBuffer(windowSize),
		encode:    newLatencyBuffer(windowSize),
		stages:    make(map[string]time.Duration),
	}
}

// RecordComposite records a single frame's compositing latency and counts
// the frame.
func (s *Stats) RecordComposite(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composite.add(d)
	s.frames++
}

// RecordEncode records a single frame's encoder hand-off latency.
func (s *Stats) RecordEncode(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encode.add(d)
}

// RecordStage records the total duration of a one-shot pipeline stage such
// as decode or mux.
func (s *Stats) RecordStage(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[stage] = d
}

// LatencyPercentiles holds p50 and p95 values for a per-frame stage.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// Snapshot captures a point-in-time view of all render statistics.
type Snapshot struct {
	Composite LatencyPercentiles
	Encode    LatencyPercentiles
	Stages    map[string]time.Duration
	Frames    int64
}

// Snapshot returns a point-in-time view of all render statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages := make(map[string]time.Duration, len(s.stages))
	for k, v := range s.stages {
		stages[k] = v
	}
	return Snapshot{
		Composite: s.composite.percentiles(),
		Encode:    s.encode.percentiles(),
		Stages:    stages,
		Frames:    s.frames,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = lb.size
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	// Copy and sort the valid samples.
	sorted := make([]time.Duration, n)
	if lb.full {
		copy(sorted, lb.data)
	} else {
		copy(sorted, lb.data[:n])
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations using nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
