// Package mock provides test doubles for the encode package interfaces.
//
// Encoder keeps deep copies of every appended frame so tests can assert on
// pixel content after the transient originals have been reused. Muxer
// records the paths it was asked to combine.
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/MrWong99/lipsynth/pkg/encode"
)

// Encoder is a mock implementation of encode.Encoder.
type Encoder struct {
	mu sync.Mutex

	// AppendErr, if non-nil, is returned by every Append call.
	AppendErr error

	// FinalizeErr, if non-nil, is returned by every Finalize call.
	FinalizeErr error

	// Frames holds a deep copy of every appended frame in order.
	Frames []*image.NRGBA

	// FinalizeCallCount is the number of times Finalize was called.
	FinalizeCallCount int
}

// Append records a deep copy of frame and returns AppendErr.
func (e *Encoder) Append(ctx context.Context, frame *image.NRGBA) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.AppendErr != nil {
		return e.AppendErr
	}
	cp := &image.NRGBA{
		Pix:    append([]uint8(nil), frame.Pix...),
		Stride: frame.Stride,
		Rect:   frame.Rect,
	}
	e.Frames = append(e.Frames, cp)
	return nil
}

// Finalize records the call and returns FinalizeErr.
func (e *Encoder) Finalize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FinalizeCallCount++
	return e.FinalizeErr
}

// FrameCount returns the number of appended frames. Thread-safe.
func (e *Encoder) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Frames)
}

// Reset clears all recorded frames and calls. Thread-safe.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Frames = nil
	e.FinalizeCallCount = 0
}

// Ensure Encoder implements encode.Encoder at compile time.
var _ encode.Encoder = (*Encoder)(nil)

// MuxCall records a single invocation of Muxer.Mux.
type MuxCall struct {
	// VideoPath is the silent video path passed to Mux.
	VideoPath string
	// AudioPath is the audio file path passed to Mux.
	AudioPath string
	// OutPath is the final output path passed to Mux.
	OutPath string
}

// Muxer is a mock implementation of encode.Muxer.
type Muxer struct {
	mu sync.Mutex

	// MuxErr, if non-nil, is returned by every Mux call.
	MuxErr error

	// MuxCalls records every call to Mux in order.
	MuxCalls []MuxCall
}

// Mux records the call and returns MuxErr.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MuxCalls = append(m.MuxCalls, MuxCall{VideoPath: videoPath, AudioPath: audioPath, OutPath: outPath})
	return m.MuxErr
}

// Reset clears all recorded calls. Thread-safe.
func (m *Muxer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MuxCalls = nil
}

// Ensure Muxer implements encode.Muxer at compile time.
var _ encode.Muxer = (*Muxer)(nil)
