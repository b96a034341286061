// Package mock provides a test double for the matting package interfaces.
//
// By default Matte echoes the input back as a copy; set Result or MatteErr
// to control the outcome, and inspect MatteCalls to verify usage.
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/MrWong99/lipsynth/pkg/matting"
)

// MatteCall records a single invocation of Matter.Matte.
type MatteCall struct {
	// Ctx is the context passed to Matte.
	Ctx context.Context
	// Img is the image passed to Matte.
	Img *image.NRGBA
}

// Matter is a mock implementation of matting.Matter.
type Matter struct {
	mu sync.Mutex

	// Result, if non-nil, is returned by every successful Matte call.
	// When nil, Matte returns a copy of the input.
	Result *image.NRGBA

	// MatteErr, if non-nil, is returned as the error from Matte.
	MatteErr error

	// MatteCalls records every call to Matte in order.
	MatteCalls []MatteCall
}

// Matte records the call and returns Result (or a copy of img), MatteErr.
func (m *Matter) Matte(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MatteCalls = append(m.MatteCalls, MatteCall{Ctx: ctx, Img: img})
	if m.MatteErr != nil {
		return nil, m.MatteErr
	}
	if m.Result != nil {
		return m.Result, nil
	}
	out := &image.NRGBA{
		Pix:    append([]uint8(nil), img.Pix...),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	return out, nil
}

// Reset clears all recorded calls. Thread-safe.
func (m *Matter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MatteCalls = nil
}

// Ensure Matter implements matting.Matter at compile time.
var _ matting.Matter = (*Matter)(nil)
