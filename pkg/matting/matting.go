// Package matting defines the Matter interface for background removal.
//
// A Matter takes a decoded character image and returns a copy whose
// background pixels are fully transparent, ready for compositing over an
// arbitrary backdrop. Two implementations ship with this module: chromakey
// keys out a flat background colour in-process, and rembg delegates to a
// running rembg HTTP server for AI segmentation. Passthrough disables
// matting for sources that already carry an alpha channel.
package matting

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrMatte is returned when a background cannot be removed, either because
// the input is unusable or a remote matting service failed.
var ErrMatte = errors.New("matting: background removal failed")

// Matter is the abstraction over any background removal backend.
//
// Implementations must not modify the input image; they return a new image
// and must be safe for concurrent use.
type Matter interface {
	// Matte returns a copy of img with background pixels made transparent.
	// Failures wrap ErrMatte.
	Matte(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error)
}

// Passthrough is a Matter that returns the input unchanged. Use it when the
// character image already has a transparent background.
type Passthrough struct{}

// Matte returns a copy of img with no pixels altered.
func (Passthrough) Matte(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("matting: context already cancelled: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty input image", ErrMatte)
	}
	out := &image.NRGBA{
		Pix:    append([]uint8(nil), img.Pix...),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	return out, nil
}

// Ensure Passthrough implements Matter at compile time.
var _ Matter = Passthrough{}
