// Package chromakey provides a matting.Matter that keys out a flat
// background colour.
//
// The background colour is sampled from the top-left pixel. Every pixel
// whose Euclidean RGB distance to that colour is within the tolerance gets
// alpha 0; everything else becomes fully opaque. Images that already carry
// transparency are returned untouched, since keying a pre-matted source
// would punch holes into the character itself.
package chromakey

import (
	"context"
	"fmt"
	"image"

	"github.com/MrWong99/lipsynth/pkg/matting"
)

// defaultTolerance is the RGB distance within which a pixel counts as
// background. Tuned for flat, solid-colour backdrops.
const defaultTolerance = 15

// Compile-time assertion that Matter implements matting.Matter.
var _ matting.Matter = (*Matter)(nil)

// Option is a functional option for configuring a Matter.
type Option func(*Matter)

// WithTolerance sets the maximum Euclidean RGB distance from the sampled
// background colour that still counts as background. Defaults to 15.
func WithTolerance(tolerance int) Option {
	return func(m *Matter) {
		m.tolerance = tolerance
	}
}

// Matter implements matting.Matter by flat-colour keying.
type Matter struct {
	tolerance int
}

// New creates a chroma keyer with the given options applied.
func New(opts ...Option) *Matter {
	m := &Matter{tolerance: defaultTolerance}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Matte returns a copy of img where pixels matching the top-left background
// colour are fully transparent and all others fully opaque. An input that
// already contains transparent pixels is copied through unchanged.
func (m *Matter) Matte(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chromakey: context already cancelled: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty input image", matting.ErrMatte)
	}

	out := &image.NRGBA{
		Pix:    append([]uint8(nil), img.Pix...),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	if hasTransparency(img) {
		return out, nil
	}

	b := img.Bounds()
	key := img.NRGBAAt(b.Min.X, b.Min.Y)
	kr, kg, kb := int(key.R), int(key.G), int(key.B)
	tolSq := m.tolerance * m.tolerance

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			dr := int(out.Pix[i]) - kr
			dg := int(out.Pix[i+1]) - kg
			db := int(out.Pix[i+2]) - kb
			if dr*dr+dg*dg+db*db <= tolSq {
				out.Pix[i+3] = 0
			} else {
				out.Pix[i+3] = 0xff
			}
		}
	}
	return out, nil
}

func hasTransparency(img *image.NRGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[img.PixOffset(x, y)+3] != 0xff {
				return true
			}
		}
	}
	return false
}
