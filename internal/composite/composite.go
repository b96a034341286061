// Package composite blends mouth-shape assets onto a character canvas
// using straight-alpha "over" blending.
package composite

import (
	"errors"
	"fmt"
	"image"
)

// ErrAssetSize is returned when an asset does not fit inside the anchor
// rectangle.
var ErrAssetSize = errors.New("composite: asset exceeds anchor")

// Compositor produces output frames for one character canvas. It is
// bound at construction to an immutable base image and a fixed anchor
// rectangle and is safe for concurrent use: every Compose call writes to
// a fresh buffer.
type Compositor struct {
	base   *image.NRGBA
	anchor image.Rectangle
}

// New validates that the anchor is a non-empty rectangle inside the base
// image and returns a Compositor bound to both.
func New(base *image.NRGBA, anchor image.Rectangle) (*Compositor, error) {
	if base == nil || base.Bounds().Empty() {
		return nil, fmt.Errorf("composite: empty base image")
	}
	anchor = anchor.Canon()
	if anchor.Empty() {
		return nil, fmt.Errorf("composite: empty anchor rectangle %v", anchor)
	}
	if !anchor.In(base.Bounds()) {
		return nil, fmt.Errorf("composite: anchor %v outside base bounds %v", anchor, base.Bounds())
	}
	return &Compositor{base: base, anchor: anchor}, nil
}

// Bounds returns the canvas dimensions of every frame this Compositor
// produces.
func (c *Compositor) Bounds() image.Rectangle {
	return c.base.Bounds()
}

// Anchor returns the mouth anchor rectangle.
func (c *Compositor) Anchor() image.Rectangle {
	return c.anchor
}

// Compose returns a fresh frame: the base with asset blended over it,
// centered inside the anchor. A nil asset yields a plain copy of the
// base (the resting-mouth path). An asset larger than the anchor in
// either dimension fails with [ErrAssetSize]. Identical inputs produce
// byte-identical frames.
func (c *Compositor) Compose(asset *image.NRGBA) (*image.NRGBA, error) {
	frame := &image.NRGBA{
		Pix:    append([]uint8(nil), c.base.Pix...),
		Stride: c.base.Stride,
		Rect:   c.base.Rect,
	}
	if asset == nil {
		return frame, nil
	}

	aw, ah := asset.Bounds().Dx(), asset.Bounds().Dy()
	if aw > c.anchor.Dx() || ah > c.anchor.Dy() {
		return nil, fmt.Errorf("%w: asset %dx%d, anchor %dx%d",
			ErrAssetSize, aw, ah, c.anchor.Dx(), c.anchor.Dy())
	}

	// Center the asset inside the anchor.
	ox := c.anchor.Min.X + (c.anchor.Dx()-aw)/2
	oy := c.anchor.Min.Y + (c.anchor.Dy()-ah)/2
	blendOver(frame, asset, ox, oy)
	return frame, nil
}

// blendOver blends src over dst at (ox, oy) with straight-alpha "over":
// out = src*a + dst*(1-a), outA = srcA + dstA*(1-srcA). Channels are
// 8-bit with rounded integer arithmetic.
func blendOver(dst, src *image.NRGBA, ox, oy int) {
	sb := src.Bounds()
	for y := range sb.Dy() {
		si := src.PixOffset(sb.Min.X, sb.Min.Y+y)
		di := dst.PixOffset(ox, oy+y)
		for range sb.Dx() {
			switch sa := src.Pix[si+3]; sa {
			case 0:
				// Fully transparent source pixel, keep the base.
			case 255:
				copy(dst.Pix[di:di+4], src.Pix[si:si+4])
			default:
				dst.Pix[di+0] = blend8(src.Pix[si+0], dst.Pix[di+0], sa)
				dst.Pix[di+1] = blend8(src.Pix[si+1], dst.Pix[di+1], sa)
				dst.Pix[di+2] = blend8(src.Pix[si+2], dst.Pix[di+2], sa)
				dst.Pix[di+3] = sa + uint8((uint32(dst.Pix[di+3])*uint32(255-sa)+127)/255)
			}
			si += 4
			di += 4
		}
	}
}

// blend8 mixes one 8-bit channel: src*a + dst*(1-a), rounded.
func blend8(src, dst, a uint8) uint8 {
	v := uint32(src)*uint32(a) + uint32(dst)*uint32(255-a)
	return uint8((v + 127) / 255)
}
