// Package asset loads and prepares the still-image inputs of a run: the
// character sheet, the optional background, and the mouth shape set.
// All images are held as straight-alpha NRGBA with bounds starting at
// the origin.
package asset

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/MrWong99/lipsynth/internal/composite"
	"github.com/MrWong99/lipsynth/pkg/viseme"
)

// ErrAssetLoad is returned for missing, corrupt or unusable image files.
var ErrAssetLoad = errors.New("asset: load failed")

// LoadImage decodes the PNG or JPEG at path into a straight-alpha NRGBA
// image. Failures wrap [ErrAssetLoad].
func LoadImage(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrAssetLoad, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %q: %w", ErrAssetLoad, path, err)
	}
	return toNRGBA(img), nil
}

// ShapeSet holds the loaded mouth overlays, one per bound label.
// Immutable after load and shared read-only across compositing workers.
type ShapeSet struct {
	shapes map[viseme.Label]*image.NRGBA
}

// LoadShapes loads every mouth asset named in files (paths relative to
// dir), rescales each to targetWidth pixels wide preserving aspect ratio
// (0 disables rescaling), and verifies it fits inside the anchor.
// Neutral cannot be bound: the resting mouth is the untouched base.
// Every configured file must load; a missing shape is a hard failure.
func LoadShapes(dir string, files map[viseme.Label]string, targetWidth int, anchor image.Rectangle) (*ShapeSet, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no mouth shapes configured", ErrAssetLoad)
	}
	shapes := make(map[viseme.Label]*image.NRGBA, len(files))
	for label, file := range files {
		if label == viseme.Neutral {
			return nil, fmt.Errorf("%w: %s cannot be bound to an asset", ErrAssetLoad, viseme.Neutral)
		}
		img, err := LoadImage(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", label, err)
		}
		img = scaleToWidth(img, targetWidth)
		if img.Bounds().Dx() > anchor.Dx() || img.Bounds().Dy() > anchor.Dy() {
			return nil, fmt.Errorf("%w: shape %s is %dx%d, anchor is %dx%d",
				composite.ErrAssetSize, label, img.Bounds().Dx(), img.Bounds().Dy(),
				anchor.Dx(), anchor.Dy())
		}
		shapes[label] = img
	}
	return &ShapeSet{shapes: shapes}, nil
}

// Resolve returns the overlay for a label. Neutral resolves to nil (no
// overlay). A non-Neutral label without a bound asset is an error: a
// missing shape must never silently render as something else.
func (s *ShapeSet) Resolve(l viseme.Label) (*image.NRGBA, error) {
	if l == viseme.Neutral {
		return nil, nil
	}
	img, ok := s.shapes[l]
	if !ok {
		return nil, fmt.Errorf("%w: no asset bound for shape %s", ErrAssetLoad, l)
	}
	return img, nil
}

// Labels returns the bound labels in declaration order.
func (s *ShapeSet) Labels() []viseme.Label {
	out := make([]viseme.Label, 0, len(s.shapes))
	for l := range s.shapes {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of bound shapes.
func (s *ShapeSet) Len() int {
	return len(s.shapes)
}

// AssembleCanvas builds the character base for a run: the matted
// character blended over the background, which is rescaled to the
// character's dimensions first. A nil background becomes a solid white
// canvas. The background is treated as opaque regardless of any alpha it
// carries.
func AssembleCanvas(character, background *image.NRGBA) (*image.NRGBA, error) {
	if character == nil || character.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty character image", ErrAssetLoad)
	}
	w, h := character.Bounds().Dx(), character.Bounds().Dy()
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	if background == nil {
		for i := range canvas.Pix {
			canvas.Pix[i] = 0xff
		}
	} else {
		if background.Bounds().Dx() != w || background.Bounds().Dy() != h {
			background = scaleTo(background, w, h)
		}
		copy(canvas.Pix, background.Pix)
		for i := 3; i < len(canvas.Pix); i += 4 {
			canvas.Pix[i] = 0xff
		}
	}

	over, err := composite.New(canvas, canvas.Bounds())
	if err != nil {
		return nil, err
	}
	return over.Compose(character)
}

// toNRGBA converts any decoded image into an origin-anchored NRGBA.
func toNRGBA(src image.Image) *image.NRGBA {
	if img, ok := src.(*image.NRGBA); ok && img.Rect.Min == (image.Point{}) {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, xdraw.Src)
	return dst
}

// scaleToWidth resizes img to the given width, keeping aspect ratio.
func scaleToWidth(img *image.NRGBA, width int) *image.NRGBA {
	if width <= 0 || img.Bounds().Dx() == width {
		return img
	}
	height := img.Bounds().Dy() * width / img.Bounds().Dx()
	if height < 1 {
		height = 1
	}
	return scaleTo(img, width, height)
}

// scaleTo resizes img to exactly w x h using Catmull-Rom resampling.
func scaleTo(img *image.NRGBA, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}
