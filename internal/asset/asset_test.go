package asset_test

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/lipsynth/internal/asset"
	"github.com/MrWong99/lipsynth/internal/composite"
	"github.com/MrWong99/lipsynth/pkg/viseme"
)

// writePNG writes a w x h image of solid color c into dir and returns
// its file name.
func writePNG(t *testing.T, dir, name string, w, h int, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return name
}

func TestLoadImage_PNG(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, dir, "a.png", 4, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img, err := asset.LoadImage(filepath.Join(dir, "a.png"))
	if err != nil {
		t.Fatalf("LoadImage() error: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("bounds = %v, want 4x3", img.Bounds())
	}
	if got := img.NRGBAAt(2, 1); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("pixel = %v, want the encoded color", got)
	}
}

func TestLoadImage_Missing(t *testing.T) {
	t.Parallel()

	_, err := asset.LoadImage(filepath.Join(t.TempDir(), "nope.png"))
	if !errors.Is(err, asset.ErrAssetLoad) {
		t.Errorf("err = %v, want ErrAssetLoad", err)
	}
}

func TestLoadImage_Corrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := asset.LoadImage(path); !errors.Is(err, asset.ErrAssetLoad) {
		t.Errorf("err = %v, want ErrAssetLoad", err)
	}
}

func TestLoadShapes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[viseme.Label]string{
		viseme.A: writePNG(t, dir, "A.png", 6, 4, color.NRGBA{R: 255, A: 255}),
		viseme.M: writePNG(t, dir, "M.png", 4, 4, color.NRGBA{G: 255, A: 255}),
	}
	set, err := asset.LoadShapes(dir, files, 0, image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatalf("LoadShapes() error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}

	img, err := set.Resolve(viseme.A)
	if err != nil {
		t.Fatalf("Resolve(A) error: %v", err)
	}
	if img.Bounds().Dx() != 6 {
		t.Errorf("shape A width = %d, want 6", img.Bounds().Dx())
	}
}

func TestLoadShapes_TargetWidthRescales(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[viseme.Label]string{
		viseme.O: writePNG(t, dir, "O.png", 8, 4, color.NRGBA{B: 255, A: 255}),
	}
	set, err := asset.LoadShapes(dir, files, 4, image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatalf("LoadShapes() error: %v", err)
	}
	img, err := set.Resolve(viseme.O)
	if err != nil {
		t.Fatalf("Resolve(O) error: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("rescaled bounds = %v, want 4x2 (aspect preserved)", img.Bounds())
	}
}

func TestLoadShapes_OversizedShapeFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[viseme.Label]string{
		viseme.A: writePNG(t, dir, "A.png", 12, 12, color.NRGBA{A: 255}),
	}
	_, err := asset.LoadShapes(dir, files, 0, image.Rect(0, 0, 10, 10))
	if !errors.Is(err, composite.ErrAssetSize) {
		t.Errorf("err = %v, want ErrAssetSize", err)
	}
}

func TestLoadShapes_MissingFileFails(t *testing.T) {
	t.Parallel()

	files := map[viseme.Label]string{viseme.A: "missing.png"}
	_, err := asset.LoadShapes(t.TempDir(), files, 0, image.Rect(0, 0, 10, 10))
	if !errors.Is(err, asset.ErrAssetLoad) {
		t.Errorf("err = %v, want ErrAssetLoad", err)
	}
}

func TestLoadShapes_NeutralBindingRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[viseme.Label]string{
		viseme.Neutral: writePNG(t, dir, "N.png", 2, 2, color.NRGBA{A: 255}),
	}
	if _, err := asset.LoadShapes(dir, files, 0, image.Rect(0, 0, 10, 10)); err == nil {
		t.Error("binding Neutral to an asset should fail")
	}
}

func TestResolve_NeutralIsNil(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[viseme.Label]string{
		viseme.A: writePNG(t, dir, "A.png", 2, 2, color.NRGBA{A: 255}),
	}
	set, err := asset.LoadShapes(dir, files, 0, image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatalf("LoadShapes() error: %v", err)
	}
	img, err := set.Resolve(viseme.Neutral)
	if err != nil {
		t.Fatalf("Resolve(Neutral) error: %v", err)
	}
	if img != nil {
		t.Error("Resolve(Neutral) = asset, want nil (no overlay)")
	}
}

func TestResolve_UnboundLabelFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[viseme.Label]string{
		viseme.A: writePNG(t, dir, "A.png", 2, 2, color.NRGBA{A: 255}),
	}
	set, err := asset.LoadShapes(dir, files, 0, image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatalf("LoadShapes() error: %v", err)
	}
	if _, err := set.Resolve(viseme.TH); !errors.Is(err, asset.ErrAssetLoad) {
		t.Errorf("Resolve(TH) err = %v, want ErrAssetLoad (no silent fallback)", err)
	}
}

func TestAssembleCanvas_WhiteDefault(t *testing.T) {
	t.Parallel()

	character := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	// Top half opaque blue, bottom half transparent.
	for y := range 4 {
		for x := range 4 {
			if y < 2 {
				character.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	canvas, err := asset.AssembleCanvas(character, nil)
	if err != nil {
		t.Fatalf("AssembleCanvas() error: %v", err)
	}
	if got := canvas.NRGBAAt(1, 0); got != (color.NRGBA{B: 255, A: 255}) {
		t.Errorf("opaque character pixel = %v, want blue", got)
	}
	if got := canvas.NRGBAAt(1, 3); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("transparent character pixel = %v, want white backdrop", got)
	}
}

func TestAssembleCanvas_BackgroundRescaledAndOpaque(t *testing.T) {
	t.Parallel()

	character := image.NewNRGBA(image.Rect(0, 0, 6, 6)) // fully transparent
	background := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for y := range 3 {
		for x := range 3 {
			background.SetNRGBA(x, y, color.NRGBA{R: 40, G: 80, B: 120, A: 10})
		}
	}
	canvas, err := asset.AssembleCanvas(character, background)
	if err != nil {
		t.Fatalf("AssembleCanvas() error: %v", err)
	}
	if canvas.Bounds().Dx() != 6 || canvas.Bounds().Dy() != 6 {
		t.Fatalf("canvas bounds = %v, want character size 6x6", canvas.Bounds())
	}
	// The background's own alpha is discarded; the canvas is opaque.
	if got := canvas.NRGBAAt(3, 3).A; got != 255 {
		t.Errorf("canvas alpha = %d, want 255 (background treated as opaque)", got)
	}
}

func TestAssembleCanvas_EmptyCharacterFails(t *testing.T) {
	t.Parallel()

	if _, err := asset.AssembleCanvas(nil, nil); !errors.Is(err, asset.ErrAssetLoad) {
		t.Errorf("err = %v, want ErrAssetLoad", err)
	}
}
