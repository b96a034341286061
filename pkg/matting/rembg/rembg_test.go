package rembg_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/lipsynth/pkg/matting"
	"github.com/MrWong99/lipsynth/pkg/matting/rembg"
)

// mattedPNG is the canned server response: a 2x2 image whose bottom row is
// transparent.
func mattedPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode canned response: %v", err)
	}
	return buf.Bytes()
}

// newServer returns a fake rembg server that records the model form field of
// the last request into gotModel.
func newServer(t *testing.T, gotModel *atomic.Value) *httptest.Server {
	t.Helper()
	response := mattedPNG(t)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/remove" {
			http.Error(w, "wrong endpoint", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		if gotModel != nil {
			gotModel.Store(r.FormValue("model"))
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(response)
	}))
}

func inputImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func TestNew_EmptyBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := rembg.New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}

func TestMatte_ReturnsServerResult(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	defer srv.Close()

	m, err := rembg.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	out, err := m.Matte(context.Background(), inputImage())
	if err != nil {
		t.Fatalf("Matte() error: %v", err)
	}
	if got := out.NRGBAAt(0, 0); got.A != 255 || got.R != 200 {
		t.Errorf("kept pixel = %v, want opaque red", got)
	}
	if got := out.NRGBAAt(0, 1); got.A != 0 {
		t.Errorf("removed pixel alpha = %d, want 0", got.A)
	}
}

func TestMatte_SendsModelField(t *testing.T) {
	t.Parallel()

	var gotModel atomic.Value
	srv := newServer(t, &gotModel)
	defer srv.Close()

	m, err := rembg.New(srv.URL, rembg.WithModel("isnet-anime"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := m.Matte(context.Background(), inputImage()); err != nil {
		t.Fatalf("Matte() error: %v", err)
	}
	if got, _ := gotModel.Load().(string); got != "isnet-anime" {
		t.Errorf("server received model %q, want isnet-anime", got)
	}
}

func TestMatte_TrailingSlashBaseURL(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	defer srv.Close()

	m, err := rembg.New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := m.Matte(context.Background(), inputImage()); err != nil {
		t.Errorf("Matte() with trailing-slash base URL failed: %v", err)
	}
}

func TestMatte_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model load failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, err := rembg.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_, err = m.Matte(context.Background(), inputImage())
	if !errors.Is(err, matting.ErrMatte) {
		t.Fatalf("err = %v, want ErrMatte", err)
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("error should name the status code, got: %v", err)
	}
}

func TestMatte_NonPNGResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a png"))
	}))
	defer srv.Close()

	m, err := rembg.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := m.Matte(context.Background(), inputImage()); !errors.Is(err, matting.ErrMatte) {
		t.Errorf("err = %v, want ErrMatte", err)
	}
}

func TestMatte_EmptyInput(t *testing.T) {
	t.Parallel()

	m, err := rembg.New("http://localhost:7000")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := m.Matte(context.Background(), nil); !errors.Is(err, matting.ErrMatte) {
		t.Errorf("err = %v, want ErrMatte", err)
	}
}

// countingTransport wraps a RoundTripper and counts the requests routed
// through it.
type countingTransport struct {
	base  http.RoundTripper
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.base.RoundTrip(req)
}

func TestWithTransport_RoutesRequests(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	defer srv.Close()

	ct := &countingTransport{base: http.DefaultTransport}
	m, err := rembg.New(srv.URL, rembg.WithTransport(ct))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := m.Matte(context.Background(), inputImage()); err != nil {
		t.Fatalf("Matte() error: %v", err)
	}
	if got := ct.calls.Load(); got != 1 {
		t.Errorf("transport saw %d requests, want 1", got)
	}
}
