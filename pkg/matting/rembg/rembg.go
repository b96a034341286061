// Package rembg provides a matting.Matter backed by a running rembg HTTP
// server (https://github.com/danielgatis/rembg).
//
// The character image is encoded as PNG and POSTed to the server's
// /api/remove endpoint as multipart/form-data; the response is the matted
// PNG with background pixels set to alpha 0.
//
// Usage:
//
//	m, err := rembg.New("http://localhost:7000",
//	    rembg.WithModel("u2net"),
//	)
//	matted, err := m.Matte(ctx, character)
package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/lipsynth/pkg/matting"
)

const (
	removeEndpoint = "/api/remove"
	defaultTimeout = 60 * time.Second
)

// Compile-time assertion that Matter implements matting.Matter.
var _ matting.Matter = (*Matter)(nil)

// Option is a functional option for configuring a Matter.
type Option func(*Matter)

// WithModel sets the rembg model name forwarded to the server (e.g.,
// "u2net", "isnet-anime"). When empty the server uses its default model.
func WithModel(model string) Option {
	return func(m *Matter) {
		m.model = model
	}
}

// WithHTTPClient replaces the default HTTP client, including its timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Matter) {
		m.httpClient = c
	}
}

// WithTransport sets the transport on the default HTTP client, keeping its
// timeout. Use [WithHTTPClient] to replace the client wholesale.
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Matter) {
		m.httpClient.Transport = rt
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
// Defaults to 60 s; AI segmentation of large images is slow on CPU.
func WithTimeout(d time.Duration) Option {
	return func(m *Matter) {
		m.httpClient.Timeout = d
	}
}

// Matter implements matting.Matter against a rembg HTTP server.
type Matter struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Matter that talks to the rembg server at baseURL (e.g.,
// "http://localhost:7000"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Matter, error) {
	if baseURL == "" {
		return nil, errors.New("rembg: baseURL must not be empty")
	}
	m := &Matter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Matte uploads img to the rembg server and returns the matted result.
// Failures wrap matting.ErrMatte.
func (m *Matter) Matte(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty input image", matting.ErrMatte)
	}

	body, contentType, err := m.buildRequestBody(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", matting.ErrMatte, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+removeEndpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", matting.ErrMatte, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "image/png")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", matting.ErrMatte, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: server returned HTTP %d: %s",
			matting.ErrMatte, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	decoded, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", matting.ErrMatte, err)
	}
	return toNRGBA(decoded), nil
}

// buildRequestBody encodes img as a PNG inside a multipart form with the
// primary "file" field and an optional "model" hint field.
func (m *Matter) buildRequestBody(img *image.NRGBA) (*bytes.Buffer, string, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, "", fmt.Errorf("encode png: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "character.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(pngBuf.Bytes()); err != nil {
		return nil, "", fmt.Errorf("write png data: %w", err)
	}
	if m.model != "" {
		if err := mw.WriteField("model", m.model); err != nil {
			return nil, "", fmt.Errorf("write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
