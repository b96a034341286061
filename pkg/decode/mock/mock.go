// Package mock provides a test double for the decode package interfaces.
//
// Pre-populate Provider.Buffer with the samples a test needs, then inspect
// DecodeCalls to verify which paths were requested.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lipsynth/pkg/audio"
	"github.com/MrWong99/lipsynth/pkg/decode"
)

// DecodeCall records a single invocation of Provider.Decode.
type DecodeCall struct {
	// Ctx is the context passed to Decode.
	Ctx context.Context
	// Path is the file path passed to Decode.
	Path string
}

// Provider is a mock implementation of decode.Provider.
type Provider struct {
	mu sync.Mutex

	// Buffer is returned by every successful Decode call.
	Buffer *audio.Buffer

	// DecodeErr, if non-nil, is returned as the error from Decode.
	DecodeErr error

	// DecodeCalls records every call to Decode in order.
	DecodeCalls []DecodeCall
}

// Decode records the call and returns Buffer, DecodeErr.
func (p *Provider) Decode(ctx context.Context, path string) (*audio.Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DecodeCalls = append(p.DecodeCalls, DecodeCall{Ctx: ctx, Path: path})
	if p.DecodeErr != nil {
		return nil, p.DecodeErr
	}
	return p.Buffer, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DecodeCalls = nil
}

// Ensure Provider implements decode.Provider at compile time.
var _ decode.Provider = (*Provider)(nil)
