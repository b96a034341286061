package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/lipsynth/internal/render"
	"github.com/MrWong99/lipsynth/pkg/decode"
	"github.com/MrWong99/lipsynth/pkg/encode"
	"github.com/MrWong99/lipsynth/pkg/matting"
)

// ErrCollaboratorNotRegistered is returned by Create* methods when no
// factory has been registered under the requested name.
var ErrCollaboratorNotRegistered = errors.New("config: collaborator not registered")

// Registry maps collaborator names to their constructor functions. Each
// factory receives the full configuration so it can read its own block.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]func(*Config) (decode.Provider, error)
	matters  map[string]func(*Config) (matting.Matter, error)
	encoders map[string]func(*Config) (render.EncoderFactory, error)
	muxers   map[string]func(*Config) (encode.Muxer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[string]func(*Config) (decode.Provider, error)),
		matters:  make(map[string]func(*Config) (matting.Matter, error)),
		encoders: make(map[string]func(*Config) (render.EncoderFactory, error)),
		muxers:   make(map[string]func(*Config) (encode.Muxer, error)),
	}
}

// RegisterDecoder registers an audio decoder factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDecoder(name string, factory func(*Config) (decode.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[name] = factory
}

// RegisterMatter registers a background matting factory under name.
func (r *Registry) RegisterMatter(name string, factory func(*Config) (matting.Matter, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matters[name] = factory
}

// RegisterEncoder registers a video encoder factory under name. The
// factory returns a [render.EncoderFactory] so the pipeline can open the
// encoder once the frame geometry is known.
func (r *Registry) RegisterEncoder(name string, factory func(*Config) (render.EncoderFactory, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[name] = factory
}

// RegisterMuxer registers an audio/video muxer factory under name.
func (r *Registry) RegisterMuxer(name string, factory func(*Config) (encode.Muxer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muxers[name] = factory
}

// CreateDecoder instantiates the decoder named by cfg.Audio.Decoder.
// Returns [ErrCollaboratorNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateDecoder(cfg *Config) (decode.Provider, error) {
	r.mu.RLock()
	factory, ok := r.decoders[string(cfg.Audio.Decoder)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: decoder/%q", ErrCollaboratorNotRegistered, cfg.Audio.Decoder)
	}
	return factory(cfg)
}

// CreateMatter instantiates the matter named by cfg.Character.Matting.
func (r *Registry) CreateMatter(cfg *Config) (matting.Matter, error) {
	r.mu.RLock()
	factory, ok := r.matters[string(cfg.Character.Matting)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: matter/%q", ErrCollaboratorNotRegistered, cfg.Character.Matting)
	}
	return factory(cfg)
}

// CreateEncoder instantiates the encoder factory named by
// cfg.Render.Encoder.
func (r *Registry) CreateEncoder(cfg *Config) (render.EncoderFactory, error) {
	r.mu.RLock()
	factory, ok := r.encoders[string(cfg.Render.Encoder)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: encoder/%q", ErrCollaboratorNotRegistered, cfg.Render.Encoder)
	}
	return factory(cfg)
}

// CreateMuxer instantiates the muxer named by cfg.Render.Encoder; the
// encoder and muxer implementations travel together.
func (r *Registry) CreateMuxer(cfg *Config) (encode.Muxer, error) {
	r.mu.RLock()
	factory, ok := r.muxers[string(cfg.Render.Encoder)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: muxer/%q", ErrCollaboratorNotRegistered, cfg.Render.Encoder)
	}
	return factory(cfg)
}
