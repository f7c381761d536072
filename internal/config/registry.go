package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ambientworks/roomvoice/pkg/provider/audio"
	"github.com/ambientworks/roomvoice/pkg/provider/stt"
	"github.com/ambientworks/roomvoice/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	audio map[string]func(*Config) (audio.Source, error)
	vad   map[string]func(*Config) (vad.Classifier, error)
	stt   map[string]func(*Config) (stt.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio: make(map[string]func(*Config) (audio.Source, error)),
		vad:   make(map[string]func(*Config) (vad.Classifier, error)),
		stt:   make(map[string]func(*Config) (stt.Engine, error)),
	}
}

// RegisterAudio registers a capture source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory func(*Config) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterVAD registers a voice activity classifier factory under name.
func (r *Registry) RegisterVAD(name string, factory func(*Config) (vad.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSTT registers a speech-to-text engine factory under name.
func (r *Registry) RegisterSTT(name string, factory func(*Config) (stt.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateAudio builds the capture source selected by cfg.Audio.Source.
func (r *Registry) CreateAudio(cfg *Config) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Audio.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio source %q", ErrProviderNotRegistered, cfg.Audio.Source)
	}
	return factory(cfg)
}

// CreateVAD builds the classifier selected by cfg.VAD.Engine.
func (r *Registry) CreateVAD(cfg *Config) (vad.Classifier, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.VAD.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad engine %q", ErrProviderNotRegistered, cfg.VAD.Engine)
	}
	return factory(cfg)
}

// CreateSTT builds the engine selected by cfg.STT.Engine.
func (r *Registry) CreateSTT(cfg *Config) (stt.Engine, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.STT.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt engine %q", ErrProviderNotRegistered, cfg.STT.Engine)
	}
	return factory(cfg)
}
