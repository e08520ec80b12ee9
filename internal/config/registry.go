package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/playback"
	"github.com/MrWong99/readalong/pkg/provider/scoring"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its configuration block.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name-to-factory table. Callers hold Registry.mu.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (Factory[T], error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory, nil
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to constructors for each collaborator kind.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        factories[stt.Provider]
	scoring    factories[scoring.Provider]
	microphone factories[audio.Microphone]
	playback   factories[playback.Player]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        newFactories[stt.Provider]("stt"),
		scoring:    newFactories[scoring.Provider]("scoring"),
		microphone: newFactories[audio.Microphone]("microphone"),
		playback:   newFactories[playback.Player]("playback"),
	}
}

// RegisterSTT registers a speech-to-text factory under name, replacing any
// previous registration.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterScoring registers a pronunciation-scoring factory under name.
func (r *Registry) RegisterScoring(name string, f Factory[scoring.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoring.m[name] = f
}

// RegisterMicrophone registers a microphone factory under name.
func (r *Registry) RegisterMicrophone(name string, f Factory[audio.Microphone]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.microphone.m[name] = f
}

// RegisterPlayback registers a player factory under name.
func (r *Registry) RegisterPlayback(name string, f Factory[playback.Player]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback.m[name] = f
}

// CreateSTT builds the STT provider registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, err := r.stt.create(entry)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateScoring builds the scoring provider registered under entry.Name.
func (r *Registry) CreateScoring(entry ProviderEntry) (scoring.Provider, error) {
	r.mu.RLock()
	f, err := r.scoring.create(entry)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateMicrophone builds the microphone registered under entry.Name.
func (r *Registry) CreateMicrophone(entry ProviderEntry) (audio.Microphone, error) {
	r.mu.RLock()
	f, err := r.microphone.create(entry)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreatePlayback builds the player registered under entry.Name.
func (r *Registry) CreatePlayback(entry ProviderEntry) (playback.Player, error) {
	r.mu.RLock()
	f, err := r.playback.create(entry)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.stt.kind:        r.stt.names(),
		r.scoring.kind:    r.scoring.names(),
		r.microphone.kind: r.microphone.names(),
		r.playback.kind:   r.playback.names(),
	}
}
