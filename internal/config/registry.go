package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/voxmail/pkg/provider/llm"
	"github.com/MrWong99/voxmail/pkg/provider/mail"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
	"github.com/MrWong99/voxmail/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is one name → constructor table.
type factories[T any] struct {
	kind string
	m    map[string]func(ProviderEntry) (T, error)
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]func(ProviderEntry) (T, error))}
}

func (f factories[T]) create(e ProviderEntry) (T, error) {
	factory, ok := f.m[e.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return factory(e)
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry maps provider names to constructors for every provider kind.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	llm  factories[llm.Provider]
	stt  factories[stt.Provider]
	tts  factories[tts.Provider]
	mail func(MailConfig) (mail.Transport, error)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: newFactories[llm.Provider]("llm"),
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
	}
}

// RegisterLLM registers a generation service factory under name, replacing
// any earlier registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterSTT registers a speech-to-text factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterTTS registers a speech synthesis factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// RegisterMail sets the mail transport factory.
func (r *Registry) RegisterMail(factory func(MailConfig) (mail.Transport, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mail = factory
}

// CreateLLM instantiates the generation service named by e.Name.
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(e)
}

// CreateSTT instantiates the speech-to-text provider named by e.Name.
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(e)
}

// CreateTTS instantiates the speech synthesis provider named by e.Name.
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(e)
}

// CreateMail instantiates the mail transport.
func (r *Registry) CreateMail(cfg MailConfig) (mail.Transport, error) {
	r.mu.RLock()
	factory := r.mail
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: mail", ErrProviderNotRegistered)
	}
	return factory(cfg)
}

// Names lists the registered provider names of kind ("llm", "stt", "tts").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "llm":
		return r.llm.names()
	case "stt":
		return r.stt.names()
	case "tts":
		return r.tts.names()
	}
	return nil
}
