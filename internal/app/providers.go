package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxmail/internal/config"
	"github.com/MrWong99/voxmail/internal/resilience"
	"github.com/MrWong99/voxmail/pkg/provider/llm"
	"github.com/MrWong99/voxmail/pkg/provider/mail"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
	"github.com/MrWong99/voxmail/pkg/provider/tts"
)

// Providers holds one interface value per external service. TTS may be nil.
// Populated by [BuildProviders] or injected directly in tests.
type Providers struct {
	LLM  llm.Provider
	STT  stt.Provider
	TTS  tts.Provider
	Mail mail.Transport
}

// BreakerConfig converts the resilience section into a breaker template.
func BreakerConfig(rc config.ResilienceConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		MaxFailures:  rc.MaxFailures,
		ResetTimeout: rc.ResetTimeout,
	}
}

// BuildProviders instantiates every provider named in cfg through reg. Each
// slot becomes a failover group of the configured provider and its
// fallbacks; the mail transport sits behind a circuit breaker.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	bc := BreakerConfig(cfg.Resilience)
	ps := &Providers{}

	llmGroup, err := buildGroup("llm", cfg.Providers.LLM, reg.CreateLLM, bc)
	if err != nil {
		return nil, err
	}
	ps.LLM = &resilience.LLMGroup{Group: llmGroup}

	sttGroup, err := buildGroup("stt", cfg.Providers.STT, reg.CreateSTT, bc)
	if err != nil {
		return nil, err
	}
	ps.STT = &resilience.STTGroup{Group: sttGroup}

	if cfg.Providers.TTS.Name != "" {
		ttsGroup, err := buildGroup("tts", cfg.Providers.TTS, reg.CreateTTS, bc)
		if err != nil {
			return nil, err
		}
		ps.TTS = &resilience.TTSGroup{Group: ttsGroup}
	} else {
		slog.Info("no tts provider configured, assistant replies are text only")
	}

	transport, err := reg.CreateMail(cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("create mail transport: %w", err)
	}
	mailBC := bc
	mailBC.Name = "mail"
	ps.Mail = resilience.NewGuardedTransport(transport, mailBC)
	slog.Info("provider created", "kind", "mail", "host", cfg.Mail.Host)

	return ps, nil
}

// buildGroup creates the primary entry and every fallback of one slot.
func buildGroup[T any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error), bc resilience.BreakerConfig) (*resilience.Group[T], error) {
	primary, err := create(entry)
	if err != nil {
		return nil, providerError(kind, entry.Name, err)
	}
	g := resilience.NewGroup(entryLabel(entry), primary, bc)
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)

	for _, fb := range entry.Fallbacks {
		p, err := create(fb)
		if err != nil {
			return nil, providerError(kind, fb.Name, err)
		}
		g.Add(entryLabel(fb), p)
		slog.Info("fallback provider created", "kind", kind, "name", fb.Name, "model", fb.Model)
	}
	return g, nil
}

func providerError(kind, name string, err error) error {
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return fmt.Errorf("%s provider %q is not available in this build: %w", kind, name, err)
	}
	return fmt.Errorf("create %s provider %q: %w", kind, name, err)
}

func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}
