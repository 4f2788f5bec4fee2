package main

import (
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voxmail/internal/config"
	"github.com/MrWong99/voxmail/pkg/provider/llm"
	"github.com/MrWong99/voxmail/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/voxmail/pkg/provider/llm/openai"
	"github.com/MrWong99/voxmail/pkg/provider/mail"
	"github.com/MrWong99/voxmail/pkg/provider/mail/smtp"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
	oaistt "github.com/MrWong99/voxmail/pkg/provider/stt/openai"
	"github.com/MrWong99/voxmail/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxmail/pkg/provider/tts"
	"github.com/MrWong99/voxmail/pkg/provider/tts/coqui"
	oaitts "github.com/MrWong99/voxmail/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai talks to the Chat Completions API directly so structured calls
	// can use the native JSON response format.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization", ""); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other vendor goes through any-llm-go. ollama, llamacpp and
	// llamafile are local servers and usually only need BaseURL.
	for _, vendor := range anyllm.Backends {
		if vendor == "openai" {
			continue
		}
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []oaitts.Option{
			oaitts.WithVoice(entry.StringOption("voice", oaitts.DefaultVoice)),
			oaitts.WithFormat(entry.StringOption("format", oaitts.DefaultFormat)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := entry.StringOption("speaker", ""); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := entry.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Mail ──────────────────────────────────────────────────────────────────

	reg.RegisterMail(func(mc config.MailConfig) (mail.Transport, error) {
		opts := []smtp.Option{
			smtp.WithPort(mc.Port),
			smtp.WithTLS(mc.TLS),
			smtp.WithTimeout(30 * time.Second),
		}
		if mc.Username != "" {
			opts = append(opts, smtp.WithAuth(mc.Username, mc.Password))
		}
		return smtp.New(mc.Host, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}
