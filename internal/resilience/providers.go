package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxmail/pkg/provider/llm"
	"github.com/MrWong99/voxmail/pkg/provider/mail"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
	"github.com/MrWong99/voxmail/pkg/provider/tts"
	"github.com/MrWong99/voxmail/pkg/types"
)

var (
	_ llm.Provider   = (*LLMGroup)(nil)
	_ stt.Provider   = (*STTGroup)(nil)
	_ tts.Provider   = (*TTSGroup)(nil)
	_ mail.Transport = (*GuardedTransport)(nil)
)

// LLMGroup fails over across generation services.
type LLMGroup struct{ *Group[llm.Provider] }

// NewLLMGroup creates an LLMGroup with primary as the preferred backend.
func NewLLMGroup(name string, primary llm.Provider, cfg BreakerConfig) *LLMGroup {
	return &LLMGroup{NewGroup(name, primary, cfg)}
}

// Complete implements llm.Provider.
func (g *LLMGroup) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, g.Group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// STTGroup fails over across transcription services. Its errors always wrap
// stt.ErrTranscription.
type STTGroup struct{ *Group[stt.Provider] }

// NewSTTGroup creates an STTGroup with primary as the preferred backend.
func NewSTTGroup(name string, primary stt.Provider, cfg BreakerConfig) *STTGroup {
	return &STTGroup{NewGroup(name, primary, cfg)}
}

// Transcribe implements stt.Provider.
func (g *STTGroup) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	text, err := Call(ctx, g.Group, func(ctx context.Context, p stt.Provider) (string, error) {
		return p.Transcribe(ctx, audio)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", stt.ErrTranscription, err)
	}
	return text, nil
}

// TTSGroup fails over across speech synthesis services.
type TTSGroup struct{ *Group[tts.Provider] }

// NewTTSGroup creates a TTSGroup with primary as the preferred backend.
func NewTTSGroup(name string, primary tts.Provider, cfg BreakerConfig) *TTSGroup {
	return &TTSGroup{NewGroup(name, primary, cfg)}
}

// Synthesize implements tts.Provider.
func (g *TTSGroup) Synthesize(ctx context.Context, text string) (*types.Speech, error) {
	return Call(ctx, g.Group, func(ctx context.Context, p tts.Provider) (*types.Speech, error) {
		return p.Synthesize(ctx, text)
	})
}

// GuardedTransport puts a [Breaker] in front of a mail transport so that a
// dead mail server is reported immediately instead of stalling every
// dispatch on a connect timeout.
type GuardedTransport struct {
	next    mail.Transport
	breaker *Breaker
}

// NewGuardedTransport wraps next.
func NewGuardedTransport(next mail.Transport, cfg BreakerConfig) *GuardedTransport {
	if cfg.Name == "" {
		cfg.Name = "mail"
	}
	return &GuardedTransport{next: next, breaker: NewBreaker(cfg)}
}

// Deliver implements mail.Transport.
func (t *GuardedTransport) Deliver(ctx context.Context, msg mail.Message) error {
	err := t.breaker.Execute(ctx, func(ctx context.Context) error {
		return t.next.Deliver(ctx, msg)
	})
	if err != nil && !errors.Is(err, mail.ErrTransport) {
		return fmt.Errorf("%w: %w", mail.ErrTransport, err)
	}
	return err
}

// State exposes the breaker state for readiness checks.
func (t *GuardedTransport) State() State {
	return t.breaker.State()
}
