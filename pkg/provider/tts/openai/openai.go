// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxmail/pkg/provider/tts"
	"github.com/MrWong99/voxmail/pkg/types"
)

const (
	DefaultModel  = "gpt-4o-mini-tts"
	DefaultVoice  = "alloy"
	DefaultFormat = "mp3"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithVoice selects the voice (alloy, ash, coral, echo, nova, sage, ...).
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithFormat selects the response format (mp3, wav, opus, aac, flac).
func WithFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client  oai.Client
	model   string
	voice   string
	format  string
	baseURL string
}

// New creates a speech Provider. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{model: model, voice: DefaultVoice, format: DefaultFormat}
	if p.model == "" {
		p.model = DefaultModel
	}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (*types.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai tts: empty audio response")
	}
	return &types.Speech{Data: data, Format: p.format}, nil
}
