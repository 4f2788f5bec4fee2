// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe models).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxmail/pkg/provider/stt"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = oai.AudioModelWhisper1

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithLanguage sets an ISO-639-1 language hint (e.g. "en").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	baseURL  string
}

// New creates a transcription Provider. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	p := &Provider{model: DefaultModel}
	if model != "" {
		p.model = oai.AudioModel(model)
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

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("%w: openai stt: empty audio", stt.ErrTranscription)
	}
	data, filename := audio.File()

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), filename, audio.ContentType()),
		Model: p.model,
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai stt: %w", stt.ErrTranscription, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
