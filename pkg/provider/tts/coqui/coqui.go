// Package coqui provides a TTS provider for a locally running Coqui TTS
// server. Two server flavours are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu), synthesis via GET /api/tts.
//   - APIModeXTTS: the XTTS v2 API server, synthesis via POST /tts_to_audio/.
//
// Both return a WAV file, which is passed through to the caller unchanged.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/voxmail/pkg/provider/tts"
	"github.com/MrWong99/voxmail/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
	xttsEndpoint    = "/tts_to_audio/"
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker selects a speaker ID (standard mode) or reference speaker
// (XTTS mode).
func WithSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.speaker = speaker
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a Provider that targets the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	if p.apiMode == APIModeXTTS && p.speaker == "" {
		return nil, errors.New("coqui: xtts mode requires a speaker")
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (*types.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	req, err := p.newRequest(ctx, text)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("coqui: response is not a WAV file")
	}
	return &types.Speech{Data: wav, Format: "wav"}, nil
}

func (p *Provider) newRequest(ctx context.Context, text string) (*http.Request, error) {
	if p.apiMode == APIModeXTTS {
		body, err := json.Marshal(struct {
			Text       string `json:"text"`
			SpeakerWav string `json:"speaker_wav"`
			Language   string `json:"language"`
		}{text, p.speaker, p.language})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("coqui: create tts request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	params := url.Values{}
	params.Set("text", text)
	if p.speaker != "" {
		params.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}
