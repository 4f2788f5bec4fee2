// Package mock provides a test double for tts.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxmail/pkg/provider/tts"
	"github.com/MrWong99/voxmail/pkg/types"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Speech is returned by every successful Synthesize call. When nil a small
	// placeholder MP3 payload is returned.
	Speech *types.Speech

	// Err, if non-nil, is returned from every Synthesize call.
	Err error

	// Texts records the text passed to each Synthesize call.
	Texts []string
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns Speech or Err.
func (p *Provider) Synthesize(_ context.Context, text string) (*types.Speech, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Speech != nil {
		return p.Speech, nil
	}
	return &types.Speech{Data: []byte("mock-audio"), Format: "mp3"}, nil
}

// CallCount returns the number of Synthesize calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Texts)
}
