// Package mock provides a test double for stt.Provider.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/voxmail/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every successful Transcribe call.
	Text string

	// Err, if non-nil, is returned wrapped in stt.ErrTranscription.
	Err error

	// Calls records the audio passed to each Transcribe call.
	Calls []stt.Audio
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns Text or Err.
func (p *Provider) Transcribe(_ context.Context, audio stt.Audio) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, audio)
	if p.Err != nil {
		return "", fmt.Errorf("%w: %w", stt.ErrTranscription, p.Err)
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Last returns the audio of the most recent call, or the zero value.
func (p *Provider) Last() stt.Audio {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return stt.Audio{}
	}
	return p.Calls[len(p.Calls)-1]
}
