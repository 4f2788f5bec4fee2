// Package mock provides a test double for the llm.Provider interface.
//
// Responses are served from a queue so a single mock can play the resolver,
// the drafter and the assistant within one pipeline test:
//
//	p := &mock.Provider{Responses: []string{`{"name":"alice","address":"alice@x.com"}`, draftJSON}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxmail/pkg/provider/llm"
	"github.com/MrWong99/voxmail/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses is consumed front to back, one entry per Complete call. When
	// it runs dry, Fallback is returned.
	Responses []string

	// Fallback is returned once Responses is exhausted.
	Fallback string

	// Err, if non-nil, is returned from every Complete call.
	Err error

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next queued response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]types.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	p.Calls = append(p.Calls, CompleteCall{Ctx: ctx, Req: req})

	if p.Err != nil {
		return nil, p.Err
	}
	content := p.Fallback
	if len(p.Responses) > 0 {
		content = p.Responses[0]
		p.Responses = p.Responses[1:]
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// CallCount returns the number of Complete calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastRequest returns the request of the most recent call, or the zero value.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.Calls[len(p.Calls)-1].Req
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
