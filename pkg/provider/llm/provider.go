// Package llm defines the Provider interface for text generation backends.
//
// A generation service is stateless per call: the caller supplies the full
// ordered message list every time, including any prior conversation turns.
// The pipeline uses one provider for three kinds of calls: recipient
// resolution and email drafting (both expect a JSON object back) and plain
// spoken replies.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/MrWong99/voxmail/pkg/types"
)

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is normally the
	// user turn that drives the reply.
	Messages []types.Message

	// SystemPrompt is an optional instruction placed before Messages. Providers
	// without a dedicated system field prepend it as a "system" message.
	SystemPrompt string

	// Temperature controls randomness in the range [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero means provider default.
	MaxTokens int

	// JSON asks the backend to constrain its output to a single JSON object
	// when it supports such a mode. Callers must still treat the reply as
	// untrusted text and parse it defensively.
	JSON bool
}

// CompletionResponse is the full reply of a Complete call.
type CompletionResponse struct {
	// Content is the raw text returned by the model.
	Content string

	// Usage contains token accounting for this request.
	Usage Usage
}

// Provider is the abstraction over any generation backend.
type Provider interface {
	// Complete sends req to the model and blocks until the full reply is
	// available or ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// AllMessages returns the message list for req with SystemPrompt prepended
// as a system message when set.
func (req CompletionRequest) AllMessages() []types.Message {
	out := make([]types.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, types.Message{Role: types.RoleSystem, Content: req.SystemPrompt})
	}
	return append(out, req.Messages...)
}
