// Package compose turns spoken instructions into text with a generation
// service: structured email drafts for the email flow and plain replies for
// the assistant flow.
//
// Prior conversation turns are always sent along so that follow-ups such as
// "make it shorter" can refer to the previous draft.
package compose

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/pkg/provider/llm"
	"github.com/MrWong99/voxmail/pkg/types"
)

const defaultTemperature = 0.7

// DefaultAssistantPrompt is the system prompt of the assistant flow.
const DefaultAssistantPrompt = "You are a helpful habit tracking assistant. Please respond without using any markdown formatting (no asterisks, no underscores)."

const draftPromptTemplate = `You write short, friendly emails on behalf of the user.

The recipient is %s <%s>. Write the email the user asks for in their latest message. Earlier messages may contain previous drafts that the user wants changed.

End the body with exactly this signature block, each part on its own line:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"subject": "<subject line>", "body": "<plain text body, paragraphs separated by blank lines>"}`

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithSignature sets the closing block requested at the end of every draft.
func WithSignature(s Signature) Option {
	return func(g *Generator) { g.signature = s }
}

// WithAssistantPrompt replaces [DefaultAssistantPrompt].
func WithAssistantPrompt(prompt string) Option {
	return func(g *Generator) {
		if prompt != "" {
			g.assistantPrompt = prompt
		}
	}
}

// WithTemperature sets the sampling temperature of both flows. Default: 0.7.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMetrics records generation latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// Generator is safe for concurrent use.
type Generator struct {
	llm             llm.Provider
	signature       Signature
	assistantPrompt string
	temperature     float64
	metrics         *observe.Metrics
}

// New returns a Generator backed by p.
func New(p llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		llm:             p,
		assistantPrompt: DefaultAssistantPrompt,
		temperature:     defaultTemperature,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Signature returns the configured signature.
func (g *Generator) Signature() Signature { return g.signature }

// Draft asks for an email to recipient. The reply is decoded with [Decode],
// so a malformed reply still yields a Result. The error is non-nil only when
// the generation call itself failed.
func (g *Generator) Draft(ctx context.Context, history []types.Message, recipient types.Contact, utterance string) (Result, error) {
	req := llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(draftPromptTemplate, recipient.Name, recipient.Address, g.signature.Block()),
		Messages:     withUtterance(history, utterance),
		Temperature:  g.temperature,
		JSON:         true,
	}
	resp, err := g.complete(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("compose: draft: %w", err)
	}
	res := Decode(resp.Content)
	if !res.Parsed {
		observe.Logger(ctx).Warn("compose: using raw reply as body", "reason", res.Reason)
	}
	return res, nil
}

// Reply asks for a plain conversational answer to utterance.
func (g *Generator) Reply(ctx context.Context, history []types.Message, utterance string) (string, error) {
	req := llm.CompletionRequest{
		SystemPrompt: g.assistantPrompt,
		Messages:     withUtterance(history, utterance),
		Temperature:  g.temperature,
	}
	resp, err := g.complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("compose: reply: %w", err)
	}
	return resp.Content, nil
}

func (g *Generator) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := g.llm.Complete(ctx, req)
	if g.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observe.ObserveSince(ctx, g.metrics.LLMDuration, start, status)
	}
	return resp, err
}

func withUtterance(history []types.Message, utterance string) []types.Message {
	msgs := make([]types.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	return append(msgs, types.Message{Role: types.RoleUser, Content: utterance})
}
