// Package resolver maps a spoken instruction to a single directory contact.
//
// Matching is delegated to a generation service: the full directory is
// listed in the system prompt and the model answers with a JSON object
// naming one contact or null. The reply is untrusted. Anything other than a
// well-formed object naming a contact that exists in the directory resolves
// to [ErrNoMatch]; ambiguity is not distinguished from a miss.
//
// Phonetic candidates from [phonetic.Matcher] are added to the prompt as
// hints so that misheard names ("alis", "jon smyth") are easier for the
// model to place. Hints never bypass the model.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/internal/phonetic"
	"github.com/MrWong99/voxmail/pkg/provider/llm"
	"github.com/MrWong99/voxmail/pkg/types"
)

// ErrNoMatch is returned when no single contact could be identified.
var ErrNoMatch = errors.New("resolver: no matching contact")

const defaultTemperature = 0.1

// maxHints caps the number of phonetic candidates listed in the prompt.
const maxHints = 3

const systemPromptTemplate = `You identify the recipient of an email from a spoken instruction.

The instruction was produced by speech recognition and may contain misheard names or alternate spellings. Pick the contact from the list below that the speaker most likely means.

Contacts (name: address):
%s
Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"name": "<contact name exactly as listed>", "address": "<address exactly as listed>"}

If no contact matches, or more than one contact matches equally well, respond with:
{"name": null, "address": null}`

// Directory is the read side of the contact directory the resolver needs.
type Directory interface {
	List() []types.Contact
	Lookup(name string) (string, bool)
}

var _ Directory = (*directory.Directory)(nil)

// answer is the JSON shape the model must return.
type answer struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
}

// Option is a functional option for configuring a [Resolver].
type Option func(*Resolver)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(t float64) Option {
	return func(r *Resolver) { r.temperature = t }
}

// WithMatcher replaces the phonetic matcher used for prompt hints. A nil
// matcher disables hints.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(r *Resolver) { r.matcher = m }
}

// WithMetrics records generation latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver is safe for concurrent use.
type Resolver struct {
	llm         llm.Provider
	matcher     *phonetic.Matcher
	metrics     *observe.Metrics
	temperature float64
}

// New returns a Resolver backed by p.
func New(p llm.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		llm:         p,
		matcher:     phonetic.New(),
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the contact utterance refers to. Every failure, including
// a failed generation call, wraps [ErrNoMatch]. An empty directory returns
// immediately without calling the generation service.
func (r *Resolver) Resolve(ctx context.Context, utterance string, dir Directory) (types.Contact, error) {
	contacts := dir.List()
	if len(contacts) == 0 {
		return types.Contact{}, fmt.Errorf("%w: directory is empty", ErrNoMatch)
	}
	if strings.TrimSpace(utterance) == "" {
		return types.Contact{}, fmt.Errorf("%w: empty instruction", ErrNoMatch)
	}

	req := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(contacts),
		Temperature:  r.temperature,
		JSON:         true,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: r.userMessage(utterance, contacts)},
		},
	}

	resp, err := r.complete(ctx, req)
	if err != nil {
		return types.Contact{}, fmt.Errorf("%w: generation: %w", ErrNoMatch, err)
	}
	return r.match(ctx, resp.Content, dir)
}

func (r *Resolver) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if r.metrics == nil {
		return r.llm.Complete(ctx, req)
	}
	start := time.Now()
	resp, err := r.llm.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observe.ObserveSince(ctx, r.metrics.LLMDuration, start, status)
	return resp, err
}

// match validates the model reply against the directory.
func (r *Resolver) match(ctx context.Context, content string, dir Directory) (types.Contact, error) {
	var a answer
	if err := llm.DecodeJSON(content, &a); err != nil {
		observe.Logger(ctx).Debug("resolver: unparseable reply", "err", err)
		return types.Contact{}, fmt.Errorf("%w: %w", ErrNoMatch, err)
	}
	if a.Name == nil || a.Address == nil {
		return types.Contact{}, fmt.Errorf("%w: model reported no match", ErrNoMatch)
	}

	name := directory.Normalize(*a.Name)
	if name == "" || strings.TrimSpace(*a.Address) == "" {
		return types.Contact{}, fmt.Errorf("%w: incomplete answer", ErrNoMatch)
	}
	addr, ok := dir.Lookup(name)
	if !ok {
		observe.Logger(ctx).Warn("resolver: model named unknown contact", "name", name)
		return types.Contact{}, fmt.Errorf("%w: %q is not in the directory", ErrNoMatch, name)
	}
	if !strings.EqualFold(addr, strings.TrimSpace(*a.Address)) {
		observe.Logger(ctx).Warn("resolver: address mismatch, using directory address",
			"name", name, "model_address", *a.Address, "address", addr)
	}
	return types.Contact{Name: name, Address: addr}, nil
}

func (r *Resolver) userMessage(utterance string, contacts []types.Contact) string {
	if r.matcher == nil {
		return utterance
	}
	names := make([]string, len(contacts))
	for i, c := range contacts {
		names[i] = c.Name
	}
	cands := r.matcher.Candidates(utterance, names)
	if len(cands) == 0 {
		return utterance
	}
	if len(cands) > maxHints {
		cands = cands[:maxHints]
	}
	hints := make([]string, len(cands))
	for i, c := range cands {
		hints[i] = c.Name
	}
	return fmt.Sprintf("Instruction: %s\n\nNames that sound similar to words in the instruction: %s",
		utterance, strings.Join(hints, ", "))
}

func buildSystemPrompt(contacts []types.Contact) string {
	var sb strings.Builder
	for _, c := range contacts {
		sb.WriteString(c.Name)
		sb.WriteString(": ")
		sb.WriteString(c.Address)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}
