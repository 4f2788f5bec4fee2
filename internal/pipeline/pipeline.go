// Package pipeline runs voice commands end to end.
//
// Two flows are supported:
//
//   - Email: Transcribe → Resolve recipient → Draft → Dispatch. An unresolved
//     recipient ends the run before drafting and leaves the history untouched.
//     Otherwise the utterance and the raw drafting reply are recorded once,
//     after dispatch, whether or not delivery succeeded.
//   - Assistant: Transcribe → Reply → Synthesize. The reply is recorded before
//     synthesis; a synthesis failure drops the audio but keeps the text.
//
// Every run returns a result value. External failures are turned into status
// text at the stage that caused them and are never returned as errors.
//
// The Pipeline owns the process-wide directory and history. Runs are
// serialised so concurrent callers queue instead of interleaving history
// writes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxmail/internal/compose"
	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/dispatch"
	"github.com/MrWong99/voxmail/internal/history"
	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/internal/resolver"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
	"github.com/MrWong99/voxmail/pkg/provider/tts"
	"github.com/MrWong99/voxmail/pkg/types"
)

// StatusNoRecipient is the email status when no contact could be resolved.
const StatusNoRecipient = "Recipient not found. Add the contact or try again."

// Run outcomes, used as the "outcome" metric attribute.
const (
	OutcomeSent                = "sent"
	OutcomeNotSent             = "not_sent"
	OutcomeNoRecipient         = "no_recipient"
	OutcomeTranscriptionFailed = "transcription_failed"
	OutcomeGenerationFailed    = "generation_failed"
	OutcomeReplied             = "replied"
	OutcomeSpeechFailed        = "speech_failed"
)

// EmailResult is the outcome of the email flow.
type EmailResult struct {
	InvocationID string `json:"invocation_id"`
	Utterance    string `json:"utterance"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	Status       string `json:"status"`
	Delivered    bool   `json:"delivered"`
}

// AssistantResult is the outcome of the assistant flow. Speech is nil when
// synthesis failed or was skipped.
type AssistantResult struct {
	InvocationID string        `json:"invocation_id"`
	Utterance    string        `json:"utterance"`
	Reply        string        `json:"reply"`
	Speech       *types.Speech `json:"-"`
	Status       string        `json:"status"`
}

// Deps are the collaborators of a Pipeline. STT, Resolver, Generator,
// Dispatcher, Directory and History are required. TTS may be nil, in which
// case the assistant flow returns text only.
type Deps struct {
	STT        stt.Provider
	TTS        tts.Provider
	Resolver   *resolver.Resolver
	Generator  *compose.Generator
	Dispatcher *dispatch.Dispatcher
	Directory  *directory.Directory
	History    *history.History
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithMetrics records stage latencies and run outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithIDGenerator replaces the invocation ID source. Default: random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	deps    Deps
	metrics *observe.Metrics
	newID   func() string

	// run serialises whole invocations.
	run sync.Mutex
}

// New validates deps and returns a Pipeline.
func New(deps Deps, opts ...Option) (*Pipeline, error) {
	var errs []error
	if deps.STT == nil {
		errs = append(errs, errors.New("speech-to-text provider is required"))
	}
	if deps.Resolver == nil {
		errs = append(errs, errors.New("resolver is required"))
	}
	if deps.Generator == nil {
		errs = append(errs, errors.New("generator is required"))
	}
	if deps.Dispatcher == nil {
		errs = append(errs, errors.New("dispatcher is required"))
	}
	if deps.Directory == nil {
		errs = append(errs, errors.New("directory is required"))
	}
	if deps.History == nil {
		errs = append(errs, errors.New("history is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{deps: deps, newID: uuid.NewString}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Directory returns the contact directory the pipeline resolves against.
func (p *Pipeline) Directory() *directory.Directory { return p.deps.Directory }

// History returns the shared conversation history.
func (p *Pipeline) History() *history.History { return p.deps.History }

// Email runs the email flow on recorded audio.
func (p *Pipeline) Email(ctx context.Context, audio stt.Audio) EmailResult {
	ctx, span, res := p.beginEmail(ctx)
	defer span.End()

	p.run.Lock()
	defer p.run.Unlock()

	text, err := p.transcribe(ctx, observe.FlowEmail, audio)
	if err != nil {
		res.Status = "Transcription failed: " + trimSentinel(err, stt.ErrTranscription)
		return p.finishEmail(ctx, span, res, OutcomeTranscriptionFailed)
	}
	return p.email(ctx, span, res, text)
}

// EmailText runs the email flow on an already transcribed instruction.
func (p *Pipeline) EmailText(ctx context.Context, utterance string) EmailResult {
	ctx, span, res := p.beginEmail(ctx)
	defer span.End()

	p.run.Lock()
	defer p.run.Unlock()

	return p.email(ctx, span, res, strings.TrimSpace(utterance))
}

func (p *Pipeline) beginEmail(ctx context.Context) (context.Context, trace.Span, EmailResult) {
	id := p.newID()
	ctx = observe.WithInvocationID(ctx, id)
	ctx, span := observe.StartSpan(ctx, "pipeline.email",
		trace.WithAttributes(attribute.String("invocation_id", id)))
	return ctx, span, EmailResult{InvocationID: id}
}

func (p *Pipeline) email(ctx context.Context, span trace.Span, res EmailResult, utterance string) EmailResult {
	res.Utterance = utterance
	if utterance == "" {
		res.Status = "Transcription failed: no speech recognised"
		return p.finishEmail(ctx, span, res, OutcomeTranscriptionFailed)
	}
	log := observe.Logger(ctx)

	log.Debug("pipeline: stage", "flow", observe.FlowEmail, "stage", "Resolving")
	recipient, err := p.resolve(ctx, utterance)
	if err != nil {
		log.Info("pipeline: recipient not resolved", "err", err)
		log.Debug("pipeline: stage", "flow", observe.FlowEmail, "stage", "Unresolved")
		res.Status = StatusNoRecipient
		return p.finishEmail(ctx, span, res, OutcomeNoRecipient)
	}
	log.Debug("pipeline: stage", "flow", observe.FlowEmail, "stage", "Resolved", "recipient", recipient.Name)

	log.Debug("pipeline: stage", "flow", observe.FlowEmail, "stage", "Generating")
	draft, err := p.draft(ctx, recipient, utterance)
	if err != nil {
		log.Warn("pipeline: drafting failed", "err", err)
		res.Status = "Email could not be drafted: " + err.Error()
		return p.finishEmail(ctx, span, res, OutcomeGenerationFailed)
	}
	email := draft.Email()
	res.Subject, res.Body = email.Subject, email.Body
	log.Debug("pipeline: stage", "flow", observe.FlowEmail, "stage", "Generated", "parsed", draft.Parsed)

	log.Debug("pipeline: stage", "flow", observe.FlowEmail, "stage", "Dispatching")
	sent := p.dispatch(ctx, email, recipient)
	log.Debug("pipeline: stage", "flow", observe.FlowEmail, "stage", "Dispatched", "delivered", sent.Delivered)

	if err := p.deps.History.Record(observe.FlowEmail, utterance, draft.Raw); err != nil {
		log.Warn("pipeline: history not updated", "err", err)
	}

	res.Delivered = sent.Delivered
	if sent.Delivered {
		res.Status = fmt.Sprintf("Email successfully sent to %s (%s).", recipient.Name, recipient.Address)
		return p.finishEmail(ctx, span, res, OutcomeSent)
	}
	res.Status = "Email not sent: " + sent.Detail
	return p.finishEmail(ctx, span, res, OutcomeNotSent)
}

func (p *Pipeline) finishEmail(ctx context.Context, span trace.Span, res EmailResult, outcome string) EmailResult {
	p.finish(ctx, span, observe.FlowEmail, outcome)
	return res
}

// Assist runs the assistant flow on recorded audio.
func (p *Pipeline) Assist(ctx context.Context, audio stt.Audio) AssistantResult {
	ctx, span, res := p.beginAssist(ctx)
	defer span.End()

	p.run.Lock()
	defer p.run.Unlock()

	text, err := p.transcribe(ctx, observe.FlowAssistant, audio)
	if err != nil {
		res.Status = "Transcription failed: " + trimSentinel(err, stt.ErrTranscription)
		p.finish(ctx, span, observe.FlowAssistant, OutcomeTranscriptionFailed)
		return res
	}
	return p.assist(ctx, span, res, text)
}

// AssistText runs the assistant flow on an already transcribed utterance.
func (p *Pipeline) AssistText(ctx context.Context, utterance string) AssistantResult {
	ctx, span, res := p.beginAssist(ctx)
	defer span.End()

	p.run.Lock()
	defer p.run.Unlock()

	return p.assist(ctx, span, res, strings.TrimSpace(utterance))
}

func (p *Pipeline) beginAssist(ctx context.Context) (context.Context, trace.Span, AssistantResult) {
	id := p.newID()
	ctx = observe.WithInvocationID(ctx, id)
	ctx, span := observe.StartSpan(ctx, "pipeline.assistant",
		trace.WithAttributes(attribute.String("invocation_id", id)))
	return ctx, span, AssistantResult{InvocationID: id}
}

func (p *Pipeline) assist(ctx context.Context, span trace.Span, res AssistantResult, utterance string) AssistantResult {
	res.Utterance = utterance
	if utterance == "" {
		res.Status = "Transcription failed: no speech recognised"
		p.finish(ctx, span, observe.FlowAssistant, OutcomeTranscriptionFailed)
		return res
	}
	log := observe.Logger(ctx)

	log.Debug("pipeline: stage", "flow", observe.FlowAssistant, "stage", "Generating")
	reply, err := p.reply(ctx, utterance)
	if err != nil {
		log.Warn("pipeline: reply failed", "err", err)
		res.Status = "Reply could not be generated: " + err.Error()
		p.finish(ctx, span, observe.FlowAssistant, OutcomeGenerationFailed)
		return res
	}
	res.Reply = reply
	log.Debug("pipeline: stage", "flow", observe.FlowAssistant, "stage", "Generated")

	if err := p.deps.History.Record(observe.FlowAssistant, utterance, reply); err != nil {
		log.Warn("pipeline: history not updated", "err", err)
	}

	if p.deps.TTS == nil || strings.TrimSpace(reply) == "" {
		res.Status = "Reply ready."
		p.finish(ctx, span, observe.FlowAssistant, OutcomeReplied)
		return res
	}

	log.Debug("pipeline: stage", "flow", observe.FlowAssistant, "stage", "Synthesizing")
	speech, err := p.synthesize(ctx, reply)
	if err != nil {
		log.Warn("pipeline: synthesis failed", "err", err)
		res.Status = "Reply ready; speech synthesis failed: " + err.Error()
		p.finish(ctx, span, observe.FlowAssistant, OutcomeSpeechFailed)
		return res
	}
	log.Debug("pipeline: stage", "flow", observe.FlowAssistant, "stage", "Synthesized")
	res.Speech = speech
	res.Status = "Reply ready."
	p.finish(ctx, span, observe.FlowAssistant, OutcomeReplied)
	return res
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, flow, outcome string) {
	span.SetAttributes(attribute.String("outcome", outcome))
	switch outcome {
	case OutcomeSent, OutcomeReplied, OutcomeNoRecipient:
		span.SetStatus(codes.Ok, "")
	default:
		span.SetStatus(codes.Error, outcome)
	}
	if p.metrics != nil {
		p.metrics.RecordPipelineRun(ctx, flow, outcome)
	}
	observe.Logger(ctx).Info("pipeline: run finished", "flow", flow, "outcome", outcome)
}

// ─── stages ──────────────────────────────────────────────────────────────────

func (p *Pipeline) transcribe(ctx context.Context, flow string, audio stt.Audio) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()

	start := time.Now()
	text, err := p.deps.STT.Transcribe(ctx, audio)
	p.observeStage(ctx, "stt", start, err)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, stt.ErrTranscription) {
			err = fmt.Errorf("%w: %w", stt.ErrTranscription, err)
		}
		return "", err
	}
	observe.Logger(ctx).Debug("pipeline: stage", "flow", flow, "stage", "Transcribed", "chars", len(text))
	return strings.TrimSpace(text), nil
}

func (p *Pipeline) resolve(ctx context.Context, utterance string) (types.Contact, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.resolve")
	defer span.End()
	c, err := p.deps.Resolver.Resolve(ctx, utterance, p.deps.Directory)
	if err != nil {
		span.SetAttributes(attribute.Bool("resolved", false))
	}
	return c, err
}

func (p *Pipeline) draft(ctx context.Context, recipient types.Contact, utterance string) (compose.Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.draft")
	defer span.End()
	res, err := p.deps.Generator.Draft(ctx, p.deps.History.Messages(), recipient, utterance)
	if err != nil {
		span.RecordError(err)
		p.countError(ctx, "llm", "draft")
	}
	span.SetAttributes(attribute.Bool("parsed", res.Parsed))
	return res, err
}

func (p *Pipeline) dispatch(ctx context.Context, draft compose.Draft, to types.Contact) dispatch.Result {
	ctx, span := observe.StartSpan(ctx, "pipeline.dispatch")
	defer span.End()
	res := p.deps.Dispatcher.Send(ctx, draft, to)
	span.SetAttributes(attribute.Bool("delivered", res.Delivered))
	return res
}

func (p *Pipeline) reply(ctx context.Context, utterance string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.reply")
	defer span.End()
	reply, err := p.deps.Generator.Reply(ctx, p.deps.History.Messages(), utterance)
	if err != nil {
		span.RecordError(err)
		p.countError(ctx, "llm", "reply")
	}
	return reply, err
}

func (p *Pipeline) synthesize(ctx context.Context, text string) (*types.Speech, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.synthesize")
	defer span.End()

	start := time.Now()
	speech, err := p.deps.TTS.Synthesize(ctx, text)
	p.observeStage(ctx, "tts", start, err)
	if err == nil && (speech == nil || len(speech.Data) == 0) {
		err = errors.New("empty audio")
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return speech, nil
}

func (p *Pipeline) observeStage(ctx context.Context, stage string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		p.metrics.RecordProviderError(ctx, stage, "call")
	}
	h := p.metrics.STTDuration
	if stage == "tts" {
		h = p.metrics.TTSDuration
	}
	observe.ObserveSince(ctx, h, start, status)
}

func (p *Pipeline) countError(ctx context.Context, stage, kind string) {
	if p.metrics != nil {
		p.metrics.RecordProviderError(ctx, stage, kind)
	}
}

// trimSentinel returns the message of err without the leading text of the
// sentinel it wraps, so statuses do not repeat the failure kind.
func trimSentinel(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return err.Error()
	}
	return msg
}
