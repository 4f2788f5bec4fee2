package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxmail/internal/compose"
	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/dispatch"
	"github.com/MrWong99/voxmail/internal/history"
	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/internal/pipeline"
	"github.com/MrWong99/voxmail/internal/resolver"
	"github.com/MrWong99/voxmail/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxmail/pkg/provider/llm/mock"
	mailmock "github.com/MrWong99/voxmail/pkg/provider/mail/mock"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxmail/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/voxmail/pkg/provider/tts/mock"
	"github.com/MrWong99/voxmail/pkg/types"
)

const draftJSON = `{"subject":"Meeting Update","body":"Hi Alice,\n\nThe meeting moved to 3pm.\n\nKind Regards,\nSam Doe\n+1 555 0100"}`

var audio = stt.Audio{Data: []byte("RIFF....WAVE"), Format: "wav"}

// harness bundles a pipeline with its mocks.
type harness struct {
	p    *pipeline.Pipeline
	stt  *sttmock.Provider
	llm  *llmmock.Provider
	mail *mailmock.Transport
	tts  *ttsmock.Provider
	dir  *directory.Directory
	hist *history.History
}

func newHarness(t *testing.T, contacts []types.Contact, opts ...pipeline.Option) *harness {
	t.Helper()
	dir, err := directory.Load(context.Background(), directory.NewMemStorage(contacts...))
	if err != nil {
		t.Fatalf("directory.Load: %v", err)
	}
	h := &harness{
		stt:  &sttmock.Provider{},
		llm:  &llmmock.Provider{},
		mail: &mailmock.Transport{},
		tts:  &ttsmock.Provider{},
		dir:  dir,
		hist: history.New(),
	}
	sig := compose.Signature{Name: "Sam Doe", Phone: "+1 555 0100"}
	h.p, err = pipeline.New(pipeline.Deps{
		STT:        h.stt,
		TTS:        h.tts,
		Resolver:   resolver.New(h.llm),
		Generator:  compose.New(h.llm, compose.WithSignature(sig)),
		Dispatcher: dispatch.New(h.mail, "sam@voxmail.test"),
		Directory:  h.dir,
		History:    h.hist,
	}, append([]pipeline.Option{pipeline.WithIDGenerator(func() string { return "inv-1" })}, opts...)...)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return h
}

var alice = []types.Contact{{Name: "alice", Address: "alice@x.com"}}

func TestEmail_Delivered(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alice)
	h.stt.Text = "email alice and tell her the meeting moved to 3pm"
	h.llm.Responses = []string{`{"name":"alice","address":"alice@x.com"}`, draftJSON}

	res := h.p.Email(context.Background(), audio)

	if res.Subject != "Meeting Update" {
		t.Errorf("subject = %q", res.Subject)
	}
	if !strings.HasSuffix(res.Body, "Kind Regards,\nSam Doe\n+1 555 0100") {
		t.Errorf("body = %q", res.Body)
	}
	if res.Status != "Email successfully sent to alice (alice@x.com)." {
		t.Errorf("status = %q", res.Status)
	}
	if !res.Delivered || res.InvocationID != "inv-1" || res.Utterance != h.stt.Text {
		t.Errorf("result = %+v", res)
	}
	if h.hist.Len() != 2 {
		t.Fatalf("history length = %d, want 2", h.hist.Len())
	}
	turns := h.hist.Turns()
	if turns[0].Content != h.stt.Text || turns[1].Content != draftJSON {
		t.Errorf("turns = %+v, want utterance and raw reply", turns)
	}
	if h.mail.CallCount() != 1 || h.mail.Last().To != "alice@x.com" {
		t.Errorf("mail = %+v", h.mail.Sent)
	}
}

func TestEmail_RecipientNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.stt.Text = "email bob about the party"

	res := h.p.Email(context.Background(), audio)

	if res.Subject != "" || res.Body != "" || res.Delivered {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasPrefix(res.Status, "Recipient not found") {
		t.Errorf("status = %q", res.Status)
	}
	if h.llm.CallCount() != 0 {
		t.Errorf("generation calls = %d, want 0", h.llm.CallCount())
	}
	if h.hist.Len() != 0 {
		t.Errorf("history length = %d, want 0", h.hist.Len())
	}
	if h.mail.CallCount() != 0 {
		t.Errorf("deliveries = %d, want 0", h.mail.CallCount())
	}
}

func TestEmail_ModelReportsNoMatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alice)
	h.stt.Text = "email zed"
	h.llm.Fallback = `{"name":null,"address":null}`

	res := h.p.Email(context.Background(), audio)
	if res.Status != pipeline.StatusNoRecipient {
		t.Errorf("status = %q", res.Status)
	}
	if h.llm.CallCount() != 1 || h.hist.Len() != 0 {
		t.Errorf("calls = %d, history = %d", h.llm.CallCount(), h.hist.Len())
	}
}

func TestEmail_DispatchFailureStillRecordsHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alice)
	h.stt.Text = "email alice hello"
	h.llm.Responses = []string{`{"name":"alice","address":"alice@x.com"}`, draftJSON}
	h.mail.Err = errors.New("535 authentication failed")

	res := h.p.Email(context.Background(), audio)

	if res.Delivered {
		t.Error("Delivered = true")
	}
	if !strings.HasPrefix(res.Status, "Email not sent: ") || !strings.Contains(res.Status, "535") {
		t.Errorf("status = %q", res.Status)
	}
	if res.Subject != "Meeting Update" || res.Body == "" {
		t.Errorf("draft should still be shown: %+v", res)
	}
	if h.hist.Len() != 2 {
		t.Errorf("history length = %d, want 2", h.hist.Len())
	}
}

func TestEmail_UnparsedDraftUsesRawText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alice)
	h.stt.Text = "email alice hello"
	raw := "Hi Alice, just saying hello."
	h.llm.Responses = []string{`{"name":"alice","address":"alice@x.com"}`, raw}

	res := h.p.Email(context.Background(), audio)

	if res.Subject != "" || res.Body != raw {
		t.Errorf("subject/body = %q / %q", res.Subject, res.Body)
	}
	if !res.Delivered || h.mail.Last().Plain != raw {
		t.Errorf("result = %+v", res)
	}
}

func TestEmail_TranscriptionFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alice)
	h.stt.Err = errors.New("whisper unavailable")

	res := h.p.Email(context.Background(), audio)

	if res.Status != "Transcription failed: whisper unavailable" {
		t.Errorf("status = %q", res.Status)
	}
	if h.llm.CallCount() != 0 || h.mail.CallCount() != 0 || h.hist.Len() != 0 {
		t.Error("no stage after transcription may run")
	}
}

func TestEmail_ResolverGenerationErrorIsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alice)
	h.llm.Err = errors.New("rate limited")

	res := h.p.EmailText(context.Background(), "email alice hello")
	if res.Status != pipeline.StatusNoRecipient {
		t.Errorf("status = %q", res.Status)
	}
	if h.llm.CallCount() != 1 || h.hist.Len() != 0 {
		t.Errorf("calls = %d, history = %d", h.llm.CallCount(), h.hist.Len())
	}
}

func TestEmailText_DraftGenerationFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alice)
	failing := &failAfter{ok: `{"name":"alice","address":"alice@x.com"}`, err: errors.New("rate limited")}
	p, err := pipeline.New(pipeline.Deps{
		STT:        h.stt,
		Resolver:   resolver.New(failing),
		Generator:  compose.New(failing),
		Dispatcher: dispatch.New(h.mail, "sam@voxmail.test"),
		Directory:  h.dir,
		History:    h.hist,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	res := p.EmailText(context.Background(), "email alice hello")

	if !strings.HasPrefix(res.Status, "Email could not be drafted: ") || !strings.Contains(res.Status, "rate limited") {
		t.Errorf("status = %q", res.Status)
	}
	if h.mail.CallCount() != 0 || h.hist.Len() != 0 {
		t.Errorf("deliveries = %d, history = %d", h.mail.CallCount(), h.hist.Len())
	}
	if res.InvocationID == "" {
		t.Error("invocation ID should default to a UUID")
	}
}

func TestAssist_RepliesAndSpeaks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	if err := h.hist.Record("assistant", "I went for a run and read for ten minutes", "Great, both logged."); err != nil {
		t.Fatal(err)
	}
	h.stt.Text = "remind me what habits I logged today"
	h.llm.Fallback = "Today you logged a run and ten minutes of reading."

	res := h.p.Assist(context.Background(), audio)

	if res.Reply != h.llm.Fallback {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.Speech == nil || string(res.Speech.Data) != "mock-audio" {
		t.Errorf("speech = %+v", res.Speech)
	}
	if h.hist.Len() != 4 {
		t.Errorf("history length = %d, want 4", h.hist.Len())
	}
	req := h.llm.LastRequest()
	if len(req.Messages) != 3 || req.Messages[2].Content != h.stt.Text {
		t.Errorf("generation messages = %+v, want history + utterance", req.Messages)
	}
	if len(h.tts.Texts) != 1 || h.tts.Texts[0] != res.Reply {
		t.Errorf("synthesized = %q", h.tts.Texts)
	}
}

func TestAssist_SynthesisFailureKeepsText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.stt.Text = "how am I doing"
	h.llm.Fallback = "You are on a five day streak."
	h.tts.Err = errors.New("tts down")

	res := h.p.Assist(context.Background(), audio)

	if res.Reply != "You are on a five day streak." || res.Speech != nil {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.Status, "tts down") {
		t.Errorf("status = %q", res.Status)
	}
	if h.hist.Len() != 2 {
		t.Errorf("history length = %d, want 2", h.hist.Len())
	}
}

func TestAssist_GenerationFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.stt.Text = "how am I doing"
	h.llm.Err = errors.New("rate limited")

	res := h.p.Assist(context.Background(), audio)

	if res.Reply != "" || res.Speech != nil || !strings.Contains(res.Status, "rate limited") {
		t.Errorf("result = %+v", res)
	}
	if h.tts.CallCount() != 0 || h.hist.Len() != 0 {
		t.Errorf("tts calls = %d, history = %d", h.tts.CallCount(), h.hist.Len())
	}
}

func TestAssist_EmptyTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.stt.Text = "   "

	res := h.p.Assist(context.Background(), audio)
	if !strings.HasPrefix(res.Status, "Transcription failed") {
		t.Errorf("status = %q", res.Status)
	}
	if h.llm.CallCount() != 0 {
		t.Errorf("generation calls = %d, want 0", h.llm.CallCount())
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(pipeline.Deps{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"speech-to-text", "resolver", "generator", "dispatcher", "directory", "history"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConcurrentRunsKeepPairsTogether(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.llm.Fallback = "ok"

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.p.AssistText(context.Background(), "ping")
		}()
	}
	wg.Wait()

	turns := h.hist.Turns()
	if len(turns) != 16 {
		t.Fatalf("turns = %d, want 16", len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != types.RoleUser || turns[i+1].Role != types.RoleAssistant {
			t.Fatalf("turn %d out of order: %+v", i, turns[i:i+2])
		}
	}
}

func TestMetrics_RecordsOutcome(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, nil, pipeline.WithMetrics(m))
	h.stt.Text = "email bob"
	h.p.Email(context.Background(), audio)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "voxmail.pipeline.runs" {
				continue
			}
			sum := met.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				if v.AsString() == pipeline.OutcomeNoRecipient && dp.Value == 1 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("no_recipient run not recorded")
	}
}

// failAfter answers the first call with ok and fails every later call.
type failAfter struct {
	mu    sync.Mutex
	calls int
	ok    string
	err   error
}

func (f *failAfter) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return &llm.CompletionResponse{Content: f.ok}, nil
	}
	return nil, f.err
}
