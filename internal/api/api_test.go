package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxmail/internal/compose"
	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/dispatch"
	"github.com/MrWong99/voxmail/internal/history"
	"github.com/MrWong99/voxmail/internal/pipeline"
	"github.com/MrWong99/voxmail/internal/resolver"
	llmmock "github.com/MrWong99/voxmail/pkg/provider/llm/mock"
	mailmock "github.com/MrWong99/voxmail/pkg/provider/mail/mock"
	sttmock "github.com/MrWong99/voxmail/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/voxmail/pkg/provider/tts/mock"
	"github.com/MrWong99/voxmail/pkg/types"
)

type fixture struct {
	srv  *httptest.Server
	stt  *sttmock.Provider
	llm  *llmmock.Provider
	mail *mailmock.Transport
	p    *pipeline.Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir, err := directory.Load(context.Background(), directory.NewMemStorage(types.Contact{Name: "alice", Address: "alice@x.com"}))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{stt: &sttmock.Provider{}, llm: &llmmock.Provider{}, mail: &mailmock.Transport{}}
	f.p, err = pipeline.New(pipeline.Deps{
		STT:        f.stt,
		TTS:        &ttsmock.Provider{},
		Resolver:   resolver.New(f.llm),
		Generator:  compose.New(f.llm),
		Dispatcher: dispatch.New(f.mail, "me@voxmail.test"),
		Directory:  dir,
		History:    history.New(),
	})
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	New(f.p, opts...).Register(mux)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestEmail_Audio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stt.Text = "email alice that the meeting moved to 3pm"
	f.llm.Responses = []string{
		`{"name":"alice","address":"alice@x.com"}`,
		`{"subject":"Meeting Update","body":"Moved to 3pm.\n\nKind Regards,"}`,
	}

	resp, out := f.do(t, http.MethodPost, "/v1/email", "audio/mpeg", []byte("ID3fake"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if out["status"] != "Email successfully sent to alice (alice@x.com)." || out["delivered"] != true {
		t.Errorf("result = %v", out)
	}
	if got := f.stt.Last().Format; got != "mp3" {
		t.Errorf("audio format = %q, want mp3", got)
	}
}

func TestEmail_Text(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.llm.Fallback = `{"name":null,"address":null}`

	resp, out := f.do(t, http.MethodPost, "/v1/email", "application/json", []byte(`{"text":"email nobody"}`))
	if resp.StatusCode != http.StatusOK || out["status"] != pipeline.StatusNoRecipient {
		t.Errorf("status = %d, result = %v", resp.StatusCode, out)
	}
	if f.stt.CallCount() != 0 {
		t.Error("text input must skip transcription")
	}
}

func TestAssistant_ReturnsAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stt.Text = "what did I log today"
	f.llm.Fallback = "A run."

	resp, out := f.do(t, http.MethodPost, "/v1/assistant?format=webm", "application/octet-stream", []byte("webm"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if out["reply"] != "A run." || out["audio_format"] != "mp3" {
		t.Errorf("result = %v", out)
	}
	// "mock-audio" base64 encoded.
	if out["audio"] != "bW9jay1hdWRpbw==" {
		t.Errorf("audio = %v", out["audio"])
	}
}

func TestInputErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithMaxAudioBytes(16))
	tests := []struct {
		name, ct string
		body     []byte
		want     int
	}{
		{"unknown media type", "text/plain", []byte("hi"), http.StatusUnsupportedMediaType},
		{"empty body", "audio/wav", nil, http.StatusBadRequest},
		{"too large", "audio/wav", bytes.Repeat([]byte{0}, 64), http.StatusRequestEntityTooLarge},
		{"blank text", "application/json", []byte(`{"text":" "}`), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := f.do(t, http.MethodPost, "/v1/email", tt.ct, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%v)", resp.StatusCode, tt.want, out)
			}
			if out["error"] == nil {
				t.Error("error body missing")
			}
		})
	}
}

func TestContacts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, out := f.do(t, http.MethodPost, "/v1/contacts", "application/json", []byte(`{"name":" Bob ","address":"bob@y.org"}`))
	if resp.StatusCode != http.StatusCreated || out["name"] != "bob" {
		t.Fatalf("add = %d %v", resp.StatusCode, out)
	}

	steps := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/v1/contacts", `{"name":"BOB","address":"b@y.org"}`, http.StatusConflict},
		{http.MethodPost, "/v1/contacts", `{"name":"carol","address":""}`, http.StatusBadRequest},
		{http.MethodPost, "/v1/contacts", `{"name":"carol","email":"c@z"}`, http.StatusBadRequest},
		{http.MethodDelete, "/v1/contacts/bob", "", http.StatusNoContent},
		{http.MethodDelete, "/v1/contacts/bob", "", http.StatusNotFound},
	}
	for _, s := range steps {
		resp, out := f.do(t, s.method, s.path, "application/json", []byte(s.body))
		if resp.StatusCode != s.want {
			t.Errorf("%s %s %s = %d, want %d (%v)", s.method, s.path, s.body, resp.StatusCode, s.want, out)
		}
	}

	_, out = f.do(t, http.MethodGet, "/v1/contacts", "", nil)
	contacts, _ := out["contacts"].([]any)
	if len(contacts) != 1 {
		t.Errorf("contacts = %v, want only alice", out["contacts"])
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.llm.Fallback = "Sure."
	f.do(t, http.MethodPost, "/v1/assistant", "application/json", []byte(`{"text":"hi"}`))

	_, out := f.do(t, http.MethodGet, "/v1/history", "", nil)
	if turns, _ := out["turns"].([]any); len(turns) != 2 {
		t.Fatalf("turns = %v", out["turns"])
	}
	_, out = f.do(t, http.MethodDelete, "/v1/history", "", nil)
	if out["removed"] != float64(2) {
		t.Errorf("removed = %v", out["removed"])
	}
	if f.p.History().Len() != 0 {
		t.Error("history not cleared")
	}
}

func TestWebSocket(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stt.Text = "how am I doing"
	f.llm.Responses = []string{"Great.", `{"name":null,"address":null}`}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/ws?flow=assistant&format=ogg"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageBinary, []byte("OggS")); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatal(err)
	}
	if got["reply"] != "Great." || got["audio"] == nil {
		t.Errorf("binary frame reply = %v", got)
	}
	if got := f.stt.Last().Format; got != "ogg" {
		t.Errorf("format = %q", got)
	}

	if err := wsjson.Write(ctx, conn, map[string]string{"flow": "email", "text": "email zed"}); err != nil {
		t.Fatal(err)
	}
	got = nil
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != pipeline.StatusNoRecipient {
		t.Errorf("text frame reply = %v", got)
	}

	if err := wsjson.Write(ctx, conn, map[string]string{"flow": "fax", "text": "x"}); err != nil {
		t.Fatal(err)
	}
	got = nil
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatal(err)
	}
	if got["error"] == nil {
		t.Errorf("unknown flow reply = %v", got)
	}
}

func TestWebSocket_RejectsUnknownFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/v1/ws?flow=fax", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
