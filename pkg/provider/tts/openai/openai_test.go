package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxmail/pkg/provider/tts/openai"
)

func TestSynthesize_SendsParamsAndReturnsAudio(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithVoice("nova"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	speech, err := p.Synthesize(context.Background(), "Here is your summary.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(speech.Data) != "ID3-fake-mp3" || speech.Format != "mp3" {
		t.Errorf("speech = %q (%s)", speech.Data, speech.Format)
	}
	if body["input"] != "Here is your summary." {
		t.Errorf("input = %v", body["input"])
	}
	if body["voice"] != "nova" || body["model"] != openai.DefaultModel {
		t.Errorf("voice/model = %v/%v", body["voice"], body["model"])
	}
}

func TestSynthesize_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice"}}`))
	}))
	defer srv.Close()

	if _, err := openai.New("", ""); err == nil {
		t.Error("expected error for empty api key")
	}
	p, _ := openai.New("sk-test", "tts-1", openai.WithBaseURL(srv.URL+"/v1/"))
	if _, err := p.Synthesize(context.Background(), ""); err == nil {
		t.Error("expected error for empty text")
	}
	if _, err := p.Synthesize(context.Background(), "hi"); err == nil {
		t.Error("expected error for HTTP 400")
	}
}
