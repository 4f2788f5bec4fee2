package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxmail/pkg/provider/stt"
	"github.com/MrWong99/voxmail/pkg/provider/stt/openai"
)

func TestNew_EmptyKey(t *testing.T) {
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe_UploadsFileAndModel(t *testing.T) {
	var model, filename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		model = r.FormValue("model")
		if _, hdr, err := r.FormFile("file"); err == nil {
			filename = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" remind me what habits I logged today "}`)
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("ID3..."), Format: "mp3"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "remind me what habits I logged today" {
		t.Errorf("text = %q", text)
	}
	if model != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", model)
	}
	if filename != "audio.mp3" {
		t.Errorf("filename = %q, want audio.mp3", filename)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"))

	if _, err := p.Transcribe(context.Background(), stt.Audio{}); !errors.Is(err, stt.ErrTranscription) {
		t.Errorf("empty audio: err = %v, want ErrTranscription", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("RIFF")}); !errors.Is(err, stt.ErrTranscription) {
		t.Errorf("http 401: err = %v, want ErrTranscription", err)
	}
}
