// Package api is the HTTP presentation layer of voxmail.
//
// Routes:
//
//	POST   /v1/email            audio body (or {"text": ...}) → EmailResult
//	POST   /v1/assistant        audio body (or {"text": ...}) → reply + base64 speech
//	GET    /v1/contacts         list contacts
//	POST   /v1/contacts         {"name", "address"} → 201
//	DELETE /v1/contacts/{name}  → 204
//	GET    /v1/history          recorded turns
//	DELETE /v1/history          clear the history
//	GET    /v1/ws               WebSocket: binary audio or text in, JSON results out
//
// Audio bodies are typed by Content-Type (audio/wav, audio/mpeg, audio/webm,
// audio/ogg, audio/mp4) or by the "format" query parameter.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/history"
	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/internal/pipeline"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
	"github.com/MrWong99/voxmail/pkg/types"
)

// DefaultMaxAudioBytes bounds request bodies when no limit is configured.
const DefaultMaxAudioBytes = 25 << 20

// Runner is the pipeline surface the API drives.
type Runner interface {
	Email(ctx context.Context, audio stt.Audio) pipeline.EmailResult
	EmailText(ctx context.Context, utterance string) pipeline.EmailResult
	Assist(ctx context.Context, audio stt.Audio) pipeline.AssistantResult
	AssistText(ctx context.Context, utterance string) pipeline.AssistantResult
	Directory() *directory.Directory
	History() *history.History
}

var _ Runner = (*pipeline.Pipeline)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithMaxAudioBytes caps request bodies and WebSocket messages.
func WithMaxAudioBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxAudio = n
		}
	}
}

// Server serves the voxmail API.
type Server struct {
	run      Runner
	maxAudio int64
}

// New returns a Server driving run.
func New(run Runner, opts ...Option) *Server {
	s := &Server{run: run, maxAudio: DefaultMaxAudioBytes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds every API route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/email", s.handleEmail)
	mux.HandleFunc("POST /v1/assistant", s.handleAssistant)
	mux.HandleFunc("GET /v1/contacts", s.handleListContacts)
	mux.HandleFunc("POST /v1/contacts", s.handleAddContact)
	mux.HandleFunc("DELETE /v1/contacts/{name}", s.handleRemoveContact)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/history", s.handleResetHistory)
	mux.HandleFunc("GET /v1/ws", s.handleWS)
}

// AssistantResponse is the JSON shape of an assistant run. Audio is base64
// encoded by encoding/json.
type AssistantResponse struct {
	pipeline.AssistantResult
	Audio       []byte `json:"audio,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

func assistantResponse(res pipeline.AssistantResult) AssistantResponse {
	out := AssistantResponse{AssistantResult: res}
	if res.Speech != nil {
		out.Audio = res.Speech.Data
		out.AudioFormat = res.Speech.Format
	}
	return out
}

type textRequest struct {
	Text string `json:"text"`
}

// input is either a transcript or recorded audio.
type input struct {
	text   string
	audio  stt.Audio
	isText bool
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	in, err := s.readInput(w, r)
	if err != nil {
		writeError(w, inputStatus(err), err)
		return
	}
	if in.isText {
		writeJSON(w, http.StatusOK, s.run.EmailText(r.Context(), in.text))
		return
	}
	writeJSON(w, http.StatusOK, s.run.Email(r.Context(), in.audio))
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	in, err := s.readInput(w, r)
	if err != nil {
		writeError(w, inputStatus(err), err)
		return
	}
	var res pipeline.AssistantResult
	if in.isText {
		res = s.run.AssistText(r.Context(), in.text)
	} else {
		res = s.run.Assist(r.Context(), in.audio)
	}
	writeJSON(w, http.StatusOK, assistantResponse(res))
}

func (s *Server) handleListContacts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"contacts": s.run.Directory().List()})
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var c types.Contact
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode contact: %w", err))
		return
	}
	added, err := s.run.Directory().Add(r.Context(), c.Name, c.Address)
	if err != nil {
		writeError(w, contactStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := s.run.Directory().Remove(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, contactStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"turns": s.run.History().Turns()})
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	n := s.run.History().Reset()
	observe.Logger(r.Context()).Info("api: history reset", "turns", n)
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

var (
	errEmptyBody   = errors.New("request body is empty")
	errUnsupported = errors.New("unsupported audio format")
)

// readInput decodes a JSON transcript or reads an audio body.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (input, error) {
	body := http.MaxBytesReader(w, r.Body, s.maxAudio)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req textRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return input{}, fmt.Errorf("decode request: %w", err)
		}
		if strings.TrimSpace(req.Text) == "" {
			return input{}, errors.New("text must not be empty")
		}
		return input{text: req.Text, isText: true}, nil
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatFromMediaType(mediaType)
	}
	if format == "" {
		return input{}, fmt.Errorf("%w: %q", errUnsupported, mediaType)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return input{}, err
	}
	if len(data) == 0 {
		return input{}, errEmptyBody
	}
	return input{audio: stt.Audio{Data: data, Format: format}}, nil
}

func formatFromMediaType(mt string) string {
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/l16", "audio/pcm":
		return "pcm"
	}
	return ""
}

// inputStatus maps request decoding errors.
func inputStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupported):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadRequest
}

// contactStatus maps directory mutation errors. Anything without a sentinel
// is a storage failure.
func contactStatus(err error) int {
	switch {
	case errors.Is(err, directory.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, directory.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
