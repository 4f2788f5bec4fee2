package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
)

// wsRequest is a text frame on /v1/ws. Flow defaults to the "flow" query
// parameter of the connection.
type wsRequest struct {
	Flow string `json:"flow"`
	Text string `json:"text"`
}

// handleWS runs one pipeline invocation per inbound frame. Binary frames
// carry audio in the connection's "format" (default wav); text frames carry a
// JSON [wsRequest]. Every frame is answered with one JSON message.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	flow := r.URL.Query().Get("flow")
	if flow == "" {
		flow = observe.FlowAssistant
	}
	if !validFlow(flow) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown flow %q", flow))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "wav"
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxAudio)

	ctx := r.Context()
	log := observe.Logger(ctx)
	log.Info("api: websocket connected", "flow", flow, "format", format)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st == websocket.StatusNormalClosure || st == websocket.StatusGoingAway {
				log.Info("api: websocket closed")
			} else if !errors.Is(err, context.Canceled) {
				log.Warn("api: websocket read failed", "err", err)
			}
			return
		}

		reply := s.wsFrame(ctx, flow, format, typ, data)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			log.Warn("api: websocket write failed", "err", err)
			return
		}
	}
}

func (s *Server) wsFrame(ctx context.Context, flow, format string, typ websocket.MessageType, data []byte) any {
	if typ == websocket.MessageBinary {
		audio := stt.Audio{Data: data, Format: format}
		if flow == observe.FlowEmail {
			return s.run.Email(ctx, audio)
		}
		return assistantResponse(s.run.Assist(ctx, audio))
	}

	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorBody{Error: "decode frame: " + err.Error()}
	}
	if req.Flow == "" {
		req.Flow = flow
	}
	switch {
	case !validFlow(req.Flow):
		return errorBody{Error: fmt.Sprintf("unknown flow %q", req.Flow)}
	case req.Text == "":
		return errorBody{Error: "text must not be empty"}
	case req.Flow == observe.FlowEmail:
		return s.run.EmailText(ctx, req.Text)
	default:
		return assistantResponse(s.run.AssistText(ctx, req.Text))
	}
}

func validFlow(f string) bool {
	return f == observe.FlowEmail || f == observe.FlowAssistant
}
