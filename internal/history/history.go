// Package history keeps the conversation history shared by every pipeline
// invocation in the process. Turns are appended in user/assistant pairs and
// never edited; the only way to shrink the history is an explicit [History.Reset].
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxmail/pkg/types"
)

// Turn is one recorded utterance or reply.
type Turn struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

// entry is the JSON-lines record written to the log.
type entry struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Flow  string    `json:"flow,omitempty"`
	Turns []Turn    `json:"turns,omitempty"`
}

// Option configures a [History].
type Option func(*History)

// WithLog mirrors every exchange and reset to w as JSON lines. Write errors
// are logged and otherwise ignored; the in-memory history stays
// authoritative.
func WithLog(w io.Writer) Option {
	return func(h *History) { h.log = w }
}

// History is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []Turn
	log   io.Writer
}

// New returns an empty History.
func New(opts ...Option) *History {
	h := &History{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Record appends one user turn and one assistant turn together. flow labels
// the log entry only.
func (h *History) Record(flow, user, assistant string) error {
	if user == "" && assistant == "" {
		return errors.New("history: refusing to record an empty exchange")
	}
	pair := []Turn{
		{Role: types.RoleUser, Content: user},
		{Role: types.RoleAssistant, Content: assistant},
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, pair...)
	h.writeLog(entry{Event: "exchange", Flow: flow, Turns: pair})
	return nil
}

// Messages returns the history as generation service messages, oldest first.
func (h *History) Messages() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.turns))
	for i, t := range h.turns {
		out[i] = types.Message{Role: t.Role, Content: t.Content}
	}
	return out
}

// Turns returns a copy of every recorded turn.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Reset discards every turn and returns how many were dropped.
func (h *History) Reset() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.turns)
	h.turns = nil
	h.writeLog(entry{Event: "reset"})
	return n
}

// writeLog must be called with h.mu held.
func (h *History) writeLog(e entry) {
	if h.log == nil {
		return
	}
	e.Time = time.Now().UTC()
	data, err := json.Marshal(e)
	if err == nil {
		_, err = h.log.Write(append(data, '\n'))
	}
	if err != nil {
		slog.Warn("history: failed to write log", "err", fmt.Errorf("history: %w", err))
	}
}
