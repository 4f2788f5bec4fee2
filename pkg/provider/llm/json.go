package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotJSON is returned by [DecodeJSON] when the content is not a single
// JSON object.
var ErrNotJSON = errors.New("llm: reply is not a JSON object")

// DecodeJSON parses a JSON-mode reply into v. Markdown code fences
// (```json ... ```) that some models wrap around their output are removed
// first. Anything after the first JSON value is rejected.
func DecodeJSON(content string, v any) error {
	cleaned := StripCodeFence(content)
	if !strings.HasPrefix(cleaned, "{") {
		return ErrNotJSON
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrNotJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing content after object", ErrNotJSON)
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code fence and whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
