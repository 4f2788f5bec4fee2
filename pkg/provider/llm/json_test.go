package llm

import (
	"errors"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  \n{\"a\":1}  ", `{"a":1}`},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type pair struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}

	var p pair
	if err := DecodeJSON("```json\n{\"subject\":\"Hi\",\"body\":\"There\"}\n```", &p); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if p.Subject != "Hi" || p.Body != "There" {
		t.Errorf("decoded = %+v", p)
	}

	bad := []string{
		"Sure! Here is your email.",
		`["subject","body"]`,
		`{"subject":"Hi"`,
		`{"subject":"Hi"} and some commentary`,
		"",
	}
	for _, in := range bad {
		var v pair
		if err := DecodeJSON(in, &v); !errors.Is(err, ErrNotJSON) {
			t.Errorf("DecodeJSON(%q) err = %v, want ErrNotJSON", in, err)
		}
	}
}
