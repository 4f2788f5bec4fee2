package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voxmail/pkg/provider/llm"
)

// ErrUnparsed is the [Result.Reason] of a reply that did not decode into a
// draft.
var ErrUnparsed = errors.New("compose: reply is not a subject/body object")

// Draft is an email ready for dispatch.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Result is the outcome of decoding a drafting reply. Exactly one of two
// variants holds: Parsed with a validated Draft, or unparsed with the raw
// text and the Reason it was rejected.
type Result struct {
	Draft  Draft
	Raw    string
	Parsed bool
	Reason error
}

// Email returns the draft to show and send. An unparsed reply becomes a
// draft with an empty subject and the raw text as body.
func (r Result) Email() Draft {
	if r.Parsed {
		return r.Draft
	}
	return Draft{Body: r.Raw}
}

// wire uses pointers so a missing field can be told apart from an empty one.
type wire struct {
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

// Decode validates raw as a drafting reply. Both fields must be present and
// the body must not be blank. Decode never fails; rejected replies come back
// unparsed.
func Decode(raw string) Result {
	var w wire
	if err := llm.DecodeJSON(raw, &w); err != nil {
		return Result{Raw: raw, Reason: fmt.Errorf("%w: %w", ErrUnparsed, err)}
	}
	switch {
	case w.Subject == nil:
		return Result{Raw: raw, Reason: fmt.Errorf("%w: missing subject", ErrUnparsed)}
	case w.Body == nil:
		return Result{Raw: raw, Reason: fmt.Errorf("%w: missing body", ErrUnparsed)}
	case strings.TrimSpace(*w.Body) == "":
		return Result{Raw: raw, Reason: fmt.Errorf("%w: empty body", ErrUnparsed)}
	}
	return Result{
		Draft:  Draft{Subject: strings.TrimSpace(*w.Subject), Body: strings.TrimSpace(*w.Body)},
		Raw:    raw,
		Parsed: true,
	}
}

// Signature is the closing block every email body must end with.
type Signature struct {
	SignOff string
	Name    string
	Phone   string
}

// DefaultSignOff is used when Signature.SignOff is empty.
const DefaultSignOff = "Kind Regards,"

// Block renders the signature as it must appear at the end of the body.
func (s Signature) Block() string {
	lines := []string{s.SignOff}
	if lines[0] == "" {
		lines[0] = DefaultSignOff
	}
	for _, l := range []string{s.Name, s.Phone} {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
