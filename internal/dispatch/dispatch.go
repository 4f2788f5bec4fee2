// Package dispatch hands finished drafts to a mail transport and reports the
// outcome as a [Result]. Transport failures never escape as errors.
package dispatch

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/MrWong99/voxmail/internal/compose"
	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/pkg/provider/mail"
	"github.com/MrWong99/voxmail/pkg/types"
)

// Result is the delivery outcome. Detail is never empty.
type Result struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail"`
}

// Option is a functional option for configuring a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics records delivery latency and failures on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher is safe for concurrent use if its transport is.
type Dispatcher struct {
	transport mail.Transport
	from      string
	metrics   *observe.Metrics
}

// New returns a Dispatcher that sends from the given address.
func New(t mail.Transport, from string, opts ...Option) *Dispatcher {
	d := &Dispatcher{transport: t, from: from}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Send delivers draft to the recipient with one synchronous transport call.
func (d *Dispatcher) Send(ctx context.Context, draft compose.Draft, to types.Contact) Result {
	if strings.TrimSpace(to.Address) == "" {
		return Result{Detail: "no recipient address"}
	}

	msg := mail.Message{
		From:    d.from,
		To:      to.Address,
		ToName:  to.Name,
		Subject: draft.Subject,
		Plain:   draft.Body,
		HTML:    RenderHTML(draft.Body),
	}

	start := time.Now()
	err := d.transport.Deliver(ctx, msg)
	if d.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			d.metrics.RecordProviderError(ctx, "mail", "transport")
		}
		observe.ObserveSince(ctx, d.metrics.MailDuration, start, status)
	}

	if err != nil {
		observe.Logger(ctx).Warn("dispatch: delivery failed", "to", to.Address, "err", err)
		detail := err.Error()
		if detail == "" {
			detail = mail.ErrTransport.Error()
		}
		return Result{Detail: detail}
	}
	observe.Logger(ctx).Info("dispatch: delivered", "to", to.Address)
	return Result{Delivered: true, Detail: fmt.Sprintf("sent to %s (%s)", to.Name, to.Address)}
}

// RenderHTML converts a plain-text body into HTML carrying the same text.
// Blank lines separate paragraphs and single line breaks become <br>.
func RenderHTML(plain string) string {
	plain = strings.ReplaceAll(plain, "\r\n", "\n")
	var sb strings.Builder
	for _, para := range strings.Split(plain, "\n\n") {
		para = strings.Trim(para, "\n")
		if strings.TrimSpace(para) == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, l := range lines {
			lines[i] = html.EscapeString(l)
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.Join(lines, "<br>\n"))
		sb.WriteString("</p>\n")
	}
	return sb.String()
}
