package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voxmail/internal/compose"
	"github.com/MrWong99/voxmail/internal/dispatch"
	"github.com/MrWong99/voxmail/internal/resilience"
	"github.com/MrWong99/voxmail/pkg/provider/mail"
	"github.com/MrWong99/voxmail/pkg/provider/mail/mock"
	"github.com/MrWong99/voxmail/pkg/types"
)

var alice = types.Contact{Name: "alice", Address: "alice@x.com"}

func TestSend_Delivered(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{}
	d := dispatch.New(tr, "me@voxmail.test")
	draft := compose.Draft{Subject: "Meeting Update", Body: "Hi Alice,\n\nMoved to 3pm.\n\nKind Regards,\nSam"}

	res := d.Send(context.Background(), draft, alice)
	if !res.Delivered || res.Detail != "sent to alice (alice@x.com)" {
		t.Fatalf("result = %+v", res)
	}
	if tr.CallCount() != 1 {
		t.Fatalf("deliveries = %d, want 1", tr.CallCount())
	}
	msg := tr.Last()
	if msg.From != "me@voxmail.test" || msg.To != "alice@x.com" || msg.ToName != "alice" {
		t.Errorf("envelope = %+v", msg)
	}
	if msg.Subject != draft.Subject || msg.Plain != draft.Body {
		t.Errorf("content = %q / %q", msg.Subject, msg.Plain)
	}
	if !strings.Contains(msg.HTML, "<p>Kind Regards,<br>\nSam</p>") {
		t.Errorf("html = %q", msg.HTML)
	}
}

func TestSend_TransportFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"auth", errors.New("535 authentication failed")},
		{"network", errors.New("dial tcp: connection refused")},
		{"empty message", errors.New("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := dispatch.New(&mock.Transport{Err: tt.err}, "me@voxmail.test")
			res := d.Send(context.Background(), compose.Draft{Subject: "s", Body: "b"}, alice)
			if res.Delivered {
				t.Fatal("Delivered = true, want false")
			}
			if res.Detail == "" {
				t.Error("Detail must not be empty")
			}
		})
	}
}

func TestSend_MissingAddress(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{}
	res := dispatch.New(tr, "me@voxmail.test").Send(context.Background(), compose.Draft{Body: "b"}, types.Contact{Name: "ghost"})
	if res.Delivered || res.Detail == "" {
		t.Errorf("result = %+v", res)
	}
	if tr.CallCount() != 0 {
		t.Errorf("deliveries = %d, want 0", tr.CallCount())
	}
}

func TestSend_OpenBreakerReportsImmediately(t *testing.T) {
	t.Parallel()

	inner := &mock.Transport{Err: errors.New("connection refused")}
	guarded := resilience.NewGuardedTransport(inner, resilience.BreakerConfig{MaxFailures: 1})
	d := dispatch.New(guarded, "me@voxmail.test")

	_ = d.Send(context.Background(), compose.Draft{Body: "b"}, alice)
	res := d.Send(context.Background(), compose.Draft{Body: "b"}, alice)
	if res.Delivered || !strings.Contains(res.Detail, resilience.ErrCircuitOpen.Error()) {
		t.Errorf("result = %+v, want open-circuit detail", res)
	}
	if !strings.Contains(res.Detail, mail.ErrTransport.Error()) {
		t.Errorf("detail %q should mention the transport failure", res.Detail)
	}
	if inner.CallCount() != 1 {
		t.Errorf("inner deliveries = %d, want 1", inner.CallCount())
	}
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Hello", "<p>Hello</p>\n"},
		{"a\nb", "<p>a<br>\nb</p>\n"},
		{"a\n\nb", "<p>a</p>\n<p>b</p>\n"},
		{"a\r\n\r\nb", "<p>a</p>\n<p>b</p>\n"},
		{"x < y & z", "<p>x &lt; y &amp; z</p>\n"},
		{"a\n\n\n\nb", "<p>a</p>\n<p>b</p>\n"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := dispatch.RenderHTML(tt.in); got != tt.want {
			t.Errorf("RenderHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
