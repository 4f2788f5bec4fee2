package smtp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxmail/pkg/provider/mail"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		host    string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults", host: "smtp.example.com"},
		{name: "opportunistic", host: "smtp.example.com", opts: []Option{WithTLS(TLSOpportunistic)}},
		{name: "empty host", host: "", wantErr: true},
		{name: "bad tls", host: "smtp.example.com", opts: []Option{WithTLS("sometimes")}, wantErr: true},
		{name: "bad port", host: "smtp.example.com", opts: []Option{WithPort(70000)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.host, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildMsg_MultipartAlternative(t *testing.T) {
	t.Parallel()

	m, err := buildMsg(mail.Message{
		From:    "assistant@example.com",
		To:      "alice@x.com",
		ToName:  "alice",
		Subject: "Meeting Update",
		Plain:   "Hi Alice,\n\nThe meeting moved to 3pm.",
		HTML:    "<p>Hi Alice,</p><p>The meeting moved to 3pm.</p>",
	})
	if err != nil {
		t.Fatalf("buildMsg: %v", err)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"multipart/alternative", "text/plain", "text/html", "Subject: Meeting Update", "alice@x.com"} {
		if !strings.Contains(raw, want) {
			t.Errorf("rendered message missing %q", want)
		}
	}
}

func TestBuildMsg_InvalidAddress(t *testing.T) {
	t.Parallel()

	if _, err := buildMsg(mail.Message{From: "not an address", To: "alice@x.com"}); err == nil {
		t.Error("expected error for invalid from address")
	}
	if _, err := buildMsg(mail.Message{From: "a@example.com", To: "@@"}); err == nil {
		t.Error("expected error for invalid to address")
	}
}

func TestDeliver_ConnectionRefusedWrapsErrTransport(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr, err := New("127.0.0.1", WithPort(port), WithTLS(TLSNone), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = tr.Deliver(context.Background(), mail.Message{
		From: "assistant@example.com", To: "alice@x.com", Subject: "s", Plain: "b",
	})
	if !errors.Is(err, mail.ErrTransport) {
		t.Fatalf("Deliver error = %v, want ErrTransport", err)
	}
}
