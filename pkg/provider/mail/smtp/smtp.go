// Package smtp provides a mail.Transport that submits messages to an SMTP
// server using github.com/wneessen/go-mail.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/MrWong99/voxmail/pkg/provider/mail"
)

var _ mail.Transport = (*Transport)(nil)

const (
	defaultPort    = 587
	defaultTimeout = 15 * time.Second
)

// TLS policies accepted by [WithTLS].
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// Option is a functional option for configuring a Transport.
type Option func(*Transport)

// WithPort sets the SMTP submission port. Defaults to 587.
func WithPort(port int) Option {
	return func(t *Transport) { t.port = port }
}

// WithAuth enables SMTP PLAIN authentication.
func WithAuth(username, password string) Option {
	return func(t *Transport) {
		t.username = username
		t.password = password
	}
}

// WithTLS sets the STARTTLS policy: "mandatory" (default), "opportunistic" or
// "none".
func WithTLS(policy string) Option {
	return func(t *Transport) { t.tls = policy }
}

// WithTimeout bounds dialing and each SMTP command.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// Transport delivers messages through one SMTP server. A new connection is
// made for every message.
type Transport struct {
	host     string
	port     int
	username string
	password string
	tls      string
	timeout  time.Duration
}

// New creates a Transport for host.
func New(host string, opts ...Option) (*Transport, error) {
	if host == "" {
		return nil, errors.New("smtp: host must not be empty")
	}
	t := &Transport{
		host:    host,
		port:    defaultPort,
		tls:     TLSMandatory,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(t)
	}
	if _, err := tlsPolicy(t.tls); err != nil {
		return nil, err
	}
	if t.port <= 0 || t.port > 65535 {
		return nil, fmt.Errorf("smtp: invalid port %d", t.port)
	}
	return t, nil
}

// Deliver implements mail.Transport.
func (t *Transport) Deliver(ctx context.Context, msg mail.Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", mail.ErrTransport, err)
	}
	client, err := t.client()
	if err != nil {
		return fmt.Errorf("%w: %w", mail.ErrTransport, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%w: smtp: send to %s: %w", mail.ErrTransport, msg.To, err)
	}
	return nil
}

func (t *Transport) client() (*gomail.Client, error) {
	policy, err := tlsPolicy(t.tls)
	if err != nil {
		return nil, err
	}
	opts := []gomail.Option{
		gomail.WithPort(t.port),
		gomail.WithTLSPolicy(policy),
		gomail.WithTimeout(t.timeout),
	}
	if t.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.username),
			gomail.WithPassword(t.password),
		)
	}
	c, err := gomail.NewClient(t.host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp: new client: %w", err)
	}
	return c, nil
}

// buildMsg converts msg into a multipart/alternative go-mail message.
func buildMsg(msg mail.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("smtp: from %q: %w", msg.From, err)
	}
	if msg.ToName != "" {
		if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
			return nil, fmt.Errorf("smtp: to %q: %w", msg.To, err)
		}
	} else if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp: to %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Plain)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case "", TLSMandatory:
		return gomail.TLSMandatory, nil
	case TLSOpportunistic:
		return gomail.TLSOpportunistic, nil
	case TLSNone:
		return gomail.NoTLS, nil
	default:
		return gomail.NoTLS, fmt.Errorf("smtp: unknown tls policy %q", name)
	}
}
