// Package mail defines the Transport interface for outgoing email delivery.
package mail

import (
	"context"
	"errors"
)

// ErrTransport wraps every error returned by a Transport.
var ErrTransport = errors.New("mail transport failed")

// Message is a fully composed email with a plain-text body and an HTML
// alternative carrying the same text.
type Message struct {
	From    string
	To      string
	ToName  string
	Subject string
	Plain   string
	HTML    string
}

// Transport hands a composed message to a mail server.
type Transport interface {
	// Deliver sends msg synchronously. Implementations must wrap failures in
	// ErrTransport.
	Deliver(ctx context.Context, msg Message) error
}
