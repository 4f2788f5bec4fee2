// Package mock provides a test double for mail.Transport.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/voxmail/pkg/provider/mail"
)

// Transport is a mock implementation of mail.Transport.
type Transport struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every Deliver call wrapped in
	// mail.ErrTransport.
	Err error

	// Sent records every message passed to Deliver, including failed ones.
	Sent []mail.Message
}

var _ mail.Transport = (*Transport)(nil)

// Deliver records msg and returns Err.
func (t *Transport) Deliver(_ context.Context, msg mail.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent = append(t.Sent, msg)
	if t.Err != nil {
		return fmt.Errorf("%w: %w", mail.ErrTransport, t.Err)
	}
	return nil
}

// CallCount returns the number of Deliver calls made so far.
func (t *Transport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Sent)
}

// Last returns the most recent message, or the zero value.
func (t *Transport) Last() mail.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Sent) == 0 {
		return mail.Message{}
	}
	return t.Sent[len(t.Sent)-1]
}
