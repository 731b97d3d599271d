package memory

import (
	"context"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/google/uuid"
)

// Transport is a scripted ports.MessageTransport.
// Inbound messages queued with Deliver are returned by FetchUnread; the
// provider's unread list is not cleared, so the same messages are returned
// again on every fetch until Drain is called, mimicking a provider that
// re-delivers.
type Transport struct {
	mu      sync.Mutex
	inbox   []domain.InboundMessage
	sent    []domain.OutboundMessage
	fetchFn func() error
	sendFn  func(domain.OutboundMessage) error
	authN   int
}

// NewTransport creates an empty transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Deliver appends inbound messages in provider order.
func (t *Transport) Deliver(msgs ...domain.InboundMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, msgs...)
}

// Drain forgets every queued inbound message.
func (t *Transport) Drain() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = nil
}

// FailFetch makes FetchUnread return the error produced by fn (nil to succeed).
func (t *Transport) FailFetch(fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchFn = fn
}

// FailSend makes Send return the error produced by fn for a message.
func (t *Transport) FailSend(fn func(domain.OutboundMessage) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendFn = fn
}

// FetchUnread returns a copy of the queued inbound messages.
func (t *Transport) FetchUnread(ctx context.Context) ([]domain.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fetchFn != nil {
		if err := t.fetchFn(); err != nil {
			return nil, err
		}
	}
	return append([]domain.InboundMessage(nil), t.inbox...), nil
}

// Send records msg and returns a random message ID.
func (t *Transport) Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendFn != nil {
		if err := t.sendFn(msg); err != nil {
			return domain.SendResult{}, err
		}
	}
	t.sent = append(t.sent, msg)
	return domain.SendResult{MessageID: uuid.NewString()}, nil
}

// Authenticate counts re-authentications; it implements ports.Authenticator.
func (t *Transport) Authenticate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authN++
	return nil
}

// Authentications returns how many times Authenticate was called.
func (t *Transport) Authentications() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authN
}

// Sent returns every recorded outbound message.
func (t *Transport) Sent() []domain.OutboundMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.OutboundMessage(nil), t.sent...)
}
