package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// MessageTransport talks to the SMS provider.
// Implementations own their session and their timeouts.
type MessageTransport interface {
	// FetchUnread returns inbound messages not yet seen by the provider session.
	// Returns domain.ErrAuthExpired when the session is stale and
	// domain.ErrTransportUnavailable on transient failures.
	FetchUnread(ctx context.Context) ([]domain.InboundMessage, error)

	// Send delivers one outbound part. Failures are reported as *domain.SendError.
	Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error)
}

// Authenticator is implemented by transports that can refresh their session.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}
