package expect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// Expired pairs a reaped expectation with its conversation.
type Expired struct {
	Ref         domain.ConversationRef
	Expectation domain.Expectation
}

// Engine applies expectation operations to stored conversations. Each call is
// one serialized update of one conversation record.
type Engine struct {
	sessions *session.Manager
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source for registration and expiry.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates an Engine over the session manager.
func NewEngine(sessions *session.Manager, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		logger:   logging.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register stores a new expectation for the conversation.
func (e *Engine) Register(ctx context.Context, ref domain.ConversationRef, p Prompt) (domain.Expectation, error) {
	if err := p.Validate(); err != nil {
		return domain.Expectation{}, err
	}

	var registered domain.Expectation
	_, err := e.sessions.Update(ctx, ref, func(conv *domain.Conversation) error {
		var err error
		registered, err = Register(conv, p, e.clock())
		return err
	})
	if err != nil {
		return domain.Expectation{}, err
	}

	e.logger.Debug("Expectation registered",
		"key", registered.Key,
		"kind", registered.Kind,
		"contact_id", ref.ContactID,
		"expires_at", registered.ExpiresAt,
	)
	return registered, nil
}

// Clear removes one key, or every key when key is empty. Clearing a key that
// is not pending is a no-op.
func (e *Engine) Clear(ctx context.Context, ref domain.ConversationRef, key string) ([]string, error) {
	var removed []string
	_, err := e.sessions.Update(ctx, ref, func(conv *domain.Conversation) error {
		removed = Clear(conv, key)
		if len(removed) == 0 {
			return session.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// TryMatch offers text to the conversation's expectations. The result is nil
// when nothing matched.
func (e *Engine) TryMatch(ctx context.Context, ref domain.ConversationRef, text string) (*domain.MatchResult, error) {
	var result *domain.MatchResult
	_, err := e.sessions.Update(ctx, ref, func(conv *domain.Conversation) error {
		res, ok := TryMatch(conv, text, e.clock())
		if !ok {
			return session.ErrSkipSave
		}
		result = res
		return nil
	})
	return result, err
}

// Pending returns the live expectations in registration order.
func (e *Engine) Pending(ctx context.Context, ref domain.ConversationRef) ([]domain.Expectation, error) {
	conv, err := e.sessions.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Live(conv, e.clock()), nil
}

// SweepExpired reaps expired expectations from every stored conversation.
// A failure on one conversation is logged and does not stop the sweep.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]Expired, error) {
	keys, err := e.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var out []Expired
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var reaped []domain.Expectation
		conv, err := e.sessions.UpdateExisting(ctx, key, func(conv *domain.Conversation) error {
			reaped = Sweep(conv, now)
			if len(reaped) == 0 {
				return session.ErrSkipSave
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			e.logger.Warn("Failed to sweep conversation", "key", key, "err", err)
			continue
		}
		for _, x := range reaped {
			e.logger.Debug("Expectation expired", "key", x.Key, "contact_id", conv.ContactID)
			out = append(out, Expired{Ref: conv.Ref(), Expectation: x})
		}
	}
	return out, nil
}
