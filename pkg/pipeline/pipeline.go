// Package pipeline ingests inbound messages and delivers outbound ones.
//
// A poll cycle fetches unread messages, drops duplicates and senders outside
// the allowlist, records per-conversation bookkeeping, offers the text to the
// sender's pending expectations and finally sweeps expired expectations. The
// cycle returns the resulting domain events; dispatching them is up to the
// caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/reply"
	"github.com/aretw0/parley/pkg/session"
)

// DefaultInterval is the poll period used by Run when none is given.
const DefaultInterval = 30 * time.Second

// Pipeline is safe for concurrent use; poll cycles never overlap.
type Pipeline struct {
	transport ports.MessageTransport
	contacts  *contacts.Registry
	sessions  *session.Manager
	expect    *expect.Engine

	allow  map[string]struct{}
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	clock  func() time.Time

	ring *Ring

	cycle  sync.Mutex
	reauth bool
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger configures a logger for the Pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock sets the time source for bookkeeping and expiry.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithAllowlist restricts ingestion to the given phones. An empty list
// disables the filter.
func WithAllowlist(phones ...string) Option {
	return func(p *Pipeline) {
		if len(phones) == 0 {
			p.allow = nil
			return
		}
		p.allow = make(map[string]struct{}, len(phones))
		for _, ph := range phones {
			p.allow[p.contacts.Normalizer().Canonical(ph)] = struct{}{}
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Pipeline) {
		p.hooks = hooks
	}
}

// WithDedupCapacity bounds the dedup window.
func WithDedupCapacity(n int) Option {
	return func(p *Pipeline) {
		p.ring = NewRing(n)
	}
}

// New wires a pipeline.
func New(transport ports.MessageTransport, registry *contacts.Registry, sessions *session.Manager, engine *expect.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		transport: transport,
		contacts:  registry,
		sessions:  sessions,
		expect:    engine,
		logger:    logging.NewNop(),
		clock:     time.Now,
		ring:      NewRing(DefaultDedupCapacity),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Restore loads the persisted dedup window.
func (p *Pipeline) Restore(ctx context.Context) error {
	cur, err := p.sessions.Repository().LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ingest cursor: %w", err)
	}
	p.ring.Restore(cur.IDs)
	p.logger.Debug("Ingest cursor restored", "ids", p.ring.Len())
	return nil
}

// Allowed reports whether phone passes the allowlist.
func (p *Pipeline) Allowed(phone string) bool {
	if p.allow == nil {
		return true
	}
	_, ok := p.allow[phone]
	return ok
}

// Poll runs one ingestion cycle. A fetch failure skips the cycle without any
// state change and is returned.
func (p *Pipeline) Poll(ctx context.Context) ([]domain.Event, error) {
	p.cycle.Lock()
	defer p.cycle.Unlock()

	report := &domain.PollReport{Started: p.clock()}
	events, err := p.poll(ctx, report)
	report.Duration = p.clock().Sub(report.Started)
	report.Err = err
	p.hooks.Polled(ctx, report)
	return events, err
}

func (p *Pipeline) poll(ctx context.Context, report *domain.PollReport) ([]domain.Event, error) {
	if err := p.authenticate(ctx); err != nil {
		return nil, err
	}

	msgs, err := p.transport.FetchUnread(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			p.reauth = true
		}
		p.logger.Warn("Poll cycle skipped", "err", err)
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	report.Fetched = len(msgs)

	var events []domain.Event
	dirty := false
	for _, msg := range msgs {
		evs, recorded := p.ingest(ctx, msg)
		events = append(events, evs...)
		dirty = dirty || recorded
		for _, e := range evs {
			switch e.(type) {
			case *domain.MessageReceived:
				report.Received++
			case *domain.ReplyParsed:
				report.Parsed++
			}
		}
	}

	if dirty {
		if err := p.sessions.Repository().SaveCursor(ctx, domain.IngestCursor{IDs: p.ring.IDs()}); err != nil {
			p.logger.Warn("Failed to persist ingest cursor", "err", err)
		}
	}

	expired, err := p.sweep(ctx)
	if err != nil {
		p.logger.Warn("Expectation sweep failed", "err", err)
	}
	report.Expired = len(expired)
	events = append(events, expired...)

	return events, nil
}

func (p *Pipeline) authenticate(ctx context.Context) error {
	if !p.reauth {
		return nil
	}
	auth, ok := p.transport.(ports.Authenticator)
	if !ok {
		return nil
	}
	if err := auth.Authenticate(ctx); err != nil {
		p.logger.Warn("Re-authentication failed", "err", err)
		return fmt.Errorf("authenticate: %w", err)
	}
	p.reauth = false
	p.logger.Info("Transport re-authenticated")
	return nil
}

// ingest handles one message. The boolean reports whether the ID was
// recorded in the dedup window.
func (p *Pipeline) ingest(ctx context.Context, msg domain.InboundMessage) ([]domain.Event, bool) {
	if msg.ID == "" {
		p.logger.Debug("Dropping inbound message without ID", "phone", msg.Phone)
		return nil, false
	}
	if p.ring.Seen(msg.ID) {
		p.hooks.Skipped(ctx, msg, domain.SkipDuplicate)
		return nil, false
	}
	msg.Text = reply.Sanitize(msg.Text)

	phone := p.contacts.Normalizer().Canonical(msg.Phone)
	if !p.Allowed(phone) {
		p.logger.Debug("Ignoring message from phone outside the allowlist", "phone", phone, "message_id", msg.ID)
		p.hooks.Skipped(ctx, msg, domain.SkipNotAllowed)
		return nil, false
	}

	ref := domain.ConversationRef{Phone: phone}
	if c, ok := p.contacts.FindByPhone(phone); ok {
		ref.ContactID = c.ID
	}

	now := p.clock()
	received := msg.ReceivedAt
	if received.IsZero() {
		received = now
	}

	var (
		match     *domain.MatchResult
		duplicate bool
	)
	_, err := p.sessions.Update(ctx, ref, func(conv *domain.Conversation) error {
		if conv.Activity.LastInboundID == msg.ID {
			duplicate = true
			return session.ErrSkipSave
		}
		conv.Activity.LastInbound = msg.Text
		conv.Activity.LastInboundAt = received
		conv.Activity.LastInboundID = msg.ID
		match, _ = expect.TryMatch(conv, msg.Text, now)
		return nil
	})
	if err != nil {
		// Not recorded: the next cycle retries the message.
		p.logger.Warn("Failed to record inbound message", "message_id", msg.ID, "contact_id", ref.ContactID, "err", err)
		return nil, false
	}
	p.ring.Add(msg.ID)
	if duplicate {
		p.hooks.Skipped(ctx, msg, domain.SkipDuplicate)
		return nil, true
	}

	events := []domain.Event{&domain.MessageReceived{
		EventBase: domain.EventBase{Timestamp: received, Type: domain.EventMessageReceived},
		Phone:     phone,
		Text:      msg.Text,
		MessageID: msg.ID,
		ContactID: ref.ContactID,
	}}
	p.logger.Info("Message received", "message_id", msg.ID, "contact_id", ref.ContactID, "phone", phone)

	if match != nil {
		events = append(events, &domain.ReplyParsed{
			EventBase:   domain.EventBase{Timestamp: now, Type: domain.EventReplyParsed},
			Phone:       phone,
			ContactID:   ref.ContactID,
			MatchResult: *match,
		})
		p.logger.Info("Reply parsed", "key", match.Key, "kind", match.Kind, "contact_id", ref.ContactID)
	}

	for _, e := range events {
		p.hooks.Emit(ctx, e)
	}
	return events, true
}

func (p *Pipeline) sweep(ctx context.Context) ([]domain.Event, error) {
	now := p.clock()
	reaped, err := p.expect.SweepExpired(ctx, now)
	events := make([]domain.Event, 0, len(reaped))
	for _, x := range reaped {
		ev := &domain.ExpectationExpired{
			EventBase: domain.EventBase{Timestamp: now, Type: domain.EventExpectationExpired},
			Phone:     x.Ref.Phone,
			ContactID: x.Ref.ContactID,
			Key:       x.Expectation.Key,
		}
		p.hooks.Emit(ctx, ev)
		events = append(events, ev)
	}
	return events, err
}

// Sink receives the events of one poll cycle.
type Sink func(context.Context, []domain.Event)

// Run polls every interval until ctx is canceled. Failed cycles are logged
// and retried on the next tick. The first cycle runs immediately.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration, sink Sink) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Polling started", "interval", interval)
	for {
		if events, err := p.Poll(ctx); err == nil && len(events) > 0 && sink != nil {
			sink(ctx, events)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("Polling stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
