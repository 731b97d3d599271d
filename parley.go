package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/events"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/phone"
	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
)

// Engine is the high-level entry point of the library. It wires the contact
// registry, conversation store, expectation engine and ingestion pipeline
// over one StateStore and one MessageTransport.
//
// Every operation addressing a conversation accepts a target: a contact ID,
// or a phone number in any accepted format.
type Engine struct {
	store     ports.StateStore
	transport ports.MessageTransport

	contacts *contacts.Registry
	sessions *session.Manager
	expect   *expect.Engine
	pipeline *pipeline.Pipeline
	broker   *events.Broker

	logger    *slog.Logger
	clock     func() time.Time
	hooks     domain.LifecycleHooks
	norm      phone.Normalizer
	allowlist []string
	locker    ports.DistributedLocker
	dedup     int
	interval  time.Duration
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithNormalizer sets the phone numbering plan (default: phone.NANP).
func WithNormalizer(n phone.Normalizer) Option {
	return func(e *Engine) {
		e.norm = n
	}
}

// WithAllowlist restricts ingestion to the given phones.
func WithAllowlist(phones ...string) Option {
	return func(e *Engine) {
		e.allowlist = phones
	}
}

// WithLocker enables distributed locking of conversations.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithDedupCapacity bounds the number of remembered message IDs.
func WithDedupCapacity(n int) Option {
	return func(e *Engine) {
		e.dedup = n
	}
}

// WithPollInterval sets the period used by Run.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// New wires an Engine. Call Start before using it.
func New(store ports.StateStore, transport ports.MessageTransport, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		transport: transport,
		logger:    logging.NewNop(),
		clock:     time.Now,
		norm:      phone.NANP,
		dedup:     pipeline.DefaultDedupCapacity,
		interval:  pipeline.DefaultInterval,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.broker = events.NewBroker(e.logger)
	e.contacts = contacts.NewRegistry(store,
		contacts.WithNormalizer(e.norm),
		contacts.WithLogger(e.logger),
	)

	sessionOpts := []session.Option{
		session.WithLogger(e.logger),
		session.WithClock(e.clock),
	}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(store, sessionOpts...)

	e.expect = expect.NewEngine(e.sessions,
		expect.WithLogger(e.logger),
		expect.WithClock(e.clock),
	)
	e.pipeline = pipeline.New(transport, e.contacts, e.sessions, e.expect,
		pipeline.WithLogger(e.logger),
		pipeline.WithClock(e.clock),
		pipeline.WithAllowlist(e.allowlist...),
		pipeline.WithLifecycleHooks(e.hooks),
		pipeline.WithDedupCapacity(e.dedup),
	)
	return e
}

// Start loads contacts and the ingest cursor from the store.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.contacts.Load(ctx); err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	if err := e.pipeline.Restore(ctx); err != nil {
		return err
	}
	e.logger.Info("Engine started", "contacts", len(e.contacts.List()), "version", strings.TrimSpace(Version))
	return nil
}

// Resolve turns a target into a conversation address. Known contact IDs and
// registered phones yield the contact; any other valid phone addresses an
// anonymous conversation.
func (e *Engine) Resolve(target string) (domain.ConversationRef, error) {
	target = strings.TrimSpace(target)
	if c, err := e.contacts.Resolve(target); err == nil {
		return domain.ConversationRef{ContactID: c.ID, Phone: c.Phone}, nil
	}
	if strings.HasPrefix(target, contacts.IDPrefix) {
		return domain.ConversationRef{}, fmt.Errorf("%w: %s", domain.ErrContactNotFound, target)
	}
	p, err := e.norm.Normalize(target)
	if err != nil {
		return domain.ConversationRef{}, err
	}
	if c, ok := e.contacts.FindByPhone(p); ok {
		return domain.ConversationRef{ContactID: c.ID, Phone: c.Phone}, nil
	}
	return domain.ConversationRef{Phone: p}, nil
}

// Contacts

// AddContact registers a new contact.
func (e *Engine) AddContact(ctx context.Context, name, rawPhone string) (domain.Contact, error) {
	return e.contacts.Add(ctx, name, rawPhone)
}

// UpdateContact changes name and/or phone of a contact.
func (e *Engine) UpdateContact(ctx context.Context, id string, ch contacts.Changes) (domain.Contact, error) {
	return e.contacts.Update(ctx, id, ch)
}

// DeleteContact removes a contact. Its conversation record is kept; use
// Forget to purge it.
func (e *Engine) DeleteContact(ctx context.Context, id string) (domain.Contact, error) {
	return e.contacts.Delete(ctx, id)
}

// ListContacts returns every contact sorted by ID.
func (e *Engine) ListContacts() []domain.Contact {
	return e.contacts.List()
}

// Contact returns one contact.
func (e *Engine) Contact(id string) (domain.Contact, error) {
	return e.contacts.Resolve(id)
}

// Messaging

// Send delivers content to the target: SMS, then MMS, then voice.
func (e *Engine) Send(ctx context.Context, target string, c pipeline.Content) ([]domain.Event, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	evs, err := e.pipeline.Send(ctx, ref, c)
	e.broker.Publish(ctx, evs)
	return evs, err
}

// Poll runs one ingestion cycle and publishes its events.
func (e *Engine) Poll(ctx context.Context) ([]domain.Event, error) {
	evs, err := e.pipeline.Poll(ctx)
	e.broker.Publish(ctx, evs)
	return evs, err
}

// Run polls on the configured interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	return e.pipeline.Run(ctx, e.interval, e.broker.Publish)
}

// Subscribe streams published events matching filter.
func (e *Engine) Subscribe(filter events.Filter) (<-chan domain.Event, func()) {
	return e.broker.Subscribe(filter)
}

// AwaitReply blocks until the target answers the expectation registered under
// key, the timeout elapses or ctx is canceled. It does not poll; something
// else (Run, or explicit Poll calls) must drive ingestion. A nil event with a
// nil error means the timeout elapsed.
func (e *Engine) AwaitReply(ctx context.Context, target, key string, timeout time.Duration) (*domain.ReplyParsed, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	ch, cancel := e.subscribeReply(ref, key)
	defer cancel()
	return awaitReply(ctx, ch, timeout)
}

func (e *Engine) subscribeReply(ref domain.ConversationRef, key string) (<-chan domain.Event, func()) {
	return e.broker.Subscribe(events.All(
		events.ByType(domain.EventReplyParsed),
		events.ByConversation(ref.Key()),
		func(ev domain.Event) bool {
			rp, ok := ev.(*domain.ReplyParsed)
			return ok && (key == "" || rp.Key == key)
		},
	))
}

func awaitReply(ctx context.Context, ch <-chan domain.Event, timeout time.Duration) (*domain.ReplyParsed, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev, ok := <-ch:
		if !ok {
			return nil, errors.New("event stream closed")
		}
		return ev.(*domain.ReplyParsed), nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Expectations

// RegisterExpectation records a prompt for the target.
func (e *Engine) RegisterExpectation(ctx context.Context, target string, p expect.Prompt) (domain.Expectation, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return domain.Expectation{}, err
	}
	return e.expect.Register(ctx, ref, p)
}

// ClearPending removes one key, or all with an empty key.
func (e *Engine) ClearPending(ctx context.Context, target, key string) ([]string, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	return e.expect.Clear(ctx, ref, key)
}

// Pending lists the live expectations of the target.
func (e *Engine) Pending(ctx context.Context, target string) ([]domain.Expectation, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	return e.expect.Pending(ctx, ref)
}

// Context

// GetContext returns the target's context; empty when never set.
func (e *Engine) GetContext(ctx context.Context, target string) (map[string]any, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	return e.sessions.GetContext(ctx, ref)
}

// SetContext shallow-merges updates into the target's context.
func (e *Engine) SetContext(ctx context.Context, target string, updates map[string]any) (map[string]any, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	return e.sessions.SetContext(ctx, ref, updates)
}

// ReplaceContext overwrites the target's context.
func (e *Engine) ReplaceContext(ctx context.Context, target string, values map[string]any) (map[string]any, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	return e.sessions.ReplaceContext(ctx, ref, values)
}

// ClearContext empties the target's context.
func (e *Engine) ClearContext(ctx context.Context, target string) error {
	ref, err := e.Resolve(target)
	if err != nil {
		return err
	}
	return e.sessions.ClearContext(ctx, ref)
}

// Conversations

// Conversation returns the full record of the target.
func (e *Engine) Conversation(ctx context.Context, target string) (*domain.Conversation, error) {
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	return e.sessions.Get(ctx, ref)
}

// Conversations lists the keys of every stored conversation.
func (e *Engine) Conversations(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Forget deletes the conversation record of the target. The target may also be
// the raw key of an orphaned record, such as the ID of a deleted contact.
func (e *Engine) Forget(ctx context.Context, target string) error {
	key := strings.TrimSpace(target)
	if ref, err := e.Resolve(target); err == nil {
		key = ref.Key()
	}
	if err := e.sessions.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to forget %s: %w", key, err)
	}
	e.logger.Info("Conversation forgotten", "key", key)
	return nil
}

// Store returns the underlying state store.
func (e *Engine) Store() ports.StateStore {
	return e.store
}
