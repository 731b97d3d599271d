package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     ports.StateStore
	transport *memory.Transport
	registry  *contacts.Registry
	sessions  *session.Manager
	engine    *expect.Engine
	clock     *fakeClock
	amy       domain.Contact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		transport: memory.NewTransport(),
		clock:     &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.registry = contacts.NewRegistry(f.store)
	f.sessions = session.NewManager(f.store, session.WithClock(f.clock.Now))
	f.engine = expect.NewEngine(f.sessions, expect.WithClock(f.clock.Now))

	amy, err := f.registry.Add(context.Background(), "Amy", "2125550001")
	require.NoError(t, err)
	f.amy = amy
	return f
}

func (f *fixture) pipeline(opts ...pipeline.Option) *pipeline.Pipeline {
	opts = append([]pipeline.Option{pipeline.WithClock(f.clock.Now)}, opts...)
	return pipeline.New(f.transport, f.registry, f.sessions, f.engine, opts...)
}

func (f *fixture) ref() domain.ConversationRef {
	return domain.ConversationRef{ContactID: f.amy.ID, Phone: f.amy.Phone}
}

func ofType[T domain.Event](events []domain.Event) []T {
	var out []T
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestPoll_DedupIdempotence(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	ctx := context.Background()

	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: "2125550001", Text: "hello"})

	first, err := p.Poll(ctx)
	require.NoError(t, err)
	second, err := p.Poll(ctx)
	require.NoError(t, err)

	received := ofType[*domain.MessageReceived](append(first, second...))
	require.Len(t, received, 1)
	assert.Equal(t, "m1", received[0].MessageID)
	assert.Equal(t, f.amy.ID, received[0].ContactID)
	assert.Equal(t, "+12125550001", received[0].Phone)
}

func TestPoll_DuplicateWithinOneFetch(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()

	msg := domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "hello"}
	f.transport.Deliver(msg, msg)

	events, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, ofType[*domain.MessageReceived](events), 1)
}

func TestPoll_DedupSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "hello"})
	_, err := f.pipeline().Poll(ctx)
	require.NoError(t, err)

	restarted := f.pipeline()
	require.NoError(t, restarted.Restore(ctx))
	events, err := restarted.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, ofType[*domain.MessageReceived](events))
}

func TestPoll_WatermarkCatchesEvictedID(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(pipeline.WithDedupCapacity(1))
	ctx := context.Background()

	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "hello"})
	_, err := p.Poll(ctx)
	require.NoError(t, err)

	// A second sender evicts m1 from the one-slot ring.
	f.transport.Drain()
	f.transport.Deliver(domain.InboundMessage{ID: "x1", Phone: "3105550100", Text: "hey"})
	_, err = p.Poll(ctx)
	require.NoError(t, err)

	f.transport.Drain()
	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "hello"})
	events, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, ofType[*domain.MessageReceived](events), "the conversation watermark still knows m1")
}

func TestPoll_AllowlistBoundary(t *testing.T) {
	f := newFixture(t)
	var skipped []domain.SkipReason
	p := f.pipeline(
		pipeline.WithAllowlist("(212) 555-0001"),
		pipeline.WithLifecycleHooks(domain.LifecycleHooks{
			OnMessageSkipped: func(_ context.Context, _ domain.InboundMessage, r domain.SkipReason) {
				skipped = append(skipped, r)
			},
		}),
	)
	ctx := context.Background()

	f.transport.Deliver(domain.InboundMessage{ID: "s1", Phone: "+13105550100", Text: "let me in"})
	events, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, []domain.SkipReason{domain.SkipNotAllowed}, skipped)

	keys, err := f.sessions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "no conversation record for a blocked sender")

	_, err = f.sessions.Repository().LoadCursor(ctx)
	require.NoError(t, err)
	raw, err := f.store.Load(ctx, domain.CollectionIngest, "cursor")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no cursor write either")
	assert.Nil(t, raw)

	f.transport.Deliver(domain.InboundMessage{ID: "a1", Phone: "2125550001", Text: "it's amy"})
	events, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Len(t, ofType[*domain.MessageReceived](events), 1)
}

func TestPoll_AnonymousSender(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	ctx := context.Background()

	f.transport.Deliver(domain.InboundMessage{ID: "u1", Phone: "3105550100", Text: "who is this"})
	events, err := p.Poll(ctx)
	require.NoError(t, err)

	received := ofType[*domain.MessageReceived](events)
	require.Len(t, received, 1)
	assert.Empty(t, received[0].ContactID)

	conv, err := f.sessions.Get(ctx, domain.ConversationRef{Phone: "+13105550100"})
	require.NoError(t, err)
	assert.Equal(t, "who is this", conv.Activity.LastInbound)
	assert.Equal(t, "u1", conv.Activity.LastInboundID)
}

func TestPoll_MatchEmitsReplyParsed(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	ctx := context.Background()

	_, err := f.engine.Register(ctx, f.ref(), expect.Prompt{
		Key: "door", Kind: domain.KindChoice, TTL: time.Minute,
		Grammar: domain.Grammar{Options: []string{"Yes", "No"}},
	})
	require.NoError(t, err)

	received := time.Date(2026, 6, 1, 7, 59, 0, 0, time.UTC)
	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "2", ReceivedAt: received})
	events, err := p.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)

	got, ok := events[0].(*domain.MessageReceived)
	require.True(t, ok, "MessageReceived comes first")
	assert.True(t, got.Timestamp.Equal(received))

	parsed, ok := events[1].(*domain.ReplyParsed)
	require.True(t, ok)
	assert.Equal(t, "door", parsed.Key)
	assert.Equal(t, "No", parsed.Value)
	require.NotNil(t, parsed.OptionIndex)
	assert.Equal(t, 1, *parsed.OptionIndex)
	assert.Equal(t, f.amy.ID, parsed.ContactID)

	conv, err := f.sessions.Get(ctx, f.ref())
	require.NoError(t, err)
	assert.Empty(t, conv.Pending)
	assert.Equal(t, "2", conv.Activity.LastInbound)
	assert.True(t, conv.Activity.LastInboundAt.Equal(received))
}

func TestPoll_SanitizesInboundText(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	ctx := context.Background()

	_, err := f.engine.Register(ctx, f.ref(), expect.Prompt{Key: "n", Kind: domain.KindNumber, TTL: time.Minute})
	require.NoError(t, err)

	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "\x1b4\x002"})
	events, err := p.Poll(ctx)
	require.NoError(t, err)

	received := ofType[*domain.MessageReceived](events)
	require.Len(t, received, 1)
	assert.Equal(t, "42", received[0].Text)
	parsed := ofType[*domain.ReplyParsed](events)
	require.Len(t, parsed, 1)
	assert.Equal(t, "42", parsed[0].ResponseNumber)
}

func TestPoll_NonMatchOnlyBookkeeping(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	ctx := context.Background()

	_, err := f.engine.Register(ctx, f.ref(), expect.Prompt{
		Key: "door", Kind: domain.KindChoice, TTL: time.Minute,
		Grammar: domain.Grammar{Options: []string{"Yes", "No"}},
	})
	require.NoError(t, err)

	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "2 please"})
	events, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Len(t, ofType[*domain.MessageReceived](events), 1)
	assert.Empty(t, ofType[*domain.ReplyParsed](events))

	pending, err := f.engine.Pending(ctx, f.ref())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPoll_SweepsExpired(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	ctx := context.Background()

	_, err := f.engine.Register(ctx, f.ref(), expect.Prompt{Key: "k", Kind: domain.KindText, TTL: time.Second})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "too late"})
	events, err := p.Poll(ctx)
	require.NoError(t, err)

	assert.Empty(t, ofType[*domain.ReplyParsed](events), "expired expectations never match")
	expired := ofType[*domain.ExpectationExpired](events)
	require.Len(t, expired, 1)
	assert.Equal(t, "k", expired[0].Key)
	assert.Equal(t, f.amy.ID, expired[0].ContactID)
}

func TestPoll_FetchFailureSkipsCycle(t *testing.T) {
	f := newFixture(t)
	var reports []*domain.PollReport
	p := f.pipeline(pipeline.WithLifecycleHooks(domain.LifecycleHooks{
		OnPollCompleted: func(_ context.Context, r *domain.PollReport) { reports = append(reports, r) },
	}))
	ctx := context.Background()

	_, err := f.engine.Register(ctx, f.ref(), expect.Prompt{Key: "k", Kind: domain.KindText, TTL: time.Second})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	f.transport.FailFetch(func() error { return domain.ErrTransportUnavailable })
	events, err := p.Poll(ctx)
	assert.ErrorIs(t, err, domain.ErrTransportUnavailable)
	assert.Empty(t, events)

	conv, err := f.sessions.Get(ctx, f.ref())
	require.NoError(t, err)
	assert.Len(t, conv.Pending, 1, "no sweep during a skipped cycle")

	require.Len(t, reports, 1)
	assert.ErrorIs(t, reports[0].Err, domain.ErrTransportUnavailable)
}

func TestPoll_ReauthenticatesAfterExpiry(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	ctx := context.Background()

	f.transport.FailFetch(func() error { return domain.ErrAuthExpired })
	_, err := p.Poll(ctx)
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Zero(t, f.transport.Authentications())

	f.transport.FailFetch(nil)
	_, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.Authentications())

	_, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.Authentications(), "only once per expiry")
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	f.transport.Deliver(domain.InboundMessage{ID: "m1", Phone: f.amy.Phone, Text: "hello"})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []domain.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, time.Hour, func(_ context.Context, events []domain.Event) {
			got <- events
		})
	}()

	select {
	case events := <-got:
		assert.Len(t, ofType[*domain.MessageReceived](events), 1)
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not run")
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
