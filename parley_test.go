package parley_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/events"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/pipeline"
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

func newEngine(t *testing.T, opts ...parley.Option) (*parley.Engine, *memory.Transport, *memory.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	transport := memory.NewTransport()
	opts = append([]parley.Option{parley.WithClock(clock.Now)}, opts...)
	eng := parley.New(store, transport, opts...)
	require.NoError(t, eng.Start(context.Background()))
	return eng, transport, store, clock
}

func TestEngine_Resolve(t *testing.T) {
	eng, _, _, _ := newEngine(t)
	ctx := context.Background()

	amy, err := eng.AddContact(ctx, "Amy", "2125550001")
	require.NoError(t, err)

	for _, target := range []string{amy.ID, "2125550001", "+1 (212) 555-0001"} {
		ref, err := eng.Resolve(target)
		require.NoError(t, err, target)
		assert.Equal(t, domain.ConversationRef{ContactID: amy.ID, Phone: amy.Phone}, ref, target)
	}

	ref, err := eng.Resolve("310-555-0100")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationRef{Phone: "+13105550100"}, ref)

	_, err = eng.Resolve("contact_ghost")
	assert.ErrorIs(t, err, domain.ErrContactNotFound)
	_, err = eng.Resolve("12")
	assert.ErrorIs(t, err, domain.ErrInvalidPhoneNumber)
}

func TestEngine_PhoneNormalizationConverges(t *testing.T) {
	eng, _, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.AddContact(ctx, "John", "2122037678")
	require.NoError(t, err)
	_, err = eng.AddContact(ctx, "Jane", "+12122037678")
	assert.ErrorIs(t, err, domain.ErrDuplicatePhone, "both inputs normalize to the same stored form")
}

func TestEngine_SendThenRegisterRoundTrip(t *testing.T) {
	eng, transport, _, _ := newEngine(t)
	ctx := context.Background()

	amy, err := eng.AddContact(ctx, "Amy", "2125550001")
	require.NoError(t, err)

	_, err = eng.Send(ctx, amy.ID, pipeline.Content{Text: "Thermostat target?"})
	require.NoError(t, err)
	_, err = eng.RegisterExpectation(ctx, amy.ID, expect.Prompt{Key: "temp", Kind: domain.KindNumber, TTL: time.Minute})
	require.NoError(t, err)

	transport.Deliver(domain.InboundMessage{ID: "1", Phone: "+12125550001", Text: "21.5"})
	evs, err := eng.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	rp := evs[1].(*domain.ReplyParsed)
	assert.Equal(t, "temp", rp.Key)
	assert.Equal(t, "21.5", rp.ResponseNumber)

	conv, err := eng.Conversation(ctx, amy.ID)
	require.NoError(t, err)
	assert.Equal(t, "Thermostat target?", conv.Activity.LastOutbound)
	assert.Equal(t, "21.5", conv.Activity.LastInbound)
	assert.Empty(t, conv.Pending)
}

func TestEngine_ContactsAndContextShareKey(t *testing.T) {
	eng, _, _, _ := newEngine(t)
	ctx := context.Background()

	amy, err := eng.AddContact(ctx, "Amy", "2125550001")
	require.NoError(t, err)

	_, err = eng.SetContext(ctx, "212-555-0001", map[string]any{"room": "kitchen"})
	require.NoError(t, err)
	got, err := eng.GetContext(ctx, amy.ID)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", got["room"])

	// Changing the phone keeps the same conversation.
	newPhone := "2125550009"
	_, err = eng.UpdateContact(ctx, amy.ID, contacts.Changes{Phone: &newPhone})
	require.NoError(t, err)
	got, err = eng.GetContext(ctx, newPhone)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", got["room"])
}

func TestEngine_DeleteContactOrphansUntilForget(t *testing.T) {
	eng, _, _, _ := newEngine(t)
	ctx := context.Background()

	amy, err := eng.AddContact(ctx, "Amy", "2125550001")
	require.NoError(t, err)
	_, err = eng.SetContext(ctx, amy.ID, map[string]any{"a": 1})
	require.NoError(t, err)

	_, err = eng.DeleteContact(ctx, amy.ID)
	require.NoError(t, err)

	keys, err := eng.Conversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{amy.ID}, keys, "no cascade")

	require.NoError(t, eng.Forget(ctx, amy.ID))
	keys, err = eng.Conversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEngine_NewContactDoesNotInheritOrphan(t *testing.T) {
	eng, _, _, _ := newEngine(t)
	ctx := context.Background()

	john, err := eng.AddContact(ctx, "John", "2125550001")
	require.NoError(t, err)
	_, err = eng.SetContext(ctx, john.ID, map[string]any{"door_code": 4321})
	require.NoError(t, err)
	_, err = eng.RegisterExpectation(ctx, john.ID, expect.Prompt{Key: "pin", Kind: domain.KindNumber, TTL: time.Hour})
	require.NoError(t, err)
	_, err = eng.DeleteContact(ctx, john.ID)
	require.NoError(t, err)

	other, err := eng.AddContact(ctx, "John", "2125550002")
	require.NoError(t, err)
	assert.Equal(t, "contact_john_1", other.ID)

	got, err := eng.GetContext(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	pending, err := eng.Pending(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Once the orphan is forgotten the base ID is free again.
	require.NoError(t, eng.Forget(ctx, john.ID))
	again, err := eng.AddContact(ctx, "John", "2125550003")
	require.NoError(t, err)
	assert.Equal(t, "contact_john", again.ID)
}

func TestEngine_RestartKeepsState(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	transport := memory.NewTransport()
	ctx := context.Background()

	first := parley.New(store, transport, parley.WithClock(clock.Now))
	require.NoError(t, first.Start(ctx))
	amy, err := first.AddContact(ctx, "Amy", "2125550001")
	require.NoError(t, err)
	_, err = first.RegisterExpectation(ctx, amy.ID, expect.Prompt{Key: "q", Kind: domain.KindBoolean, TTL: time.Hour})
	require.NoError(t, err)

	transport.Deliver(domain.InboundMessage{ID: "1", Phone: amy.Phone, Text: "hello"})
	_, err = first.Poll(ctx)
	require.NoError(t, err)

	second := parley.New(store, transport, parley.WithClock(clock.Now))
	require.NoError(t, second.Start(ctx))

	assert.Len(t, second.ListContacts(), 1)
	pending, err := second.Pending(ctx, amy.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	evs, err := second.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, evs, "message 1 was already processed before the restart")
}

func TestEngine_SubscribeReceivesPolledEvents(t *testing.T) {
	eng, transport, _, _ := newEngine(t)
	ctx := context.Background()

	ch, cancel := eng.Subscribe(events.ByType(domain.EventMessageReceived))
	defer cancel()

	transport.Deliver(domain.InboundMessage{ID: "1", Phone: "3105550100", Text: "hi"})
	_, err := eng.Poll(ctx)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, "+13105550100", ev.(*domain.MessageReceived).Phone)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestEngine_AwaitReplyTimesOut(t *testing.T) {
	eng, _, _, _ := newEngine(t)

	rp, err := eng.AwaitReply(context.Background(), "2125550001", "q", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, rp)
}
