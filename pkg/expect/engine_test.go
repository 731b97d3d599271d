package expect_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/expect"
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

var amy = domain.ConversationRef{ContactID: "contact_amy", Phone: "+12125550001"}

func newEngine() (*expect.Engine, *session.Manager, *fakeClock) {
	clock := &fakeClock{now: t0}
	mgr := session.NewManager(memory.NewStore(), session.WithClock(clock.Now))
	return expect.NewEngine(mgr, expect.WithClock(clock.Now)), mgr, clock
}

func TestEngine_RegisterMatchPersisted(t *testing.T) {
	eng, mgr, _ := newEngine()
	ctx := context.Background()

	_, err := eng.Register(ctx, amy, expect.Prompt{Key: "temp", Kind: domain.KindNumber, TTL: time.Minute})
	require.NoError(t, err)

	pending, err := eng.Pending(ctx, amy)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	res, err := eng.TryMatch(ctx, amy, "nope")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = eng.TryMatch(ctx, amy, "21.5")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "temp", res.Key)

	conv, err := mgr.Get(ctx, amy)
	require.NoError(t, err)
	assert.Empty(t, conv.Pending)
}

func TestEngine_RegisterInvalidDoesNotCreateRecord(t *testing.T) {
	eng, mgr, _ := newEngine()
	ctx := context.Background()

	_, err := eng.Register(ctx, amy, expect.Prompt{Key: "k", Kind: domain.KindText})
	assert.ErrorIs(t, err, domain.ErrInvalidTTL)

	keys, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEngine_Clear(t *testing.T) {
	eng, _, _ := newEngine()
	ctx := context.Background()

	removed, err := eng.Clear(ctx, amy, "nothing")
	require.NoError(t, err)
	assert.Empty(t, removed)

	for _, k := range []string{"a", "b"} {
		_, err := eng.Register(ctx, amy, expect.Prompt{Key: k, Kind: domain.KindText, TTL: time.Minute})
		require.NoError(t, err)
	}
	removed, err = eng.Clear(ctx, amy, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, removed)
}

func TestEngine_PendingHidesExpired(t *testing.T) {
	eng, _, clock := newEngine()
	ctx := context.Background()

	_, err := eng.Register(ctx, amy, expect.Prompt{Key: "k", Kind: domain.KindText, TTL: time.Minute})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	pending, err := eng.Pending(ctx, amy)
	require.NoError(t, err)
	assert.Empty(t, pending)

	res, err := eng.TryMatch(ctx, amy, "late reply")
	require.NoError(t, err)
	assert.Nil(t, res, "an expired expectation never matches")
}

func TestEngine_SweepExpired(t *testing.T) {
	eng, mgr, clock := newEngine()
	ctx := context.Background()
	ben := domain.ConversationRef{Phone: "+12125550002"}

	_, err := eng.Register(ctx, amy, expect.Prompt{Key: "short", Kind: domain.KindText, TTL: time.Minute})
	require.NoError(t, err)
	_, err = eng.Register(ctx, amy, expect.Prompt{Key: "long", Kind: domain.KindText, TTL: time.Hour})
	require.NoError(t, err)
	_, err = eng.Register(ctx, ben, expect.Prompt{Key: "q", Kind: domain.KindBoolean, TTL: 2 * time.Minute})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	reaped, err := eng.SweepExpired(ctx, clock.Now())
	require.NoError(t, err)
	require.Len(t, reaped, 2)

	got := map[string]string{}
	for _, x := range reaped {
		got[x.Expectation.Key] = x.Ref.Key()
	}
	assert.Equal(t, map[string]string{"short": "contact_amy", "q": "+12125550002"}, got)

	conv, err := mgr.Get(ctx, amy)
	require.NoError(t, err)
	require.Len(t, conv.Pending, 1)
	assert.Equal(t, "long", conv.Pending[0].Key)

	again, err := eng.SweepExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, again)
}
