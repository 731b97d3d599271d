package parley_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenu_Text(t *testing.T) {
	m := parley.Menu{
		Options:      []string{"Open", "Close"},
		OmitHeader:   true,
		Footer:       "Thanks",
		NumberFormat: "[{n}] {option}",
	}
	assert.Equal(t, "[1] Open\n[2] Close\n\nThanks", m.Text())

	bare := parley.Menu{Options: []string{"A"}, OmitHeader: true, OmitFooter: true}
	assert.Equal(t, "1. A", bare.Text())
}

func TestParseOptions(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, parley.ParseOptions("  a \n\n b c \n"))
	assert.Empty(t, parley.ParseOptions(" \n "))
}

func TestSendMenu_Validation(t *testing.T) {
	eng, transport, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.SendMenu(ctx, "2125550001", parley.Menu{})
	assert.ErrorIs(t, err, domain.ErrInvalidExpectation)

	_, err = eng.SendMenu(ctx, "2125550001", parley.Menu{Options: []string{"a"}, Timeout: time.Second})
	assert.ErrorIs(t, err, domain.ErrInvalidTTL)

	_, err = eng.SendMenu(ctx, "2125550001", parley.Menu{Options: []string{"a"}, Timeout: 2 * time.Hour})
	assert.ErrorIs(t, err, domain.ErrInvalidTTL)

	assert.Empty(t, transport.Sent())
}

func TestSendMenu_RegistersOnlyAfterSuccessfulSend(t *testing.T) {
	eng, transport, _, _ := newEngine(t)
	ctx := context.Background()

	transport.FailSend(func(domain.OutboundMessage) error { return domain.ErrTransportUnavailable })
	_, err := eng.SendMenu(ctx, "2125550001", parley.Menu{Options: []string{"a", "b"}})
	assert.ErrorIs(t, err, domain.ErrSendFailed)

	pending, err := eng.Pending(ctx, "2125550001")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSendMenu_Wait(t *testing.T) {
	eng, transport, _, _ := newEngine(t)
	ctx := context.Background()

	amy, err := eng.AddContact(ctx, "Amy", "2125550001")
	require.NoError(t, err)

	done := make(chan *parley.MenuResponse, 1)
	go func() {
		resp, err := eng.SendMenu(ctx, amy.ID, parley.Menu{
			Options: []string{"Arm alarm", "Disarm alarm"},
			Timeout: 10 * time.Second,
			Wait:    true,
		})
		assert.NoError(t, err)
		done <- resp
	}()

	require.Eventually(t, func() bool {
		pending, err := eng.Pending(ctx, amy.ID)
		return err == nil && len(pending) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "2. Disarm alarm")

	transport.Deliver(domain.InboundMessage{ID: "r1", Phone: amy.Phone, Text: "disarm"})
	_, err = eng.Poll(ctx)
	require.NoError(t, err)

	select {
	case resp := <-done:
		require.NotNil(t, resp)
		assert.False(t, resp.TimedOut)
		assert.Equal(t, 2, resp.Option)
		assert.Equal(t, 1, resp.OptionIndex)
		assert.Equal(t, "Disarm alarm", resp.Value)
		assert.Equal(t, amy.ID, resp.ContactID)
	case <-time.After(2 * time.Second):
		t.Fatal("menu wait did not complete")
	}
}

func TestSendMenu_WaitTimesOut(t *testing.T) {
	eng, _, _, _ := newEngine(t)

	resp, err := eng.SendMenu(context.Background(), "2125550001", parley.Menu{
		Options: []string{"a"},
		Timeout: parley.MinMenuTimeout,
		Wait:    true,
	})
	if testing.Short() {
		t.Skip("waits for the minimum menu timeout")
	}
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.TimedOut)
	assert.Equal(t, -1, resp.OptionIndex)
}
