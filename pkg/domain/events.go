package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventMessageReceived    EventType = "message_received"
	EventReplyParsed        EventType = "reply_parsed"
	EventMessageSent        EventType = "message_sent"
	EventExpectationExpired EventType = "expectation_expired"
)

// Event is implemented by every domain event emitted by the core.
type Event interface {
	Base() EventBase
}

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

func (b EventBase) Base() EventBase { return b }

// MessageReceived is emitted for every new, allowed inbound message.
type MessageReceived struct {
	EventBase
	Phone     string `json:"phone"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
	ContactID string `json:"contact_id,omitempty"`
}

// ReplyParsed is emitted when an inbound message satisfied a pending expectation.
type ReplyParsed struct {
	EventBase
	Phone     string `json:"phone"`
	ContactID string `json:"contact_id,omitempty"`
	MatchResult
}

// MessageSent is emitted after each successfully delivered outbound part.
type MessageSent struct {
	EventBase
	Phone     string  `json:"phone"`
	ContactID string  `json:"contact_id,omitempty"`
	Channel   Channel `json:"channel"`
	MessageID string  `json:"message_id,omitempty"`
}

// ExpectationExpired is emitted when the sweep reaps an expectation.
type ExpectationExpired struct {
	EventBase
	Phone     string `json:"phone"`
	ContactID string `json:"contact_id,omitempty"`
	Key       string `json:"key"`
}

// SkipReason explains why an inbound message produced no events.
type SkipReason string

const (
	SkipDuplicate  SkipReason = "duplicate"
	SkipNotAllowed SkipReason = "not_allowed"
)

// PollReport summarizes one ingestion cycle.
type PollReport struct {
	Started  time.Time
	Duration time.Duration
	Fetched  int
	Received int
	Parsed   int
	Expired  int
	Err      error
}

// LifecycleHooks defines callbacks for observability.
// Every field is optional.
type LifecycleHooks struct {
	OnMessageReceived    func(context.Context, *MessageReceived)
	OnReplyParsed        func(context.Context, *ReplyParsed)
	OnMessageSent        func(context.Context, *MessageSent)
	OnExpectationExpired func(context.Context, *ExpectationExpired)
	OnMessageSkipped     func(context.Context, InboundMessage, SkipReason)
	OnPollCompleted      func(context.Context, *PollReport)
}

// Emit invokes the typed hook matching e.
func (h LifecycleHooks) Emit(ctx context.Context, e Event) {
	switch ev := e.(type) {
	case *MessageReceived:
		if h.OnMessageReceived != nil {
			h.OnMessageReceived(ctx, ev)
		}
	case *ReplyParsed:
		if h.OnReplyParsed != nil {
			h.OnReplyParsed(ctx, ev)
		}
	case *MessageSent:
		if h.OnMessageSent != nil {
			h.OnMessageSent(ctx, ev)
		}
	case *ExpectationExpired:
		if h.OnExpectationExpired != nil {
			h.OnExpectationExpired(ctx, ev)
		}
	}
}

// Skipped invokes OnMessageSkipped if set.
func (h LifecycleHooks) Skipped(ctx context.Context, msg InboundMessage, reason SkipReason) {
	if h.OnMessageSkipped != nil {
		h.OnMessageSkipped(ctx, msg, reason)
	}
}

// Polled invokes OnPollCompleted if set.
func (h LifecycleHooks) Polled(ctx context.Context, r *PollReport) {
	if h.OnPollCompleted != nil {
		h.OnPollCompleted(ctx, r)
	}
}

// Merge combines two hook sets; both callbacks run, h first.
func (h LifecycleHooks) Merge(o LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnMessageReceived:    chain(h.OnMessageReceived, o.OnMessageReceived),
		OnReplyParsed:        chain(h.OnReplyParsed, o.OnReplyParsed),
		OnMessageSent:        chain(h.OnMessageSent, o.OnMessageSent),
		OnExpectationExpired: chain(h.OnExpectationExpired, o.OnExpectationExpired),
		OnMessageSkipped: func(ctx context.Context, m InboundMessage, r SkipReason) {
			h.Skipped(ctx, m, r)
			o.Skipped(ctx, m, r)
		},
		OnPollCompleted: chain(h.OnPollCompleted, o.OnPollCompleted),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
