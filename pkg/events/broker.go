// Package events fans domain events out to in-process subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 32

// Filter selects the events a subscriber receives. A nil Filter accepts all.
type Filter func(domain.Event) bool

// Broker is safe for concurrent use. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

type subscriber struct {
	ch     chan domain.Event
	filter Filter
}

// NewBroker creates a broker. A nil logger disables logging.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broker{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber. The returned cancel function closes the
// channel and must be called exactly once.
func (b *Broker) Subscribe(filter Filter) (<-chan domain.Event, func()) {
	s := &subscriber{ch: make(chan domain.Event, DefaultBuffer), filter: filter}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, s)
			close(s.ch)
		})
	}
}

// Publish delivers events in order to every matching subscriber.
func (b *Broker) Publish(_ context.Context, events []domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, e := range events {
		for s := range b.subs {
			if s.filter != nil && !s.filter(e) {
				continue
			}
			select {
			case s.ch <- e:
			default:
				// Drop message if channel is full (slow client)
				b.logger.Warn("Subscriber buffer full, dropping event", "type", e.Base().Type)
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// ByType accepts events of the given types.
func ByType(types ...domain.EventType) Filter {
	set := make(map[domain.EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e domain.Event) bool {
		_, ok := set[e.Base().Type]
		return ok
	}
}

// ByConversation accepts events addressed to the conversation key
// (contact ID, or phone for unknown senders).
func ByConversation(key string) Filter {
	return func(e domain.Event) bool {
		return ConversationKey(e) == key
	}
}

// All combines filters with logical AND; nil filters are ignored.
func All(filters ...Filter) Filter {
	return func(e domain.Event) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}

// ConversationKey returns the conversation an event belongs to.
func ConversationKey(e domain.Event) string {
	ref := Ref(e)
	return ref.Key()
}

// Ref extracts the conversation address from an event.
func Ref(e domain.Event) domain.ConversationRef {
	switch ev := e.(type) {
	case *domain.MessageReceived:
		return domain.ConversationRef{ContactID: ev.ContactID, Phone: ev.Phone}
	case *domain.ReplyParsed:
		return domain.ConversationRef{ContactID: ev.ContactID, Phone: ev.Phone}
	case *domain.MessageSent:
		return domain.ConversationRef{ContactID: ev.ContactID, Phone: ev.Phone}
	case *domain.ExpectationExpired:
		return domain.ConversationRef{ContactID: ev.ContactID, Phone: ev.Phone}
	}
	return domain.ConversationRef{}
}
