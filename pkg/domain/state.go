package domain

import "time"

// ConversationRef addresses a conversation.
// ContactID is empty for senders that are not in the registry.
type ConversationRef struct {
	ContactID string `json:"contact_id,omitempty"`
	Phone     string `json:"phone"`
}

// Key returns the storage key of the conversation: the contact ID when known,
// otherwise the phone number.
func (r ConversationRef) Key() string {
	if r.ContactID != "" {
		return r.ContactID
	}
	return r.Phone
}

// Activity holds the last inbound/outbound bookkeeping of a conversation.
type Activity struct {
	LastInbound    string    `json:"last_inbound,omitempty"`
	LastInboundAt  time.Time `json:"last_inbound_ts,omitempty"`
	LastInboundID  string    `json:"last_inbound_id,omitempty"`
	LastOutbound   string    `json:"last_outbound,omitempty"`
	LastOutboundAt time.Time `json:"last_outbound_ts,omitempty"`
}

// Conversation is the durable per-contact record: pending expectations in
// registration order, the freeform context map, and activity bookkeeping.
type Conversation struct {
	Key       string         `json:"key"`
	ContactID string         `json:"contact_id,omitempty"`
	Phone     string         `json:"phone"`
	Pending   []Expectation  `json:"pending"`
	Context   map[string]any `json:"context"`
	Activity  Activity       `json:"activity"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewConversation creates an empty conversation for ref.
func NewConversation(ref ConversationRef) *Conversation {
	return &Conversation{
		Key:       ref.Key(),
		ContactID: ref.ContactID,
		Phone:     ref.Phone,
		Pending:   []Expectation{},
		Context:   make(map[string]any),
	}
}

// Ref returns the address of the conversation.
func (c *Conversation) Ref() ConversationRef {
	return ConversationRef{ContactID: c.ContactID, Phone: c.Phone}
}

// Snapshot returns a copy that shares no mutable state with c.
// Context values are copied shallowly; nested maps are copied recursively.
func (c *Conversation) Snapshot() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Pending = make([]Expectation, len(c.Pending))
	for i, e := range c.Pending {
		e.Grammar.Options = append([]string(nil), e.Grammar.Options...)
		out.Pending[i] = e
	}
	out.Context = CopyContext(c.Context)
	return &out
}

// Lookup returns the pending expectation registered under key.
func (c *Conversation) Lookup(key string) (Expectation, bool) {
	for _, e := range c.Pending {
		if e.Key == key {
			return e, true
		}
	}
	return Expectation{}, false
}

// CopyContext deep-copies nested maps; other values are shared.
func CopyContext(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = CopyContext(sub)
			continue
		}
		out[k] = v
	}
	return out
}
