package session

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// GetContext returns a copy of the conversation context; empty when absent.
func (m *Manager) GetContext(ctx context.Context, ref domain.ConversationRef) (map[string]any, error) {
	conv, err := m.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return conv.Context, nil
}

// SetContext shallow-merges updates into the context, creating the record if needed.
// Values are stored as given. Empty updates leave the record untouched.
func (m *Manager) SetContext(ctx context.Context, ref domain.ConversationRef, updates map[string]any) (map[string]any, error) {
	conv, err := m.Update(ctx, ref, func(c *domain.Conversation) error {
		if len(updates) == 0 {
			return ErrSkipSave
		}
		for k, v := range updates {
			c.Context[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv.Context, nil
}

// ReplaceContext discards the previous context and stores values instead.
func (m *Manager) ReplaceContext(ctx context.Context, ref domain.ConversationRef, values map[string]any) (map[string]any, error) {
	conv, err := m.Update(ctx, ref, func(c *domain.Conversation) error {
		c.Context = domain.CopyContext(values)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv.Context, nil
}

// ClearContext empties the context; pending expectations are kept.
func (m *Manager) ClearContext(ctx context.Context, ref domain.ConversationRef) error {
	_, err := m.Update(ctx, ref, func(c *domain.Conversation) error {
		if len(c.Context) == 0 {
			return ErrSkipSave
		}
		c.Context = make(map[string]any)
		return nil
	})
	return err
}
