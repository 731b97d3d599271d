// Package persistence maps domain documents onto a ports.StateStore.
//
// Every method encodes exactly one document, so one logical operation is one
// store write regardless of the backing adapter.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// CursorID is the document ID of the ingest cursor.
const CursorID = "cursor"

// Repository is a typed view over a StateStore.
type Repository struct {
	store ports.StateStore
}

// NewRepository wraps store.
func NewRepository(store ports.StateStore) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying store.
func (r *Repository) Store() ports.StateStore {
	return r.store
}

func (r *Repository) save(ctx context.Context, c domain.Collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", c, id, err)
	}
	if err := r.store.Save(ctx, c, id, data); err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", c, id, err)
	}
	return nil
}

func (r *Repository) load(ctx context.Context, c domain.Collection, id string, v any) error {
	data, err := r.store.Load(ctx, c, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to load %s/%s: %w", c, id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", c, id, err)
	}
	return nil
}

// SaveContact writes one contact document.
func (r *Repository) SaveContact(ctx context.Context, c domain.Contact) error {
	return r.save(ctx, domain.CollectionContacts, c.ID, c)
}

// DeleteContact removes one contact document.
func (r *Repository) DeleteContact(ctx context.Context, id string) error {
	return r.store.Delete(ctx, domain.CollectionContacts, id)
}

// LoadContacts returns every stored contact, sorted by ID.
func (r *Repository) LoadContacts(ctx context.Context) ([]domain.Contact, error) {
	ids, err := r.store.List(ctx, domain.CollectionContacts)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	out := make([]domain.Contact, 0, len(ids))
	for _, id := range ids {
		var c domain.Contact
		if err := r.load(ctx, domain.CollectionContacts, id, &c); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue // deleted between List and Load
			}
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadConversation returns domain.ErrNotFound when no record exists.
func (r *Repository) LoadConversation(ctx context.Context, key string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.load(ctx, domain.CollectionConversations, key, &conv); err != nil {
		return nil, err
	}
	if conv.Context == nil {
		conv.Context = make(map[string]any)
	}
	if conv.Pending == nil {
		conv.Pending = []domain.Expectation{}
	}
	return &conv, nil
}

// SaveConversation writes the whole conversation record.
func (r *Repository) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	return r.save(ctx, domain.CollectionConversations, conv.Key, conv)
}

// DeleteConversation removes a conversation record.
func (r *Repository) DeleteConversation(ctx context.Context, key string) error {
	return r.store.Delete(ctx, domain.CollectionConversations, key)
}

// ListConversations returns the keys of every stored conversation.
func (r *Repository) ListConversations(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx, domain.CollectionConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// LoadCursor returns an empty cursor when none was saved yet.
func (r *Repository) LoadCursor(ctx context.Context) (domain.IngestCursor, error) {
	var cur domain.IngestCursor
	err := r.load(ctx, domain.CollectionIngest, CursorID, &cur)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.IngestCursor{}, nil
	}
	return cur, err
}

// SaveCursor persists the dedup window.
func (r *Repository) SaveCursor(ctx context.Context, cur domain.IngestCursor) error {
	return r.save(ctx, domain.CollectionIngest, CursorID, cur)
}
