package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Store implements ports.StateStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.Collection]map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.Collection]map[string][]byte),
	}
}

// Save keeps a private copy of doc.
func (s *Store) Save(ctx context.Context, collection domain.Collection, id string, doc []byte) error {
	copied := append([]byte(nil), doc...)

	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.data[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.data[collection] = docs
	}
	docs[id] = copied
	return nil
}

// Load returns a copy so callers cannot mutate stored bytes.
func (s *Store) Load(ctx context.Context, collection domain.Collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.data[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, collection domain.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], id)
	return nil
}

// List returns all IDs of a collection in sorted order.
func (s *Store) List(ctx context.Context, collection domain.Collection) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data[collection]))
	for id := range s.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
