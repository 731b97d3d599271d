package middleware_test

import (
	"context"
	"sort"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data map[string][]byte
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string][]byte)}
}

func key(c domain.Collection, id string) string { return string(c) + "/" + id }

func (s *MockStore) Save(ctx context.Context, c domain.Collection, id string, doc []byte) error {
	s.data[key(c, id)] = append([]byte(nil), doc...)
	return nil
}

func (s *MockStore) Load(ctx context.Context, c domain.Collection, id string) ([]byte, error) {
	doc, ok := s.data[key(c, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (s *MockStore) Delete(ctx context.Context, c domain.Collection, id string) error {
	delete(s.data, key(c, id))
	return nil
}

func (s *MockStore) List(ctx context.Context, c domain.Collection) ([]string, error) {
	prefix := string(c) + "/"
	ids := []string{}
	for k := range s.data {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			ids = append(ids, k[len(prefix):])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var _ ports.StateStore = (*MockStore)(nil)
