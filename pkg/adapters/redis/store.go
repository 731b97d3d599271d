package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store and the locker.
const DefaultPrefix = "parley:"

// Store implements ports.StateStore using Redis.
// Documents live under "<prefix><collection>:<id>"; each collection keeps a
// ZSET index scored by last save time so List never scans the keyspace.
type Store struct {
	client *backend.Client
	prefix string
	clock  func() time.Time
}

type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock sets the time source used for index scores.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client so a Locker can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(collection domain.Collection, id string) string {
	return s.prefix + string(collection) + ":" + id
}

func (s *Store) indexKey(collection domain.Collection) string {
	return s.prefix + "index:" + string(collection)
}

// Save writes the document and its index entry in one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, collection domain.Collection, id string, doc []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(collection, id), doc, 0)
	pipe.ZAdd(ctx, s.indexKey(collection), backend.Z{
		Score:  float64(s.clock().Unix()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a document.
func (s *Store) Load(ctx context.Context, collection domain.Collection, id string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return val, nil
}

// Delete removes the document and its index entry.
func (s *Store) Delete(ctx context.Context, collection domain.Collection, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(collection, id))
	pipe.ZRem(ctx, s.indexKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns the IDs in a collection, sorted.
func (s *Store) List(ctx context.Context, collection domain.Collection) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
