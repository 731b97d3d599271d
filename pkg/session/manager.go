package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence"
	"github.com/aretw0/parley/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// ErrSkipSave may be returned by an Update callback to leave the stored
// record untouched. Update then returns a nil error.
var ErrSkipSave = errors.New("skip save")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates conversation access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	repo *persistence.Repository

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
	clock   func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the time source used for UpdatedAt.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager creates a new conversation Manager over the given store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		repo:    persistence.NewRepository(store),
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// activeLocks reports the size of the lock map.
func (m *Manager) activeLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock executes fn while holding the lock for the conversation key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Get returns a snapshot of the conversation, or an empty one when no record
// exists. It never creates the record.
func (m *Manager) Get(ctx context.Context, ref domain.ConversationRef) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := m.WithLock(ctx, ref.Key(), func(ctx context.Context) error {
		var err error
		conv, err = m.load(ctx, ref)
		return err
	})
	return conv, err
}

// Update loads (or creates) the conversation, applies fn and persists the
// result in a single write. The returned conversation is a snapshot taken
// after fn ran.
func (m *Manager) Update(ctx context.Context, ref domain.ConversationRef, fn func(*domain.Conversation) error) (*domain.Conversation, error) {
	var out *domain.Conversation
	err := m.WithLock(ctx, ref.Key(), func(ctx context.Context) error {
		conv, err := m.load(ctx, ref)
		if err != nil {
			return err
		}
		out, err = m.apply(ctx, conv, fn)
		return err
	})
	return out, err
}

// UpdateExisting is Update for a stored record addressed by key.
// Returns domain.ErrNotFound instead of creating the record.
func (m *Manager) UpdateExisting(ctx context.Context, key string, fn func(*domain.Conversation) error) (*domain.Conversation, error) {
	var out *domain.Conversation
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		conv, err := m.repo.LoadConversation(ctx, key)
		if err != nil {
			return err
		}
		out, err = m.apply(ctx, conv, fn)
		return err
	})
	return out, err
}

// apply must run under the conversation lock.
func (m *Manager) apply(ctx context.Context, conv *domain.Conversation, fn func(*domain.Conversation) error) (*domain.Conversation, error) {
	if err := fn(conv); err != nil {
		if errors.Is(err, ErrSkipSave) {
			return conv.Snapshot(), nil
		}
		return nil, err
	}
	conv.UpdatedAt = m.clock()
	if err := m.repo.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv.Snapshot(), nil
}

// Delete removes the conversation record.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.repo.DeleteConversation(ctx, key)
	})
}

// List returns the keys of every stored conversation.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.repo.ListConversations(ctx)
}

// Repository returns the underlying typed repository.
func (m *Manager) Repository() *persistence.Repository {
	return m.repo
}

func (m *Manager) load(ctx context.Context, ref domain.ConversationRef) (*domain.Conversation, error) {
	conv, err := m.repo.LoadConversation(ctx, ref.Key())
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewConversation(ref), nil
	}
	if err != nil {
		return nil, err
	}
	// A contact's phone may have been updated since the record was written.
	if ref.Phone != "" {
		conv.Phone = ref.Phone
	}
	if ref.ContactID != "" {
		conv.ContactID = ref.ContactID
	}
	return conv, nil
}
