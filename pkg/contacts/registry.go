// Package contacts maintains the registry of known correspondents.
//
// Contacts are held in memory and written through to a StateStore, one
// document per contact, so every mutation is a single store write.
// Deleting a contact does not touch its conversation record; generated IDs
// never reuse the key of a stored conversation, so an orphaned record is not
// inherited by a later contact.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence"
	"github.com/aretw0/parley/pkg/phone"
	"github.com/aretw0/parley/pkg/ports"
)

// IDPrefix starts every generated contact ID.
const IDPrefix = "contact_"

// Registry is safe for concurrent use.
type Registry struct {
	repo   *persistence.Repository
	norm   phone.Normalizer
	logger *slog.Logger

	mu      sync.RWMutex
	byID    map[string]domain.Contact
	byPhone map[string]string
}

// Option configures the Registry.
type Option func(*Registry)

// WithNormalizer sets the phone numbering plan. Defaults to phone.NANP.
func WithNormalizer(n phone.Normalizer) Option {
	return func(r *Registry) {
		r.norm = n
	}
}

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry backed by store. Call Load to read
// previously persisted contacts.
func NewRegistry(store ports.StateStore, opts ...Option) *Registry {
	r := &Registry{
		repo:    persistence.NewRepository(store),
		norm:    phone.NANP,
		logger:  logging.NewNop(),
		byID:    make(map[string]domain.Contact),
		byPhone: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalizer returns the registry's numbering plan.
func (r *Registry) Normalizer() phone.Normalizer {
	return r.norm
}

// Load replaces the in-memory view with the stored contacts.
func (r *Registry) Load(ctx context.Context) error {
	all, err := r.repo.LoadContacts(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]domain.Contact, len(all))
	byPhone := make(map[string]string, len(all))
	for _, c := range all {
		if other, dup := byPhone[c.Phone]; dup {
			r.logger.Warn("Stored contacts share a phone number", "contact_id", c.ID, "other", other, "phone", c.Phone)
		}
		byID[c.ID] = c
		byPhone[c.Phone] = c.ID
	}

	r.mu.Lock()
	r.byID, r.byPhone = byID, byPhone
	r.mu.Unlock()

	r.logger.Debug("Contacts loaded", "count", len(all))
	return nil
}

// Add registers a new contact. The ID is derived from name and made unique
// with a numeric suffix.
func (r *Registry) Add(ctx context.Context, name, rawPhone string) (domain.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Contact{}, fmt.Errorf("%w: name is required", domain.ErrInvalidContact)
	}
	p, err := r.norm.Normalize(rawPhone)
	if err != nil {
		return domain.Contact{}, err
	}

	convs, err := r.repo.ListConversations(ctx)
	if err != nil {
		return domain.Contact{}, err
	}
	reserved := make(map[string]struct{}, len(convs))
	for _, k := range convs {
		reserved[k] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, taken := r.byPhone[p]; taken {
		return domain.Contact{}, fmt.Errorf("%w: %s already belongs to %s", domain.ErrDuplicatePhone, p, holder)
	}

	c := domain.Contact{ID: r.uniqueID(Slug(name), reserved), Name: name, Phone: p}
	if err := r.repo.SaveContact(ctx, c); err != nil {
		return domain.Contact{}, err
	}
	r.byID[c.ID] = c
	r.byPhone[c.Phone] = c.ID

	r.logger.Info("Contact added", "contact_id", c.ID, "phone", c.Phone)
	return c, nil
}

// Changes lists the fields to modify; nil fields are left as they are.
type Changes struct {
	Name  *string
	Phone *string
}

// Update modifies name and/or phone. The ID never changes.
func (r *Registry) Update(ctx context.Context, id string, ch Changes) (domain.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return domain.Contact{}, fmt.Errorf("%w: %s", domain.ErrContactNotFound, id)
	}
	oldPhone := c.Phone

	if ch.Name != nil {
		name := strings.TrimSpace(*ch.Name)
		if name == "" {
			return domain.Contact{}, fmt.Errorf("%w: name is required", domain.ErrInvalidContact)
		}
		c.Name = name
	}
	if ch.Phone != nil {
		p, err := r.norm.Normalize(*ch.Phone)
		if err != nil {
			return domain.Contact{}, err
		}
		if holder, taken := r.byPhone[p]; taken && holder != id {
			return domain.Contact{}, fmt.Errorf("%w: %s already belongs to %s", domain.ErrDuplicatePhone, p, holder)
		}
		c.Phone = p
	}

	if err := r.repo.SaveContact(ctx, c); err != nil {
		return domain.Contact{}, err
	}
	delete(r.byPhone, oldPhone)
	r.byID[id] = c
	r.byPhone[c.Phone] = id

	r.logger.Info("Contact updated", "contact_id", id, "phone", c.Phone)
	return c, nil
}

// Delete removes a contact and returns it.
func (r *Registry) Delete(ctx context.Context, id string) (domain.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return domain.Contact{}, fmt.Errorf("%w: %s", domain.ErrContactNotFound, id)
	}
	if err := r.repo.DeleteContact(ctx, id); err != nil {
		return domain.Contact{}, fmt.Errorf("failed to delete contact %s: %w", id, err)
	}
	delete(r.byID, id)
	if r.byPhone[c.Phone] == id {
		delete(r.byPhone, c.Phone)
	}

	r.logger.Info("Contact deleted", "contact_id", id)
	return c, nil
}

// Resolve returns the contact with the given ID.
func (r *Registry) Resolve(id string) (domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return domain.Contact{}, fmt.Errorf("%w: %s", domain.ErrContactNotFound, id)
	}
	return c, nil
}

// FindByPhone normalizes raw before lookup; input that does not normalize
// is looked up verbatim.
func (r *Registry) FindByPhone(raw string) (domain.Contact, bool) {
	p := r.norm.Canonical(raw)

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[p]
	if !ok {
		return domain.Contact{}, false
	}
	return r.byID[id], true
}

// List returns every contact sorted by ID.
func (r *Registry) List() []domain.Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Contact, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// uniqueID skips live contact IDs and the reserved conversation keys.
// It must be called with r.mu held.
func (r *Registry) uniqueID(slug string, reserved map[string]struct{}) string {
	base := IDPrefix + slug
	id := base
	for n := 1; ; n++ {
		_, taken := r.byID[id]
		_, orphaned := reserved[id]
		if !taken && !orphaned {
			return id
		}
		id = base + "_" + strconv.Itoa(n)
	}
}

// Slug lowercases name and collapses every run of characters other than
// letters and digits into a single underscore.
func Slug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
