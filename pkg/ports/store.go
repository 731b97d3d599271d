package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// StateStore defines the interface for durable document persistence.
// A single Save is the unit of atomicity: callers encode one logical operation
// into one document write.
type StateStore interface {
	// Save persists the document under (collection, id), replacing any previous value.
	Save(ctx context.Context, collection domain.Collection, id string, doc []byte) error

	// Load retrieves a document.
	// Returns domain.ErrNotFound if the document does not exist.
	Load(ctx context.Context, collection domain.Collection, id string) ([]byte, error)

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection domain.Collection, id string) error

	// List returns the IDs stored in a collection.
	List(ctx context.Context, collection domain.Collection) ([]string, error)
}
