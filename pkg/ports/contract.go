package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	id := "contract-" + time.Now().Format("20060102150405.000000000")

	t.Run("Save and Load", func(t *testing.T) {
		doc := []byte(`{"name":"Ada","phone":"+12125550100"}`)

		err := store.Save(ctx, domain.CollectionContacts, id, doc)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, domain.CollectionContacts, id)
		require.NoError(t, err, "Load should not return error")
		assert.JSONEq(t, string(doc), string(loaded))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.CollectionContacts, id, []byte(`{"v":1}`)))
		require.NoError(t, store.Save(ctx, domain.CollectionContacts, id, []byte(`{"v":2}`)))

		loaded, err := store.Load(ctx, domain.CollectionContacts, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(loaded))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.CollectionContacts, "non-existent-"+id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Collections Are Isolated", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.CollectionConversations, id, []byte(`{"c":true}`)))

		contact, err := store.Load(ctx, domain.CollectionContacts, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(contact))

		conv, err := store.Load(ctx, domain.CollectionConversations, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"c":true}`, string(conv))
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, domain.CollectionContacts, id)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, domain.CollectionContacts, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Load after Delete should return ErrNotFound")

		// Deleting twice is fine.
		assert.NoError(t, store.Delete(ctx, domain.CollectionContacts, id))

		_ = store.Delete(ctx, domain.CollectionConversations, id)
	})

	t.Run("List", func(t *testing.T) {
		id1 := id + "-1"
		id2 := id + "-2"
		require.NoError(t, store.Save(ctx, domain.CollectionConversations, id1, []byte(`{}`)))
		require.NoError(t, store.Save(ctx, domain.CollectionConversations, id2, []byte(`{}`)))

		defer func() {
			_ = store.Delete(ctx, domain.CollectionConversations, id1)
			_ = store.Delete(ctx, domain.CollectionConversations, id2)
		}()

		ids, err := store.List(ctx, domain.CollectionConversations)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)

		others, err := store.List(ctx, domain.CollectionIngest)
		require.NoError(t, err)
		assert.NotContains(t, others, id1)
	})

	t.Run("Phone Keys", func(t *testing.T) {
		key := "+1212" + id[len(id)-6:]
		require.NoError(t, store.Save(ctx, domain.CollectionConversations, key, []byte(`{"p":1}`)))
		defer func() { _ = store.Delete(ctx, domain.CollectionConversations, key) }()

		loaded, err := store.Load(ctx, domain.CollectionConversations, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"p":1}`, string(loaded))

		ids, err := store.List(ctx, domain.CollectionConversations)
		require.NoError(t, err)
		assert.Contains(t, ids, key)
	})
}
