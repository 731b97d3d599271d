package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.StateStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.CollectionConversations, "a/b", []byte(`{}`)))

	_, err := os.Stat(filepath.Join(dir, "conversations", "a%2Fb.json"))
	require.NoError(t, err, "separators are escaped into a single file")

	ids, err := store.List(ctx, domain.CollectionConversations)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, ids)
}

func TestFileStore_ListIgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.CollectionContacts, "contact_amy", []byte(`{}`)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contacts", "tmp-123.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contacts", "notes.txt"), []byte("x"), 0o644))

	ids, err := store.List(ctx, domain.CollectionContacts)
	require.NoError(t, err)
	assert.Equal(t, []string{"contact_amy"}, ids)
}

func TestFileStore_ListMissingCollection(t *testing.T) {
	ids, err := file.New(t.TempDir()).List(context.Background(), domain.CollectionIngest)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_EmptyID(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, domain.CollectionContacts, "", []byte(`{}`)))
	_, err := store.Load(ctx, domain.CollectionContacts, "")
	assert.Error(t, err)
}
