package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.StateStore, cfg middleware.EncryptionConfig) ports.StateStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, encrypted(t, NewMockStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := NewMockStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	doc := []byte(`{"context":{"door_code":"4521"}}`)
	require.NoError(t, secure.Save(ctx, domain.CollectionConversations, "contact_amy", doc))

	raw, err := underlying.Load(ctx, domain.CollectionConversations, "contact_amy")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "4521")
	assert.Contains(t, string(raw), "__encrypted__")

	loaded, err := secure.Load(ctx, domain.CollectionConversations, "contact_amy")
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := NewMockStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, oldStore.Save(ctx, domain.CollectionContacts, "c", []byte(`"old"`)))

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := newStore.Load(ctx, domain.CollectionContacts, "c")
	require.NoError(t, err)
	assert.Equal(t, `"old"`, string(loaded))

	require.NoError(t, newStore.Save(ctx, domain.CollectionContacts, "c", []byte(`"new"`)))
	_, err = oldStore.Load(ctx, domain.CollectionContacts, "c")
	assert.Error(t, err, "old key alone cannot read new-key documents")
}

func TestEncryptionMiddleware_RejectsPlainDocuments(t *testing.T) {
	underlying := NewMockStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, domain.CollectionContacts, "c", []byte(`{"name":"Amy"}`)))

	_, err := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).
		Load(ctx, domain.CollectionContacts, "c")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("x")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}

func TestDecodeKey(t *testing.T) {
	k := generateKey(t)
	got, err := middleware.DecodeKey(base64.StdEncoding.EncodeToString(k))
	require.NoError(t, err)
	assert.Equal(t, k, got)

	_, err = middleware.DecodeKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
	_, err = middleware.DecodeKey("not base64!")
	assert.Error(t, err)
}
