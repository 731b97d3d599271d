package postgres_test

import (
	"os"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/postgres"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/require"
)

var _ ports.StateStore = (*postgres.Store)(nil)

func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("PARLEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARLEY_TEST_POSTGRES_DSN not set")
	}

	store, err := postgres.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ports.RunStateStoreContract(t, store)
}
