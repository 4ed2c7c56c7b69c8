package tokenstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/tokenstore"
)

func newTestStore(t *testing.T) *tokenstore.SQLiteStore {
	t.Helper()
	store, err := tokenstore.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreLoadMissingKeyReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	balance, found, err := store.Load(context.Background(), "session-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, balance)
}

func TestSQLiteStoreSaveThenLoadRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "session-1", 42))
	balance, found, err := store.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), balance)
}

func TestSQLiteStoreSaveOverwritesExistingBalance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "session-1", 42))
	require.NoError(t, store.Save(ctx, "session-1", 7))

	balance, found, err := store.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), balance)
}
