package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "settsync.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newTestSQLiteStore(t))
}

func TestSQLiteStoreSharesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settsync.db")
	ctx := context.Background()

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, testKey, []byte("shared")))

	// A second store over the same handle sees the same data; the schema
	// bootstrap is idempotent.
	again, err := NewSQLiteStore(db)
	require.NoError(t, err)

	value, err := again.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), value)
}

func TestSQLiteStoreEmptyValueIsNotAbsent(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, testKey, []byte{}))

	value, err := store.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.NotNil(t, value)
	assert.Empty(t, value)
}
