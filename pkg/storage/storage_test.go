package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "main/blocklist:collection"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// runStoreContract exercises the Store contract: absent key, roundtrip,
// replacement.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	value, err := store.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, value, "absent key must yield nil without error")

	require.NoError(t, store.Store(ctx, testKey, []byte(`{"records": []}`)))
	value, err = store.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"records": []}`), value)

	require.NoError(t, store.Store(ctx, testKey, []byte("replacement")))
	value, err = store.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("replacement"), value)

	value, err = store.Retrieve(ctx, "other/unrelated:collection")
	require.NoError(t, err)
	assert.Nil(t, value, "keys must not collide")
}

func TestDummyStore(t *testing.T) {
	ctx := context.Background()
	store := NewDummyStore()

	require.NoError(t, store.Store(ctx, testKey, []byte("ignored")))

	value, err := store.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, value, "dummy store reports every key as absent")
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := []byte("immutable")
	require.NoError(t, store.Store(ctx, testKey, original))
	original[0] = 'X'

	value, err := store.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), value)

	value[0] = 'Y'
	again, err := store.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), again)
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(FileOptions{Root: t.TempDir(), Logger: quietLogger()})
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestFileStoreRequiresRoot(t *testing.T) {
	_, err := NewFileStore(FileOptions{Logger: quietLogger()})
	require.Error(t, err)
}

func TestFileStoreEscapesKeys(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(FileOptions{Root: root, Logger: quietLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "bucket/collection:collection", []byte("v")))

	// The key must map to a single file directly under the root, not a
	// nested path.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir())
}

func TestFileStoreLeavesNoTempFilesBehind(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(FileOptions{Root: root, Logger: quietLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Store(ctx, testKey, []byte("one")))
	require.NoError(t, store.Store(ctx, testKey, []byte("two")))

	matches, err := filepath.Glob(filepath.Join(root, ".settsync-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
