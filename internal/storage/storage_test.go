package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dgellow/rest-api-import/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newTestEncryptor(t *testing.T) crypto.Encryptor {
	t.Helper()
	enc, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)
	return enc
}

// backends returns every locally testable Storage, each wired to the clock
func backends(t *testing.T, c *clock) map[string]Storage {
	t.Helper()

	mem := NewMemoryStorage()
	mem.now = c.now

	sqlite, err := NewSQLiteStorage(":memory:", newTestEncryptor(t))
	require.NoError(t, err)
	sqlite.now = c.now
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Storage{
		"memory": mem,
		"sqlite": sqlite,
	}
}

func TestStorage_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	for name, store := range backends(t, c) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "rai_auth_key")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, "rai_auth_key", "abc", 5184000*time.Second))

			value, err := store.Get(ctx, "rai_auth_key")
			require.NoError(t, err)
			assert.Equal(t, "abc", value)

			// Overwrite replaces the value
			require.NoError(t, store.Set(ctx, "rai_auth_key", "def", time.Hour))
			value, err = store.Get(ctx, "rai_auth_key")
			require.NoError(t, err)
			assert.Equal(t, "def", value)

			require.NoError(t, store.Delete(ctx, "rai_auth_key"))
			_, err = store.Get(ctx, "rai_auth_key")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting again is not an error
			assert.NoError(t, store.Delete(ctx, "rai_auth_key"))
		})
	}
}

func TestStorage_Expiry(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := &clock{t: start}
	for name, store := range backends(t, c) {
		t.Run(name, func(t *testing.T) {
			c.t = start

			require.NoError(t, store.Set(ctx, "short", "v1", time.Minute))
			require.NoError(t, store.Set(ctx, "long", "v2", time.Hour))
			require.NoError(t, store.Set(ctx, "forever", "v3", 0))

			c.t = start.Add(2 * time.Minute)

			_, err := store.Get(ctx, "short")
			assert.ErrorIs(t, err, ErrNotFound, "expired entries are absent before cleanup")

			value, err := store.Get(ctx, "long")
			require.NoError(t, err)
			assert.Equal(t, "v2", value)

			count, err := store.CleanupExpired(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			c.t = start.Add(24 * 365 * time.Hour)
			value, err = store.Get(ctx, "forever")
			require.NoError(t, err)
			assert.Equal(t, "v3", value)

			count, err = store.CleanupExpired(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "only the hour-long entry is left to purge")
		})
	}
}

func TestSQLiteStorage_EncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStorage(":memory:", newTestEncryptor(t))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "rai_auth_key", "plain-access-token", time.Hour))

	var raw string
	require.NoError(t, store.db.QueryRow(`SELECT value FROM kv_entries WHERE key = ?`, "rai_auth_key").Scan(&raw))
	assert.NotEqual(t, "plain-access-token", raw)
	assert.NotContains(t, raw, "plain-access-token")
}

func TestSQLiteStorage_Persists(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/tokens.db"
	enc := newTestEncryptor(t)

	store, err := NewSQLiteStorage(path, enc)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "rai_auth_key", "abc", time.Hour))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStorage(path, enc)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "rai_auth_key")
	require.NoError(t, err)
	assert.Equal(t, "abc", value)
}

func TestSQLiteStorageConfig(t *testing.T) {
	_, err := NewSQLiteStorage(":memory:", nil)
	assert.ErrorContains(t, err, "encryptor is required")

	_, err = NewSQLiteStorage("  ", newTestEncryptor(t))
	assert.ErrorContains(t, err, "path is required")
}

func TestFirestoreStorageConfig(t *testing.T) {
	ctx := context.Background()
	encryptor := newTestEncryptor(t)

	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreStorage(ctx, "", "(default)", "tokens", encryptor)
		assert.ErrorContains(t, err, "projectID is required")
	})

	t.Run("nil encryptor", func(t *testing.T) {
		_, err := NewFirestoreStorage(ctx, "test-project", "(default)", "tokens", nil)
		assert.ErrorContains(t, err, "encryptor is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreStorage(ctx, "test-project", "(default)", "", encryptor)
		assert.ErrorContains(t, err, "collection is required")
	})
}

func TestDocID(t *testing.T) {
	assert.Equal(t, docID("rai_auth_key"), docID("rai_auth_key"))
	assert.NotEqual(t, docID("rai_auth_key"), docID("other"))
	assert.NotContains(t, docID("a/b"), "/")
}

func TestCleanupManager(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStorage()
	store.now = c.now

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", "1", time.Second))
	require.NoError(t, store.Set(ctx, "b", "2", time.Hour))
	c.t = c.t.Add(time.Minute)

	cm := NewCleanupManager(store, time.Hour)
	assert.Equal(t, 1, cm.Cleanup(ctx))
	assert.Equal(t, 0, cm.Cleanup(ctx))
}

func TestCleanupManager_RunStopsOnCancel(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStorage()
	store.now = c.now
	require.NoError(t, store.Set(context.Background(), "a", "1", time.Second))
	c.t = c.t.Add(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewCleanupManager(store, time.Hour).Run(ctx) }()

	// The initial purge runs before the first tick
	require.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		return len(store.entries) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
