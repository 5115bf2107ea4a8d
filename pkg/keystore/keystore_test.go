package keystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/telemetry/events"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore([]*auth.KeyRecord{
		{Key: "h1", User: "alice", Environments: []string{"dev"}},
		{Key: "", User: "ignored"},
		nil,
	})
	assert.Equal(t, 1, store.Len())

	rec, err := store.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.User)

	// Callers get copies.
	rec.Environments[0] = "prod"
	again, err := store.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev"}, again.Environments)

	_, err = store.FindByHash(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)

	store.Replace([]*auth.KeyRecord{{Key: "h2", User: "bob"}})
	assert.Equal(t, 1, store.Len())
	rec, err = store.FindByHash(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.User)

	_, err = store.FindByHash(ctx, "h1")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore(nil).FindByHash(ctx, "h1")
	assert.ErrorIs(t, err, context.Canceled)
}

const keyFileV1 = `
keys:
  - key: "hash-one"
    user: alice
    environments: ["dev", "test"]
    origins: ["https://app.example.com"]
`

const keyFileV2 = `
keys:
  - key: "hash-two"
    user: bob
    environments: ["*"]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileStore_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	writeFile(t, path, keyFileV1)

	store, err := NewFileStore(path)
	require.NoError(t, err)

	rec, err := store.FindByHash(context.Background(), "hash-one")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.User)
	assert.Equal(t, []string{"dev", "test"}, rec.Environments)
	assert.Equal(t, []string{"https://app.example.com"}, rec.Origins)
}

func TestFileStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileStore(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "keys: [unterminated")
	_, err = NewFileStore(bad)
	assert.Error(t, err)

	noKey := filepath.Join(dir, "nokey.yaml")
	writeFile(t, noKey, "keys:\n  - user: alice\n")
	_, err = NewFileStore(noKey)
	assert.ErrorContains(t, err, "has no key")
}

func TestFileStore_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	writeFile(t, path, keyFileV1)

	rec := events.NewRecorder(8)
	store, err := NewFileStore(path, WithDebounce(20*time.Millisecond), WithObserver(rec))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, keyFileV2)

	require.Eventually(t, func() bool {
		_, err := store.FindByHash(context.Background(), "hash-two")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	_, err = store.FindByHash(context.Background(), "hash-one")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)

	// A broken file keeps the previous keys and reports the failure.
	writeFile(t, path, "keys: [unterminated")
	require.Eventually(t, func() bool {
		for _, ev := range rec.Events() {
			if ev.Kind == events.KindKeysReloadFailed {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	_, err = store.FindByHash(context.Background(), "hash-two")
	assert.NoError(t, err)
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// Schema belongs to the key issuing tooling; tests create it themselves.
	require.NoError(t, store.db.AutoMigrate(&KeyRow{}))
	return store
}

func TestSQLStore_FindByHash(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.db.Create(&KeyRow{
		Key:          "$2b$10$abcdefghijklmnopqrstuuhashhashhashhashhashhashhash",
		User:         "carol",
		Environments: []string{"prod", "*"},
		Origins:      []string{"https://carol.example"},
	}).Error)

	rec, err := store.FindByHash(ctx, "$2b$10$abcdefghijklmnopqrstuuhashhashhashhashhashhashhash")
	require.NoError(t, err)
	assert.Equal(t, "carol", rec.User)
	assert.Equal(t, []string{"prod", "*"}, rec.Environments)
	assert.Equal(t, []string{"https://carol.example"}, rec.Origins)

	_, err = store.FindByHash(ctx, "unknown")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)

	_, err = store.FindByHash(ctx, "")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)

	assert.NoError(t, store.Ping(ctx))
}

func TestSQLStore_MissingTableIsNotNotFound(t *testing.T) {
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.FindByHash(context.Background(), "h")
	require.Error(t, err)
	assert.False(t, errors.Is(err, auth.ErrKeyNotFound), "a broken store must not look like an unknown key")
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{Keys: []*auth.KeyRecord{{Key: "h", User: "u", Environments: []string{"*"}}}})
	require.NoError(t, err)
	_, err = s.FindByHash(context.Background(), "h")
	assert.NoError(t, err)
	assert.NoError(t, s.Close())

	path := filepath.Join(t.TempDir(), "keys.yaml")
	writeFile(t, path, keyFileV1)
	s, err = Open(Config{Backend: BackendFile, Path: path})
	require.NoError(t, err)
	_, ok := s.(*FileStore)
	assert.True(t, ok)

	_, err = Open(Config{Backend: "mongo"})
	assert.ErrorContains(t, err, "unsupported")
}
