package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{data: make(map[string]string)}
}

func (f *fakeTokenStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeTokenStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (f *fakeTokenStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeTokenStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func (f *fakeTokenStore) stored(accessID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[f.AccessSessionKey(accessID)]
	return val, ok
}

func newTestManager() (*Manager, *fakeTokenStore) {
	store := newFakeTokenStore()
	return &Manager{store: store, ttl: time.Hour}, store
}

func TestManagerGenerate(t *testing.T) {
	manager, store := newTestManager()
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	stored, ok := store.stored("access-123")
	require.True(t, ok)
	assert.Equal(t, token, stored)

	_, err = manager.Generate(ctx, "  ")
	require.Error(t, err)
}

func TestManagerRotate(t *testing.T) {
	manager, store := newTestManager()
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-123")
	require.NoError(t, err)

	t.Run("mismatched token", func(t *testing.T) {
		_, _, err := manager.Rotate(ctx, "access-123", "wrong")
		assert.True(t, errors.Is(err, ErrInvalidRefreshToken))
	})

	t.Run("unknown access id", func(t *testing.T) {
		_, _, err := manager.Rotate(ctx, "never-issued", token)
		assert.True(t, errors.Is(err, ErrInvalidRefreshToken))
	})

	t.Run("valid rotation replaces the pair", func(t *testing.T) {
		newAccessID, newToken, err := manager.Rotate(ctx, "access-123", token)
		require.NoError(t, err)
		require.NotEqual(t, "access-123", newAccessID)
		require.NotEqual(t, token, newToken)

		_, ok := store.stored("access-123")
		assert.False(t, ok, "old mapping should be deleted")

		stored, ok := store.stored(newAccessID)
		require.True(t, ok)
		assert.Equal(t, newToken, stored)
	})
}

func TestManagerRevokeAndHasSession(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	_, err := manager.Generate(ctx, "access-456")
	require.NoError(t, err)

	active, err := manager.HasSession(ctx, "access-456")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, manager.Revoke(ctx, "access-456"))

	active, err = manager.HasSession(ctx, "access-456")
	require.NoError(t, err)
	assert.False(t, active)
}
