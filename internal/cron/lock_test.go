package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values     map[string]string
	releaseErr error
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.releaseErr != nil {
		return false, m.releaseErr
	}
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "mk:lock:cron-worker", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "mk:lock:cron-worker", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// a non-owner release leaves the key alone
	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "mk:lock:cron-worker")

	require.NoError(t, first.Release(ctx))
	assert.Empty(t, store.values)
	require.NoError(t, first.Release(ctx))
}

func TestRedisLockLeavesSuccessorsToken(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "mk:lock:cron-worker", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// the TTL expired and another worker took over
	store.values["mk:lock:cron-worker"] = "successor"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "successor", store.values["mk:lock:cron-worker"])
}

func TestRedisLockReleaseError(t *testing.T) {
	store := &memoryStore{values: map[string]string{}, releaseErr: errors.New("conn reset")}
	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)

	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	err = lock.Release(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn reset")
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryStore{}, "", 0)
	assert.Error(t, err)
}
