//go:build integration

package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/testhelpers"
)

func TestRedisRunLocker(t *testing.T) {
	client := testhelpers.GetRedisClient(t)
	ctx := context.Background()
	pid := uuid.New()

	first := NewRedisRunLocker(client, 0, zap.NewNop())
	second := NewRedisRunLocker(client, 0, zap.NewNop())

	unlock, err := first.Lock(ctx, pid)
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, RunLockKey(pid)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	_, err = second.Lock(ctx, pid)
	assert.ErrorIs(t, err, apperrors.ErrRunActive)

	other, err := second.Lock(ctx, uuid.New())
	require.NoError(t, err)
	other()

	unlock()
	exists, err := client.Exists(ctx, RunLockKey(pid)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	unlock, err = second.Lock(ctx, pid)
	require.NoError(t, err)
	unlock()
}

func TestRedisRunLocker_ReleaseKeepsForeignLock(t *testing.T) {
	client := testhelpers.GetRedisClient(t)
	ctx := context.Background()
	pid := uuid.New()
	locker := NewRedisRunLocker(client, 0, zap.NewNop())

	unlock, err := locker.Lock(ctx, pid)
	require.NoError(t, err)

	// Simulate the lock expiring and another instance taking it over.
	require.NoError(t, client.Set(ctx, RunLockKey(pid), "other-instance", 0).Err())
	unlock()

	value, err := client.Get(ctx, RunLockKey(pid)).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-instance", value)
}
