package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

func TestLocalRunLocker(t *testing.T) {
	locker := NewLocalRunLocker()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	unlock, err := locker.Lock(ctx, a)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, a)
	assert.ErrorIs(t, err, apperrors.ErrRunActive)

	unlockB, err := locker.Lock(ctx, b)
	require.NoError(t, err, "projects are locked independently")
	unlockB()

	unlock()
	unlock2, err := locker.Lock(ctx, a)
	require.NoError(t, err)
	unlock2()
}

func TestRunLockKey(t *testing.T) {
	id := uuid.MustParse("6f1c1d4e-8a51-4c39-9f5e-1d3f1f7a2b10")
	assert.Equal(t, "linkage:run:6f1c1d4e-8a51-4c39-9f5e-1d3f1f7a2b10", RunLockKey(id))
}
