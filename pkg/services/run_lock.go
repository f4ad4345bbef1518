package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

// DefaultRunLockTTL bounds how long a crashed run can hold a project's lock.
const DefaultRunLockTTL = 10 * time.Minute

// RunLocker allows one validation run per project at a time. Lock fails with
// apperrors.ErrRunActive when another run holds the project.
type RunLocker interface {
	Lock(ctx context.Context, projectID uuid.UUID) (unlock func(), err error)
}

// localRunLocker serialises runs within one process.
type localRunLocker struct {
	mu     sync.Mutex
	active map[uuid.UUID]bool
}

// NewLocalRunLocker creates an in-process RunLocker.
func NewLocalRunLocker() RunLocker {
	return &localRunLocker{active: make(map[uuid.UUID]bool)}
}

func (l *localRunLocker) Lock(_ context.Context, projectID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[projectID] {
		return nil, apperrors.ErrRunActive
	}
	l.active[projectID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.active, projectID)
	}, nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// redisRunLocker serialises runs across server instances sharing a Redis.
type redisRunLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRunLocker creates a RunLocker backed by Redis SET NX.
func NewRedisRunLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) RunLocker {
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}
	return &redisRunLocker{
		client: client,
		ttl:    ttl,
		logger: logger.Named("run-lock"),
	}
}

// RunLockKey is the Redis key guarding a project's validation run.
func RunLockKey(projectID uuid.UUID) string {
	return "linkage:run:" + projectID.String()
}

func (l *redisRunLocker) Lock(ctx context.Context, projectID uuid.UUID) (func(), error) {
	key := RunLockKey(projectID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrRunActive
	}

	return func() {
		if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release run lock",
				zap.String("project_id", projectID.String()),
				zap.Error(err))
		}
	}, nil
}
