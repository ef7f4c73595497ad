// Package lease guards job processing with short-lived Redis locks
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "publish:lease:"

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// ReleaseFunc gives a lease back. Releasing an expired or foreign lease is a no-op.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out per-job leases stored as SET NX keys holding a random token
type Locker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewLocker creates a Locker
func NewLocker(client *redis.Client, prefix string, logger *slog.Logger) *Locker {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Locker{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Acquire takes the lease for jobID. ok is false when another holder has it.
func (l *Locker) Acquire(ctx context.Context, jobID string, ttl time.Duration) (ReleaseFunc, bool, error) {
	key := l.prefix + jobID
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lease: %w", err)
		}
		if n == 0 {
			l.logger.Warn("Lease expired before release",
				slog.String("job_id", jobID),
				slog.String("key", key),
			)
		}
		return nil
	}

	return release, true, nil
}

// Ping checks the Redis connection
func (l *Locker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
