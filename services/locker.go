package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"reservation-system/apperror"
	"reservation-system/config"
	"reservation-system/utils"
)

// RedisLocker implements Locker with SETNX leases so the check-and-commit
// sections stay serialized across processes, not just goroutines.
type RedisLocker struct {
	redis *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
}

func NewRedisLocker(redisClient *redis.Client, cfg *config.Config) *RedisLocker {
	return &RedisLocker{
		redis: redisClient,
		ttl:   cfg.LockTTL,
		wait:  cfg.LockWait,
		retry: cfg.LockRetry,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	token, err := utils.GenerateCode(8)
	if err != nil {
		return err
	}

	lockKey := fmt.Sprintf("lock:%s", key)
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.redis.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return apperror.Wrap(apperror.KindUnreachable, "lock store unavailable", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return apperror.Newf(apperror.KindConflict, "could not acquire lock for %s", key)
		}
		select {
		case <-ctx.Done():
			return apperror.Wrap(apperror.KindTimeout, "lock wait cancelled", ctx.Err())
		case <-time.After(l.retry):
		}
	}

	defer l.release(ctx, lockKey, token)

	return fn()
}

// release only deletes the lease if we still own it; an expired lease may
// already belong to another holder.
func (l *RedisLocker) release(ctx context.Context, lockKey, token string) {
	current, err := l.redis.Get(ctx, lockKey).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("lock release check failed", "key", lockKey, "error", err)
		}
		return
	}
	if current != token {
		return
	}
	if err := l.redis.Del(ctx, lockKey).Err(); err != nil {
		slog.Warn("lock release failed", "key", lockKey, "error", err)
	}
}
