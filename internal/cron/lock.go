package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 4 * time.Minute

// Lock coordinates exclusive cron runs. Extend renews a held lease and
// reports false once another instance owns it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a single-owner lease in Redis. The TTL bounds how long a
// crashed worker can block the next cycle.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis store required")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire takes the lease with a fresh owner token.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Extend pushes the lease expiry out by the full TTL.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	owned, err := l.owned(ctx)
	if err != nil || !owned {
		return false, err
	}
	ok, err := l.client.Expire(ctx, l.key, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend lock: %w", err)
	}
	if !ok {
		l.owner = ""
	}
	return ok, nil
}

// Release deletes the lease only while this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	owned, err := l.owned(ctx)
	if err != nil || !owned {
		return err
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}

func (l *RedisLock) owned(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return false, nil
		}
		return false, fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return false, nil
	}
	return true, nil
}
