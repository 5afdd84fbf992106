package cache

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockNotObtained is returned when a key stays locked after all retries.
var ErrLockNotObtained = errors.New("lock not obtained")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring locks on string keys.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type LockOptions struct {
	Retries int
	Backoff time.Duration
}

type RedisLocker struct {
	client *redislock.Client
	opts   LockOptions
}

func NewRedisLocker(r *RedisClient, opts LockOptions) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(r.Client),
		opts:   opts,
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	var strategy redislock.RetryStrategy = redislock.NoRetry()
	if l.opts.Retries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(l.opts.Backoff), l.opts.Retries)
	}

	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ObtainAll locks every key in sorted order so that callers locking
// overlapping key sets cannot deadlock. On failure the locks already held are
// released. The returned func releases everything in reverse order.
func ObtainAll(ctx context.Context, l Locker, keys []string, ttl time.Duration) (func(context.Context), error) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	held := make([]Lock, 0, len(sorted))
	release := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Release(ctx)
		}
	}

	for _, k := range sorted {
		lock, err := l.Obtain(ctx, k, ttl)
		if err != nil {
			release(ctx)
			return nil, err
		}
		held = append(held, lock)
	}
	return release, nil
}
