package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventLog remembers handled event ids for a limited time.
type RedisEventLog struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisEventLog(r *RedisClient, prefix string, ttl time.Duration) *RedisEventLog {
	return &RedisEventLog{client: r.Client, prefix: prefix, ttl: ttl}
}

func (l *RedisEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisEventLog) Mark(ctx context.Context, eventID string) error {
	return l.client.Set(ctx, l.key(eventID), time.Now().Unix(), l.ttl).Err()
}

func (l *RedisEventLog) key(eventID string) string {
	return l.prefix + eventID
}
