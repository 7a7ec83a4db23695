package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 跨重投/重放累计失败次数，key 首次递增时设置过期
type RetryCounter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRetryCounter(rdb redis.Cmdable, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

func retryKey(key string) string { return "retry:" + key }

// IncrementAndGet returns the count after incrementing.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	k := retryKey(key)
	count, err := r.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, k, r.ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, retryKey(key)).Err()
}
