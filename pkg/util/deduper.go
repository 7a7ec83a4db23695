package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 基于 Redis SETNX 的一次性锁，用于多实例下只执行一次的定时任务
type Deduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true only for the first caller of key within ttl.
func (d *Deduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, "dedup:"+key, 1, d.ttl).Result()
	if err != nil {
		// Redis 不可用时不阻止处理，下游通知队列本身会去重
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated run", zap.String("dedup_key", key))
	}
	return ok
}

// Release 处理失败时释放，允许重投的消息再次处理
func (d *Deduper) Release(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, "dedup:"+key).Err(); err != nil {
		d.logger.Warn("Redis dedup release failed", zap.String("key", key), zap.Error(err))
	}
}
