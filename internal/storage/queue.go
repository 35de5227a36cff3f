package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ingestQueuePrefix = "newshub:ingest:"
	// 队列最多保留的键数量，防止没有消费者时无限增长
	ingestQueueMax = 10000
	ingestQueueTTL = 7 * 24 * time.Hour
)

// RedisQueue 把新入库文章的去重键推入 Redis 列表，供下游（翻译、推送等）消费
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// Queue 没有配置 Redis 时返回 nil
func (s *Store) Queue() Publisher {
	if s.Redis == nil {
		return nil
	}
	return NewRedisQueue(s.Redis)
}

func IngestQueueKey(table string) string {
	return ingestQueuePrefix + table
}

func (q *RedisQueue) Publish(ctx context.Context, table string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	vals := make([]any, len(keys))
	for i, k := range keys {
		vals[i] = k
	}
	key := IngestQueueKey(table)
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, key, vals...)
	pipe.LTrim(ctx, key, 0, ingestQueueMax-1)
	pipe.Expire(ctx, key, ingestQueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}
	return nil
}

// Drain 取出最多 n 个待处理的键（先入先出）
func (q *RedisQueue) Drain(ctx context.Context, table string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	key := IngestQueueKey(table)
	out := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		v, err := q.rdb.RPop(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
