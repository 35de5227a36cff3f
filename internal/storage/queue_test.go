package storage

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedis 连接测试用 Redis；不可用时跳过
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: getEnvOrDefault("NEWSHUB_TEST_REDIS", "localhost:6379"), DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Skipping test: unable to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisQueuePublishThenDrain(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	table := "queue_test_" + time.Now().Format("150405.000000")
	t.Cleanup(func() { rdb.Del(context.Background(), IngestQueueKey(table)) })

	q := NewRedisQueue(rdb)
	if err := q.Publish(ctx, table, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, table, nil); err != nil {
		t.Fatalf("empty publish: %v", err)
	}

	ttl, err := rdb.TTL(ctx, IngestQueueKey(table)).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected a ttl on the queue, got %v (%v)", ttl, err)
	}

	got, err := q.Drain(ctx, table, 2)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected fifo order [a b], got %v", got)
	}

	// 取空后返回剩余部分，不报错
	got, err = q.Drain(ctx, table, 5)
	if err != nil {
		t.Fatalf("drain rest: %v", err)
	}
	if len(got) != 1 || got[0] != "c" {
		t.Fatalf("expected [c], got %v", got)
	}
}

func TestStoreQueueNilWithoutRedis(t *testing.T) {
	s := &Store{}
	if s.Queue() != nil {
		t.Fatalf("expected nil publisher without redis")
	}
}
