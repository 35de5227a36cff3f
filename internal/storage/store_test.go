package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/logger"
	"github.com/LJTian/NewsHub/internal/processor"
)

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newTestStore 连接测试库；数据库不可用时跳过
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := getEnvOrDefault("NEWSHUB_TEST_DSN",
		"host=localhost user=newshub password=newshub dbname=newshub_test port=5432 sslmode=disable TimeZone=UTC")
	s, err := NewStore(dsn, "", logger.Discard())
	if err != nil {
		t.Skipf("Skipping test: unable to connect to database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreWriterAgainstPostgres(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := collector.GNews.Table()

	suffix := time.Now().UnixNano()
	batch := []processor.Article{
		{Provider: collector.GNews, Title: fmt.Sprintf("pg one %d", suffix), SourceName: "A", Link: "https://a/1"},
		{Provider: collector.GNews, Title: fmt.Sprintf("pg two %d", suffix), SourceName: "A", Link: "https://a/2"},
	}
	before, err := s.CountArticles(ctx, table)
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	w := NewWriter(s, nil, logger.Discard())
	if res, err := w.Insert(ctx, table, batch); err != nil || res.Inserted != 2 {
		t.Fatalf("first insert: %+v %v", res, err)
	}
	if res, err := w.Insert(ctx, table, batch); err != nil || res.Inserted != 0 {
		t.Fatalf("second insert: %+v %v", res, err)
	}
	after, _ := s.CountArticles(ctx, table)
	if after-before != 2 {
		t.Fatalf("row delta = %d, want 2", after-before)
	}
}

func TestOverlongNativeIDFitsColumn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := collector.Currents.Table()

	id := fmt.Sprintf("%d-%s", time.Now().UnixNano(), strings.Repeat("z", 300))
	batch := []processor.Article{{Provider: collector.Currents, NativeID: id, Title: "long id", Link: "https://c/1"}}

	w := NewWriter(s, nil, logger.Discard())
	res, err := w.Insert(ctx, table, batch)
	if err != nil || res.Inserted != 1 {
		t.Fatalf("insert with long id: %+v %v", res, err)
	}
	if res, err := w.Insert(ctx, table, batch); err != nil || res.Existing != 1 {
		t.Fatalf("second insert should hit existing key: %+v %v", res, err)
	}
}

func TestRawDuplicateInsertIsClassified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := collector.Currents.Table()
	a := processor.Article{Provider: collector.Currents, NativeID: fmt.Sprintf("dup-%d", time.Now().UnixNano()), Title: "t"}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.InsertArticle(ctx, table, a); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tx.InsertArticle(ctx, table, a); err != ErrDuplicateKey {
		t.Fatalf("second insert = %v, want ErrDuplicateKey", err)
	}
	// 保存点回滚后事务仍可用
	b := a
	b.NativeID += "-b"
	if err := tx.InsertArticle(ctx, table, b); err != nil {
		t.Fatalf("insert after duplicate: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestUsageCountsPerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	list, err := s.ListUsage(ctx, time.Now())
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	var start int
	for _, u := range list {
		if u.Code == "mediastack" {
			start = u.TotalCallsMade
		}
	}

	for i := 0; i < 2; i++ {
		if !s.RecordCall(ctx, "mediastack") {
			t.Fatalf("RecordCall returned false")
		}
	}
	if s.RecordCall(ctx, "bing") {
		t.Fatalf("unknown provider must not be recorded")
	}

	list, err = s.ListUsage(ctx, time.Now())
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	for _, u := range list {
		if u.Code == "mediastack" && u.TotalCallsMade != start+2 {
			t.Fatalf("total calls = %d, want %d", u.TotalCallsMade, start+2)
		}
	}
}

func TestActiveTopics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kw := fmt.Sprintf("topic  %d", time.Now().UnixNano())
	it, err := s.AddInterest(ctx, kw, "Technology", "EN", "us")
	if err != nil {
		t.Fatalf("add interest: %v", err)
	}
	topics, err := s.ListActiveTopics(ctx, it.ID)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 1 || topics[0].Keyword != FormatInterest(kw) || topics[0].Language != "en" {
		t.Fatalf("unexpected topics: %+v", topics)
	}

	if err := s.SetInterestStatus(ctx, it.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	topics, _ = s.ListActiveTopics(ctx, it.ID)
	if len(topics) != 0 {
		t.Fatalf("disabled topic still listed: %+v", topics)
	}
}
