package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/processor"
)

// ArticleRecord 每个数据源一张表，表名即数据源名称，结构相同
type ArticleRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	// 列宽即 processor.MaxNaturalKeyLen
	NaturalKey  string     `gorm:"size:200;not null" json:"naturalKey"`
	NativeID    string     `gorm:"size:256" json:"nativeId"`
	Interest    string     `gorm:"size:256" json:"interest"`
	Title       string     `gorm:"type:text" json:"title"`
	Link        string     `gorm:"type:text" json:"link"`
	Description string     `gorm:"type:text" json:"description"`
	Content     string     `gorm:"type:text" json:"content"`
	Author      string     `gorm:"size:512" json:"author"`
	PublishedAt *time.Time `json:"publishedAt"`
	SourceID    string     `gorm:"size:256" json:"sourceId"`
	SourceName  string     `gorm:"size:256" json:"sourceName"`
	SourceURL   string     `gorm:"size:1024" json:"sourceUrl"`
	Language    string     `gorm:"size:64" json:"language"`
	Country     string     `gorm:"size:512" json:"country"`
	Category    string     `gorm:"size:512" json:"category"`
	// keywords / creator 为 JSON 数组
	Keywords  datatypes.JSON    `gorm:"type:jsonb" json:"keywords"`
	Creator   datatypes.JSON    `gorm:"type:jsonb" json:"creator"`
	ImageURL  *string           `gorm:"type:text" json:"imageUrl"`
	VideoURL  *string           `gorm:"type:text" json:"videoUrl"`
	Sentiment *string           `gorm:"size:64" json:"sentiment"`
	ExtraData datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *slog.Logger
}

func NewStore(dsn, redisAddr string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// 唯一约束冲突翻译为 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	s := &Store{DB: db, logger: logger}
	if err := s.Migrate(); err != nil {
		return nil, err
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		s.Redis = rdb
	}

	return s, nil
}

// Migrate 建表；文章表的唯一索引按表名单独创建，避免不同表的索引重名
func (s *Store) Migrate() error {
	if err := s.DB.AutoMigrate(&APIInfo{}, &APIUsage{}, &APICallRecord{}, &Interest{}); err != nil {
		return err
	}
	for _, p := range collector.All() {
		table := p.Table()
		if err := s.DB.Table(table).AutoMigrate(&ArticleRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
		for _, idx := range []string{
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS "idx_%s_natural_key" ON "%s" (natural_key)`, table, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_%s_interest" ON "%s" (interest)`, table, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_%s_published_at" ON "%s" (published_at)`, table, table),
		} {
			if err := s.DB.Exec(idx).Error; err != nil {
				return fmt.Errorf("index %s: %w", table, err)
			}
		}
		if _, err := s.EnsureAPI(context.Background(), p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断，保证不超过 varchar 长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func toRecord(a processor.Article) ArticleRecord {
	return ArticleRecord{
		NaturalKey:  a.NaturalKey(),
		NativeID:    truncateRunesDB(toValidUTF8(a.NativeID), 256),
		Interest:    truncateRunesDB(toValidUTF8(a.Interest), 256),
		Title:       toValidUTF8(a.Title),
		Link:        toValidUTF8(a.Link),
		Description: toValidUTF8(a.Description),
		Content:     toValidUTF8(a.Content),
		Author:      truncateRunesDB(toValidUTF8(a.Author), 512),
		PublishedAt: a.PublishedAt,
		SourceID:    truncateRunesDB(toValidUTF8(a.SourceID), 256),
		SourceName:  truncateRunesDB(toValidUTF8(a.SourceName), 256),
		SourceURL:   truncateRunesDB(toValidUTF8(a.SourceURL), 1024),
		Language:    truncateRunesDB(a.Language, 64),
		Country:     truncateRunesDB(a.Country, 512),
		Category:    truncateRunesDB(a.Category, 512),
		Keywords:    jsonListOrEmpty(a.Keywords),
		Creator:     jsonListOrEmpty(a.Creator),
		ImageURL:    a.ImageURL,
		VideoURL:    a.VideoURL,
		Sentiment:   a.Sentiment,
		ExtraData:   datatypes.JSONMap(a.Extra),
	}
}

func jsonListOrEmpty(s string) datatypes.JSON {
	if strings.TrimSpace(s) == "" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(s)
}

// ListArticles 按数据源返回最新文章，并使用 Redis 做简单缓存
func (s *Store) ListArticles(ctx context.Context, p collector.Provider, interest string, limit int) ([]ArticleRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	cacheKey := fmt.Sprintf("articles:list:%s:%s:%d", p, interest, limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []ArticleRecord
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []ArticleRecord
	db := s.DB.WithContext(ctx).Table(p.Table())
	if interest != "" {
		db = db.Where("interest = ?", interest)
	}
	if err := db.Order("published_at DESC NULLS LAST").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}

	// 回写缓存（5 分钟），新数据依赖 TTL 自然过期
	const listCacheTTL = 5 * time.Minute
	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}

// CountArticles 表中文章总数
func (s *Store) CountArticles(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Table(table).Count(&n).Error
	return n, err
}
