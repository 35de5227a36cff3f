package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LJTian/NewsHub/internal/processor"
)

var (
	// ErrNoUsableKeys 批次中没有任何一条记录能生成去重键
	ErrNoUsableKeys = errors.New("batch has no usable natural keys")
	// ErrDuplicateKey 插入时撞上唯一约束（并发写入），跳过该条继续
	ErrDuplicateKey = errors.New("duplicate natural key")
)

// Tx 一次批量写入占用的事务
type Tx interface {
	ExistingKeys(ctx context.Context, table string, keys []string) (map[string]struct{}, error)
	// InsertArticle 唯一约束冲突时返回 ErrDuplicateKey，且事务仍可继续使用
	InsertArticle(ctx context.Context, table string, a processor.Article) error
	Commit() error
	Rollback() error
}

type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// Publisher 提交成功后通知下游新入库的键
type Publisher interface {
	Publish(ctx context.Context, table string, keys []string) error
}

type WriteResult struct {
	Table string `json:"table"`
	// Candidates 有去重键的记录数
	Candidates int `json:"candidates"`
	NoKey      int `json:"noKey"`
	Existing   int `json:"existing"`
	InBatch    int `json:"inBatch"`
	Raced      int `json:"raced"`
	Inserted   int `json:"inserted"`

	InsertedKeys []string `json:"-"`
}

// Writer 过滤已存在的文章后在单个事务中写入其余文章
type Writer struct {
	db     TxBeginner
	queue  Publisher
	logger *slog.Logger
}

func NewWriter(db TxBeginner, queue Publisher, logger *slog.Logger) *Writer {
	return &Writer{db: db, queue: queue, logger: logger}
}

// Insert 返回 nil 即成功，全部重复（Inserted == 0）同样算成功
func (w *Writer) Insert(ctx context.Context, table string, articles []processor.Article) (WriteResult, error) {
	res := WriteResult{Table: table}

	keyed := make([]processor.Article, 0, len(articles))
	keys := make([]string, 0, len(articles))
	for _, a := range articles {
		k := a.NaturalKey()
		if k == "" {
			res.NoKey++
			continue
		}
		keyed = append(keyed, a)
		keys = append(keys, k)
	}
	res.Candidates = len(keyed)
	if len(keyed) == 0 {
		return res, ErrNoUsableKeys
	}

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				w.logger.Warn("rollback failed", "table", table, "error", err)
			}
		}
	}()

	existing, err := tx.ExistingKeys(ctx, table, keys)
	if err != nil {
		return res, fmt.Errorf("query existing keys: %w", err)
	}

	seen := make(map[string]struct{}, len(keyed))
	for i, a := range keyed {
		k := keys[i]
		if _, ok := existing[k]; ok {
			res.Existing++
			continue
		}
		if _, ok := seen[k]; ok {
			res.InBatch++
			continue
		}
		seen[k] = struct{}{}

		if err := tx.InsertArticle(ctx, table, a); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				res.Raced++
				w.logger.Warn("duplicate key on insert, skipping", "table", table, "key", k)
				continue
			}
			res.Inserted = 0
			res.InsertedKeys = nil
			return res, fmt.Errorf("insert %s: %w", k, err)
		}
		res.Inserted++
		res.InsertedKeys = append(res.InsertedKeys, k)
	}

	if err := tx.Commit(); err != nil {
		res.Inserted = 0
		res.InsertedKeys = nil
		return res, fmt.Errorf("commit: %w", err)
	}
	committed = true

	w.logger.Info("batch stored", "table", table, "inserted", res.Inserted, "existing", res.Existing,
		"in_batch", res.InBatch, "raced", res.Raced, "no_key", res.NoKey)

	if w.queue != nil && len(res.InsertedKeys) > 0 {
		if err := w.queue.Publish(ctx, table, res.InsertedKeys); err != nil {
			w.logger.Warn("publish ingested keys failed", "table", table, "error", err)
		}
	}
	return res, nil
}
