package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/LJTian/NewsHub/internal/processor"
)

const pgUniqueViolation = "23505"

type gormTx struct {
	tx        *gorm.DB
	savepoint int
}

// Begin 为一次批量写入开启事务
func (s *Store) Begin(ctx context.Context) (Tx, error) {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{tx: tx}, nil
}

func (g *gormTx) ExistingKeys(ctx context.Context, table string, keys []string) (map[string]struct{}, error) {
	var found []string
	if err := g.tx.WithContext(ctx).Table(table).Where("natural_key IN ?", keys).Pluck("natural_key", &found).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(found))
	for _, k := range found {
		out[k] = struct{}{}
	}
	return out, nil
}

// InsertArticle 每条记录前设置保存点，唯一约束冲突时回滚到保存点，事务不会进入 aborted 状态
func (g *gormTx) InsertArticle(ctx context.Context, table string, a processor.Article) error {
	g.savepoint++
	sp := fmt.Sprintf("sp_%d", g.savepoint)
	if err := g.tx.SavePoint(sp).Error; err != nil {
		return err
	}

	rec := toRecord(a)
	err := g.tx.WithContext(ctx).Table(table).Create(&rec).Error
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		if rbErr := g.tx.RollbackTo(sp).Error; rbErr != nil {
			return rbErr
		}
		return ErrDuplicateKey
	}
	return err
}

func (g *gormTx) Commit() error   { return g.tx.Commit().Error }
func (g *gormTx) Rollback() error { return g.tx.Rollback().Error }

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
