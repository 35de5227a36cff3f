package storage

import (
	"context"
	"strings"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
)

// Interest 需要定期抓取的兴趣主题
type Interest struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	FormattedInterest string `gorm:"size:256;uniqueIndex" json:"formattedInterest"`
	Category          string `gorm:"size:64" json:"category"`
	Language          string `gorm:"size:16" json:"language"`
	Country           string `gorm:"size:16" json:"country"`
	Status            string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListActiveTopics 返回启用的兴趣主题；传入 ids 时只返回其中的主题
func (s *Store) ListActiveTopics(ctx context.Context, ids ...uint) ([]collector.Topic, error) {
	var list []Interest
	db := s.DB.WithContext(ctx).Where("status = ?", "active")
	if len(ids) > 0 {
		db = db.Where("id IN ?", ids)
	}
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	topics := make([]collector.Topic, 0, len(list))
	for _, it := range list {
		topics = append(topics, collector.Topic{
			ID:       it.ID,
			Keyword:  it.FormattedInterest,
			Category: it.Category,
			Language: it.Language,
			Country:  it.Country,
		})
	}
	return topics, nil
}

// AddInterest 添加兴趣主题（已存在则返回已有记录）
func (s *Store) AddInterest(ctx context.Context, keyword, category, language, country string) (*Interest, error) {
	keyword = FormatInterest(keyword)
	it := &Interest{
		FormattedInterest: keyword,
		Category:          strings.ToLower(strings.TrimSpace(category)),
		Language:          strings.ToLower(strings.TrimSpace(language)),
		Country:           strings.ToLower(strings.TrimSpace(country)),
		Status:            "active",
	}
	if err := s.DB.WithContext(ctx).Where("formatted_interest = ?", keyword).FirstOrCreate(it).Error; err != nil {
		return nil, err
	}
	return it, nil
}

// SetInterestStatus 启用或停用兴趣主题
func (s *Store) SetInterestStatus(ctx context.Context, id uint, active bool) error {
	status := "disabled"
	if active {
		status = "active"
	}
	return s.DB.WithContext(ctx).Model(&Interest{}).Where("id = ?", id).Update("status", status).Error
}

// FormatInterest 去掉首尾空白并折叠中间空白
func FormatInterest(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ListInterests 返回全部兴趣主题（包含已停用的）
func (s *Store) ListInterests(ctx context.Context) ([]Interest, error) {
	var list []Interest
	err := s.DB.WithContext(ctx).Order("id ASC").Find(&list).Error
	return list, err
}
