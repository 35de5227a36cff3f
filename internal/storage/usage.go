package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LJTian/NewsHub/internal/collector"
)

// APIInfo 描述一个新闻数据源，例如 newsdata / gnews
type APIInfo struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Code    string `gorm:"size:64;uniqueIndex" json:"code"`
	Name    string `gorm:"size:128" json:"name"`
	BaseURL string `gorm:"size:256" json:"baseUrl"`
	Status  string `gorm:"size:32;index" json:"status"` // active / disabled
	// DailyLimit 每日调用上限，0 表示不限制
	DailyLimit int `json:"dailyLimit"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (APIInfo) TableName() string { return "api_info" }

// APIUsage 每个数据源每天一行
type APIUsage struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	APIID          uint           `gorm:"not null;uniqueIndex:idx_api_usage_day" json:"apiId"`
	Date           datatypes.Date `gorm:"not null;uniqueIndex:idx_api_usage_day" json:"date"`
	TotalCallsMade int            `gorm:"not null;default:0" json:"totalCallsMade"`
	LastFetch      time.Time      `json:"lastFetch"`
}

func (APIUsage) TableName() string { return "api_usage" }

// UsageView 用于接口展示
type UsageView struct {
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	DailyLimit     int        `json:"dailyLimit"`
	TotalCallsMade int        `json:"totalCallsMade"`
	LastFetch      *time.Time `json:"lastFetch"`
}

// EnsureAPI 确保某个数据源在 api_info 中存在
func (s *Store) EnsureAPI(ctx context.Context, p collector.Provider) (*APIInfo, error) {
	info := &APIInfo{}
	err := s.DB.WithContext(ctx).Where("code = ?", p.String()).First(info).Error
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	info = &APIInfo{
		Code:    p.String(),
		Name:    p.DisplayName(),
		BaseURL: p.BaseURL(),
		Status:  "active",
	}
	if err := s.DB.WithContext(ctx).Where("code = ?", info.Code).FirstOrCreate(info).Error; err != nil {
		return nil, err
	}
	return info, nil
}

func usageDay(t time.Time) datatypes.Date {
	u := t.UTC()
	return datatypes.Date(time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC))
}

// RecordCall 当天首次调用时创建记录，之后原子累加；失败只返回 false
func (s *Store) RecordCall(ctx context.Context, providerID string) bool {
	p, err := collector.ParseProvider(providerID)
	if err != nil {
		s.logger.Warn("record call for unknown provider", "provider", providerID)
		return false
	}
	info, err := s.EnsureAPI(ctx, p)
	if err != nil {
		s.logger.Error("ensure api info failed", "provider", providerID, "error", err)
		return false
	}

	now := time.Now().UTC()
	row := APIUsage{APIID: info.ID, Date: usageDay(now), TotalCallsMade: 1, LastFetch: now}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "api_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_calls_made": gorm.Expr("api_usage.total_calls_made + 1"),
			"last_fetch":       now,
		}),
	}).Create(&row).Error
	if err != nil {
		s.logger.Error("update api usage failed", "provider", providerID, "error", err)
		return false
	}
	return true
}

// Allow 当天调用次数未达到上限时返回 true
func (s *Store) Allow(ctx context.Context, p collector.Provider) (bool, error) {
	info, err := s.EnsureAPI(ctx, p)
	if err != nil {
		return false, err
	}
	if info.Status == "disabled" {
		return false, nil
	}
	if info.DailyLimit <= 0 {
		return true, nil
	}
	var usage APIUsage
	err = s.DB.WithContext(ctx).Where("api_id = ? AND date = ?", info.ID, usageDay(time.Now())).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return usage.TotalCallsMade < info.DailyLimit, nil
}

// ListUsage 返回指定日期各数据源的调用次数，没有调用的数据源计为 0
func (s *Store) ListUsage(ctx context.Context, day time.Time) ([]UsageView, error) {
	var rows []UsageView
	err := s.DB.WithContext(ctx).
		Table("api_info").
		Select("api_info.code, api_info.name, api_info.daily_limit, COALESCE(api_usage.total_calls_made, 0) AS total_calls_made, api_usage.last_fetch").
		Joins("LEFT JOIN api_usage ON api_usage.api_id = api_info.id AND api_usage.date = ?", usageDay(day)).
		Order("api_info.code ASC").
		Scan(&rows).Error
	return rows, err
}
