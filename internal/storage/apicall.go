package storage

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/LJTian/NewsHub/internal/collector"
)

// APICallRecord 成功请求的留档：脱敏后的参数与原始响应
type APICallRecord struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Provider     string         `gorm:"size:64;index" json:"provider"`
	Endpoint     string         `gorm:"size:256" json:"endpoint"`
	Params       datatypes.JSON `gorm:"type:jsonb" json:"params"`
	CustomParams string         `gorm:"type:text" json:"customParams"`
	StatusCode   int            `json:"statusCode"`
	Response     datatypes.JSON `gorm:"type:jsonb" json:"response"`
	FetchedAt    time.Time      `gorm:"index" json:"fetchedAt"`

	CreatedAt time.Time `json:"createdAt"`
}

func (APICallRecord) TableName() string { return "api_calls" }

// RecordAPICall 实现 collector.CallRecorder
func (s *Store) RecordAPICall(ctx context.Context, call collector.APICall) error {
	params, err := json.Marshal(collector.Redact(call.Params))
	if err != nil {
		return err
	}
	rec := APICallRecord{
		Provider:     call.Provider.String(),
		Endpoint:     call.Endpoint,
		Params:       datatypes.JSON(params),
		CustomParams: call.CustomParams,
		StatusCode:   call.StatusCode,
		Response:     datatypes.JSON(call.Response),
		FetchedAt:    call.FetchedAt,
	}
	return s.DB.WithContext(ctx).Create(&rec).Error
}
