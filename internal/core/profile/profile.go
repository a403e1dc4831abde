package profile

import (
	"context"
	"errors"
	"time"

	"safebite-api/internal/core/risk"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserProfile 使用者輪廓，以裝置 ID 為鍵
// 對解析流程而言是唯讀輸入；沒有輪廓的匿名請求是完全支援的路徑
type UserProfile struct {
	ID        uint                        `gorm:"primaryKey" json:"-"`
	DeviceID  string                      `gorm:"type:varchar(64);uniqueIndex;not null" json:"device_id"`
	Name      string                      `json:"name"`
	Allergies datatypes.JSONSlice[string] `json:"allergies"`
	AvoidList datatypes.JSONSlice[string] `json:"avoid_list"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Constraints 轉成評分引擎用的限制條件
func (p *UserProfile) Constraints() *risk.Constraints {
	if p == nil {
		return nil
	}
	return &risk.Constraints{
		Allergies: []string(p.Allergies),
		AvoidList: []string(p.AvoidList),
	}
}

// Service 使用者輪廓查詢服務
type Service struct {
	db *gorm.DB
}

// NewService 創建輪廓查詢服務
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// FindByDeviceID 以裝置 ID 查輪廓
// 查不到回傳 (nil, nil)：匿名路徑，不是錯誤
func (s *Service) FindByDeviceID(ctx context.Context, deviceID string) (*UserProfile, error) {
	if deviceID == "" {
		return nil, nil
	}
	var p UserProfile
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Upsert 建立或覆寫輪廓，以 device_id 為衝突鍵
// 行動端整份送來，限制清單整組取代而非合併
func (s *Service) Upsert(ctx context.Context, p *UserProfile) (*UserProfile, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "allergies", "avoid_list", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return nil, err
	}
	return s.FindByDeviceID(ctx, p.DeviceID)
}
