package product

import (
	"context"
	"errors"
	"strings"

	"safebite-api/internal/core/barcode"
	"safebite-api/internal/pkg/common"

	"gorm.io/gorm"
)

// Store 商品儲存層，唯一的共享可變資源
// 所有寫入都走 Insert，唯一性由資料庫的條碼唯一索引保證
type Store struct {
	db *gorm.DB
}

// NewStore 創建商品儲存層
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByBarcode 以正規條碼查商品
// 同時比對字串形式與去前導零的數值形式（歷史資料兩種都有）
func (s *Store) FindByBarcode(ctx context.Context, canonical string) (*Product, error) {
	var p Product
	err := s.db.WithContext(ctx).
		Where("barcode IN ?", barcode.LookupKeys(canonical)).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Insert 寫入一筆新商品
// 同條碼已存在（並發首掃競態）時回傳 ErrDuplicateBarcode，
// 由 pipeline 轉成重讀，不會外洩給呼叫端
func (s *Store) Insert(ctx context.Context, p *Product) (*Product, error) {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, common.ErrDuplicateBarcode
		}
		return nil, err
	}
	return p, nil
}

// FindAlternatives 找同類別、不同品牌的 SAFE 商品
// 類別用不分大小寫的子字串比對，容忍外部目錄的自由文字
func (s *Store) FindAlternatives(ctx context.Context, category, excludeBrand string, limit int) ([]Product, error) {
	var results []Product
	err := s.db.WithContext(ctx).
		Where("status = ?", common.StatusSafe).
		Where("LOWER(category) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(category))+"%").
		Where("brand <> ?", excludeBrand).
		Order("total_risk_score ASC, id ASC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FindAnySafe 全域 SAFE 商品後備查詢，類別找不到替代品時使用
func (s *Store) FindAnySafe(ctx context.Context, limit int) ([]Product, error) {
	var results []Product
	err := s.db.WithContext(ctx).
		Where("status = ?", common.StatusSafe).
		Order("total_risk_score ASC, id ASC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SearchByIngredient 以成分關鍵字搜尋商品（不分大小寫子字串）
func (s *Store) SearchByIngredient(ctx context.Context, query string, limit int) ([]Product, error) {
	var results []Product
	err := s.db.WithContext(ctx).
		Where("LOWER(CAST(ingredients AS TEXT)) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(query))+"%").
		Order("id ASC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
