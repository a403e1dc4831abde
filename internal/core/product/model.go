package product

import (
	"time"

	"safebite-api/internal/pkg/common"

	"gorm.io/datatypes"
)

// 商品欄位的預設值，外部目錄缺漏時補上
const (
	DefaultBrand    = "Generic"
	DefaultCategory = "Packaged Food"
	DefaultImageURL = "https://static.safebite.app/placeholder-product.png"
)

// Product 已解析的商品紀錄，條碼唯一，是 cache-aside 快取的單位
// Status 與 TotalRiskScore 是 Analysis 的反正規化欄位，讓替代品查詢
// 不用進 JSON 裡撈；Analysis 永遠是非個人化的基準分析
type Product struct {
	ID             uint                                      `gorm:"primaryKey" json:"-"`
	Barcode        string                                    `gorm:"type:varchar(32);uniqueIndex;not null" json:"barcode"`
	Name           string                                    `gorm:"not null" json:"name"`
	Brand          string                                    `gorm:"not null" json:"brand"`
	ImageURL       string                                    `json:"image_url"`
	Category       string                                    `gorm:"index" json:"category"`
	Ingredients    datatypes.JSONSlice[string]               `json:"ingredients"`
	Analysis       datatypes.JSONType[common.AnalysisResult] `json:"analysis"`
	Status         common.RiskStatus                         `gorm:"type:varchar(16);index" json:"-"`
	TotalRiskScore int                                       `json:"-"`
	CreatedAt      time.Time                                 `json:"created_at"`
	UpdatedAt      time.Time                                 `json:"updated_at"`
}

// BaseAnalysis 取出儲存的基準分析
func (p *Product) BaseAnalysis() common.AnalysisResult {
	return p.Analysis.Data()
}

// IngredientList 取出正規化成分清單
func (p *Product) IngredientList() []string {
	return []string(p.Ingredients)
}

// New 組裝一筆新的商品紀錄，缺漏欄位補預設值
func New(barcode, name, brand, imageURL, category string, ingredients []string, analysis common.AnalysisResult) *Product {
	if name == "" {
		name = "Unknown Product"
	}
	if brand == "" {
		brand = DefaultBrand
	}
	if imageURL == "" {
		imageURL = DefaultImageURL
	}
	if category == "" {
		category = DefaultCategory
	}
	return &Product{
		Barcode:        barcode,
		Name:           name,
		Brand:          brand,
		ImageURL:       imageURL,
		Category:       category,
		Ingredients:    datatypes.NewJSONSlice(ingredients),
		Analysis:       datatypes.NewJSONType(analysis),
		Status:         analysis.Status,
		TotalRiskScore: analysis.TotalRiskScore,
	}
}
