package recommend

import (
	"context"

	"safebite-api/internal/core/product"
	"safebite-api/internal/pkg/common"

	"go.uber.org/zap"
)

// 一次最多推薦的替代品數量
const maxAlternatives = 3

// ProductFinder 推薦器需要的兩個儲存層查詢
type ProductFinder interface {
	FindAlternatives(ctx context.Context, category, excludeBrand string, limit int) ([]product.Product, error)
	FindAnySafe(ctx context.Context, limit int) ([]product.Product, error)
}

// Service 替代品推薦器，在儲存層查詢之上的薄組合
type Service struct {
	store ProductFinder
}

// NewService 創建推薦器
func NewService(store ProductFinder) *Service {
	return &Service{store: store}
}

// Recommend 依個人化後的狀態推薦更安全的替代品
// 狀態是 SAFE 就不推薦；否則先找同類別不同品牌的 SAFE 商品，
// 找不到再退到全域 SAFE 後備清單，最多三件
func (s *Service) Recommend(ctx context.Context, category, brand string, status common.RiskStatus) ([]product.Product, error) {
	if status == common.StatusSafe {
		return []product.Product{}, nil
	}

	alts, err := s.store.FindAlternatives(ctx, category, brand, maxAlternatives)
	if err != nil {
		return nil, err
	}
	if len(alts) > 0 {
		return alts, nil
	}

	common.LogInfo("同類別無替代品，改用全域後備",
		zap.String("category", category),
	)
	return s.store.FindAnySafe(ctx, maxAlternatives)
}
