package scan

import (
	"context"
	"errors"

	"safebite-api/internal/core/barcode"
	"safebite-api/internal/core/catalog"
	"safebite-api/internal/core/ingredient"
	"safebite-api/internal/core/product"
	"safebite-api/internal/core/profile"
	"safebite-api/internal/core/risk"
	"safebite-api/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// 商品紀錄的來源
const (
	SourceLocal   = "local"
	SourceCatalog = "openfoodfacts"
)

// resolveState 解析管線的狀態
// 狀態轉移是線性的，唯一的分支在本地查詢與寫入撞唯一索引時
type resolveState int

const (
	stateLocalLookup resolveState = iota
	stateExternalFetch
	stateCanonicalize
	stateBaseScore
	statePersist
	stateDone
)

// ProductStore 管線需要的商品儲存操作
type ProductStore interface {
	FindByBarcode(ctx context.Context, canonical string) (*product.Product, error)
	Insert(ctx context.Context, p *product.Product) (*product.Product, error)
}

// CatalogClient 外部商品目錄
type CatalogClient interface {
	Fetch(ctx context.Context, canonicalBarcode string) (*catalog.RawProduct, error)
}

// ProfileFinder 依裝置識別碼查個人檔案，查無回 (nil, nil)
type ProfileFinder interface {
	FindByDeviceID(ctx context.Context, deviceID string) (*profile.UserProfile, error)
}

// Recommender 依個人化後的狀態推薦替代品
type Recommender interface {
	Recommend(ctx context.Context, category, brand string, status common.RiskStatus) ([]product.Product, error)
}

// ResolvedProduct 解析結果裡的商品視圖
// Analysis 已套用個人化（匿名請求時等於基準分析）
type ResolvedProduct struct {
	Barcode     string                `json:"barcode"`
	Name        string                `json:"name"`
	Brand       string                `json:"brand"`
	ImageURL    string                `json:"image_url"`
	Category    string                `json:"category"`
	Ingredients []string              `json:"ingredients"`
	Analysis    common.AnalysisResult `json:"analysis"`
}

// Result 一次條碼解析的完整結果
type Result struct {
	Source       string            `json:"source"`
	Product      ResolvedProduct   `json:"product"`
	Alternatives []product.Product `json:"alternatives"`
}

// resolvedRecord singleflight 共享的紀錄取得結果
type resolvedRecord struct {
	rec    *product.Product
	source string
}

// Service 條碼解析管線
// 紀錄取得（本地查詢、外部抓取、寫入）以 singleflight 按正規條碼合併，
// 個人化與替代品在合併之外逐請求計算，不落庫
type Service struct {
	store       ProductStore
	catalog     CatalogClient
	profiles    ProfileFinder
	engine      *risk.Engine
	recommender Recommender
	negCache    NegativeCache
	group       singleflight.Group
}

// NewService 創建解析管線
func NewService(store ProductStore, cat CatalogClient, profiles ProfileFinder, engine *risk.Engine, rec Recommender, negCache NegativeCache) *Service {
	if negCache == nil {
		negCache = noopCache{}
	}
	return &Service{
		store:       store,
		catalog:     cat,
		profiles:    profiles,
		engine:      engine,
		recommender: rec,
		negCache:    negCache,
	}
}

// Resolve 解析一個條碼：取得紀錄、套用個人化、附上替代品
// deviceID 為空即匿名請求，回傳基準分析
func (s *Service) Resolve(ctx context.Context, rawBarcode, deviceID string) (*Result, error) {
	canonical, err := barcode.Normalize(rawBarcode)
	if err != nil {
		return nil, err
	}

	// 同一條碼的併發首掃合併成一次取得
	v, err, shared := s.group.Do(canonical, func() (interface{}, error) {
		return s.acquire(ctx, canonical)
	})
	if err != nil {
		return nil, err
	}
	record := v.(*resolvedRecord)
	if shared {
		common.LogInfo("併發解析已合併", zap.String("barcode", canonical))
	}

	analysis, err := s.personalize(ctx, record.rec, deviceID)
	if err != nil {
		return nil, err
	}

	alternatives, err := s.recommender.Recommend(ctx, record.rec.Category, record.rec.Brand, analysis.Status)
	if err != nil {
		// 替代品是附加資訊，查詢失敗不拖垮整次解析
		common.LogWarn("替代品查詢失敗", zap.String("barcode", canonical), zap.Error(err))
		alternatives = []product.Product{}
	}

	return &Result{
		Source: record.source,
		Product: ResolvedProduct{
			Barcode:     record.rec.Barcode,
			Name:        record.rec.Name,
			Brand:       record.rec.Brand,
			ImageURL:    record.rec.ImageURL,
			Category:    record.rec.Category,
			Ingredients: record.rec.IngredientList(),
			Analysis:    analysis,
		},
		Alternatives: alternatives,
	}, nil
}

// acquire 走狀態機取得商品紀錄：本地命中直接回傳，
// 未命中就抓外部目錄、正規化成分、算基準分數後寫入。
// 寫入撞到唯一索引代表併發首掃輸了，重讀贏家的那筆即可
func (s *Service) acquire(ctx context.Context, canonical string) (*resolvedRecord, error) {
	var (
		raw         *catalog.RawProduct
		ingredients []string
		analysis    common.AnalysisResult
	)

	state := stateLocalLookup
	for state != stateDone {
		switch state {

		case stateLocalLookup:
			rec, err := s.store.FindByBarcode(ctx, canonical)
			if err == nil {
				common.LogCacheHit("product_db", canonical)
				return &resolvedRecord{rec: rec, source: SourceLocal}, nil
			}
			if !errors.Is(err, common.ErrProductNotFound) {
				return nil, err
			}
			common.LogCacheMiss("product_db", canonical)
			if s.negCache.IsMissing(ctx, canonical) {
				return nil, common.ErrProductNotFound
			}
			state = stateExternalFetch

		case stateExternalFetch:
			var err error
			raw, err = s.catalog.Fetch(ctx, canonical)
			if err != nil {
				return nil, err
			}
			if !raw.Found {
				s.negCache.MarkMissing(ctx, canonical)
				return nil, common.ErrProductNotFound
			}
			state = stateCanonicalize

		case stateCanonicalize:
			text := ingredient.SelectText(raw.IngredientTextByLanguage)
			list, err := ingredient.Canonicalize(text)
			if err != nil {
				common.LogWarn("成分無法正規化",
					zap.String("barcode", canonical),
					zap.Error(err),
				)
				return nil, common.ErrInvalidUpstreamData.WithCause(err)
			}
			ingredients = list
			state = stateBaseScore

		case stateBaseScore:
			analysis = s.engine.Score(ingredients, nil)
			state = statePersist

		case statePersist:
			rec := product.New(canonical, raw.Name, raw.Brand, raw.ImageURL, raw.Category, ingredients, analysis)
			saved, err := s.store.Insert(ctx, rec)
			if err == nil {
				common.LogInfo("商品已解析並寫入",
					zap.String("barcode", canonical),
					zap.String("status", string(analysis.Status)),
					zap.Int("score", analysis.TotalRiskScore),
				)
				return &resolvedRecord{rec: saved, source: SourceCatalog}, nil
			}
			if errors.Is(err, common.ErrDuplicateBarcode) {
				// 併發首掃：別的請求先寫入了，重讀即可
				existing, readErr := s.store.FindByBarcode(ctx, canonical)
				if readErr != nil {
					return nil, readErr
				}
				return &resolvedRecord{rec: existing, source: SourceLocal}, nil
			}
			return nil, err
		}
	}
	return nil, common.ErrProductNotFound
}

// personalize 取個人檔案並以其限制重算分析；匿名或查無檔案回傳基準分析
func (s *Service) personalize(ctx context.Context, rec *product.Product, deviceID string) (common.AnalysisResult, error) {
	if deviceID == "" || s.profiles == nil {
		return rec.BaseAnalysis(), nil
	}
	p, err := s.profiles.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return common.AnalysisResult{}, err
	}
	if p == nil {
		return rec.BaseAnalysis(), nil
	}
	return s.engine.Score(rec.IngredientList(), p.Constraints()), nil
}
