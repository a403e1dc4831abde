package scan

import (
	"net/http"
	"strings"

	"safebite-api/internal/core/product"
	scanService "safebite-api/internal/core/scan"
	"safebite-api/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 成分搜尋一次最多回傳的筆數
const maxSearchResults = 20

// ResolveResponse 條碼解析回應
// source 標記資料來源：local（資料庫命中）或 openfoodfacts（本次外部抓取）
type ResolveResponse struct {
	Success      bool                        `json:"success"`
	Source       string                      `json:"source"`
	Product      scanService.ResolvedProduct `json:"product"`
	Alternatives []AlternativeView           `json:"alternatives"`
}

// AlternativeView 替代品的精簡視圖，不帶完整分析
type AlternativeView struct {
	Barcode   string `json:"barcode"`
	Name      string `json:"name"`
	Brand     string `json:"brand"`
	ImageURL  string `json:"image_url"`
	Category  string `json:"category"`
	RiskScore int    `json:"risk_score"`
	Status    string `json:"status"`
}

// SearchResponse 成分搜尋回應
type SearchResponse struct {
	Success  bool              `json:"success"`
	Count    int               `json:"count"`
	Products []AlternativeView `json:"products"`
}

// Handler 條碼解析與成分搜尋處理器
type Handler struct {
	resolver *scanService.Service
	store    *product.Store
}

// NewHandler 創建處理器
func NewHandler(resolver *scanService.Service, store *product.Store) *Handler {
	return &Handler{resolver: resolver, store: store}
}

// HandleResolve 處理 GET /products/:barcode 條碼解析
// X-Device-ID 存在且有對應輪廓時套用個人化分析
func (h *Handler) HandleResolve(c *gin.Context) {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
		c.Header("X-Request-ID", requestID)
	}

	rawBarcode := c.Param("barcode")
	deviceID := c.GetHeader("X-Device-ID")

	common.LogInfo("開始條碼解析",
		zap.String("request_id", requestID),
		zap.String("barcode", rawBarcode),
		zap.Bool("personalized", deviceID != ""),
	)

	result, err := h.resolver.Resolve(c.Request.Context(), rawBarcode, deviceID)
	if err != nil {
		common.LogWarn("條碼解析失敗",
			zap.String("request_id", requestID),
			zap.String("barcode", rawBarcode),
			zap.Error(err),
		)
		common.RespondError(c, err)
		return
	}

	// 序列化邊界才補舊版三色別名
	result.Product.Analysis = result.Product.Analysis.WithLegacyStatus()

	c.JSON(http.StatusOK, ResolveResponse{
		Success:      true,
		Source:       result.Source,
		Product:      result.Product,
		Alternatives: toViews(result.Alternatives),
	})
}

// HandleIngredientSearch 處理 GET /products/search-ingredient?ingredient=
// 對已儲存商品的成分清單做不分大小寫的子字串比對
func (h *Handler) HandleIngredientSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("ingredient"))
	if query == "" {
		common.RespondError(c, common.ErrInvalidRequest)
		return
	}

	products, err := h.store.SearchByIngredient(c.Request.Context(), query, maxSearchResults)
	if err != nil {
		common.LogError("成分搜尋失敗", zap.String("ingredient", query), zap.Error(err))
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SearchResponse{
		Success:  true,
		Count:    len(products),
		Products: toViews(products),
	})
}

func toViews(products []product.Product) []AlternativeView {
	views := make([]AlternativeView, 0, len(products))
	for _, p := range products {
		views = append(views, AlternativeView{
			Barcode:   p.Barcode,
			Name:      p.Name,
			Brand:     p.Brand,
			ImageURL:  p.ImageURL,
			Category:  p.Category,
			RiskScore: p.TotalRiskScore,
			Status:    string(p.Status),
		})
	}
	return views
}
