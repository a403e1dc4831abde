package catalog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"safebite-api/internal/infrastructure/config"
	"safebite-api/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// RawProduct 外部目錄回傳的原始商品資料
// IngredientTextByLanguage 保留多語成分欄位，交給 canonicalizer 挑選
type RawProduct struct {
	Found                    bool
	Name                     string
	Brand                    string
	ImageURL                 string
	Category                 string
	IngredientTextByLanguage map[string]string
}

// Client OpenFoodFacts 目錄客戶端
type Client struct {
	client *resty.Client
}

// offResponse OpenFoodFacts 的回應結構，status==1 代表找到
type offResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName       string `json:"product_name"`
		Brands            string `json:"brands"`
		ImageURL          string `json:"image_url"`
		Categories        string `json:"categories"`
		IngredientsTextEn string `json:"ingredients_text_en"`
		IngredientsText   string `json:"ingredients_text"`
		IngredientsTextHi string `json:"ingredients_text_hi"`
		IngredientsTextFr string `json:"ingredients_text_fr"`
	} `json:"product"`
}

// NewClient 創建目錄客戶端，外部調用一律受 timeout 約束
func NewClient(cfg *config.CatalogConfig) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "safebite-api/1.0")

	return &Client{client: client}
}

// Fetch 以條碼查詢外部目錄
// 傳輸失敗、逾時、非 2xx、回應格式錯誤一律對應 ErrUpstreamUnavailable；
// 目錄明確回報不存在時回傳 Found=false，不視為錯誤
func (c *Client) Fetch(ctx context.Context, canonicalBarcode string) (*RawProduct, error) {
	start := time.Now()

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("barcode", canonicalBarcode).
		Get("/api/v0/product/{barcode}.json")

	common.LogCatalogCall(canonicalBarcode, time.Since(start), err)
	if err != nil {
		return nil, common.ErrUpstreamUnavailable.WithCause(err)
	}

	if resp.StatusCode() != http.StatusOK {
		common.LogError("目錄回傳非預期狀態碼",
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, common.ErrUpstreamUnavailable
	}

	var parsed offResponse
	if err := common.ParseJSONBytes(resp.Body(), &parsed); err != nil {
		common.LogError("目錄回應解析失敗", zap.Error(err))
		return nil, common.ErrUpstreamUnavailable.WithCause(err)
	}

	if parsed.Status != 1 {
		return &RawProduct{Found: false}, nil
	}

	return &RawProduct{
		Found:    true,
		Name:     strings.TrimSpace(parsed.Product.ProductName),
		Brand:    strings.TrimSpace(parsed.Product.Brands),
		ImageURL: strings.TrimSpace(parsed.Product.ImageURL),
		Category: mainCategory(parsed.Product.Categories),
		IngredientTextByLanguage: map[string]string{
			"ingredients_text_en": parsed.Product.IngredientsTextEn,
			"ingredients_text":    parsed.Product.IngredientsText,
			"ingredients_text_hi": parsed.Product.IngredientsTextHi,
			"ingredients_text_fr": parsed.Product.IngredientsTextFr,
		},
	}, nil
}

// mainCategory 目錄的類別是自由文字的逗號清單，取第一段
func mainCategory(categories string) string {
	if categories == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(categories, ",", 2)[0])
}
