package ingredient

import (
	"regexp"
	"strings"

	"safebite-api/internal/pkg/common"
)

// 成分文字長度上限，超過視為目錄資料異常
const maxIngredientTextLength = 2000

// 語言變體的優先順序，對應 OpenFoodFacts 的多語欄位
var languagePriority = []string{
	"ingredients_text_en",
	"ingredients_text",
	"ingredients_text_hi",
	"ingredients_text_fr",
}

// 去掉括號及其內容（半形與全形都處理）
var parentheticalPattern = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)

// SelectText 從多語成分欄位中挑出第一個非空的文字
func SelectText(byLanguage map[string]string) string {
	for _, field := range languagePriority {
		if text := strings.TrimSpace(byLanguage[field]); text != "" {
			return text
		}
	}
	return ""
}

// Canonicalize 將原始成分文字轉成乾淨的有序成分清單
// 流程：去括號內容 → 逗號切分 → 逐項 trim → 丟掉空項
// 確定性且冪等：已正規化的清單再跑一次結果不變
func Canonicalize(rawText string) ([]string, error) {
	text := strings.TrimSpace(rawText)
	if text == "" || len(text) > maxIngredientTextLength {
		return nil, common.ErrIngredientsUnavailable
	}

	// 括號可能不成對，先整段替換再處理殘留的單邊括號
	text = parentheticalPattern.ReplaceAllString(text, "")
	text = strings.NewReplacer("(", "", ")", "", "（", "", "）", "").Replace(text)

	parts := strings.Split(text, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	if len(result) == 0 {
		return nil, common.ErrIngredientsUnavailable
	}
	return result, nil
}

// Join 把正規化清單組回逗號分隔文字，供冪等檢查與儲存層搜尋使用
func Join(list []string) string {
	return strings.Join(list, ", ")
}
