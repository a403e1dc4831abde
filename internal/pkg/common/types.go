package common

import (
	"strings"
	"time"
)

// RiskStatus 風險狀態，內部一律使用三值正規枚舉
// 舊版的 GREEN/YELLOW/RED 別名只在序列化邊界轉換，不進入內部邏輯
type RiskStatus string

const (
	StatusSafe     RiskStatus = "SAFE"
	StatusModerate RiskStatus = "MODERATE"
	StatusHigh     RiskStatus = "HIGH"
)

// 狀態門檻（固定策略）：score < 30 → SAFE、30–60 → MODERATE、> 60 → HIGH
const (
	SafeScoreThreshold     = 30
	ModerateScoreThreshold = 60
	MaxRiskScore           = 100
)

// legacyStatusAliases 舊版三色別名對應表
var legacyStatusAliases = map[string]RiskStatus{
	"GREEN":  StatusSafe,
	"YELLOW": StatusModerate,
	"RED":    StatusHigh,
}

// legacyStatusNames 正規值反向對應舊名，供序列化邊界使用
var legacyStatusNames = map[RiskStatus]string{
	StatusSafe:     "GREEN",
	StatusModerate: "YELLOW",
	StatusHigh:     "RED",
}

// ParseRiskStatus 解析狀態字串，接受正規值與舊版別名
func ParseRiskStatus(raw string) (RiskStatus, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch RiskStatus(s) {
	case StatusSafe, StatusModerate, StatusHigh:
		return RiskStatus(s), true
	}
	if mapped, ok := legacyStatusAliases[s]; ok {
		return mapped, true
	}
	return "", false
}

// LegacyName 回傳舊版三色名稱
func (s RiskStatus) LegacyName() string {
	return legacyStatusNames[s]
}

// StatusForScore 依總分決定狀態，為分數的確定性單調函數
func StatusForScore(score int) RiskStatus {
	switch {
	case score < SafeScoreThreshold:
		return StatusSafe
	case score <= ModerateScoreThreshold:
		return StatusModerate
	default:
		return StatusHigh
	}
}

// HarmfulIngredientEntry 單一命中的有害成分
type HarmfulIngredientEntry struct {
	Name         string `json:"name"`
	RiskCategory string `json:"risk_category"`
	Description  string `json:"description"`
}

// AnalysisResult 風險分析結果
// 儲存在商品上的一律是非個人化的基準分析，個人化結果只存在於回應中
type AnalysisResult struct {
	Status             RiskStatus               `json:"status"`
	LegacyStatus       string                   `json:"legacy_status,omitempty"`
	TotalRiskScore     int                      `json:"total_risk_score"`
	HarmfulIngredients []HarmfulIngredientEntry `json:"harmful_ingredients"`
	IsChildSafe        bool                     `json:"is_child_safe"`
	CachedAt           time.Time                `json:"cached_at"`
}

// WithLegacyStatus 補上舊版別名欄位後回傳副本，只在組裝回應時使用
func (a AnalysisResult) WithLegacyStatus() AnalysisResult {
	a.LegacyStatus = a.Status.LegacyName()
	return a
}
