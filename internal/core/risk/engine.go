package risk

import (
	"math"
	"strings"
	"time"

	"safebite-api/internal/pkg/common"
)

// Constraints 使用者輪廓中與評分相關的限制條件
// 由呼叫端從 UserProfile 轉換而來，nil 代表匿名請求
type Constraints struct {
	Allergies       []string
	AvoidList  []string
}

// terms 合併過敏原與避免清單，正規化後去重
func (c *Constraints) terms() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, len(c.Allergies)+len(c.AvoidList))
	for _, raw := range append(append([]string{}, c.Allergies...), c.AvoidList...) {
		term := normalizeName(raw)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// Engine 風險評分引擎
// 對同一份輸入與知識庫快照是純函數（時間戳除外）
type Engine struct {
	kb     KnowledgeBase
	policy PersonalizationPolicy
}

// NewEngine 創建評分引擎，策略值不合法時退回安全下限
func NewEngine(kb KnowledgeBase, policy PersonalizationPolicy) *Engine {
	if policy.EscalationFactor < 1 {
		policy.EscalationFactor = 1
	}
	if policy.MinWeight < 0 {
		policy.MinWeight = 0
	}
	if policy.MinWeight > common.MaxRiskScore {
		policy.MinWeight = common.MaxRiskScore
	}
	return &Engine{kb: kb, policy: policy}
}

// Score 依序評分成分清單，產出分析結果
// 演算法：逐一查知識庫 → 命中者累加權重 → 總分夾在 [0,100] →
// 門檻決定狀態。有 constraints 時，命中個人限制的條目在加總前
// 先被加權（絕不低於匿名權重），避免清單上知識庫查不到的成分
// 也會以最低權重列入。無法評分的清單回傳 SAFE 零分空結果。
func (e *Engine) Score(ingredients []string, cons *Constraints) common.AnalysisResult {
	consTerms := cons.terms()

	total := 0
	entries := []common.HarmfulIngredientEntry{}
	seen := make(map[string]struct{})

	for _, name := range ingredients {
		normalized := normalizeName(name)
		if normalized == "" {
			continue
		}
		// 每個成分名稱最多回報一次
		if _, dup := seen[normalized]; dup {
			continue
		}

		entry, matched := e.kb.Lookup(name)
		restricted := matchesConstraint(normalized, consTerms)

		weight := 0
		switch {
		case matched && restricted:
			weight = e.escalate(entry.Weight)
		case matched:
			weight = entry.Weight
		case restricted:
			// 知識庫查不到但在個人限制清單上，以最低權重強制列入
			weight = e.policy.MinWeight
			entry = Entry{
				Category:    "Personal Restriction",
				Description: "Flagged by your dietary profile.",
			}
		default:
			continue
		}

		seen[normalized] = struct{}{}
		total += weight
		entries = append(entries, common.HarmfulIngredientEntry{
			Name:         name,
			RiskCategory: entry.Category,
			Description:  entry.Description,
		})
	}

	if total > common.MaxRiskScore {
		total = common.MaxRiskScore
	}

	return common.AnalysisResult{
		Status:             common.StatusForScore(total),
		TotalRiskScore:     total,
		HarmfulIngredients: entries,
		IsChildSafe:        total < common.SafeScoreThreshold,
		CachedAt:           time.Now().UTC(),
	}
}

// escalate 依策略放大權重，結果永遠不低於原始權重
func (e *Engine) escalate(weight int) int {
	escalated := int(math.Ceil(float64(weight) * e.policy.EscalationFactor))
	if escalated < e.policy.MinWeight {
		escalated = e.policy.MinWeight
	}
	if escalated < weight {
		escalated = weight
	}
	return escalated
}

// matchesConstraint 成分名稱與限制詞條任一方向包含即視為命中
func matchesConstraint(normalizedName string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(normalizedName, term) || strings.Contains(term, normalizedName) {
			return true
		}
	}
	return false
}
