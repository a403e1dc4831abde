package risk

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"safebite-api/internal/pkg/common"

	"go.uber.org/zap"
)

// Entry 知識庫中一個有害成分的風險條目
type Entry struct {
	Category    string `json:"category"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// KnowledgeBase 有害成分知識庫的窄介面
// 內容與版本由外部協作方維護，這裡只負責查詢；
// 每個成分最多對應一個條目
type KnowledgeBase interface {
	Lookup(ingredientName string) (Entry, bool)
}

// PersonalizationPolicy 個人化加權策略，與知識庫一起由策略檔提供
type PersonalizationPolicy struct {
	EscalationFactor float64 `json:"escalation_factor"` // 命中個人限制時的加權倍率
	MinWeight        int     `json:"min_weight"`        // 命中個人限制時的最低權重
}

// 預設個人化策略，策略檔沒給時使用
var defaultPolicy = PersonalizationPolicy{
	EscalationFactor: 2.0,
	MinWeight:        40,
}

// staticKB 以記憶體表實作的知識庫快照
type staticKB struct {
	entries map[string]Entry // 正規化名稱 → 條目
	terms   []string         // 依長度排序的詞條，供包含比對
}

// knowledgeFile 策略檔的結構
type knowledgeFile struct {
	Ingredients map[string]Entry       `json:"ingredients"`
	Policy      *PersonalizationPolicy `json:"personalization,omitempty"`
}

// normalizeName 名稱比對一律先 trim 再轉小寫
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func newStaticKB(ingredients map[string]Entry) *staticKB {
	kb := &staticKB{entries: make(map[string]Entry, len(ingredients))}
	for name, entry := range ingredients {
		kb.entries[normalizeName(name)] = entry
	}
	kb.terms = make([]string, 0, len(kb.entries))
	for term := range kb.entries {
		kb.terms = append(kb.terms, term)
	}
	// 長詞優先，等長時按字典序，保證比對結果確定
	sort.Slice(kb.terms, func(i, j int) bool {
		if len(kb.terms[i]) != len(kb.terms[j]) {
			return len(kb.terms[i]) > len(kb.terms[j])
		}
		return kb.terms[i] < kb.terms[j]
	})
	return kb
}

// Lookup 查詢成分的風險條目：先精確比對，再找名稱中包含的最長詞條
func (kb *staticKB) Lookup(ingredientName string) (Entry, bool) {
	name := normalizeName(ingredientName)
	if name == "" {
		return Entry{}, false
	}
	if entry, ok := kb.entries[name]; ok {
		return entry, true
	}
	for _, term := range kb.terms {
		if strings.Contains(name, term) {
			return kb.entries[term], true
		}
	}
	return Entry{}, false
}

// LoadKnowledgeBase 載入知識庫策略檔
// path 為空時回退到內建的開發用表，正式環境應一律配置檔案
func LoadKnowledgeBase(path string) (KnowledgeBase, PersonalizationPolicy, error) {
	if path == "" {
		common.LogWarn("未配置知識庫檔案，使用內建開發用表")
		return newStaticKB(builtinIngredients), defaultPolicy, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, PersonalizationPolicy{}, fmt.Errorf("failed to open knowledge file: %w", err)
	}
	defer f.Close()

	var file knowledgeFile
	if err := common.DecodeJSONStrict(f, &file); err != nil {
		return nil, PersonalizationPolicy{}, fmt.Errorf("failed to parse knowledge file: %w", err)
	}
	if len(file.Ingredients) == 0 {
		return nil, PersonalizationPolicy{}, fmt.Errorf("knowledge file has no ingredients")
	}

	policy := defaultPolicy
	if file.Policy != nil {
		policy = *file.Policy
	}

	common.LogInfo("知識庫已載入",
		zap.String("path", path),
		zap.Int("條目數", len(file.Ingredients)),
	)
	return newStaticKB(file.Ingredients), policy, nil
}

// builtinIngredients 內建開發用表，只涵蓋常見高風險成分
// 正式策略資料由知識庫協作方的檔案提供
var builtinIngredients = map[string]Entry{
	"palm oil": {
		Category:    "Unhealthy Fat",
		Weight:      70,
		Description: "High in saturated fat; linked to cardiovascular risk when consumed in excess.",
	},
	"hydrogenated vegetable oil": {
		Category:    "Trans Fat",
		Weight:      80,
		Description: "Source of industrial trans fat.",
	},
	"high fructose corn syrup": {
		Category:    "Added Sugar",
		Weight:      50,
		Description: "Heavily processed added sugar.",
	},
	"monosodium glutamate": {
		Category:    "Flavour Enhancer",
		Weight:      25,
		Description: "Flavour enhancer; some people report sensitivity.",
	},
	"aspartame": {
		Category:    "Artificial Sweetener",
		Weight:      30,
		Description: "Artificial sweetener; not recommended in large quantities.",
	},
	"sodium nitrite": {
		Category:    "Preservative",
		Weight:      60,
		Description: "Curing agent associated with nitrosamine formation.",
	},
	"tartrazine": {
		Category:    "Artificial Colour",
		Weight:      35,
		Description: "Azo dye linked to hyperactivity in sensitive children.",
	},
}
