package risk

import (
	"testing"

	"safebite-api/internal/pkg/common"
)

func testKB() KnowledgeBase {
	return newStaticKB(map[string]Entry{
		"Palm Oil":       {Category: "Unhealthy Fat", Weight: 70, Description: "High in saturated fat."},
		"Sodium Nitrite": {Category: "Preservative", Weight: 60, Description: "Curing agent."},
		"Aspartame":      {Category: "Artificial Sweetener", Weight: 30, Description: "Sweetener."},
		"Tartrazine":     {Category: "Artificial Colour", Weight: 10, Description: "Azo dye."},
	})
}

func testEngine() *Engine {
	return NewEngine(testKB(), PersonalizationPolicy{EscalationFactor: 2.0, MinWeight: 40})
}

func TestScore_PalmOilSnack(t *testing.T) {
	// 規格範例：Sugar, Palm Oil, Salt → Palm Oil 權重 70 → HIGH
	res := testEngine().Score([]string{"Sugar", "Palm Oil", "Salt"}, nil)
	if res.TotalRiskScore != 70 {
		t.Fatalf("score = %d, want 70", res.TotalRiskScore)
	}
	if res.Status != common.StatusHigh {
		t.Fatalf("status = %s, want HIGH", res.Status)
	}
	if res.IsChildSafe {
		t.Fatalf("expected isChildSafe=false")
	}
	if len(res.HarmfulIngredients) != 1 || res.HarmfulIngredients[0].Name != "Palm Oil" {
		t.Fatalf("unexpected harmful entries: %+v", res.HarmfulIngredients)
	}
}

func TestScore_EmptyListYieldsSafeZero(t *testing.T) {
	res := testEngine().Score(nil, nil)
	if res.TotalRiskScore != 0 || res.Status != common.StatusSafe || !res.IsChildSafe {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.HarmfulIngredients) != 0 {
		t.Fatalf("expected no entries, got %+v", res.HarmfulIngredients)
	}
}

func TestScore_ClampedToHundred(t *testing.T) {
	res := testEngine().Score([]string{"Palm Oil", "Sodium Nitrite", "Aspartame"}, nil)
	if res.TotalRiskScore != 100 {
		t.Fatalf("score = %d, want 100 (clamped)", res.TotalRiskScore)
	}
	if res.Status != common.StatusHigh {
		t.Fatalf("status = %s, want HIGH", res.Status)
	}
}

func TestScore_ThresholdConsistency(t *testing.T) {
	e := testEngine()
	cases := []struct {
		ingredients []string
		wantScore   int
		wantStatus  common.RiskStatus
	}{
		{[]string{"Sugar"}, 0, common.StatusSafe},
		{[]string{"Tartrazine"}, 10, common.StatusSafe},
		{[]string{"Aspartame"}, 30, common.StatusModerate},
		{[]string{"Aspartame", "Tartrazine"}, 40, common.StatusModerate},
		{[]string{"Sodium Nitrite"}, 60, common.StatusModerate},
		{[]string{"Palm Oil"}, 70, common.StatusHigh},
	}
	for _, tc := range cases {
		res := e.Score(tc.ingredients, nil)
		if res.TotalRiskScore != tc.wantScore {
			t.Fatalf("%v: score = %d, want %d", tc.ingredients, res.TotalRiskScore, tc.wantScore)
		}
		if res.Status != tc.wantStatus {
			t.Fatalf("%v: status = %s, want %s", tc.ingredients, res.Status, tc.wantStatus)
		}
		if res.IsChildSafe != (res.TotalRiskScore < common.SafeScoreThreshold) {
			t.Fatalf("%v: isChildSafe inconsistent with score %d", tc.ingredients, res.TotalRiskScore)
		}
	}
}

func TestScore_Monotonicity(t *testing.T) {
	e := testEngine()
	base := e.Score([]string{"Sugar", "Tartrazine"}, nil)
	grown := e.Score([]string{"Sugar", "Tartrazine", "Aspartame"}, nil)
	if grown.TotalRiskScore < base.TotalRiskScore {
		t.Fatalf("adding a harmful ingredient decreased score: %d → %d",
			base.TotalRiskScore, grown.TotalRiskScore)
	}
	if statusRank(grown.Status) < statusRank(base.Status) {
		t.Fatalf("adding a harmful ingredient downgraded status: %s → %s", base.Status, grown.Status)
	}
}

func TestScore_OrderPreservedNoDuplicates(t *testing.T) {
	res := testEngine().Score([]string{"Aspartame", "Tartrazine", "Aspartame"}, nil)
	if len(res.HarmfulIngredients) != 2 {
		t.Fatalf("expected 2 entries, got %+v", res.HarmfulIngredients)
	}
	if res.HarmfulIngredients[0].Name != "Aspartame" || res.HarmfulIngredients[1].Name != "Tartrazine" {
		t.Fatalf("order not preserved: %+v", res.HarmfulIngredients)
	}
	if res.TotalRiskScore != 40 {
		t.Fatalf("duplicate counted twice: score = %d", res.TotalRiskScore)
	}
}

func TestScore_PersonalizationEscalates(t *testing.T) {
	e := testEngine()
	cons := &Constraints{Allergies: []string{"Tartrazine"}}

	anon := e.Score([]string{"Tartrazine"}, nil)
	personalized := e.Score([]string{"Tartrazine"}, cons)

	if anon.TotalRiskScore != 10 {
		t.Fatalf("anonymous score = %d, want 10", anon.TotalRiskScore)
	}
	// 10*2.0=20 但低於最低權重 40
	if personalized.TotalRiskScore != 40 {
		t.Fatalf("personalized score = %d, want 40", personalized.TotalRiskScore)
	}
	if personalized.Status != common.StatusModerate {
		t.Fatalf("personalized status = %s, want MODERATE", personalized.Status)
	}
}

func TestScore_PersonalizationNeverLowers(t *testing.T) {
	e := testEngine()
	lists := [][]string{
		{"Palm Oil"},
		{"Aspartame", "Tartrazine"},
		{"Sugar", "Salt"},
		{"Peanuts"},
	}
	cons := &Constraints{Allergies: []string{"Peanuts"}, AvoidList: []string{"Palm Oil"}}
	for _, ingredients := range lists {
		anon := e.Score(ingredients, nil)
		personalized := e.Score(ingredients, cons)
		if personalized.TotalRiskScore < anon.TotalRiskScore {
			t.Fatalf("%v: personalization lowered score %d → %d",
				ingredients, anon.TotalRiskScore, personalized.TotalRiskScore)
		}
		if statusRank(personalized.Status) < statusRank(anon.Status) {
			t.Fatalf("%v: personalization lowered status %s → %s",
				ingredients, anon.Status, personalized.Status)
		}
	}
}

func TestScore_AvoidedIngredientWithoutKBEntry(t *testing.T) {
	e := testEngine()
	cons := &Constraints{Allergies: []string{"Peanuts"}}
	res := e.Score([]string{"Sugar", "Peanuts"}, cons)
	if res.TotalRiskScore != 40 {
		t.Fatalf("score = %d, want 40 (forced minimum)", res.TotalRiskScore)
	}
	if len(res.HarmfulIngredients) != 1 {
		t.Fatalf("unexpected entries: %+v", res.HarmfulIngredients)
	}
	if res.HarmfulIngredients[0].RiskCategory != "Personal Restriction" {
		t.Fatalf("unexpected category: %+v", res.HarmfulIngredients[0])
	}
}

func TestLookup_SubstringMatch(t *testing.T) {
	kb := testKB()
	entry, ok := kb.Lookup("Refined Palm Oil Blend")
	if !ok || entry.Weight != 70 {
		t.Fatalf("substring lookup failed: %+v ok=%v", entry, ok)
	}
	if _, ok := kb.Lookup("Sugar"); ok {
		t.Fatalf("unexpected match for Sugar")
	}
}

func statusRank(s common.RiskStatus) int {
	switch s {
	case common.StatusSafe:
		return 0
	case common.StatusModerate:
		return 1
	default:
		return 2
	}
}
