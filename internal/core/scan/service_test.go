package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"safebite-api/internal/core/catalog"
	"safebite-api/internal/core/product"
	"safebite-api/internal/core/profile"
	"safebite-api/internal/core/risk"
	"safebite-api/internal/infrastructure/config"
	"safebite-api/internal/pkg/common"

	"gorm.io/datatypes"
)

// fakeStore 以 map 模擬唯一索引的商品儲存
type fakeStore struct {
	mu       sync.Mutex
	rows     map[string]*product.Product
	inserts  int
	findErr  error
	insertAt func() // Insert 進入臨界區前的鉤子，用來排併發劇本
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*product.Product{}}
}

func (f *fakeStore) FindByBarcode(ctx context.Context, canonical string) (*product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if rec, ok := f.rows[canonical]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, common.ErrProductNotFound
}

func (f *fakeStore) Insert(ctx context.Context, p *product.Product) (*product.Product, error) {
	if f.insertAt != nil {
		f.insertAt()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[p.Barcode]; ok {
		return nil, common.ErrDuplicateBarcode
	}
	f.inserts++
	cp := *p
	f.rows[p.Barcode] = &cp
	return p, nil
}

// fakeCatalog 可編程的外部目錄
type fakeCatalog struct {
	mu      sync.Mutex
	calls   int
	product *catalog.RawProduct
	err     error
}

func (f *fakeCatalog) Fetch(ctx context.Context, canonicalBarcode string) (*catalog.RawProduct, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.product, nil
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProfiles struct {
	profiles map[string]*profile.UserProfile
}

func (f *fakeProfiles) FindByDeviceID(ctx context.Context, deviceID string) (*profile.UserProfile, error) {
	if p, ok := f.profiles[deviceID]; ok {
		return p, nil
	}
	return nil, nil
}

type fakeRecommender struct {
	mu         sync.Mutex
	lastStatus common.RiskStatus
	items      []product.Product
}

func (f *fakeRecommender) Recommend(ctx context.Context, category, brand string, status common.RiskStatus) ([]product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStatus = status
	if status == common.StatusSafe {
		return []product.Product{}, nil
	}
	return f.items, nil
}

func testEngine(t *testing.T) *risk.Engine {
	t.Helper()
	kb, policy, err := risk.LoadKnowledgeBase("")
	if err != nil {
		t.Fatalf("load knowledge base: %v", err)
	}
	return risk.NewEngine(kb, policy)
}

func newTestService(t *testing.T, store *fakeStore, cat *fakeCatalog, profiles ProfileFinder, cache NegativeCache) *Service {
	t.Helper()
	if profiles == nil {
		profiles = &fakeProfiles{}
	}
	return NewService(store, cat, profiles, testEngine(t), &fakeRecommender{}, cache)
}

func chipsRaw() *catalog.RawProduct {
	return &catalog.RawProduct{
		Found:    true,
		Name:     "Choco Wafers",
		Brand:    "SnackCo",
		ImageURL: "https://images.example/wafers.jpg",
		Category: "Snacks",
		IngredientTextByLanguage: map[string]string{
			"ingredients_text_en": "Sugar, Palm Oil (hydrogenated), Salt",
		},
	}
}

func TestResolve_InvalidBarcode(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeCatalog{}, nil, nil)

	_, err := svc.Resolve(context.Background(), "12ab", "")
	if !errors.Is(err, common.ErrInvalidBarcode) {
		t.Fatalf("expected ErrInvalidBarcode, got %v", err)
	}
}

func TestResolve_FirstScanFetchesScoresAndPersists(t *testing.T) {
	store := newFakeStore()
	cat := &fakeCatalog{product: chipsRaw()}
	svc := newTestService(t, store, cat, nil, nil)

	res, err := svc.Resolve(context.Background(), "8901030875950", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Source != SourceCatalog {
		t.Fatalf("expected source %q, got %q", SourceCatalog, res.Source)
	}
	p := res.Product
	if p.Barcode != "8901030875950" || p.Name != "Choco Wafers" {
		t.Fatalf("unexpected product: %+v", p)
	}
	want := []string{"Sugar", "Palm Oil", "Salt"}
	if len(p.Ingredients) != len(want) {
		t.Fatalf("expected ingredients %v, got %v", want, p.Ingredients)
	}
	for i := range want {
		if p.Ingredients[i] != want[i] {
			t.Fatalf("ingredient %d: expected %q, got %q", i, want[i], p.Ingredients[i])
		}
	}
	// 內建知識庫的 palm oil 權重 70：超過 60 → HIGH
	if p.Analysis.Status != common.StatusHigh {
		t.Fatalf("expected HIGH, got %s (score %d)", p.Analysis.Status, p.Analysis.TotalRiskScore)
	}
	if p.Analysis.IsChildSafe {
		t.Fatalf("HIGH product must not be child safe")
	}
	if store.inserts != 1 {
		t.Fatalf("expected 1 insert, got %d", store.inserts)
	}
	if cat.callCount() != 1 {
		t.Fatalf("expected 1 catalog call, got %d", cat.callCount())
	}
}

func TestResolve_LocalHitSkipsCatalog(t *testing.T) {
	store := newFakeStore()
	cat := &fakeCatalog{product: chipsRaw()}
	svc := newTestService(t, store, cat, nil, nil)

	first, err := svc.Resolve(context.Background(), "8901030875950", "")
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}

	second, err := svc.Resolve(context.Background(), "8901030875950", "")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if second.Source != SourceLocal {
		t.Fatalf("expected source %q, got %q", SourceLocal, second.Source)
	}
	if cat.callCount() != 1 {
		t.Fatalf("local hit must not call catalog, got %d calls", cat.callCount())
	}
	// 命中時回傳的分析必須與首掃一致
	if second.Product.Analysis.TotalRiskScore != first.Product.Analysis.TotalRiskScore ||
		second.Product.Analysis.Status != first.Product.Analysis.Status {
		t.Fatalf("cached analysis diverged: first=%+v second=%+v", first.Product.Analysis, second.Product.Analysis)
	}
}

func TestResolve_CatalogMissReturnsNotFound(t *testing.T) {
	cat := &fakeCatalog{product: &catalog.RawProduct{Found: false}}
	negCache := newMemoryCache(&config.LookupCacheConfig{Enabled: true, TTL: time.Minute})
	svc := newTestService(t, newFakeStore(), cat, nil, negCache)

	_, err := svc.Resolve(context.Background(), "99999999", "")
	if !errors.Is(err, common.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	// 第二次直接吃查無結果快取，不再打外部目錄
	_, err = svc.Resolve(context.Background(), "99999999", "")
	if !errors.Is(err, common.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on cached miss, got %v", err)
	}
	if cat.callCount() != 1 {
		t.Fatalf("expected 1 catalog call, got %d", cat.callCount())
	}
}

func TestResolve_EmptyIngredientsRejected(t *testing.T) {
	raw := chipsRaw()
	raw.IngredientTextByLanguage = map[string]string{}
	svc := newTestService(t, newFakeStore(), &fakeCatalog{product: raw}, nil, nil)

	_, err := svc.Resolve(context.Background(), "8901030875950", "")
	if !errors.Is(err, common.ErrInvalidUpstreamData) {
		t.Fatalf("expected ErrInvalidUpstreamData, got %v", err)
	}
}

func TestResolve_UpstreamFailurePropagates(t *testing.T) {
	cat := &fakeCatalog{err: common.ErrUpstreamUnavailable}
	svc := newTestService(t, newFakeStore(), cat, nil, nil)

	_, err := svc.Resolve(context.Background(), "8901030875950", "")
	if !errors.Is(err, common.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestResolve_DuplicateInsertAbsorbed(t *testing.T) {
	store := newFakeStore()
	cat := &fakeCatalog{product: chipsRaw()}
	svc := newTestService(t, store, cat, nil, nil)

	// 讓寫入前另一筆同條碼先落庫，模擬輸掉唯一索引競賽
	seeded := false
	store.insertAt = func() {
		if seeded {
			return
		}
		seeded = true
		base := testEngine(t).Score([]string{"Sugar", "Palm Oil", "Salt"}, nil)
		rec := product.New("8901030875950", "Choco Wafers", "SnackCo", "", "Snacks",
			[]string{"Sugar", "Palm Oil", "Salt"}, base)
		store.mu.Lock()
		store.rows[rec.Barcode] = rec
		store.mu.Unlock()
	}

	res, err := svc.Resolve(context.Background(), "8901030875950", "")
	if err != nil {
		t.Fatalf("duplicate insert must be absorbed, got %v", err)
	}
	if res.Source != SourceLocal {
		t.Fatalf("re-read after duplicate should report source %q, got %q", SourceLocal, res.Source)
	}
	if store.inserts != 0 {
		t.Fatalf("losing racer must not insert, got %d inserts", store.inserts)
	}
}

func TestResolve_ConcurrentFirstScans(t *testing.T) {
	store := newFakeStore()
	cat := &fakeCatalog{product: chipsRaw()}
	svc := newTestService(t, store, cat, nil, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Resolve(context.Background(), "8901030875950", "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d failed: %v", i, err)
		}
	}
	if store.inserts != 1 {
		t.Fatalf("expected exactly 1 insert, got %d", store.inserts)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(store.rows))
	}
}

func TestResolve_PersonalizationOverlaysWithoutPersisting(t *testing.T) {
	store := newFakeStore()
	cat := &fakeCatalog{product: chipsRaw()}
	profiles := &fakeProfiles{profiles: map[string]*profile.UserProfile{
		"device-1": {
			DeviceID:  "device-1",
			AvoidList: datatypes.JSONSlice[string]{"salt"},
		},
	}}
	svc := newTestService(t, store, cat, profiles, nil)

	base, err := svc.Resolve(context.Background(), "8901030875950", "")
	if err != nil {
		t.Fatalf("anonymous Resolve failed: %v", err)
	}
	personal, err := svc.Resolve(context.Background(), "8901030875950", "device-1")
	if err != nil {
		t.Fatalf("personalized Resolve failed: %v", err)
	}

	if personal.Product.Analysis.TotalRiskScore <= base.Product.Analysis.TotalRiskScore {
		t.Fatalf("avoided ingredient must raise score: base=%d personal=%d",
			base.Product.Analysis.TotalRiskScore, personal.Product.Analysis.TotalRiskScore)
	}

	// 落庫的永遠是基準分析
	stored := store.rows["8901030875950"]
	if stored.BaseAnalysis().TotalRiskScore != base.Product.Analysis.TotalRiskScore {
		t.Fatalf("stored analysis must stay baseline: stored=%d base=%d",
			stored.BaseAnalysis().TotalRiskScore, base.Product.Analysis.TotalRiskScore)
	}

	// 之後的匿名請求不受影響
	again, err := svc.Resolve(context.Background(), "8901030875950", "")
	if err != nil {
		t.Fatalf("anonymous Resolve failed: %v", err)
	}
	if again.Product.Analysis.TotalRiskScore != base.Product.Analysis.TotalRiskScore {
		t.Fatalf("personalization leaked into baseline")
	}
}

func TestResolve_UnknownDeviceFallsBackToBaseline(t *testing.T) {
	store := newFakeStore()
	cat := &fakeCatalog{product: chipsRaw()}
	svc := newTestService(t, store, cat, &fakeProfiles{}, nil)

	res, err := svc.Resolve(context.Background(), "8901030875950", "no-such-device")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	base := testEngine(t).Score([]string{"Sugar", "Palm Oil", "Salt"}, nil)
	if res.Product.Analysis.TotalRiskScore != base.TotalRiskScore {
		t.Fatalf("unknown device must get baseline analysis")
	}
}

func TestResolve_AlternativesFollowPersonalizedStatus(t *testing.T) {
	store := newFakeStore()
	cat := &fakeCatalog{product: chipsRaw()}
	rec := &fakeRecommender{items: []product.Product{{Name: "Baked Chips"}}}
	svc := NewService(store, cat, &fakeProfiles{}, testEngine(t), rec, nil)

	res, err := svc.Resolve(context.Background(), "8901030875950", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rec.lastStatus != common.StatusHigh {
		t.Fatalf("recommender must see the resolved status, got %s", rec.lastStatus)
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0].Name != "Baked Chips" {
		t.Fatalf("alternatives not attached: %+v", res.Alternatives)
	}
}
