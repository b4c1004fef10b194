package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/shopfinder/internal/domain"
	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	domquery "github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
	"github.com/kailas-cloud/shopfinder/internal/repository/respcache"
	"github.com/kailas-cloud/shopfinder/internal/usecase/extract"
	"github.com/kailas-cloud/shopfinder/internal/usecase/format"
	"github.com/kailas-cloud/shopfinder/internal/usecase/orchestrator"
	"github.com/kailas-cloud/shopfinder/internal/usecase/tokenbudget"
)

// --- Mocks ---

type mockTier struct {
	name     tier.Name
	searchFn func(ctx context.Context, c domquery.Constraints, limit int) ([]result.ScoredItem, error)
	calls    atomic.Int32
}

func (m *mockTier) Name() tier.Name { return m.name }

func (m *mockTier) Search(ctx context.Context, c domquery.Constraints, limit int) ([]result.ScoredItem, error) {
	m.calls.Add(1)
	return m.searchFn(ctx, c, limit)
}

type mockCatalog struct {
	products map[string]product.Product
	reloadFn func() (int, error)
	reloads  atomic.Int32
}

func (m *mockCatalog) ByID(id string) (product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return product.Product{}, fmt.Errorf("product %q: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (m *mockCatalog) Reload() (int, error) {
	m.reloads.Add(1)
	if m.reloadFn != nil {
		return m.reloadFn()
	}
	return len(m.products), nil
}

func (m *mockCatalog) Stats() product.CatalogStats {
	return product.CatalogStats{Products: len(m.products)}
}

type mockPublisher struct {
	mu       sync.Mutex
	channel  string
	messages []string
	err      error
}

func (m *mockPublisher) Publish(_ context.Context, channel string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = channel
	m.messages = append(m.messages, string(msg))
	return m.err
}

type mockSubscriber struct {
	subscribeFn func(ctx context.Context, channel string, fn func([]byte)) error
	calls       atomic.Int32
}

func (m *mockSubscriber) Subscribe(ctx context.Context, channel string, fn func([]byte)) error {
	m.calls.Add(1)
	return m.subscribeFn(ctx, channel, fn)
}

type mockUsage struct{ u tokenbudget.Usage }

func (m mockUsage) Usage() tokenbudget.Usage { return m.u }

// --- Helpers ---

func phone(id, brand string, price int64) product.Product {
	return product.Product{ID: id, Name: brand + " " + id, Brand: brand, Price: product.Price{Current: price}}
}

func scored(p product.Product, score float64) result.ScoredItem {
	return result.ScoredItem{ID: p.ID, Score: score, Product: &p}
}

type fixture struct {
	svc      *Service
	semantic *mockTier
	fallback *mockTier
	catalog  *mockCatalog
	cache    *respcache.Cache[result.Outcome]
}

func newFixture(t *testing.T, minScore float64) *fixture {
	t.Helper()
	a55 := phone("a55", "Samsung", 8_990_000)
	a15 := phone("a15", "Samsung", 4_490_000)
	ip13 := phone("ip13", "Apple", 13_990_000)

	f := &fixture{
		catalog: &mockCatalog{products: map[string]product.Product{"a55": a55, "a15": a15, "ip13": ip13}},
	}
	f.semantic = &mockTier{name: tier.Semantic, searchFn: func(context.Context, domquery.Constraints, int) ([]result.ScoredItem, error) {
		return []result.ScoredItem{scored(a55, 0.9), scored(a15, 0.6), scored(ip13, 0.2)}, nil
	}}
	f.fallback = &mockTier{name: tier.LocalFallback, searchFn: func(context.Context, domquery.Constraints, int) ([]result.ScoredItem, error) {
		return []result.ScoredItem{scored(a15, 0.5)}, nil
	}}

	orch, err := orchestrator.New([]orchestrator.Stage{
		{Tier: f.semantic, Timeout: 50 * time.Millisecond},
		{Tier: f.fallback},
	}, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	f.cache, err = respcache.New[result.Outcome](respcache.Config{TTL: time.Minute, MaxEntries: 100})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	f.svc = New(extract.Default(), f.cache, orch, format.New(minScore), f.catalog, Config{
		DefaultLimit:   10,
		MaxLimit:       20,
		Overfetch:      2,
		ReindexChannel: "shopfinder:reindex",
		InstanceID:     "node-a",
	}, nil)
	return f
}

// --- Search ---

func TestSearch_ThresholdAndOrder(t *testing.T) {
	f := newFixture(t, 0.3)

	p, err := f.svc.Search(context.Background(), domquery.Raw{Text: "điện thoại samsung dưới 10 triệu"}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var got []string
	for _, c := range p.Products {
		got = append(got, c.ID)
	}
	if !reflect.DeepEqual(got, []string{"a55", "a15"}) {
		t.Errorf("products = %v, want [a55 a15]", got)
	}
	if p.Metadata.Tier != tier.Semantic || p.Metadata.Degraded || p.UsedCache {
		t.Errorf("metadata = %+v, used_cache = %v", p.Metadata, p.UsedCache)
	}
	cons := p.Metadata.Constraints
	if cons.BudgetMax == nil || *cons.BudgetMax != 10_000_000 || !reflect.DeepEqual(cons.Brands, []string{"Samsung"}) {
		t.Errorf("constraints = %s", cons)
	}
}

func TestSearch_SecondCallUsesCache(t *testing.T) {
	f := newFixture(t, 0)
	raw := domquery.Raw{Text: "iPhone giá từ 15 đến 20 triệu"}

	first, err := f.svc.Search(context.Background(), raw, 0)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.svc.Search(context.Background(), raw, 0)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if first.UsedCache || !second.UsedCache {
		t.Errorf("used_cache = %v then %v, want false then true", first.UsedCache, second.UsedCache)
	}
	if !reflect.DeepEqual(first.Products, second.Products) {
		t.Errorf("ordering changed: %v vs %v", first.Products, second.Products)
	}
	if n := f.semantic.calls.Load(); n != 1 {
		t.Errorf("tier calls = %d, want 1", n)
	}
}

func TestSearch_JoinedRequestsReportCache(t *testing.T) {
	f := newFixture(t, 0)
	release := make(chan struct{})
	inner := f.semantic.searchFn
	f.semantic.searchFn = func(ctx context.Context, c domquery.Constraints, limit int) ([]result.ScoredItem, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return inner(ctx, c, limit)
	}

	const n = 8
	var wg sync.WaitGroup
	used := make([]bool, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.svc.Search(context.Background(), domquery.Raw{Text: "samsung a55"}, 0)
			used[i], errs[i] = p.UsedCache, err
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	fresh := 0
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !used[i] {
			fresh++
		}
	}
	if fresh != 1 {
		t.Errorf("callers with used_cache=false = %d, want 1", fresh)
	}
	if got := f.semantic.calls.Load(); got != 1 {
		t.Errorf("tier calls = %d, want 1", got)
	}
}

func TestSearch_EquivalentTextSharesEntry(t *testing.T) {
	f := newFixture(t, 0)

	if _, err := f.svc.Search(context.Background(), domquery.Raw{Text: "Điện thoại  Samsung"}, 3); err != nil {
		t.Fatal(err)
	}
	p, err := f.svc.Search(context.Background(), domquery.Raw{Text: "điện thoại samsung"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !p.UsedCache {
		t.Error("case and spacing variants should share a cache entry")
	}
}

func TestSearch_DifferentLimitMisses(t *testing.T) {
	f := newFixture(t, 0)
	raw := domquery.Raw{Text: "samsung"}
	_, _ = f.svc.Search(context.Background(), raw, 2)
	p, _ := f.svc.Search(context.Background(), raw, 3)
	if p.UsedCache {
		t.Error("limit is part of the cache key")
	}
}

func TestSearch_OverfetchAndClamp(t *testing.T) {
	f := newFixture(t, 0)
	var seen []int
	f.semantic.searchFn = func(_ context.Context, _ domquery.Constraints, limit int) ([]result.ScoredItem, error) {
		seen = append(seen, limit)
		return nil, nil
	}

	for _, limit := range []int{0, 3, 500} {
		if _, err := f.svc.Search(context.Background(), domquery.Raw{Text: fmt.Sprint("q", limit)}, limit); err != nil {
			t.Fatalf("limit %d: %v", limit, err)
		}
	}
	if want := []int{20, 6, 40}; !reflect.DeepEqual(seen, want) {
		t.Errorf("tier limits = %v, want %v", seen, want)
	}
}

func TestSearch_NegativeLimit(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.svc.Search(context.Background(), domquery.Raw{Text: "x"}, -1)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestSearch_EmptyInputStillSearches(t *testing.T) {
	f := newFixture(t, 0)
	p, err := f.svc.Search(context.Background(), domquery.Raw{}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(p.Products) == 0 || f.semantic.calls.Load() != 1 {
		t.Errorf("products = %d, calls = %d", len(p.Products), f.semantic.calls.Load())
	}
}

func TestSearch_FallbackIsDegraded(t *testing.T) {
	f := newFixture(t, 0)
	f.semantic.searchFn = func(context.Context, domquery.Constraints, int) ([]result.ScoredItem, error) {
		return nil, fmt.Errorf("boom: %w", domain.ErrBackendTransport)
	}

	p, err := f.svc.Search(context.Background(), domquery.Raw{Text: "samsung"}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if p.Metadata.Tier != tier.LocalFallback || !p.Metadata.Degraded {
		t.Errorf("metadata = %+v", p.Metadata)
	}
	if !reflect.DeepEqual(p.Metadata.TiersTried, []tier.Name{tier.Semantic, tier.LocalFallback}) {
		t.Errorf("tiers tried = %v", p.Metadata.TiersTried)
	}
}

func TestSearch_ExhaustedIsNotCached(t *testing.T) {
	f := newFixture(t, 0)
	fail := func(context.Context, domquery.Constraints, int) ([]result.ScoredItem, error) {
		return nil, errors.New("down")
	}
	f.semantic.searchFn = fail
	f.fallback.searchFn = fail

	raw := domquery.Raw{Text: "samsung"}
	for i := 0; i < 2; i++ {
		_, err := f.svc.Search(context.Background(), raw, 5)
		if !errors.Is(err, domain.ErrTiersExhausted) || err.Error() != domain.ErrTiersExhausted.Error() {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if n := f.fallback.calls.Load(); n != 2 {
		t.Errorf("fallback calls = %d, want 2", n)
	}
}

func TestSearch_ExplicitFiltersOverride(t *testing.T) {
	f := newFixture(t, 0)
	maxBudget := int64(5_000_000)
	raw := domquery.Raw{
		Text:    "samsung dưới 10 triệu",
		Filters: domquery.Filters{BudgetMax: &maxBudget, Brands: []string{"Apple"}},
	}
	cons := f.svc.Extract(raw)
	if *cons.BudgetMax != maxBudget || !reflect.DeepEqual(cons.Brands, []string{"Apple"}) {
		t.Errorf("constraints = %s", cons)
	}
}

// --- Product / Compare ---

func TestProduct(t *testing.T) {
	f := newFixture(t, 0)
	if p, err := f.svc.Product("a55"); err != nil || p.Brand != "Samsung" {
		t.Errorf("Product(a55) = %+v, %v", p, err)
	}
	if _, err := f.svc.Product("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Product(" "); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestCompare(t *testing.T) {
	f := newFixture(t, 0)

	p, err := f.svc.Compare([]string{"a55", "ip13", "a55"})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if p.Comparison == nil || !reflect.DeepEqual(p.Comparison.Prices, []int64{8_990_000, 13_990_000}) {
		t.Errorf("comparison = %+v", p.Comparison)
	}

	f.catalog.products["s24"] = phone("s24", "Samsung", 19_990_000)
	f.catalog.products["ip15"] = phone("ip15", "Apple", 21_990_000)
	p, err = f.svc.Compare([]string{"a55", "a15", "ip13", "s24", "ip15"})
	if err != nil {
		t.Fatalf("Compare five: %v", err)
	}
	if len(p.Comparison.Prices) != MaxCompare {
		t.Errorf("compared %d products, want %d", len(p.Comparison.Prices), MaxCompare)
	}

	tests := []struct {
		name string
		ids  []string
		want error
	}{
		{"one", []string{"a55"}, domain.ErrInvalidRequest},
		{"duplicates collapse to one", []string{"a55", "a55"}, domain.ErrInvalidRequest},
		{"six", []string{"a55", "a15", "ip13", "s24", "ip15", "x"}, domain.ErrInvalidRequest},
		{"blank id", []string{"a55", ""}, domain.ErrInvalidRequest},
		{"unknown", []string{"a55", "ghost"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Compare(tt.ids); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// --- Reindex ---

func TestReindex_InvalidatesAndPublishes(t *testing.T) {
	f := newFixture(t, 0)
	pub := &mockPublisher{}
	f.svc.WithPublisher(pub)
	raw := domquery.Raw{Text: "samsung"}

	_, _ = f.svc.Search(context.Background(), raw, 5)
	n, err := f.svc.Reindex(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("Reindex = %d, %v", n, err)
	}
	if pub.channel != "shopfinder:reindex" || !reflect.DeepEqual(pub.messages, []string{"node-a"}) {
		t.Errorf("published %q on %q", pub.messages, pub.channel)
	}
	p, _ := f.svc.Search(context.Background(), raw, 5)
	if p.UsedCache {
		t.Error("cache survived reindex")
	}
}

func TestReindex_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, 0)
	f.svc.WithPublisher(&mockPublisher{err: errors.New("redis down")})
	if _, err := f.svc.Reindex(context.Background()); err != nil {
		t.Errorf("Reindex: %v", err)
	}
}

func TestReindex_ReloadFailureKeepsCache(t *testing.T) {
	f := newFixture(t, 0)
	f.catalog.reloadFn = func() (int, error) { return 0, errors.New("bad json") }
	raw := domquery.Raw{Text: "samsung"}

	_, _ = f.svc.Search(context.Background(), raw, 5)
	if _, err := f.svc.Reindex(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if p, _ := f.svc.Search(context.Background(), raw, 5); !p.UsedCache {
		t.Error("cache dropped after failed reload")
	}
}

func TestHandleReindexSignal(t *testing.T) {
	f := newFixture(t, 0)
	raw := domquery.Raw{Text: "samsung"}
	_, _ = f.svc.Search(context.Background(), raw, 5)

	f.svc.HandleReindexSignal([]byte("node-a"))
	if f.catalog.reloads.Load() != 0 || f.cache.Len() != 1 {
		t.Errorf("own signal applied: reloads = %d, entries = %d", f.catalog.reloads.Load(), f.cache.Len())
	}

	f.svc.HandleReindexSignal([]byte("node-b"))
	if f.catalog.reloads.Load() != 1 || f.cache.Len() != 0 {
		t.Errorf("peer signal ignored: reloads = %d, entries = %d", f.catalog.reloads.Load(), f.cache.Len())
	}
}

func TestListenReindex(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &mockSubscriber{}
	sub.subscribeFn = func(ctx context.Context, channel string, fn func([]byte)) error {
		if channel != "shopfinder:reindex" {
			t.Errorf("channel = %q", channel)
		}
		if sub.calls.Load() == 1 {
			return errors.New("connection reset")
		}
		fn([]byte("node-b"))
		cancel()
		<-ctx.Done()
		return nil
	}

	done := make(chan struct{})
	go func() {
		f.svc.ListenReindex(ctx, sub, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	if sub.calls.Load() != 2 || f.catalog.reloads.Load() != 1 {
		t.Errorf("subscribes = %d, reloads = %d", sub.calls.Load(), f.catalog.reloads.Load())
	}
}

// --- Stats / CacheKey ---

func TestStats(t *testing.T) {
	f := newFixture(t, 0)
	_, _ = f.svc.Search(context.Background(), domquery.Raw{Text: "samsung"}, 5)

	st := f.svc.Stats()
	if st.Catalog.Products != 3 || st.CacheEntries != 1 || st.CacheTTLSec != 60 || st.RulesVersion != extract.RulesVersion {
		t.Errorf("stats = %+v", st)
	}
	if !reflect.DeepEqual(st.TierOrder, []tier.Name{tier.Semantic, tier.LocalFallback}) {
		t.Errorf("tier order = %v", st.TierOrder)
	}
	if st.TokenBudget != nil {
		t.Error("token budget reported without a reporter")
	}

	f.svc.WithUsage(mockUsage{u: tokenbudget.Usage{Provider: "openai", DailyUsed: 12}})
	if st := f.svc.Stats(); st.TokenBudget == nil || st.TokenBudget.DailyUsed != 12 {
		t.Errorf("token budget = %+v", st.TokenBudget)
	}
}

func TestCacheKey(t *testing.T) {
	c := domquery.Constraints{Brands: []string{"Apple"}}
	base := CacheKey("v1", "iPhone 15", c, 10)

	if CacheKey("v1", "  iphone   15 ", c, 10) != base {
		t.Error("normalized text should not change the key")
	}
	for name, other := range map[string]string{
		"version": CacheKey("v2", "iPhone 15", c, 10),
		"text":    CacheKey("v1", "iPhone 14", c, 10),
		"limit":   CacheKey("v1", "iPhone 15", c, 11),
		"brands":  CacheKey("v1", "iPhone 15", domquery.Constraints{Brands: []string{"Samsung"}}, 10),
	} {
		if other == base {
			t.Errorf("%s does not change the key", name)
		}
	}
}
