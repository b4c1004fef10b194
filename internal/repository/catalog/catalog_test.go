package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kailas-cloud/shopfinder/internal/domain"
	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
)

func i64(v int64) *int64 { return &v }

func fixtures() []product.Product {
	return []product.Product{
		{
			ID: "ip15", Name: "iPhone 15 Pro Max", Brand: "Apple", Category: "Điện thoại",
			Price: product.Price{Current: 29_990_000, Original: 34_990_000},
			Specs: map[string]any{"camera_main": "48MP", "os": "iOS 17"},
		},
		{
			ID: "ip13", Name: "iPhone 13", Brand: "Apple", Category: "Điện thoại",
			Price: product.Price{Current: 13_490_000},
			Specs: map[string]any{"os": "iOS 16"},
		},
		{
			ID: "a55", Name: "Samsung Galaxy A55", Brand: "Samsung", Category: "Điện thoại",
			Price: product.Price{Current: 8_990_000},
			Specs: map[string]any{"camera_main": "50MP OIS", "battery": "5000 mAh"},
		},
		{
			ID: "a15", Name: "Samsung Galaxy A15", Brand: "Samsung", Category: "Điện thoại",
			Price: product.Price{Current: 4_490_000},
			Specs: map[string]any{"battery": "5000 mAh"},
		},
		{
			ID: "nokia", Name: "Nokia 105", Brand: "Nokia", Category: "Điện thoại",
		},
		{
			ID: "buds", Name: "Galaxy Buds FE", Brand: "Samsung", Category: "Tai nghe",
			Price: product.Price{Current: 1_490_000, DiscountPercentage: 20},
		},
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return New("", fixtures(), nil)
}

func itemIDs(items []result.ScoredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"array", `[{"id":"a","name":"A","price":{"current":1}}]`, 1, false},
		{"wrapped", `{"products":[{"id":"a","name":"A"},{"id":"b","name":"B"}]}`, 2, false},
		{"empty", "  ", 0, true},
		{"garbage", `{"products":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReplace_SkipsInvalidAndDuplicates(t *testing.T) {
	c := New("", nil, nil)
	n := c.Replace([]product.Product{
		{ID: "a", Name: "A"},
		{ID: "a", Name: "A again"},
		{ID: "", Name: "no id"},
		{ID: "b"},
		{ID: "c", Name: "C", Price: product.Price{Current: -1}},
		{ID: "d", Name: "D"},
	})
	if n != 2 || c.Len() != 2 {
		t.Fatalf("kept %d (Len %d), want 2", n, c.Len())
	}
	p, err := c.ByID("a")
	if err != nil || p.Name != "A" {
		t.Errorf("ByID(a) = %+v, %v; first record must win", p, err)
	}
}

func TestByID_NotFound(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.ByID("missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	st := newTestCatalog(t).Stats()
	if st.Products != 6 || !st.Indexed {
		t.Errorf("stats = %+v", st)
	}
	if !reflect.DeepEqual(st.Brands, []string{"Apple", "Nokia", "Samsung"}) {
		t.Errorf("Brands = %v", st.Brands)
	}
	if !reflect.DeepEqual(st.Categories, []string{"Tai nghe", "Điện thoại"}) {
		t.Errorf("Categories = %v", st.Categories)
	}
}

func TestName(t *testing.T) {
	if newTestCatalog(t).Name() != tier.LocalFallback {
		t.Error("catalog must serve as the local fallback tier")
	}
}

func TestSearch_BudgetOnly(t *testing.T) {
	c := newTestCatalog(t)
	items, err := c.Search(context.Background(), query.Constraints{BudgetMax: i64(10_000_000)}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"a15", "a55", "buds"}
	if !reflect.DeepEqual(itemIDs(items), want) {
		t.Errorf("ids = %v, want %v (unknown price excluded, ties by id)", itemIDs(items), want)
	}
	for _, it := range items {
		if it.Score != neutralScore || it.Product == nil {
			t.Errorf("%s: score %v product %v", it.ID, it.Score, it.Product)
		}
	}
}

func TestSearch_MinDiscount(t *testing.T) {
	c := newTestCatalog(t)
	ten, fifteen := 10, 15

	items, err := c.Search(context.Background(), query.Constraints{MinDiscount: &ten}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Deepest markdown first: buds 20% (stored), ip15 14% (computed).
	if want := []string{"buds", "ip15"}; !reflect.DeepEqual(itemIDs(items), want) {
		t.Errorf("ids = %v, want %v", itemIDs(items), want)
	}
	if items[0].Score <= items[1].Score || items[1].Score <= neutralScore {
		t.Errorf("scores = %v, %v", items[0].Score, items[1].Score)
	}

	items, _ = c.Search(context.Background(), query.Constraints{MinDiscount: &fifteen, SearchText: "iphone"}, 0)
	if len(items) != 0 {
		t.Errorf("ids = %v, want none above 15%% matching iphone", itemIDs(items))
	}

	got := c.Candidates(query.Constraints{MinDiscount: &fifteen}, 0)
	if len(got) != 1 || got[0].ID != "buds" {
		t.Errorf("candidates = %+v, want buds", got)
	}
}

func TestSearch_TextRanking(t *testing.T) {
	c := newTestCatalog(t)
	items, err := c.Search(context.Background(), query.Constraints{SearchText: "iphone 15"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) < 2 || items[0].ID != "ip15" {
		t.Fatalf("ids = %v, want ip15 first", itemIDs(items))
	}
	if items[0].Score != 1 {
		t.Errorf("top score = %v, want 1", items[0].Score)
	}
	if len(items[0].MatchedTerms()) == 0 {
		t.Error("top hit has no matched terms")
	}
}

func TestSearch_AccentInsensitive(t *testing.T) {
	c := newTestCatalog(t)
	items, err := c.Search(context.Background(), query.Constraints{SearchText: "tai nghe"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) == 0 || items[0].ID != "buds" {
		t.Errorf("ids = %v, want buds first", itemIDs(items))
	}
}

func TestSearch_BrandAndBudget(t *testing.T) {
	c := newTestCatalog(t)
	cons := query.Constraints{Brands: []string{"samsung"}, BudgetMin: i64(2_000_000), SearchText: "galaxy"}
	items, err := c.Search(context.Background(), cons, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := map[string]bool{}
	for _, it := range items {
		got[it.ID] = true
	}
	if !got["a55"] || !got["a15"] || got["buds"] || len(got) != 2 {
		t.Errorf("ids = %v, want a55 and a15 only", itemIDs(items))
	}
}

func TestSearch_Limit(t *testing.T) {
	c := newTestCatalog(t)
	items, _ := c.Search(context.Background(), query.Constraints{}, 2)
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}
}

func TestSearch_FeatureBonus(t *testing.T) {
	c := newTestCatalog(t)
	items, err := c.Search(context.Background(), query.Constraints{Features: []string{"camera"}}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if itemIDs(items)[0] != "a55" || items[0].Score != neutralScore+featureBonus {
		t.Errorf("first = %s (%v), want a55 with bonus", items[0].ID, items[0].Score)
	}
	if items[1].ID != "ip15" {
		t.Errorf("second = %s, want ip15", items[1].ID)
	}
}

func TestSearch_SubstringWithoutIndex(t *testing.T) {
	c := newTestCatalog(t)
	s := c.snap.Load()
	_ = s.index.Close()
	s.index = nil

	items, err := c.Search(context.Background(), query.Constraints{SearchText: "galaxy a55"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) == 0 || items[0].ID != "a55" {
		t.Fatalf("ids = %v, want a55 first", itemIDs(items))
	}
	if !reflect.DeepEqual(items[0].MatchedFields[fieldName], []string{"galaxy", "a55"}) {
		t.Errorf("matched = %v", items[0].MatchedFields)
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestCatalog(t).Search(ctx, query.Constraints{}, 5); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSubstringScore(t *testing.T) {
	p := product.Product{ID: "x", Name: "Galaxy S24", Brand: "Samsung", Category: "Điện thoại",
		Specs: map[string]any{"chip": "Snapdragon"}}
	f := foldProduct(&p)

	tests := []struct {
		name  string
		terms []string
		want  float64
	}{
		{"name", []string{"galaxy"}, 0.5},
		{"name and brand", []string{"galaxy", "samsung"}, 0.45},
		{"category", []string{"dien"}, 0.25},
		{"spec", []string{"snapdragon"}, 0.15},
		{"miss", []string{"iphone"}, 0},
		{"none", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := substringScore(&f, tt.terms)
			if got != tt.want {
				t.Errorf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	c := newTestCatalog(t)
	got := c.Candidates(query.Constraints{BudgetMax: i64(15_000_000), SearchText: "iphone"}, 2)
	if len(got) != 2 || got[0].ID != "ip13" {
		t.Errorf("candidates = %+v, want ip13 first", got)
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","name":"A"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}

	if err := os.WriteFile(path, []byte(`[{"id":"a","name":"A"},{"id":"b","name":"B"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	n, err := c.Reload()
	if err != nil || n != 2 || c.Len() != 2 {
		t.Errorf("Reload = %d, %v (Len %d)", n, err, c.Len())
	}

	if _, err := New("", nil, nil).Reload(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Reload without path err = %v", err)
	}
}

func TestOpen_SampleCatalog(t *testing.T) {
	c, err := Open(filepath.Join("..", "..", "..", "data", "products.json"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Len() < 10 {
		t.Errorf("Len = %d", c.Len())
	}
	items, _ := c.Search(context.Background(), query.Constraints{BudgetMax: i64(10_000_000), SearchText: "điện thoại"}, 5)
	for _, it := range items {
		if it.Product.Price.Current <= 0 || it.Product.Price.Current > 10_000_000 {
			t.Errorf("%s price %d outside budget", it.ID, it.Product.Price.Current)
		}
	}
}
