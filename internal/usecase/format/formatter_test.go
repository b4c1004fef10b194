package format

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/response"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
)

func prod(id string, current, original int64) *product.Product {
	return &product.Product{
		ID:     id,
		Name:   "Phone " + id,
		Brand:  "Samsung",
		Price:  product.Price{Current: current, Original: original},
		Images: []string{"https://img.example/" + id + ".jpg", "https://img.example/alt.jpg"},
		URL:    "https://shop.example/" + id,
	}
}

func item(id string, score float64, p *product.Product) result.ScoredItem {
	return result.ScoredItem{ID: id, Score: score, Product: p, SourceTier: tier.LocalFallback}
}

func ids(items []result.ScoredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRank_Ordering(t *testing.T) {
	in := []result.ScoredItem{
		item("c", 0.9, prod("c", 9_000_000, 0)),
		item("a", 0.9, prod("a", 5_000_000, 0)),
		item("unknown", 0.9, prod("unknown", 0, 0)),
		item("b", 0.9, prod("b", 5_000_000, 0)),
		item("top", 0.95, prod("top", 20_000_000, 0)),
	}
	got := ids(New(0).Rank(in))
	want := []string{"top", "a", "b", "c", "unknown"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Rank = %v, want %v", got, want)
	}
	if in[0].ID != "c" {
		t.Error("Rank must not reorder its input")
	}
}

func TestRank_ClampsAndThreshold(t *testing.T) {
	in := []result.ScoredItem{
		item("nan", math.NaN(), prod("nan", 1, 0)),
		item("neg", -3, prod("neg", 1, 0)),
		item("big", 7, prod("big", 1, 0)),
		item("mid", 0.4, prod("mid", 1, 0)),
		item("noproduct", 0.8, nil),
	}
	got := New(0).Rank(in)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4 (item without product dropped)", len(got))
	}
	for _, it := range got {
		if it.Score < 0 || it.Score > 1 {
			t.Errorf("%s score %v outside [0,1]", it.ID, it.Score)
		}
	}
	if got[0].ID != "big" || got[0].Score != 1 {
		t.Errorf("first = %+v", got[0])
	}

	strict := New(0.5).Rank(in)
	if !reflect.DeepEqual(ids(strict), []string{"big"}) {
		t.Errorf("threshold 0.5 = %v, want [big]", ids(strict))
	}
}

func TestFormat_Scenario(t *testing.T) {
	maxBudget := int64(10_000_000)
	c := query.Constraints{BudgetMax: &maxBudget, Query: "điện thoại dưới 10 triệu", SearchText: "điện thoại"}
	out := result.Outcome{
		Winner: result.TierResult{Tier: tier.LocalFallback, Succeeded: true, Items: []result.ScoredItem{
			item("p1", 0.7, prod("p1", 8_990_000, 9_990_000)),
			item("p2", 0.9, prod("p2", 6_490_000, 0)),
			item("p3", 0.5, prod("p3", 4_000_000, 0)),
		}},
		Attempts: []result.TierResult{{Tier: tier.FullText, ErrKind: tier.KindTimeout}},
	}

	p := New(0).Format(out, c, 2)

	if p.Type != response.TypeProductDisplay {
		t.Errorf("Type = %q", p.Type)
	}
	if len(p.Products) != 2 || p.Products[0].ID != "p2" || p.Products[1].ID != "p1" {
		t.Fatalf("products = %+v", p.Products)
	}
	if !strings.Contains(p.Message, "2 sản phẩm") {
		t.Errorf("Message = %q", p.Message)
	}
	if !p.Metadata.Degraded || p.Metadata.Tier != tier.LocalFallback || p.Metadata.TotalHits != 3 {
		t.Errorf("Metadata = %+v", p.Metadata)
	}
	if len(p.Suggestions) != 0 {
		t.Errorf("unexpected suggestions: %+v", p.Suggestions)
	}
	if len(p.Analysis) != 2 || p.Analysis[0].ProductID != "p2" || p.Analysis[0].SourceTier != tier.LocalFallback {
		t.Errorf("Analysis = %+v", p.Analysis)
	}

	card := p.Products[1]
	if card.DiscountPercentage != 10 {
		t.Errorf("discount = %d, want 10", card.DiscountPercentage)
	}
	if card.Price.Original == nil || *card.Price.Original != 9_990_000 {
		t.Errorf("original = %v", card.Price.Original)
	}
	if card.Price.Discount == nil || *card.Price.Discount != "-10%" {
		t.Errorf("discount label = %v", card.Price.Discount)
	}
	if card.Price.Currency != "VND" {
		t.Errorf("currency = %q", card.Price.Currency)
	}
	if card.Image.URL != "https://img.example/p1.jpg" || card.ProductURL != "https://shop.example/p1" {
		t.Errorf("card = %+v", card)
	}
}

func TestFormat_PayloadShape(t *testing.T) {
	out := result.Outcome{Winner: result.TierResult{Tier: tier.Semantic, Succeeded: true, Items: []result.ScoredItem{
		item("p1", 0.8, prod("p1", 5_000_000, 0)),
	}}}
	data, err := json.Marshal(New(0).Format(out, query.Constraints{}.Normalize(), 5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"type", "message", "products", "ai_analysis", "used_cache", "metadata"} {
		if _, ok := m[k]; !ok {
			t.Errorf("payload missing %q", k)
		}
	}
	card := m["products"].([]any)[0].(map[string]any)
	for _, k := range []string{"id", "name", "price", "image", "productUrl"} {
		if _, ok := card[k]; !ok {
			t.Errorf("card missing %q", k)
		}
	}
	price := card["price"].(map[string]any)
	if price["original"] != nil || price["discount"] != nil {
		t.Errorf("no markdown: original/discount must be null, got %v", price)
	}
}

func TestFormat_EmptyResultSuggests(t *testing.T) {
	lo, hi := int64(15_000_000), int64(20_000_000)
	c := query.Constraints{
		BudgetMin: &lo, BudgetMax: &hi,
		Brands: []string{"Apple"}, Features: []string{"camera"}, SearchText: "pro max",
	}
	out := result.Outcome{Winner: result.TierResult{Tier: tier.FullText, Succeeded: true, Items: []result.ScoredItem{}}}

	p := New(0).Format(out, c, 10)
	if len(p.Products) != 0 || p.Products == nil {
		t.Errorf("products = %#v, want empty non-nil", p.Products)
	}
	if !strings.HasPrefix(p.Message, "Xin lỗi") {
		t.Errorf("Message = %q", p.Message)
	}

	kinds := make([]string, 0, len(p.Suggestions))
	for _, s := range p.Suggestions {
		kinds = append(kinds, s.Kind)
	}
	want := []string{
		response.SuggestDropBrand, response.SuggestWidenBudget,
		response.SuggestDropFeatures, response.SuggestSimplifyText,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}

	widened := p.Suggestions[1].Filters
	if *widened.BudgetMin != 12_000_000 || *widened.BudgetMax != 24_000_000 {
		t.Errorf("widened = [%d, %d], want [12000000, 24000000]", *widened.BudgetMin, *widened.BudgetMax)
	}
	if p.Suggestions[0].Filters.Brands != nil {
		t.Error("drop_brand suggestion still has brands")
	}
	if *c.BudgetMin != 15_000_000 {
		t.Error("suggestions mutated the constraints")
	}
}

func TestSuggestions_Discount(t *testing.T) {
	d := 20
	c := query.Constraints{Brands: []string{"Samsung"}, MinDiscount: &d}

	got := Suggestions(c)
	kinds := make([]string, len(got))
	for i, s := range got {
		kinds[i] = s.Kind
	}
	want := []string{response.SuggestDropBrand, response.SuggestDropDiscount}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	if got[0].Filters.MinDiscount == nil || *got[0].Filters.MinDiscount != 20 {
		t.Errorf("drop_brand lost the discount filter: %+v", got[0].Filters)
	}
	if got[1].Filters.MinDiscount != nil {
		t.Error("drop_discount suggestion still has a discount")
	}
	if !strings.Contains(got[1].Message, "20%") {
		t.Errorf("Message = %q", got[1].Message)
	}
}

func TestFormat_EmptyConstraintsNoSuggestions(t *testing.T) {
	out := result.Outcome{Winner: result.TierResult{Tier: tier.LocalFallback, Succeeded: true}}
	p := New(0).Format(out, query.Constraints{}, 10)
	if len(p.Suggestions) != 0 {
		t.Errorf("suggestions = %+v", p.Suggestions)
	}
}

func TestComparison(t *testing.T) {
	a := *prod("a", 20_000_000, 25_000_000)
	a.Specs = map[string]any{"screen_size": "6.7 inch", "storage": "256GB", "os": "iOS", "camera_main": "48MP"}
	b := *prod("b", 15_000_000, 0)

	p := New(0).Comparison([]product.Product{a, b})
	if p.Type != response.TypeProductComparison || p.Comparison == nil {
		t.Fatalf("payload = %+v", p)
	}
	if p.Message != "Đã so sánh 2 sản phẩm" {
		t.Errorf("Message = %q", p.Message)
	}
	tbl := p.Comparison
	if !reflect.DeepEqual(tbl.Prices, []int64{20_000_000, 15_000_000}) {
		t.Errorf("Prices = %v", tbl.Prices)
	}
	if !reflect.DeepEqual(tbl.Discounts, []int{20, 0}) {
		t.Errorf("Discounts = %v", tbl.Discounts)
	}
	if !reflect.DeepEqual(tbl.OS, []string{"iOS", ""}) {
		t.Errorf("OS = %v", tbl.OS)
	}
}

func TestCard_StoredDiscountFallback(t *testing.T) {
	p := prod("x", 1_000_000, 0)
	p.Price.DiscountPercentage = 15
	c := Card(p)
	if c.DiscountPercentage != 15 || c.Price.Original != nil {
		t.Errorf("card = %+v", c)
	}
}
