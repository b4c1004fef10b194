// Package format ranks a winning tier's items and renders the UI payload.
package format

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/response"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
)

// Messages shown to the shopper.
const (
	msgNoResults   = "Xin lỗi, tôi không tìm thấy sản phẩm phù hợp với yêu cầu của bạn. Bạn có thể thử điều chỉnh tiêu chí tìm kiếm."
	msgFound       = "Tìm thấy %d sản phẩm phù hợp với yêu cầu của bạn"
	msgFoundQuery  = "Tìm thấy %d sản phẩm phù hợp với '%s'"
	msgCompared    = "Đã so sánh %d sản phẩm"
	widenBudgetPct = 20
)

// Formatter turns tier results into payloads.
type Formatter struct {
	minScore float64
}

// New creates a formatter. Items scoring below minScore are dropped; 0 keeps everything.
func New(minScore float64) *Formatter {
	return &Formatter{minScore: clamp(minScore)}
}

// Format ranks the winner's items, truncates them to limit and builds the payload.
// Items without a resolved product record cannot be rendered and are skipped.
func (f *Formatter) Format(out result.Outcome, c query.Constraints, limit int) response.Payload {
	ranked := f.Rank(out.Winner.Items)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	p := response.Payload{
		Type:     response.TypeProductDisplay,
		Products: make([]response.Card, 0, len(ranked)),
		Analysis: make([]response.Analysis, 0, len(ranked)),
		Metadata: response.Metadata{
			Tier:        out.Winner.Tier,
			TiersTried:  out.TriedTiers(),
			Degraded:    out.Degraded(),
			Constraints: c,
			TotalHits:   len(out.Winner.Items),
		},
	}
	for i := range ranked {
		it := &ranked[i]
		p.Products = append(p.Products, Card(it.Product))
		p.Analysis = append(p.Analysis, response.Analysis{
			ProductID:      it.ID,
			RelevanceScore: it.Score,
			MatchedTerms:   it.MatchedTerms(),
			MatchedFields:  it.MatchedFields,
			Reasoning:      it.Reasoning,
			SourceTier:     it.SourceTier,
		})
	}

	switch {
	case len(p.Products) == 0:
		p.Message = msgNoResults
		p.Suggestions = Suggestions(c)
	case c.Query != "":
		p.Message = fmt.Sprintf(msgFoundQuery, len(p.Products), c.Query)
	default:
		p.Message = fmt.Sprintf(msgFound, len(p.Products))
	}
	return p
}

// Rank normalizes scores, applies the threshold and sorts: score desc, then known
// price asc (unknown last), then id. The input slice is not modified.
func (f *Formatter) Rank(items []result.ScoredItem) []result.ScoredItem {
	out := make([]result.ScoredItem, 0, len(items))
	for _, it := range items {
		if it.Product == nil {
			continue
		}
		it.Score = clamp(it.Score)
		if it.Score < f.minScore {
			continue
		}
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		pa, pb := a.Product.Price.Current, b.Product.Price.Current
		if (pa > 0) != (pb > 0) {
			return pa > 0
		}
		if pa != pb {
			return pa < pb
		}
		return a.ID < b.ID
	})
	return out
}

// Comparison builds a product-comparison payload.
func (f *Formatter) Comparison(products []product.Product) response.Payload {
	p := response.Payload{
		Type:     response.TypeProductComparison,
		Message:  fmt.Sprintf(msgCompared, len(products)),
		Products: make([]response.Card, 0, len(products)),
		Analysis: []response.Analysis{},
	}
	t := &response.ComparisonTable{}
	for i := range products {
		pr := &products[i]
		p.Products = append(p.Products, Card(pr))
		t.Names = append(t.Names, pr.Name)
		t.Brands = append(t.Brands, pr.Brand)
		t.Prices = append(t.Prices, pr.Price.Current)
		t.Discounts = append(t.Discounts, pr.Price.EffectiveDiscount())
		t.ScreenSizes = append(t.ScreenSizes, pr.SpecValue("screen_size"))
		t.Storage = append(t.Storage, pr.SpecValue("storage"))
		t.OS = append(t.OS, pr.SpecValue("os"))
		t.Cameras = append(t.Cameras, pr.SpecValue("camera_main"))
	}
	p.Comparison = t
	return p
}

// Card renders one product tile.
func Card(p *product.Product) response.Card {
	pct := p.Price.EffectiveDiscount()
	pb := response.PriceBlock{
		Current:  p.Price.Current,
		Currency: p.Price.CurrencyOrDefault(),
	}
	if p.Price.Original > p.Price.Current && p.Price.Current > 0 {
		orig := p.Price.Original
		pb.Original = &orig
	}
	if pct > 0 {
		label := fmt.Sprintf("-%d%%", pct)
		pb.Discount = &label
	}
	return response.Card{
		ID:                 p.ID,
		Name:               p.Name,
		Brand:              p.Brand,
		Price:              pb,
		DiscountPercentage: pct,
		Image:              response.Image{URL: p.PrimaryImage()},
		ProductURL:         p.URL,
		Availability:       p.Availability,
	}
}

// Suggestions proposes relaxed variants of c, most specific constraint first.
func Suggestions(c query.Constraints) []response.Suggestion {
	base := query.Filters{
		BudgetMin:   c.BudgetMin,
		BudgetMax:   c.BudgetMax,
		Brands:      c.Brands,
		Features:    c.Features,
		MinDiscount: c.MinDiscount,
	}
	out := make([]response.Suggestion, 0, 5)

	if len(c.Brands) > 0 {
		f := base
		f.Brands = nil
		out = append(out, response.Suggestion{
			Kind:    response.SuggestDropBrand,
			Message: "Thử bỏ lọc thương hiệu " + strings.Join(c.Brands, ", "),
			Filters: f,
		})
	}
	if c.BudgetMin != nil || c.BudgetMax != nil {
		f := base
		f.BudgetMin, f.BudgetMax = widen(c.BudgetMin, c.BudgetMax)
		out = append(out, response.Suggestion{
			Kind:    response.SuggestWidenBudget,
			Message: fmt.Sprintf("Thử nới rộng ngân sách thêm %d%%", widenBudgetPct),
			Filters: f,
		})
	}
	if c.MinDiscount != nil {
		f := base
		f.MinDiscount = nil
		out = append(out, response.Suggestion{
			Kind:    response.SuggestDropDiscount,
			Message: fmt.Sprintf("Thử bỏ điều kiện giảm giá từ %d%%", *c.MinDiscount),
			Filters: f,
		})
	}
	if len(c.Features) > 0 {
		f := base
		f.Features = nil
		out = append(out, response.Suggestion{
			Kind:    response.SuggestDropFeatures,
			Message: "Thử bỏ bớt yêu cầu về tính năng",
			Filters: f,
		})
	}
	if c.SearchText != "" {
		out = append(out, response.Suggestion{
			Kind:    response.SuggestSimplifyText,
			Message: "Thử dùng từ khóa ngắn gọn hơn",
			Filters: base,
		})
	}
	return out
}

func widen(lo, hi *int64) (*int64, *int64) {
	var nlo, nhi *int64
	if lo != nil {
		v := *lo * (100 - widenBudgetPct) / 100
		nlo = &v
	}
	if hi != nil {
		v := *hi * (100 + widenBudgetPct) / 100
		nhi = &v
	}
	return nlo, nhi
}

func clamp(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
