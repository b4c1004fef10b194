package catalog

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
	"github.com/kailas-cloud/shopfinder/internal/textnorm"
)

// Substring weights per matched field; a term hitting every field scores above 1 and is clamped.
const (
	weightName     = 10
	weightBrand    = 8
	weightCategory = 5
	weightSpec     = 3
	weightNorm     = 20

	// neutralScore is given to filter-only matches when there is no text to rank by.
	// Discount browsing adds up to another 0.5 for the deepest markdown.
	neutralScore = 0.5
	featureBonus = 0.1
)

// featureHints are folded spec fragments that support a feature tag.
var featureHints = map[string][]string{
	"camera":        {"camera", "mp", "zoom", "ois"},
	"battery_life":  {"mah", "pin", "battery"},
	"fast_charging": {"sac nhanh", "fast charging", "sac"},
	"performance":   {"snapdragon", "dimensity", "bionic", "chip", "ram"},
	"display":       {"amoled", "oled", "hz", "man hinh"},
	"storage":       {"gb", "tb"},
	"connectivity":  {"5g", "nfc", "esim"},
	"durability":    {"ip68", "ip67"},
}

// Name identifies the catalog as the local fallback tier.
func (c *Catalog) Name() tier.Name { return tier.LocalFallback }

// Search ranks the snapshot against the constraints. It only fails when ctx is done:
// index problems degrade to substring scoring.
func (c *Catalog) Search(ctx context.Context, cons query.Constraints, limit int) ([]result.ScoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := c.snap.Load()

	allowed := make(map[int]struct{}, len(s.products))
	for i := range s.products {
		if matchesFilters(&s.products[i], cons) {
			allowed[i] = struct{}{}
		}
	}

	terms := textnorm.Tokens(cons.SearchText)
	var items []result.ScoredItem
	if len(terms) == 0 {
		items = make([]result.ScoredItem, 0, len(allowed))
		for i := range allowed {
			score := neutralScore
			if cons.MinDiscount != nil {
				score += float64(s.products[i].Price.EffectiveDiscount()) / 200
			}
			items = append(items, c.item(s, i, score, nil))
		}
	} else {
		items = c.searchTerms(s, allowed, terms)
	}

	for i := range items {
		items[i].Score = min(1, items[i].Score+featureScore(&s.folded[s.byID[items[i].ID]], cons.Features))
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (c *Catalog) searchTerms(s *snapshot, allowed map[int]struct{}, terms []string) []result.ScoredItem {
	items := make([]result.ScoredItem, 0)

	hits, err := searchIndex(s.index, terms, max(len(s.products), 1))
	if err != nil {
		c.logger.Debug("Catalog index search failed, using substring scoring", zap.Error(err))
	}
	for _, h := range hits {
		i, ok := s.byID[h.id]
		if !ok {
			continue
		}
		if _, ok := allowed[i]; !ok {
			continue
		}
		items = append(items, c.item(s, i, h.score, h.matched))
	}
	if len(items) > 0 {
		return items
	}

	for i := range allowed {
		score, matched := substringScore(&s.folded[i], terms)
		if score > 0 {
			items = append(items, c.item(s, i, score, matched))
		}
	}
	return items
}

func (c *Catalog) item(s *snapshot, i int, score float64, matched map[string][]string) result.ScoredItem {
	p := s.products[i]
	return result.ScoredItem{
		ID:            p.ID,
		Score:         score,
		MatchedFields: matched,
		Product:       &p,
	}
}

// substringScore sums field weights per term, averages over terms and normalizes to [0,1].
func substringScore(f *foldedDoc, terms []string) (float64, map[string][]string) {
	if len(terms) == 0 {
		return 0, nil
	}
	total := 0
	matched := make(map[string][]string)
	for _, t := range terms {
		if strings.Contains(f.name, t) {
			total += weightName
			matched[fieldName] = append(matched[fieldName], t)
		}
		if strings.Contains(f.brand, t) {
			total += weightBrand
			matched[fieldBrand] = append(matched[fieldBrand], t)
		}
		if strings.Contains(f.category, t) {
			total += weightCategory
			matched[fieldCategory] = append(matched[fieldCategory], t)
		}
		for _, spec := range f.specs {
			if strings.Contains(spec, t) {
				total += weightSpec
				matched[fieldSpecs] = append(matched[fieldSpecs], t)
			}
		}
	}
	score := float64(total) / float64(len(terms)) / weightNorm
	if len(matched) == 0 {
		matched = nil
	}
	return min(score, 1), matched
}

func featureScore(f *foldedDoc, features []string) float64 {
	bonus := 0.0
	for _, feat := range features {
		hints := featureHints[feat]
	spec:
		for _, spec := range f.specs {
			for _, h := range hints {
				if strings.Contains(spec, h) {
					bonus += featureBonus
					break spec
				}
			}
		}
	}
	return bonus
}
