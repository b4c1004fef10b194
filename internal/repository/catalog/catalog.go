// Package catalog holds the in-memory product snapshot. It backs product lookups,
// candidate selection for the semantic tier and the local fallback tier.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/domain"
	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/metrics"
	"github.com/kailas-cloud/shopfinder/internal/textnorm"
)

// snapshot is one immutable catalog version.
type snapshot struct {
	products []product.Product
	folded   []foldedDoc
	byID     map[string]int
	// index is nil when it could not be built; searches then use substring scoring.
	index bleve.Index
}

// foldedDoc caches the folded searchable text of one product.
type foldedDoc struct {
	name, brand, category string
	specs                 []string
}

// Catalog serves the current snapshot. Replace swaps snapshots atomically, so
// readers never block.
type Catalog struct {
	path   string
	snap   atomic.Pointer[snapshot]
	logger *zap.Logger
}

// New creates a catalog over the given products. path is used by Reload and may be empty.
func New(path string, products []product.Product, l *zap.Logger) *Catalog {
	if l == nil {
		l = zap.NewNop()
	}
	c := &Catalog{path: path, logger: l}
	c.Replace(products)
	return c
}

// Open loads the snapshot file at path.
func Open(path string, l *zap.Logger) (*Catalog, error) {
	products, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(path, products, l), nil
}

// LoadFile reads a product snapshot: either a JSON array or an object with a "products" array.
func LoadFile(path string) ([]product.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses snapshot bytes.
func Decode(data []byte) ([]product.Product, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", domain.ErrInvalidRequest)
	}
	var products []product.Product
	if data[0] == '{' {
		var wrapped struct {
			Products []product.Product `json:"products"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		products = wrapped.Products
	} else if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return products, nil
}

// Reload re-reads the snapshot file and swaps it in. It returns the product count.
func (c *Catalog) Reload() (int, error) {
	if c.path == "" {
		return 0, fmt.Errorf("%w: catalog has no backing file", domain.ErrInvalidRequest)
	}
	products, err := LoadFile(c.path)
	if err != nil {
		return 0, err
	}
	return c.Replace(products), nil
}

// Replace installs a new snapshot. Invalid records and duplicate ids are skipped.
// It returns the number of products kept.
func (c *Catalog) Replace(products []product.Product) int {
	s := &snapshot{
		products: make([]product.Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for i := range products {
		p := products[i]
		if err := p.Validate(); err != nil {
			c.logger.Warn("Skipping invalid catalog record", zap.Int("position", i), zap.Error(err))
			continue
		}
		if _, dup := s.byID[p.ID]; dup {
			c.logger.Warn("Skipping duplicate catalog record", zap.String("id", p.ID))
			continue
		}
		s.byID[p.ID] = len(s.products)
		s.products = append(s.products, p)
		s.folded = append(s.folded, foldProduct(&p))
	}

	idx, err := buildIndex(s)
	if err != nil {
		c.logger.Warn("Catalog text index unavailable, using substring scoring", zap.Error(err))
	}
	s.index = idx

	if old := c.snap.Swap(s); old != nil && old.index != nil {
		if err := old.index.Close(); err != nil {
			c.logger.Debug("Failed to close previous catalog index", zap.Error(err))
		}
	}
	metrics.CatalogProducts.Set(float64(len(s.products)))
	c.logger.Info("Catalog loaded", zap.Int("products", len(s.products)), zap.Bool("indexed", idx != nil))
	return len(s.products)
}

// ByID returns a copy of the product with the given id.
func (c *Catalog) ByID(id string) (product.Product, error) {
	s := c.snap.Load()
	i, ok := s.byID[id]
	if !ok {
		return product.Product{}, fmt.Errorf("product %q: %w", id, domain.ErrNotFound)
	}
	return s.products[i], nil
}

// Len returns the number of products in the snapshot.
func (c *Catalog) Len() int { return len(c.snap.Load().products) }

// Stats describes the snapshot.
func (c *Catalog) Stats() product.CatalogStats {
	s := c.snap.Load()
	brands := make(map[string]struct{})
	cats := make(map[string]struct{})
	for i := range s.products {
		if b := s.products[i].Brand; b != "" {
			brands[b] = struct{}{}
		}
		if cat := s.products[i].Category; cat != "" {
			cats[cat] = struct{}{}
		}
	}
	return product.CatalogStats{
		Products:   len(s.products),
		Brands:     sortedKeys(brands),
		Categories: sortedKeys(cats),
		Indexed:    s.index != nil,
	}
}

// Candidates returns up to limit products satisfying the budget and brand constraints,
// best text match first. It feeds the semantic tier's prompt.
func (c *Catalog) Candidates(cons query.Constraints, limit int) []product.Product {
	s := c.snap.Load()
	terms := textnorm.Tokens(cons.SearchText)

	type cand struct {
		pos   int
		score float64
	}
	cands := make([]cand, 0)
	for i := range s.products {
		if !matchesFilters(&s.products[i], cons) {
			continue
		}
		score := 0.0
		if len(terms) > 0 {
			score, _ = substringScore(&s.folded[i], terms)
		}
		cands = append(cands, cand{pos: i, score: score})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]product.Product, len(cands))
	for i, cd := range cands {
		out[i] = s.products[cd.pos]
	}
	return out
}

// matchesFilters applies budget, brand and discount constraints. A product without
// a known price never satisfies a budget.
func matchesFilters(p *product.Product, cons query.Constraints) bool {
	price := p.Price.Current
	if cons.BudgetMin != nil && (price <= 0 || price < *cons.BudgetMin) {
		return false
	}
	if cons.BudgetMax != nil && (price <= 0 || price > *cons.BudgetMax) {
		return false
	}
	if cons.MinDiscount != nil && p.Price.EffectiveDiscount() < *cons.MinDiscount {
		return false
	}
	if len(cons.Brands) > 0 {
		ok := false
		for _, b := range cons.Brands {
			if strings.EqualFold(b, p.Brand) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func foldProduct(p *product.Product) foldedDoc {
	specs := p.SpecText()
	folded := make([]string, len(specs))
	for i, s := range specs {
		folded[i] = textnorm.Fold(s)
	}
	return foldedDoc{
		name:     textnorm.Fold(p.Name),
		brand:    textnorm.Fold(p.Brand),
		category: textnorm.Fold(p.Category),
		specs:    folded,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
