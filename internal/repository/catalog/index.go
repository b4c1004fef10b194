package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
)

// Indexed field names.
const (
	fieldName     = "name"
	fieldBrand    = "brand"
	fieldCategory = "category"
	fieldSpecs    = "specs"
)

// buildIndex creates an in-memory bleve index over the folded product text.
func buildIndex(s *snapshot) (bleve.Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	batch := idx.NewBatch()
	for i := range s.products {
		f := &s.folded[i]
		doc := map[string]interface{}{
			fieldName:     f.name,
			fieldBrand:    f.brand,
			fieldCategory: f.category,
			fieldSpecs:    strings.Join(f.specs, " "),
		}
		if err := batch.Index(s.products[i].ID, doc); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index product %s: %w", s.products[i].ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("commit index batch: %w", err)
	}
	return idx, nil
}

// indexHit is one bleve match with its score normalized to [0,1].
type indexHit struct {
	id      string
	score   float64
	matched map[string][]string
}

// searchIndex runs a match query for the folded terms and returns hits normalized
// against the best score.
func searchIndex(idx bleve.Index, terms []string, size int) ([]indexHit, error) {
	if idx == nil {
		return nil, fmt.Errorf("catalog index not built")
	}
	q := bleve.NewMatchQuery(strings.Join(terms, " "))
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.IncludeLocations = true

	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	top := res.MaxScore
	hits := make([]indexHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		score := 0.0
		if top > 0 {
			score = h.Score / top
		}
		hits = append(hits, indexHit{id: h.ID, score: score, matched: matchedTerms(h.Locations)})
	}
	return hits, nil
}

func matchedTerms(locs search.FieldTermLocationMap) map[string][]string {
	if len(locs) == 0 {
		return nil
	}
	out := make(map[string][]string, len(locs))
	for field, terms := range locs {
		for term := range terms {
			out[field] = append(out[field], term)
		}
	}
	for field := range out {
		sort.Strings(out[field])
	}
	return out
}
