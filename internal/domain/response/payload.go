package response

import (
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
)

// Payload types understood by the chat UI.
const (
	TypeProductDisplay    = "product-display"
	TypeProductComparison = "product-comparison"
)

// Payload is the UI-ready answer to one query.
type Payload struct {
	Type        string       `json:"type"`
	Message     string       `json:"message"`
	Products    []Card       `json:"products"`
	Analysis    []Analysis   `json:"ai_analysis"`
	UsedCache   bool         `json:"used_cache"`
	Metadata    Metadata     `json:"metadata"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	// Comparison is set for product-comparison payloads only.
	Comparison *ComparisonTable `json:"comparison,omitempty"`
}

// Card is one product tile.
type Card struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Brand              string     `json:"brand,omitempty"`
	Price              PriceBlock `json:"price"`
	DiscountPercentage int        `json:"discount_percentage"`
	Image              Image      `json:"image"`
	ProductURL         string     `json:"productUrl"`
	Availability       string     `json:"availability,omitempty"`
}

// PriceBlock is the price section of a card.
type PriceBlock struct {
	Current  int64   `json:"current"`
	Original *int64  `json:"original"`
	Currency string  `json:"currency"`
	Discount *string `json:"discount"`
}

// Image is the primary image reference of a card.
type Image struct {
	URL string `json:"url"`
}

// Analysis carries the per-item transparency block.
type Analysis struct {
	ProductID      string              `json:"product_id"`
	RelevanceScore float64             `json:"relevance_score"`
	MatchedTerms   []string            `json:"matched_terms"`
	MatchedFields  map[string][]string `json:"matched_fields,omitempty"`
	Reasoning      string              `json:"reasoning,omitempty"`
	SourceTier     tier.Name           `json:"source_tier"`
}

// Metadata describes how the answer was produced.
type Metadata struct {
	Tier        tier.Name         `json:"tier"`
	TiersTried  []tier.Name       `json:"tiers_tried,omitempty"`
	Degraded    bool              `json:"degraded"`
	Constraints query.Constraints `json:"constraints"`
	TotalHits   int               `json:"total_hits"`
}

// Suggestion kinds for empty results.
const (
	SuggestDropBrand    = "drop_brand"
	SuggestWidenBudget  = "widen_budget"
	SuggestDropDiscount = "drop_discount"
	SuggestDropFeatures = "drop_features"
	SuggestSimplifyText = "simplify_keywords"
)

// Suggestion is a relaxed variant of the request the user can try.
type Suggestion struct {
	Kind    string        `json:"kind"`
	Message string        `json:"message"`
	Filters query.Filters `json:"filters"`
}

// ComparisonTable lines up the attributes of compared products, one column per product.
type ComparisonTable struct {
	Names       []string `json:"names"`
	Brands      []string `json:"brands"`
	Prices      []int64  `json:"prices"`
	Discounts   []int    `json:"discounts"`
	ScreenSizes []string `json:"screen_sizes"`
	Storage     []string `json:"storage"`
	OS          []string `json:"os"`
	Cameras     []string `json:"cameras"`
}
