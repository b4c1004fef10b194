package product

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultCurrency is used when a record carries no currency.
const DefaultCurrency = "VND"

// Price is the price block of a product record.
type Price struct {
	Current            int64  `json:"current"`
	Original           int64  `json:"original,omitempty"`
	Currency           string `json:"currency,omitempty"`
	DiscountPercentage int    `json:"discount_percentage,omitempty"`
}

// Discount returns round((original-current)/original*100), or 0 when there is no markdown.
func (p Price) Discount() int {
	if p.Original <= 0 || p.Current <= 0 || p.Current >= p.Original {
		return 0
	}
	return int(math.Round(float64(p.Original-p.Current) / float64(p.Original) * 100))
}

// EffectiveDiscount prefers the computed markdown and falls back to the stored
// percentage when the record has no original price.
func (p Price) EffectiveDiscount() int {
	if d := p.Discount(); d > 0 {
		return d
	}
	if p.Original == 0 && p.DiscountPercentage > 0 && p.DiscountPercentage < 100 {
		return p.DiscountPercentage
	}
	return 0
}

// CurrencyOrDefault returns the currency code, defaulting to VND.
func (p Price) CurrencyOrDefault() string {
	if p.Currency == "" {
		return DefaultCurrency
	}
	return p.Currency
}

// Product is a catalog record as stored in the product snapshot and the full-text index.
type Product struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Brand        string         `json:"brand,omitempty"`
	Category     string         `json:"category,omitempty"`
	Price        Price          `json:"price"`
	Images       []string       `json:"images,omitempty"`
	URL          string         `json:"url,omitempty"`
	Availability string         `json:"availability,omitempty"`
	Specs        map[string]any `json:"specs,omitempty"`
	Promotions   map[string]any `json:"promotions,omitempty"`
}

// Validate checks the fields every consumer relies on.
func (p *Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("product id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("product %q: name is required", p.ID)
	}
	if p.Price.Current < 0 || p.Price.Original < 0 {
		return fmt.Errorf("product %q: negative price", p.ID)
	}
	return nil
}

// PrimaryImage returns the first image URL or "".
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// SpecText flattens spec values into text fragments, ordered by key.
func (p *Product) SpecText() []string {
	return flatten(p.Specs)
}

// PromotionText flattens promotions the same way as SpecText.
func (p *Product) PromotionText() []string {
	return flatten(p.Promotions)
}

func flatten(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := valueText(m[k]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func valueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := valueText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return strings.Join(flatten(val), ", ")
	case float64:
		if val == math.Trunc(val) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// SpecValue renders one spec entry as text, or "" when absent.
func (p *Product) SpecValue(key string) string {
	if p.Specs == nil {
		return ""
	}
	return valueText(p.Specs[key])
}
