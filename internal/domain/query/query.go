package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Filters are explicit constraints supplied by the caller next to the free text.
// A set field overrides the value extracted from the text.
type Filters struct {
	BudgetMin   *int64   `json:"budget_min,omitempty"`
	BudgetMax   *int64   `json:"budget_max,omitempty"`
	Brands      []string `json:"brands,omitempty"`
	Features    []string `json:"features,omitempty"`
	MinDiscount *int     `json:"min_discount,omitempty"`
}

// IsEmpty reports whether no explicit filter is set.
func (f Filters) IsEmpty() bool {
	return f.BudgetMin == nil && f.BudgetMax == nil && len(f.Brands) == 0 && len(f.Features) == 0 &&
		f.MinDiscount == nil
}

// Raw is one inbound request: the user utterance plus optional explicit filters.
type Raw struct {
	Text    string
	Filters Filters
}

// Constraints is the structured form of a request.
type Constraints struct {
	BudgetMin  *int64   `json:"budget_min"`
	BudgetMax  *int64   `json:"budget_max"`
	Brands     []string `json:"brands"`
	Features   []string `json:"features"`
	// MinDiscount keeps products discounted by at least this many percent.
	MinDiscount *int   `json:"min_discount"`
	SearchText  string `json:"search_text"`
	// Query is the trimmed original utterance, used by tiers that understand natural language.
	Query string `json:"query"`
}

// Normalize enforces BudgetMin <= BudgetMax by swapping, drops negative bounds,
// clamps MinDiscount to 1..100 (nil when not positive), and replaces nil slices
// with empty ones so the JSON shape is stable.
func (c Constraints) Normalize() Constraints {
	if c.MinDiscount != nil {
		switch d := *c.MinDiscount; {
		case d <= 0:
			c.MinDiscount = nil
		case d > 100:
			hundred := 100
			c.MinDiscount = &hundred
		}
	}
	if c.BudgetMin != nil && *c.BudgetMin < 0 {
		c.BudgetMin = nil
	}
	if c.BudgetMax != nil && *c.BudgetMax < 0 {
		c.BudgetMax = nil
	}
	if c.BudgetMin != nil && c.BudgetMax != nil && *c.BudgetMin > *c.BudgetMax {
		lo, hi := *c.BudgetMax, *c.BudgetMin
		c.BudgetMin, c.BudgetMax = &lo, &hi
	}
	c.Brands = dedupe(c.Brands)
	c.Features = dedupe(c.Features)
	return c
}

// Merge overlays explicit filters on top of extracted constraints.
func (c Constraints) Merge(f Filters) Constraints {
	if f.BudgetMin != nil {
		v := *f.BudgetMin
		c.BudgetMin = &v
	}
	if f.BudgetMax != nil {
		v := *f.BudgetMax
		c.BudgetMax = &v
	}
	if len(f.Brands) > 0 {
		c.Brands = slices.Clone(f.Brands)
	}
	if len(f.Features) > 0 {
		c.Features = slices.Clone(f.Features)
	}
	if f.MinDiscount != nil {
		v := *f.MinDiscount
		c.MinDiscount = &v
	}
	return c.Normalize()
}

// HasFeature reports whether tag is among the feature tags.
func (c Constraints) HasFeature(tag string) bool {
	return slices.Contains(c.Features, tag)
}

// IsEmpty reports whether nothing was understood and no residual text is left.
func (c Constraints) IsEmpty() bool {
	return c.BudgetMin == nil && c.BudgetMax == nil && c.MinDiscount == nil &&
		len(c.Brands) == 0 && len(c.Features) == 0 && c.SearchText == ""
}

// CanonicalKey renders the constraint fields in a stable order for cache keys.
// Brands and features are sorted so that equivalent constraint sets collide.
func (c Constraints) CanonicalKey() string {
	var b strings.Builder
	b.WriteString("min=")
	b.WriteString(boundString(c.BudgetMin))
	b.WriteString("|max=")
	b.WriteString(boundString(c.BudgetMax))
	b.WriteString("|brands=")
	b.WriteString(strings.Join(sortedLower(c.Brands), ","))
	b.WriteString("|features=")
	b.WriteString(strings.Join(sortedLower(c.Features), ","))
	b.WriteString("|discount=")
	if c.MinDiscount == nil {
		b.WriteString("-")
	} else {
		b.WriteString(strconv.Itoa(*c.MinDiscount))
	}
	b.WriteString("|text=")
	b.WriteString(strings.ToLower(c.SearchText))
	return b.String()
}

// String is used in log fields.
func (c Constraints) String() string {
	s := fmt.Sprintf("budget=[%s,%s] brands=%v features=%v text=%q",
		boundString(c.BudgetMin), boundString(c.BudgetMax), c.Brands, c.Features, c.SearchText)
	if c.MinDiscount != nil {
		s += fmt.Sprintf(" discount>=%d%%", *c.MinDiscount)
	}
	return s
}

func boundString(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func sortedLower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	slices.Sort(out)
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
