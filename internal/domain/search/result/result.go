package result

import (
	"sort"
	"time"

	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
)

// ScoredItem is a single hit produced by a tier.
type ScoredItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	// MatchedFields maps a field name to the terms or snippets that matched in it.
	MatchedFields map[string][]string `json:"matched_fields,omitempty"`
	// Reasoning is free-text justification from the semantic tier.
	Reasoning  string           `json:"reasoning,omitempty"`
	SourceTier tier.Name        `json:"source_tier"`
	Product    *product.Product `json:"product,omitempty"`
}

// MatchedTerms flattens MatchedFields into a deduplicated list in field order.
func (s *ScoredItem) MatchedTerms() []string {
	if len(s.MatchedFields) == 0 {
		return []string{}
	}
	fields := make([]string, 0, len(s.MatchedFields))
	for f := range s.MatchedFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, f := range fields {
		for _, t := range s.MatchedFields[f] {
			if _, ok := seen[t]; ok || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// TierResult is the outcome of one tier attempt.
type TierResult struct {
	Tier      tier.Name      `json:"tier"`
	Succeeded bool           `json:"succeeded"`
	Items     []ScoredItem   `json:"items"`
	Latency   time.Duration  `json:"latency"`
	Err       error          `json:"-"`
	ErrKind   tier.ErrorKind `json:"error_kind,omitempty"`
}

// Outcome is what the orchestrator hands back: the winning attempt plus the failures before it.
type Outcome struct {
	Winner   TierResult   `json:"winner"`
	Attempts []TierResult `json:"attempts,omitempty"`
}

// Degraded reports whether at least one higher-priority tier failed.
func (o *Outcome) Degraded() bool { return len(o.Attempts) > 0 }

// TriedTiers lists the tiers attempted, in order, ending with the winner.
func (o *Outcome) TriedTiers() []tier.Name {
	out := make([]tier.Name, 0, len(o.Attempts)+1)
	for _, a := range o.Attempts {
		out = append(out, a.Tier)
	}
	return append(out, o.Winner.Tier)
}
