package orchestrator

import (
	"context"
	"time"

	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
)

// Tier is one search strategy in the fallback chain.
// A nil error with zero items is a successful, empty answer.
type Tier interface {
	Name() tier.Name
	Search(ctx context.Context, c query.Constraints, limit int) ([]result.ScoredItem, error)
}

// Stage binds a tier to its per-attempt timeout. Zero means no timeout.
type Stage struct {
	Tier    Tier
	Timeout time.Duration
}
