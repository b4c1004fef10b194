package query

import (
	"context"
	"time"

	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	domquery "github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/response"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
	"github.com/kailas-cloud/shopfinder/internal/repository/respcache"
	"github.com/kailas-cloud/shopfinder/internal/usecase/tokenbudget"
)

// Extractor turns free text into constraints.
type Extractor interface {
	Extract(text string) domquery.Constraints
	Version() string
}

// Orchestrator runs the tier chain.
type Orchestrator interface {
	Search(ctx context.Context, c domquery.Constraints, limit int) (result.Outcome, error)
	Order() []tier.Name
}

// Formatter renders payloads.
type Formatter interface {
	Format(out result.Outcome, c domquery.Constraints, limit int) response.Payload
	Comparison(products []product.Product) response.Payload
}

// Cache memoizes tier outcomes per request key.
type Cache interface {
	GetOrCompute(
		ctx context.Context, key string, compute func(ctx context.Context) (result.Outcome, error),
	) (respcache.Lookup[result.Outcome], error)
	Invalidate(ctx context.Context) error
	InvalidateLocal()
	Len() int
	TTL() time.Duration
}

// Catalog is the product snapshot.
type Catalog interface {
	ByID(id string) (product.Product, error)
	Reload() (int, error)
	Stats() product.CatalogStats
}

// Publisher broadcasts reindex signals to other replicas.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg []byte) error
}

// Subscriber receives reindex signals.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, fn func(msg []byte)) error
}

// UsageReporter exposes the semantic tier token budget.
type UsageReporter interface {
	Usage() tokenbudget.Usage
}
