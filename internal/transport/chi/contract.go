package chi

import (
	"context"

	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	domquery "github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/response"
	healthuc "github.com/kailas-cloud/shopfinder/internal/usecase/health"
	queryuc "github.com/kailas-cloud/shopfinder/internal/usecase/query"
)

// QueryService answers search, lookup and admin requests.
type QueryService interface {
	Search(ctx context.Context, raw domquery.Raw, limit int) (response.Payload, error)
	Extract(raw domquery.Raw) domquery.Constraints
	RulesVersion() string
	Product(id string) (product.Product, error)
	Compare(ids []string) (response.Payload, error)
	Reindex(ctx context.Context) (int, error)
	Stats() queryuc.Stats
}

// HealthService aggregates component checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
