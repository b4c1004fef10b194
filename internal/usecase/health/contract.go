package health

import "context"

// DBPinger checks shared cache store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// BackendChecker checks a search backend (full-text engine or semantic provider).
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}

// CatalogCounter reports how many products are loaded.
type CatalogCounter interface {
	Len() int
}
