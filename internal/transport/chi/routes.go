package chi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Options configures Handler.
type Options struct {
	BaseRouter  chi.Router
	Middlewares []func(http.Handler) http.Handler
}

// Handler mounts every API route of s on a router.
func Handler(s *Server, opts Options) http.Handler {
	r := opts.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}

	r.Group(func(r chi.Router) {
		r.Use(opts.Middlewares...)
		r.Get("/v1/search", s.Search)
		r.Post("/v1/search", s.SearchJSON)
		r.Post("/v1/extract", s.Extract)
		r.Get("/v1/products/{id}", s.GetProduct)
		r.Post("/v1/compare", s.Compare)
		r.Post("/v1/reindex", s.Reindex)
		r.Get("/v1/stats", s.GetStats)
		r.Get("/health", s.HealthCheck)
		r.Get("/metrics", s.Metrics)
	})
	return r
}

// bindSearchParams reads the GET /v1/search query string. Repeated brand and
// feature parameters accumulate.
func bindSearchParams(r *http.Request) (SearchParams, error) {
	var params SearchParams
	q := r.URL.Query()

	bind := []struct {
		name string
		dest any
	}{
		{"q", &params.Q},
		{"limit", &params.Limit},
		{"budget_min", &params.BudgetMin},
		{"budget_max", &params.BudgetMax},
		{"brand", &params.Brand},
		{"feature", &params.Feature},
		{"min_discount", &params.MinDiscount},
	}
	for _, b := range bind {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return SearchParams{}, fmt.Errorf("invalid format for parameter %s: %w", b.name, err)
		}
	}
	return params, nil
}

func bindProductID(r *http.Request) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath,
		chi.URLParam(r, "id"), &id)
	if err != nil {
		return "", fmt.Errorf("invalid format for parameter id: %w", err)
	}
	return id, nil
}
