package chi

import (
	domquery "github.com/kailas-cloud/shopfinder/internal/domain/query"
)

// ErrorCode is the machine-readable error code in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest        ErrorCode = "bad_request"
	ErrorCodeValidationFailed  ErrorCode = "validation_failed"
	ErrorCodeUnauthorized      ErrorCode = "unauthorized"
	ErrorCodeProductNotFound   ErrorCode = "product_not_found"
	ErrorCodeSearchUnavailable ErrorCode = "search_unavailable"
	ErrorCodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchFilters are the explicit filters a client may send alongside free text.
type SearchFilters struct {
	BudgetMin   *int64   `json:"budget_min,omitempty"`
	BudgetMax   *int64   `json:"budget_max,omitempty"`
	Brands      []string `json:"brands,omitempty"`
	Features    []string `json:"features,omitempty"`
	MinDiscount *int     `json:"min_discount,omitempty"`
}

func (f *SearchFilters) toDomain() domquery.Filters {
	if f == nil {
		return domquery.Filters{}
	}
	return domquery.Filters{
		BudgetMin:   f.BudgetMin,
		BudgetMax:   f.BudgetMax,
		Brands:      f.Brands,
		Features:    f.Features,
		MinDiscount: f.MinDiscount,
	}
}

func rawFrom(text string, f *SearchFilters) domquery.Raw {
	return domquery.Raw{Text: text, Filters: f.toDomain()}
}

// SearchRequest is the POST /v1/search body.
type SearchRequest struct {
	Query   string         `json:"query"`
	Limit   int            `json:"limit"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

// SearchParams are the GET /v1/search query parameters.
type SearchParams struct {
	Q           *string   `json:"q,omitempty"`
	Limit       *int      `json:"limit,omitempty"`
	BudgetMin   *int64    `json:"budget_min,omitempty"`
	BudgetMax   *int64    `json:"budget_max,omitempty"`
	Brand       *[]string `json:"brand,omitempty"`
	Feature     *[]string `json:"feature,omitempty"`
	MinDiscount *int      `json:"min_discount,omitempty"`
}

func (p *SearchParams) toDomain() (domquery.Raw, int) {
	raw := domquery.Raw{Filters: domquery.Filters{
		BudgetMin:   p.BudgetMin,
		BudgetMax:   p.BudgetMax,
		MinDiscount: p.MinDiscount,
	}}
	if p.Q != nil {
		raw.Text = *p.Q
	}
	if p.Brand != nil {
		raw.Filters.Brands = *p.Brand
	}
	if p.Feature != nil {
		raw.Filters.Features = *p.Feature
	}
	limit := 0
	if p.Limit != nil {
		limit = *p.Limit
	}
	return raw, limit
}

// ExtractRequest is the POST /v1/extract body.
type ExtractRequest struct {
	Query   string         `json:"query"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

// ExtractResponse echoes the constraints understood from a query.
type ExtractResponse struct {
	Constraints  domquery.Constraints `json:"constraints"`
	RulesVersion string               `json:"rules_version"`
}

// CompareRequest is the POST /v1/compare body.
type CompareRequest struct {
	ProductIDs []string `json:"product_ids"`
}

// ReindexResponse reports a completed reindex.
type ReindexResponse struct {
	Status   string `json:"status"`
	Products int    `json:"products"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
