package shopfinder

import "github.com/kailas-cloud/shopfinder/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound        = domain.ErrNotFound
	ErrInvalidRequest  = domain.ErrInvalidRequest
	ErrTiersExhausted  = domain.ErrTiersExhausted
	ErrBackendAuth     = domain.ErrBackendAuth
	ErrBackendQuota    = domain.ErrBackendQuota
	ErrTierTimeout     = domain.ErrTierTimeout
	ErrBackendDown     = domain.ErrBackendTransport
	ErrBadBackendReply = domain.ErrMalformedResponse
)
