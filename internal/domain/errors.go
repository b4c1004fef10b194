package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals a malformed or out-of-range request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTierTimeout signals that a search tier did not answer within its deadline.
	ErrTierTimeout = errors.New("search tier timeout")
	// ErrBackendAuth signals rejected credentials at a search backend.
	ErrBackendAuth = errors.New("search backend authentication failed")
	// ErrBackendQuota signals a rate limit or exhausted quota at a search backend.
	ErrBackendQuota = errors.New("search backend quota exceeded")
	// ErrBackendTransport signals a network or server-side failure at a search backend.
	ErrBackendTransport = errors.New("search backend transport error")
	// ErrMalformedResponse signals a response that could not be decoded into results.
	ErrMalformedResponse = errors.New("malformed search backend response")
	// ErrBackendUnavailable signals a tier that is not configured or not ready.
	ErrBackendUnavailable = errors.New("search backend unavailable")

	// ErrTiersExhausted signals that every tier failed, including the local fallback.
	// The local fallback never fails by construction, so this is a configuration defect.
	ErrTiersExhausted = errors.New("all search tiers exhausted")
)

// BackendStatusError carries the HTTP status returned by a search backend.
// It unwraps to the sentinel matching the status class.
type BackendStatusError struct {
	Backend    string
	StatusCode int
	Detail     string
}

func (e *BackendStatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s returned status %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Backend, e.StatusCode, e.Detail)
}

func (e *BackendStatusError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrBackendAuth
	case e.StatusCode == 429:
		return ErrBackendQuota
	case e.StatusCode == 408 || e.StatusCode == 504:
		return ErrTierTimeout
	default:
		return ErrBackendTransport
	}
}

// NewBackendStatusError creates a status error for the named backend.
func NewBackendStatusError(backend string, status int, detail string) error {
	return &BackendStatusError{Backend: backend, StatusCode: status, Detail: detail}
}
