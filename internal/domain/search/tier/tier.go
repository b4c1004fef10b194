package tier

import (
	"context"
	"errors"

	"github.com/kailas-cloud/shopfinder/internal/domain"
)

// Name identifies a search strategy in the fallback chain.
type Name string

// Tier names in default priority order.
const (
	Semantic      Name = "semantic"
	FullText      Name = "full_text"
	LocalFallback Name = "local_fallback"
)

// IsValid checks if the name is one of the known tiers.
func (n Name) IsValid() bool {
	return n == Semantic || n == FullText || n == LocalFallback
}

// ErrorKind is the typed reason a tier attempt failed.
type ErrorKind string

// Failure kinds.
const (
	KindNone      ErrorKind = ""
	KindTimeout   ErrorKind = "timeout"
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindTransport ErrorKind = "transport"
	KindMalformed ErrorKind = "malformed"
	KindInternal  ErrorKind = "internal"
)

// Classify maps an adapter error onto an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTierTimeout):
		return KindTimeout
	case errors.Is(err, domain.ErrBackendAuth):
		return KindAuth
	case errors.Is(err, domain.ErrBackendQuota):
		return KindQuota
	case errors.Is(err, domain.ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, domain.ErrBackendTransport), errors.Is(err, domain.ErrBackendUnavailable):
		return KindTransport
	default:
		return KindInternal
	}
}
