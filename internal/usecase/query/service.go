// Package query is the request pipeline: extract constraints, look up the response
// cache, run the tier chain on a miss, and format the payload.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/domain"
	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	domquery "github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/response"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
	"github.com/kailas-cloud/shopfinder/internal/logger"
	"github.com/kailas-cloud/shopfinder/internal/metrics"
	"github.com/kailas-cloud/shopfinder/internal/textnorm"
	"github.com/kailas-cloud/shopfinder/internal/usecase/tokenbudget"
)

// Comparison bounds.
const (
	MinCompare = 2
	MaxCompare = 5
)

// Config tunes the pipeline.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	// Overfetch multiplies the limit passed to tiers so that thresholding still fills a page.
	Overfetch int
	// ReindexChannel is the pub/sub channel for reindex signals.
	ReindexChannel string
	// InstanceID marks signals published by this process so it ignores its own.
	InstanceID string
}

// Stats is the search statistics report.
type Stats struct {
	Catalog      product.CatalogStats `json:"catalog"`
	CacheEntries int                  `json:"cache_entries"`
	CacheTTLSec  int                  `json:"cache_ttl_sec"`
	TierOrder    []tier.Name          `json:"tier_order"`
	RulesVersion string               `json:"rules_version"`
	TokenBudget  *tokenbudget.Usage   `json:"token_budget,omitempty"`
}

// Service runs search requests.
type Service struct {
	extract   Extractor
	cache     Cache
	orch      Orchestrator
	format    Formatter
	catalog   Catalog
	publisher Publisher
	usage     UsageReporter
	cfg       Config
	logger    *zap.Logger
}

// New creates a query service.
func New(
	ex Extractor, cache Cache, orch Orchestrator, f Formatter, cat Catalog,
	cfg Config, l *zap.Logger,
) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.Overfetch <= 0 {
		cfg.Overfetch = 1
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Service{
		extract: ex,
		cache:   cache,
		orch:    orch,
		format:  f,
		catalog: cat,
		cfg:     cfg,
		logger:  l,
	}
}

// WithPublisher enables broadcasting reindex signals.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithUsage adds the token budget to Stats.
func (s *Service) WithUsage(u UsageReporter) *Service {
	s.usage = u
	return s
}

// Search answers one request. Only an invalid limit, a cancelled caller or an
// exhausted tier chain produce an error; empty results are a normal payload.
func (s *Service) Search(ctx context.Context, raw domquery.Raw, limit int) (response.Payload, error) {
	limit, err := s.limit(limit)
	if err != nil {
		return response.Payload{}, err
	}
	cons := s.Extract(raw)
	key := CacheKey(s.extract.Version(), raw.Text, cons, limit)

	lookup, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (result.Outcome, error) {
		return s.orch.Search(ctx, cons, limit*s.cfg.Overfetch)
	})
	if err != nil {
		return response.Payload{}, err
	}

	p := s.format.Format(lookup.Value, cons, limit)
	p.UsedCache = lookup.Hit || lookup.Shared
	if len(p.Products) == 0 {
		metrics.SearchEmptyResultsTotal.Inc()
	}

	logger.FromContextOr(ctx, s.logger).Info("Search answered",
		zap.Stringer("constraints", cons),
		zap.String("tier", string(p.Metadata.Tier)),
		zap.Bool("degraded", p.Metadata.Degraded),
		zap.Bool("cache_hit", lookup.Hit),
		zap.Bool("shared", lookup.Shared),
		zap.Int("products", len(p.Products)),
	)
	return p, nil
}

// Extract returns the constraints for raw, explicit filters applied.
func (s *Service) Extract(raw domquery.Raw) domquery.Constraints {
	return s.extract.Extract(raw.Text).Merge(raw.Filters)
}

// RulesVersion returns the extraction rule table version.
func (s *Service) RulesVersion() string { return s.extract.Version() }

// Product returns one catalog record.
func (s *Service) Product(id string) (product.Product, error) {
	if strings.TrimSpace(id) == "" {
		return product.Product{}, fmt.Errorf("%w: product id is required", domain.ErrInvalidRequest)
	}
	return s.catalog.ByID(id)
}

// Compare builds a comparison of MinCompare..MaxCompare distinct products.
func (s *Service) Compare(ids []string) (response.Payload, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return response.Payload{}, fmt.Errorf("%w: empty product id", domain.ErrInvalidRequest)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	if len(uniq) < MinCompare || len(uniq) > MaxCompare {
		return response.Payload{}, fmt.Errorf("%w: compare needs %d to %d distinct products, got %d",
			domain.ErrInvalidRequest, MinCompare, MaxCompare, len(uniq))
	}

	products := make([]product.Product, 0, len(uniq))
	for _, id := range uniq {
		p, err := s.catalog.ByID(id)
		if err != nil {
			return response.Payload{}, err
		}
		products = append(products, p)
	}
	return s.format.Comparison(products), nil
}

// Reindex reloads the catalog, invalidates the cache and tells other replicas.
// It returns the number of products loaded. A failed reload keeps the old snapshot
// and the cache.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	n, err := s.catalog.Reload()
	if err != nil {
		return 0, fmt.Errorf("reload catalog: %w", err)
	}
	l := logger.FromContextOr(ctx, s.logger)
	if err := s.cache.Invalidate(ctx); err != nil {
		l.Warn("Shared cache invalidation failed, local cache purged", zap.Error(err))
	}
	if s.publisher != nil && s.cfg.ReindexChannel != "" {
		if err := s.publisher.Publish(ctx, s.cfg.ReindexChannel, []byte(s.cfg.InstanceID)); err != nil {
			l.Warn("Failed to publish reindex signal", zap.Error(err))
		}
	}
	l.Info("Reindexed", zap.Int("products", n))
	return n, nil
}

// HandleReindexSignal applies a reindex published by another replica. The shared
// generation was already bumped by the sender, so only local state is refreshed.
func (s *Service) HandleReindexSignal(msg []byte) {
	if s.cfg.InstanceID != "" && string(msg) == s.cfg.InstanceID {
		return
	}
	n, err := s.catalog.Reload()
	if err != nil {
		s.logger.Error("Reindex signal: catalog reload failed", zap.Error(err))
		return
	}
	s.cache.InvalidateLocal()
	s.logger.Info("Reindexed on signal", zap.String("from", string(msg)), zap.Int("products", n))
}

// ListenReindex subscribes to reindex signals until ctx is done, resubscribing
// after retry when the connection drops.
func (s *Service) ListenReindex(ctx context.Context, sub Subscriber, retry time.Duration) {
	for {
		err := sub.Subscribe(ctx, s.cfg.ReindexChannel, s.HandleReindexSignal)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("Reindex subscription dropped", zap.Error(err), zap.Duration("retry_in", retry))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// Stats reports catalog and cache state.
func (s *Service) Stats() Stats {
	st := Stats{
		Catalog:      s.catalog.Stats(),
		CacheEntries: s.cache.Len(),
		CacheTTLSec:  int(s.cache.TTL().Seconds()),
		TierOrder:    s.orch.Order(),
		RulesVersion: s.extract.Version(),
	}
	if s.usage != nil {
		u := s.usage.Usage()
		st.TokenBudget = &u
	}
	return st
}

func (s *Service) limit(n int) (int, error) {
	switch {
	case n < 0:
		return 0, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidRequest)
	case n == 0:
		return s.cfg.DefaultLimit, nil
	case n > s.cfg.MaxLimit:
		return s.cfg.MaxLimit, nil
	default:
		return n, nil
	}
}

// CacheKey hashes everything that determines a response: the rules version, the
// normalized text, the constraints and the limit.
func CacheKey(rulesVersion, text string, c domquery.Constraints, limit int) string {
	h := sha256.New()
	for _, part := range []string{rulesVersion, textnorm.Normalize(text), c.CanonicalKey(), strconv.Itoa(limit)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
