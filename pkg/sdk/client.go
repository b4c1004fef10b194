package shopfinder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	dbRedis "github.com/kailas-cloud/shopfinder/internal/db/redis"
	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/response"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/repository/catalog"
	"github.com/kailas-cloud/shopfinder/internal/repository/respcache"
	"github.com/kailas-cloud/shopfinder/internal/transport/meilisearch"
	openaiRanker "github.com/kailas-cloud/shopfinder/internal/transport/openai"
	"github.com/kailas-cloud/shopfinder/internal/usecase/extract"
	"github.com/kailas-cloud/shopfinder/internal/usecase/format"
	healthuc "github.com/kailas-cloud/shopfinder/internal/usecase/health"
	"github.com/kailas-cloud/shopfinder/internal/usecase/orchestrator"
	queryuc "github.com/kailas-cloud/shopfinder/internal/usecase/query"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultTierTimeout      = 5 * time.Second
	defaultCacheTTL         = 5 * time.Minute
	defaultCacheEntries     = 1000
)

// Types re-exported from the domain layer.
type (
	Product     = product.Product
	Filters     = query.Filters
	Constraints = query.Constraints
	Payload     = response.Payload
)

// queryUseCase is the internal interface for the query pipeline.
type queryUseCase interface {
	Search(ctx context.Context, raw query.Raw, limit int) (response.Payload, error)
	Extract(raw query.Raw) query.Constraints
	Product(id string) (product.Product, error)
	Compare(ids []string) (response.Payload, error)
	Reindex(ctx context.Context) (int, error)
}

// Client is the shopfinder SDK entry point.
type Client struct {
	store     *dbRedis.Store
	querySvc  queryUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New builds the pipeline. The provided context is used for the shared
// store readiness check when WithRedis is set.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		cacheTTL:     defaultCacheTTL,
		cacheEntries: defaultCacheEntries,
		tierTimeout:  defaultTierTimeout,
		defaultLimit: 10,
		maxLimit:     50,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.catalogPath == "" && len(cfg.products) == 0 {
		return nil, errors.New("shopfinder: catalog required (use WithCatalogFile or WithProducts)")
	}
	if cfg.openAIKey != "" && cfg.openAIModel == "" {
		return nil, errors.New("shopfinder: WithOpenAI requires a model")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store *dbRedis.Store
	if cfg.redisAddr != "" {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    []string{cfg.redisAddr},
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("shopfinder: create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("shopfinder: shared store not ready: %w", err)
		}
	}

	c, err := wireClient(cfg, store, obs)
	if err != nil && store != nil {
		store.Close()
	}
	return c, err
}

func wireClient(cfg *clientConfig, store *dbRedis.Store, obs *observer) (*Client, error) {
	l := obs.logger

	var products *catalog.Catalog
	if cfg.catalogPath != "" {
		var err error
		if products, err = catalog.Open(cfg.catalogPath, l); err != nil {
			return nil, fmt.Errorf("shopfinder: %w", err)
		}
	} else {
		products = catalog.New("", cfg.products, l)
	}

	var cacheOpts []respcache.Option
	cacheOpts = append(cacheOpts, respcache.WithLogger(l))
	if store != nil {
		cacheOpts = append(cacheOpts, respcache.WithRemote(store))
	}
	cache, err := respcache.New[result.Outcome](respcache.Config{
		TTL:        cfg.cacheTTL,
		MaxEntries: cfg.cacheEntries,
		KeyPrefix:  "shopfinder:sdk:",
	}, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("shopfinder: %w", err)
	}

	// A nil *Store must not reach the health service as a non-nil interface.
	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(products, pinger)

	var stages []orchestrator.Stage
	if cfg.openAIKey != "" {
		ranker := openaiRanker.NewRanker(&openaiRanker.Config{
			APIKey:  cfg.openAIKey,
			BaseURL: cfg.openAIURL,
			Model:   cfg.openAIModel,
			Logger:  l,
		}, products)
		stages = append(stages, orchestrator.Stage{Tier: ranker, Timeout: cfg.tierTimeout})
		healthSvc.WithBackend(healthuc.ComponentSemantic, ranker)
	}
	if cfg.meiliURL != "" {
		meili, err := meilisearch.New(meilisearch.Config{
			URL:    cfg.meiliURL,
			APIKey: cfg.meiliKey,
			Index:  cfg.meiliIndex,
			Logger: l,
		})
		if err != nil {
			return nil, fmt.Errorf("shopfinder: %w", err)
		}
		stages = append(stages, orchestrator.Stage{Tier: meili, Timeout: cfg.tierTimeout})
		healthSvc.WithBackend(healthuc.ComponentFullText, meili)
	}
	stages = append(stages, orchestrator.Stage{Tier: products})

	orch, err := orchestrator.New(stages, l)
	if err != nil {
		return nil, fmt.Errorf("shopfinder: %w", err)
	}

	querySvc := queryuc.New(extract.Default(), cache, orch, format.New(cfg.minScore), products,
		queryuc.Config{
			DefaultLimit: cfg.defaultLimit,
			MaxLimit:     cfg.maxLimit,
			Overfetch:    2,
			InstanceID:   fmt.Sprintf("sdk-%d", os.Getpid()),
		}, l)

	return &Client{
		store:     store,
		querySvc:  querySvc,
		healthSvc: healthSvc,
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Search answers a free-text query. Zero limit uses the default.
func (c *Client) Search(ctx context.Context, text string, limit int) (Payload, error) {
	return c.SearchWithFilters(ctx, text, Filters{}, limit)
}

// SearchWithFilters answers a query with explicit filters that override
// what the text implies.
func (c *Client) SearchWithFilters(ctx context.Context, text string, f Filters, limit int) (p Payload, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	p, err = c.querySvc.Search(ctx, query.Raw{Text: text, Filters: f}, limit)
	if err != nil {
		return Payload{}, fmt.Errorf("search: %w", err)
	}
	return p, nil
}

// Extract returns the constraints understood from text.
func (c *Client) Extract(text string) Constraints {
	return c.querySvc.Extract(query.Raw{Text: text})
}

// Product returns one product by id.
func (c *Client) Product(id string) (p Product, err error) {
	start := time.Now()
	defer func() { c.obs.observe("product", start, err) }()

	p, err = c.querySvc.Product(id)
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// Compare builds a side-by-side payload for 2 to 5 products.
func (c *Client) Compare(ids ...string) (p Payload, err error) {
	start := time.Now()
	defer func() { c.obs.observe("compare", start, err) }()

	p, err = c.querySvc.Compare(ids)
	if err != nil {
		return Payload{}, fmt.Errorf("compare: %w", err)
	}
	return p, nil
}

// Reindex reloads the catalog file and drops cached answers.
func (c *Client) Reindex(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reindex", start, err) }()

	n, err = c.querySvc.Reindex(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return n, nil
}
