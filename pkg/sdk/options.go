package shopfinder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	catalogPath string
	products    []Product

	meiliURL   string
	meiliKey   string
	meiliIndex string

	openAIKey   string
	openAIURL   string
	openAIModel string

	redisAddr     string
	redisPassword string

	cacheTTL     time.Duration
	cacheEntries int
	tierTimeout  time.Duration
	defaultLimit int
	maxLimit     int
	minScore     float64

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithCatalogFile loads products from a JSON snapshot. Reindex re-reads it.
func WithCatalogFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.catalogPath = path
	})
}

// WithProducts serves an in-memory product list instead of a file.
func WithProducts(products []Product) Option {
	return optionFunc(func(c *clientConfig) {
		c.products = products
	})
}

// WithMeilisearch enables the full-text tier.
func WithMeilisearch(url, apiKey, index string) Option {
	return optionFunc(func(c *clientConfig) {
		c.meiliURL = url
		c.meiliKey = apiKey
		c.meiliIndex = index
	})
}

// WithOpenAI enables the semantic ranking tier. An empty baseURL uses the
// OpenAI endpoint; any OpenAI-compatible endpoint works.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIKey = apiKey
		c.openAIURL = baseURL
		c.openAIModel = model
	})
}

// WithRedis shares cached answers through a Redis or Valkey instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddr = addr
		c.redisPassword = password
	})
}

// WithCache sets the answer cache TTL and size.
// Defaults: 5 minutes, 1000 entries.
func WithCache(ttl time.Duration, maxEntries int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheTTL = ttl
		c.cacheEntries = maxEntries
	})
}

// WithTierTimeout bounds each remote tier attempt. The local catalog always
// runs to completion. Default: 5s.
func WithTierTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.tierTimeout = d
	})
}

// WithLimits sets the default and maximum number of products per answer.
// Defaults: 10 and 50.
func WithLimits(defaultLimit, maxLimit int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultLimit = defaultLimit
		c.maxLimit = maxLimit
	})
}

// WithMinScore drops results scoring below s.
func WithMinScore(s float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.minScore = s
	})
}

// WithLogger enables structured logging. Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
