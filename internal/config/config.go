package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the shopfinder API configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Catalog CatalogConfig `yaml:"catalog"`
	Search  SearchConfig  `yaml:"search"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	Tiers   TiersConfig   `yaml:"tiers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CatalogConfig points at the product snapshot file.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds request limits and ranking settings.
type SearchConfig struct {
	DefaultLimit int     `yaml:"default_limit"`
	MaxLimit     int     `yaml:"max_limit"`
	Overfetch    int     `yaml:"overfetch"`
	MinScore     float64 `yaml:"min_score"` // 0 keeps every result
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	TTLSec         int    `yaml:"ttl_sec"`
	MaxEntries     int    `yaml:"max_entries"`
	SweepSec       int    `yaml:"sweep_interval_sec"` // 0 disables the janitor
	KeyPrefix      string `yaml:"key_prefix"`
	SharedStore    bool   `yaml:"shared_store"` // use redis as the second cache level
	ReindexChannel string `yaml:"reindex_channel"`
}

// RedisConfig holds the shared store connection. Valkey and Redis are both supported.
type RedisConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// TiersConfig lists the fallback chain and per-backend settings.
type TiersConfig struct {
	Order    []string        `yaml:"order"`
	Semantic SemanticConfig  `yaml:"semantic"`
	FullText FullTextConfig  `yaml:"full_text"`
	Local    LocalTierConfig `yaml:"local_fallback"`
}

// SemanticConfig holds the chat-completion ranker settings.
type SemanticConfig struct {
	Enabled       bool         `yaml:"enabled"`
	Provider      string       `yaml:"provider"`
	APIKey        string       `yaml:"api_key"`
	BaseURL       string       `yaml:"base_url"`
	Model         string       `yaml:"model"`
	Temperature   float32      `yaml:"temperature"`
	MaxCandidates int          `yaml:"max_candidates"`
	TimeoutMs     int          `yaml:"timeout_ms"`
	Budget        BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// FullTextConfig holds the Meilisearch settings.
type FullTextConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Index     string `yaml:"index"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// LocalTierConfig holds the in-memory fallback settings.
type LocalTierConfig struct {
	TimeoutMs int `yaml:"timeout_ms"` // must stay 0: the last tier runs without a deadline
}

// Tier names accepted in tiers.order.
const (
	TierSemantic = "semantic"
	TierFullText = "full_text"
	TierLocal    = "local_fallback"
)

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expanding ${VAR} references, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "data/products.json"
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 50
	}
	if c.Search.Overfetch <= 0 {
		c.Search.Overfetch = 2
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "shopfinder:"
	}
	if c.Cache.ReindexChannel == "" {
		c.Cache.ReindexChannel = c.Cache.KeyPrefix + "reindex"
	}
	if c.Redis.Driver == "" {
		c.Redis.Driver = "valkey"
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if len(c.Tiers.Order) == 0 {
		c.Tiers.Order = []string{TierSemantic, TierFullText, TierLocal}
	}
	if c.Tiers.Semantic.Provider == "" {
		c.Tiers.Semantic.Provider = "openai"
	}
	if c.Tiers.Semantic.TimeoutMs <= 0 {
		c.Tiers.Semantic.TimeoutMs = 5000
	}
	if c.Tiers.Semantic.MaxCandidates <= 0 {
		c.Tiers.Semantic.MaxCandidates = 40
	}
	if c.Tiers.FullText.Index == "" {
		c.Tiers.FullText.Index = "products"
	}
	if c.Tiers.FullText.TimeoutMs <= 0 {
		c.Tiers.FullText.TimeoutMs = 2000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must not be below search.default_limit (%d)",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [0, 1], got %v", c.Search.MinScore)
	}
	if c.Cache.SharedStore && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required when cache.shared_store is enabled")
	}
	switch c.Redis.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("redis.driver must be \"valkey\" or \"redis\", got %q", c.Redis.Driver)
	}
	if err := c.validateOrder(); err != nil {
		return err
	}
	if c.Tiers.Semantic.Enabled {
		if c.Tiers.Semantic.Model == "" {
			return fmt.Errorf("tiers.semantic.model is required when the semantic tier is enabled")
		}
		switch c.Tiers.Semantic.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"tiers.semantic.budget.action must be \"warn\" or \"reject\", got %q",
				c.Tiers.Semantic.Budget.Action,
			)
		}
	}
	if c.Tiers.FullText.Enabled && c.Tiers.FullText.URL == "" {
		return fmt.Errorf("tiers.full_text.url is required when the full-text tier is enabled")
	}
	if c.Tiers.Local.TimeoutMs != 0 {
		return fmt.Errorf("tiers.local_fallback.timeout_ms must be 0, got %d", c.Tiers.Local.TimeoutMs)
	}
	return nil
}

func (c *Config) validateOrder() error {
	if len(c.Tiers.Order) == 0 {
		return fmt.Errorf("tiers.order is required")
	}
	seen := make(map[string]bool, len(c.Tiers.Order))
	for _, name := range c.Tiers.Order {
		switch name {
		case TierSemantic, TierFullText, TierLocal:
		default:
			return fmt.Errorf("tiers.order: unknown tier %q", name)
		}
		if seen[name] {
			return fmt.Errorf("tiers.order: duplicate tier %q", name)
		}
		seen[name] = true
	}
	if last := c.Tiers.Order[len(c.Tiers.Order)-1]; last != TierLocal {
		return fmt.Errorf("tiers.order must end with %q, got %q", TierLocal, last)
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.Cache.TTLSec) * time.Second }

// TierTimeout returns the per-attempt timeout for a tier name. Zero means none;
// local_fallback always gets zero.
func (c *Config) TierTimeout(name string) time.Duration {
	switch name {
	case TierSemantic:
		return time.Duration(c.Tiers.Semantic.TimeoutMs) * time.Millisecond
	case TierFullText:
		return time.Duration(c.Tiers.FullText.TimeoutMs) * time.Millisecond
	default:
		return 0
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
