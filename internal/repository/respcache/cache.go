// Package respcache is a TTL response cache with per-key request coalescing.
//
// Lookups go to an in-process LRU first, then to an optional shared store (Redis or
// Valkey). Concurrent misses for one key run the compute function once.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/shopfinder/internal/db"
)

// remote is the consumer interface for the shared cache tier (ISP).
type remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) error
}

// Config holds cache sizing.
type Config struct {
	TTL        time.Duration
	MaxEntries int
	// KeyPrefix namespaces keys in the shared store.
	KeyPrefix string
}

// Lookup is the result of GetOrCompute.
type Lookup[V any] struct {
	Value V
	// Hit is true when the value came from the cache rather than from compute.
	Hit bool
	// Shared is true when the caller joined a computation started by another request.
	// The request that ran the computation never reports Shared.
	Shared bool
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type flight[V any] struct {
	value V
	hit   bool
}

// Cache maps request keys to computed values for a fixed TTL.
type Cache[V any] struct {
	cfg        Config
	local      *lru.Cache[string, entry[V]]
	group      singleflight.Group
	generation atomic.Uint64
	remote     remote
	now        func() time.Time
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

type options struct {
	remote     remote
	now        func() time.Time
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// Option configures a Cache.
type Option func(*options)

// WithRemote adds a shared store behind the local LRU.
func WithRemote(r remote) Option {
	return func(o *options) { o.remote = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics counts lookups by result ("hit", "miss", "shared").
func WithMetrics(cacheTotal *prometheus.CounterVec) Option {
	return func(o *options) { o.cacheTotal = cacheTotal }
}

// WithLogger sets the logger used for shared-store failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a cache.
func New[V any](cfg Config, opts ...Option) (*Cache[V], error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("cache max entries must be positive")
	}

	o := options{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	local, err := lru.New[string, entry[V]](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	return &Cache[V]{
		cfg:        cfg,
		local:      local,
		remote:     o.remote,
		now:        o.now,
		cacheTotal: o.cacheTotal,
		logger:     o.logger,
	}, nil
}

// GetOrCompute returns the cached value for key or runs compute once for all
// concurrent callers with that key.
//
// compute runs detached from the caller's cancellation so that a caller leaving early
// does not fail the others; a caller whose ctx ends stops waiting and gets ctx.Err().
// Errors are never cached.
func (c *Cache[V]) GetOrCompute(
	ctx context.Context, key string, compute func(ctx context.Context) (V, error),
) (Lookup[V], error) {
	if v, ok := c.getLocal(key); ok {
		c.inc("hit")
		return Lookup[V]{Value: v, Hit: true}, nil
	}

	gen := c.generation.Load()
	detached := context.WithoutCancel(ctx)
	// led is only written when this caller's own function runs; joiners never see it set.
	var led bool
	ch := c.group.DoChan(strconv.FormatUint(gen, 10)+"|"+key, func() (any, error) {
		led = true
		if v, ok := c.getLocal(key); ok {
			return flight[V]{value: v, hit: true}, nil
		}
		if v, ok := c.getRemote(detached, key); ok {
			c.putLocal(key, v, gen)
			return flight[V]{value: v, hit: true}, nil
		}

		v, err := compute(detached)
		if err != nil {
			return nil, err
		}
		if c.putLocal(key, v, gen) {
			c.putRemote(detached, key, v)
		}
		return flight[V]{value: v}, nil
	})

	select {
	case <-ctx.Done():
		return Lookup[V]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Lookup[V]{}, res.Err
		}
		f := res.Val.(flight[V])
		joined := res.Shared && !led
		switch {
		case joined:
			c.inc("shared")
		case f.hit:
			c.inc("hit")
		default:
			c.inc("miss")
		}
		return Lookup[V]{Value: f.value, Hit: f.hit, Shared: joined}, nil
	}
}

// Invalidate drops every entry. Computations already in flight finish but their
// results are not stored.
func (c *Cache[V]) Invalidate(ctx context.Context) error {
	c.InvalidateLocal()
	if c.remote == nil {
		return nil
	}
	if err := c.remote.IncrBy(ctx, c.generationKey(), 1); err != nil {
		return fmt.Errorf("bump shared cache generation: %w", err)
	}
	return nil
}

// InvalidateLocal drops the in-process entries only. Used when another instance
// already bumped the shared generation.
func (c *Cache[V]) InvalidateLocal() {
	c.generation.Add(1)
	c.local.Purge()
}

// Sweep removes expired local entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	removed := 0
	for _, k := range c.local.Keys() {
		if e, ok := c.local.Peek(k); ok && !now.Before(e.expiresAt) {
			c.local.Remove(k)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (c *Cache[V]) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("Swept expired cache entries", zap.Int("removed", n))
			}
		}
	}
}

// Len returns the number of local entries, expired ones included.
func (c *Cache[V]) Len() int { return c.local.Len() }

// TTL returns the configured time to live.
func (c *Cache[V]) TTL() time.Duration { return c.cfg.TTL }

func (c *Cache[V]) getLocal(key string) (V, bool) {
	var zero V
	e, ok := c.local.Get(key)
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.local.Remove(key)
		return zero, false
	}
	return e.value, true
}

// putLocal stores v unless the cache was invalidated after gen was read.
func (c *Cache[V]) putLocal(key string, v V, gen uint64) bool {
	if c.generation.Load() != gen {
		return false
	}
	c.local.Add(key, entry[V]{value: v, expiresAt: c.now().Add(c.cfg.TTL)})
	return true
}

func (c *Cache[V]) getRemote(ctx context.Context, key string) (V, bool) {
	var zero V
	if c.remote == nil {
		return zero, false
	}
	rkey, ok := c.remoteKey(ctx, key)
	if !ok {
		return zero, false
	}
	data, err := c.remote.Get(ctx, rkey)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached response", zap.String("key", rkey), zap.Error(err))
		}
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("Failed to parse cached response", zap.String("key", rkey), zap.Error(err))
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) putRemote(ctx context.Context, key string, v V) {
	if c.remote == nil {
		return
	}
	rkey, ok := c.remoteKey(ctx, key)
	if !ok {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Failed to encode response for cache", zap.String("key", rkey), zap.Error(err))
		return
	}
	if err := c.remote.SetWithTTL(ctx, rkey, data, c.cfg.TTL); err != nil {
		c.logger.Warn("Failed to cache response", zap.String("key", rkey), zap.Error(err))
	}
}

// remoteKey embeds the shared generation so that an invalidation on any instance
// orphans every older key.
func (c *Cache[V]) remoteKey(ctx context.Context, key string) (string, bool) {
	gen := "0"
	data, err := c.remote.Get(ctx, c.generationKey())
	switch {
	case err == nil:
		gen = string(data)
	case errors.Is(err, db.ErrKeyNotFound):
	default:
		c.logger.Warn("Failed to read shared cache generation", zap.Error(err))
		return "", false
	}
	h := sha256.Sum256([]byte(key))
	return c.cfg.KeyPrefix + "resp:" + gen + ":" + hex.EncodeToString(h[:]), true
}

func (c *Cache[V]) generationKey() string {
	return c.cfg.KeyPrefix + "resp_gen"
}

func (c *Cache[V]) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
