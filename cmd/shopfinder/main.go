package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/config"
	dbRedis "github.com/kailas-cloud/shopfinder/internal/db/redis"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/shopfinder/internal/logger"
	"github.com/kailas-cloud/shopfinder/internal/metrics"
	budgetrepo "github.com/kailas-cloud/shopfinder/internal/repository/budget"
	"github.com/kailas-cloud/shopfinder/internal/repository/catalog"
	"github.com/kailas-cloud/shopfinder/internal/repository/respcache"
	chiTransport "github.com/kailas-cloud/shopfinder/internal/transport/chi"
	"github.com/kailas-cloud/shopfinder/internal/transport/meilisearch"
	openaiRanker "github.com/kailas-cloud/shopfinder/internal/transport/openai"
	"github.com/kailas-cloud/shopfinder/internal/usecase/extract"
	"github.com/kailas-cloud/shopfinder/internal/usecase/format"
	healthuc "github.com/kailas-cloud/shopfinder/internal/usecase/health"
	"github.com/kailas-cloud/shopfinder/internal/usecase/orchestrator"
	queryuc "github.com/kailas-cloud/shopfinder/internal/usecase/query"
	"github.com/kailas-cloud/shopfinder/internal/usecase/tokenbudget"
	"github.com/kailas-cloud/shopfinder/internal/version"
)

const reindexRetry = 5 * time.Second

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting shopfinder API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("tier_order", cfg.Tiers.Order),
		zap.String("catalog", cfg.Catalog.Path),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterSearchMetrics()

	products, err := catalog.Open(cfg.Catalog.Path, logger)
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}

	// Shared store: optional, used for the L2 cache, reindex fan-out and the token budget.
	var store *dbRedis.Store
	if len(cfg.Redis.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create shared store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Shared store not ready", zap.Error(err))
		}
		logger.Info("Connected to shared store",
			zap.String("driver", cfg.Redis.Driver),
			zap.Strings("addrs", cfg.Redis.Addrs),
		)
	}

	cacheOpts := []respcache.Option{
		respcache.WithMetrics(metrics.SearchCacheTotal),
		respcache.WithLogger(logger),
	}
	if store != nil && cfg.Cache.SharedStore {
		cacheOpts = append(cacheOpts, respcache.WithRemote(store))
	}
	cache, err := respcache.New[result.Outcome](respcache.Config{
		TTL:        cfg.CacheTTL(),
		MaxEntries: cfg.Cache.MaxEntries,
		KeyPrefix:  cfg.Cache.KeyPrefix + "search:",
	}, cacheOpts...)
	if err != nil {
		logger.Fatal("Failed to create response cache", zap.Error(err))
	}
	if cfg.Cache.SweepSec > 0 {
		go cache.RunJanitor(ctx, time.Duration(cfg.Cache.SweepSec)*time.Second)
	}

	// Tier chain: composition root
	var (
		ranker  *openaiRanker.Ranker
		meili   *meilisearch.Client
		tracker *tokenbudget.Tracker
	)
	if cfg.Tiers.Semantic.Enabled {
		ranker, tracker = buildRanker(ctx, &cfg, products, store, logger)
	}
	if cfg.Tiers.FullText.Enabled {
		meili, err = meilisearch.New(meilisearch.Config{
			URL:    cfg.Tiers.FullText.URL,
			APIKey: cfg.Tiers.FullText.APIKey,
			Index:  cfg.Tiers.FullText.Index,
			Logger: logger,
		})
		if err != nil {
			logger.Fatal("Invalid full-text tier config", zap.Error(err))
		}
	}

	stages := make([]orchestrator.Stage, 0, len(cfg.Tiers.Order))
	for _, name := range cfg.Tiers.Order {
		var t orchestrator.Tier
		switch name {
		case config.TierSemantic:
			if ranker == nil {
				continue
			}
			t = ranker
		case config.TierFullText:
			if meili == nil {
				continue
			}
			t = meili
		case config.TierLocal:
			t = products
		}
		stages = append(stages, orchestrator.Stage{Tier: t, Timeout: cfg.TierTimeout(name)})
	}
	orch, err := orchestrator.New(stages, logger)
	if err != nil {
		logger.Fatal("Invalid tier chain", zap.Error(err))
	}
	logger.Info("Search tiers ready", zap.Any("order", orch.Order()))

	querySvc := queryuc.New(extract.Default(), cache, orch, format.New(cfg.Search.MinScore), products,
		queryuc.Config{
			DefaultLimit:   cfg.Search.DefaultLimit,
			MaxLimit:       cfg.Search.MaxLimit,
			Overfetch:      cfg.Search.Overfetch,
			ReindexChannel: cfg.Cache.ReindexChannel,
			InstanceID:     instanceID(),
		}, logger)

	// Pass nil interfaces (not typed nil pointers) when a component is not configured.
	if tracker != nil {
		querySvc.WithUsage(tracker)
	}
	var cachePinger healthuc.DBPinger
	if store != nil {
		querySvc.WithPublisher(store)
		cachePinger = store
		go querySvc.ListenReindex(ctx, store, reindexRetry)
	}

	healthSvc := healthuc.New(products, cachePinger)
	if ranker != nil {
		healthSvc.WithBackend(healthuc.ComponentSemantic, ranker)
	}
	if meili != nil {
		healthSvc.WithBackend(healthuc.ComponentFullText, meili)
	}

	server := chiTransport.NewServer(querySvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	chiTransport.Handler(server, chiTransport.Options{BaseRouter: r})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildRanker assembles the semantic tier and, when limits are set, its token budget.
func buildRanker(
	ctx context.Context,
	cfg *config.Config,
	products *catalog.Catalog,
	store *dbRedis.Store,
	logger *zap.Logger,
) (*openaiRanker.Ranker, *tokenbudget.Tracker) {
	sc := cfg.Tiers.Semantic
	ranker := openaiRanker.NewRanker(&openaiRanker.Config{
		APIKey:        sc.APIKey,
		BaseURL:       sc.BaseURL,
		Model:         sc.Model,
		Temperature:   sc.Temperature,
		MaxCandidates: sc.MaxCandidates,
		Provider:      sc.Provider,
		User:          "shopfinder",
		Logger:        logger,
	}, products)

	b := sc.Budget
	if b.DailyTokenLimit <= 0 && b.MonthlyTokenLimit <= 0 {
		return ranker, nil
	}
	action := tokenbudget.ActionWarn
	if b.Action == string(tokenbudget.ActionReject) {
		action = tokenbudget.ActionReject
	}
	tracker := tokenbudget.New(sc.Provider, tokenbudget.Limits{
		Daily:   b.DailyTokenLimit,
		Monthly: b.MonthlyTokenLimit,
		Action:  action,
	}, logger, tokenbudget.WithKeyPrefix(cfg.Cache.KeyPrefix))
	// Connect persistence store: loads current counters so replicas share one budget.
	if store != nil {
		tracker.Attach(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
	}
	ranker.WithBudget(tracker)
	logger.Info("Semantic token budget enabled",
		zap.Int64("daily", b.DailyTokenLimit),
		zap.Int64("monthly", b.MonthlyTokenLimit),
		zap.String("action", string(action)),
	)
	return ranker, tracker
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "shopfinder"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
