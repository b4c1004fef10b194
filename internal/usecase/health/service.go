package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is down; searches fall through to the next tier.
	Degraded Status = "degraded"
	// Unhealthy indicates the catalog is empty, so not even the local fallback can answer.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names in the report.
const (
	ComponentCatalog  = "catalog"
	ComponentCache    = "cache"
	ComponentFullText = "full_text"
	ComponentSemantic = "semantic"
)

const defaultCheckTimeout = 3 * time.Second

var errEmptyCatalog = errors.New("catalog is empty")

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	catalog  CatalogCounter
	cache    DBPinger
	backends map[string]BackendChecker
	timeout  time.Duration
}

// New creates a Service. cache can be nil when no shared store is configured.
func New(catalog CatalogCounter, cache DBPinger) *Service {
	return &Service{
		catalog:  catalog,
		cache:    cache,
		backends: make(map[string]BackendChecker),
		timeout:  defaultCheckTimeout,
	}
}

// WithBackend adds a search backend check under name. nil checkers are ignored.
func (s *Service) WithBackend(name string, c BackendChecker) *Service {
	if c != nil {
		s.backends[name] = c
	}
	return s
}

// WithTimeout bounds each individual check.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs every check concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult, len(s.backends)+2)
	)
	set := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			checks[name] = CheckError
			return
		}
		checks[name] = CheckOK
	}

	// Workers never return errors so one failing check does not cancel the rest.
	g, gctx := errgroup.WithContext(ctx)
	run := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			set(name, fn(cctx))
			return nil
		})
	}

	run(ComponentCatalog, func(context.Context) error {
		if s.catalog.Len() == 0 {
			return errEmptyCatalog
		}
		return nil
	})
	if s.cache != nil {
		run(ComponentCache, s.cache.Ping)
	}
	for name, b := range s.backends {
		run(name, b.HealthCheck)
	}
	_ = g.Wait()

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == ComponentCatalog {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
