// Package orchestrator runs search tiers in priority order and returns the first success.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/domain"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
	"github.com/kailas-cloud/shopfinder/internal/logger"
	"github.com/kailas-cloud/shopfinder/internal/metrics"
)

// State is the position of one Search call in the tier chain.
type State int

// Search states.
const (
	StatePending State = iota
	StateTrying
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTrying:
		return "trying"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Orchestrator tries each stage in order until one succeeds.
type Orchestrator struct {
	stages []Stage
	logger *zap.Logger
}

// New validates the chain: at least one stage, unique known tier names, and
// local_fallback last with no timeout.
func New(stages []Stage, l *zap.Logger) (*Orchestrator, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: at least one search tier is required", domain.ErrInvalidRequest)
	}
	seen := make(map[tier.Name]struct{}, len(stages))
	for i, st := range stages {
		if st.Tier == nil {
			return nil, fmt.Errorf("%w: stage %d has no tier", domain.ErrInvalidRequest, i)
		}
		name := st.Tier.Name()
		if !name.IsValid() {
			return nil, fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidRequest, name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %q", domain.ErrInvalidRequest, name)
		}
		if st.Timeout < 0 {
			return nil, fmt.Errorf("%w: negative timeout for tier %q", domain.ErrInvalidRequest, name)
		}
		seen[name] = struct{}{}
	}
	last := stages[len(stages)-1]
	if name := last.Tier.Name(); name != tier.LocalFallback {
		return nil, fmt.Errorf("%w: last tier must be %s, got %s",
			domain.ErrInvalidRequest, tier.LocalFallback, name)
	}
	if last.Timeout != 0 {
		return nil, fmt.Errorf("%w: tier %s must not have a timeout, got %s",
			domain.ErrInvalidRequest, tier.LocalFallback, last.Timeout)
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Orchestrator{stages: append([]Stage(nil), stages...), logger: l}, nil
}

// Order returns the tier names in priority order.
func (o *Orchestrator) Order() []tier.Name {
	out := make([]tier.Name, len(o.stages))
	for i, st := range o.stages {
		out[i] = st.Tier.Name()
	}
	return out
}

// Search returns the first successful tier's items with every item stamped with that tier.
// Failures before the winner are kept in Outcome.Attempts and never returned as errors.
// ErrTiersExhausted is returned only when every tier failed.
func (o *Orchestrator) Search(ctx context.Context, c query.Constraints, limit int) (result.Outcome, error) {
	log := logger.FromContextOr(ctx, o.logger)
	var out result.Outcome
	state := StatePending

	for i, st := range o.stages {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("search aborted in state %s: %w", state, err)
		}
		state = StateTrying
		log.Debug("Trying search tier",
			zap.Stringer("state", state),
			zap.Int("position", i),
			zap.String("tier", string(st.Tier.Name())),
		)

		res := o.attempt(ctx, st, c, limit, log)
		if res.Succeeded {
			state = StateSucceeded
			out.Winner = res
			log.Debug("Search tier succeeded",
				zap.Stringer("state", state),
				zap.String("tier", string(res.Tier)),
				zap.Int("items", len(res.Items)),
				zap.Duration("latency", res.Latency),
			)
			return out, nil
		}
		out.Attempts = append(out.Attempts, res)
	}

	state = StateExhausted
	log.Error("All search tiers failed", zap.Stringer("state", state), zap.Int("attempts", len(out.Attempts)))
	return out, domain.ErrTiersExhausted
}

type reply struct {
	items []result.ScoredItem
	err   error
}

// attempt runs one tier under its timeout. A tier that outlives the timeout is abandoned;
// its reply lands in a buffered channel nobody reads. local_fallback never gets a deadline.
func (o *Orchestrator) attempt(
	ctx context.Context, st Stage, c query.Constraints, limit int, log *zap.Logger,
) result.TierResult {
	name := st.Tier.Name()
	tctx, cancel := ctx, context.CancelFunc(func() {})
	if st.Timeout > 0 && name != tier.LocalFallback {
		tctx, cancel = context.WithTimeout(ctx, st.Timeout)
	}
	defer cancel()

	start := time.Now()
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("tier %s panicked: %v", name, r)}
			}
		}()
		items, err := st.Tier.Search(tctx, c, limit)
		ch <- reply{items: items, err: err}
	}()

	var rep reply
	select {
	case rep = <-ch:
	case <-tctx.Done():
		if ctx.Err() != nil {
			rep.err = fmt.Errorf("tier %s: %w", name, ctx.Err())
		} else {
			rep.err = fmt.Errorf("tier %s after %s: %w", name, st.Timeout, domain.ErrTierTimeout)
		}
	}
	latency := time.Since(start)
	metrics.TierRequestDuration.WithLabelValues(string(name)).Observe(latency.Seconds())

	res := result.TierResult{Tier: name, Latency: latency}
	if rep.err != nil {
		res.Err = rep.err
		res.ErrKind = tier.Classify(rep.err)
		metrics.TierRequestsTotal.WithLabelValues(string(name), "failure").Inc()
		metrics.TierFailuresTotal.WithLabelValues(string(name), string(res.ErrKind)).Inc()
		log.Warn("Search tier failed",
			zap.String("tier", string(name)),
			zap.String("kind", string(res.ErrKind)),
			zap.Duration("latency", latency),
			zap.Error(rep.err),
		)
		return res
	}

	metrics.TierRequestsTotal.WithLabelValues(string(name), "success").Inc()
	res.Succeeded = true
	res.Items = make([]result.ScoredItem, len(rep.items))
	for i, it := range rep.items {
		it.SourceTier = name
		res.Items[i] = it
	}
	return res
}
