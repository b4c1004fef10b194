// Package tokenbudget caps the tokens the semantic tier may spend per day and month.
// A refused check fails the tier with a quota error, so the chain falls through to
// full-text search instead of spending past the cap.
package tokenbudget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/domain"
)

// Action defines behavior when the budget is exhausted.
type Action string

const (
	// ActionWarn logs and lets the request through.
	ActionWarn Action = "warn"
	// ActionReject refuses the request with a quota error.
	ActionReject Action = "reject"
)

// persistTimeout bounds the write-behind to the shared store.
const persistTimeout = 2 * time.Second

// Store persists counters so that replicas share one budget.
// IncrBy may be called repeatedly for the same key.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// Limits configures the tracker. Zero means unlimited.
type Limits struct {
	Daily   int64
	Monthly int64
	Action  Action
}

// Usage is a point-in-time view of the counters. Remaining is -1 when unlimited.
type Usage struct {
	Provider         string `json:"provider"`
	DailyUsed        int64  `json:"daily_used"`
	DailyLimit       int64  `json:"daily_limit"`
	DailyRemaining   int64  `json:"daily_remaining"`
	MonthlyUsed      int64  `json:"monthly_used"`
	MonthlyLimit     int64  `json:"monthly_limit"`
	MonthlyRemaining int64  `json:"monthly_remaining"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithKeyPrefix sets the prefix of persisted counter keys.
func WithKeyPrefix(p string) Option {
	return func(t *Tracker) { t.prefix = p }
}

// Tracker keeps the counters in memory; Check never leaves the process.
type Tracker struct {
	mu          sync.Mutex
	dailyUsed   int64
	monthlyUsed int64
	limits      Limits
	provider    string
	prefix      string
	day         time.Time
	month       time.Time
	now         func() time.Time
	store       Store
	logger      *zap.Logger
}

// New creates a tracker for one provider.
func New(provider string, limits Limits, l *zap.Logger, opts ...Option) *Tracker {
	if l == nil {
		l = zap.NewNop()
	}
	if limits.Action == "" {
		limits.Action = ActionWarn
	}
	t := &Tracker{
		limits:   limits,
		provider: provider,
		now:      time.Now,
		logger:   l,
	}
	for _, o := range opts {
		o(t)
	}
	now := t.now().UTC()
	t.day, t.month = truncateToDay(now), truncateToMonth(now)
	return t
}

// Attach loads the current counters from s and persists future spend to it.
func (t *Tracker) Attach(ctx context.Context, s Store) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = s
	now := t.now().UTC()
	if v, err := s.Get(ctx, t.dailyKey(now)); err == nil {
		t.dailyUsed = v
	} else {
		t.logger.Warn("Failed to load daily token budget", zap.Error(err))
	}
	if v, err := s.Get(ctx, t.monthlyKey(now)); err == nil {
		t.monthlyUsed = v
	} else {
		t.logger.Warn("Failed to load monthly token budget", zap.Error(err))
	}
	t.logger.Info("Token budget loaded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("monthly_used", t.monthlyUsed),
	)
	return t
}

// Check refuses the request with domain.ErrBackendQuota when a cap is reached and
// the action is reject.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	daily := t.limits.Daily > 0 && t.dailyUsed >= t.limits.Daily
	monthly := t.limits.Monthly > 0 && t.monthlyUsed >= t.limits.Monthly
	if !daily && !monthly {
		return nil
	}
	if t.limits.Action == ActionReject {
		return fmt.Errorf("%s token budget exhausted: %w", t.provider, domain.ErrBackendQuota)
	}
	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("daily_limit", t.limits.Daily),
		zap.Int64("monthly_used", t.monthlyUsed),
		zap.Int64("monthly_limit", t.limits.Monthly),
	)
	return nil
}

// Record adds spent tokens, then writes them behind to the store if one is attached.
func (t *Tracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	t.mu.Lock()
	t.rollover()
	t.dailyUsed += tokens
	t.monthlyUsed += tokens
	s := t.store
	now := t.now().UTC()
	t.mu.Unlock()

	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, key := range []string{t.dailyKey(now), t.monthlyKey(now)} {
		if err := s.IncrBy(ctx, key, tokens); err != nil {
			t.logger.Warn("Failed to persist token budget", zap.String("key", key), zap.Error(err))
		}
	}
}

// Usage reports the counters.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return Usage{
		Provider:         t.provider,
		DailyUsed:        t.dailyUsed,
		DailyLimit:       t.limits.Daily,
		DailyRemaining:   remaining(t.limits.Daily, t.dailyUsed),
		MonthlyUsed:      t.monthlyUsed,
		MonthlyLimit:     t.limits.Monthly,
		MonthlyRemaining: remaining(t.limits.Monthly, t.monthlyUsed),
	}
}

func (t *Tracker) dailyKey(now time.Time) string {
	return fmt.Sprintf("%stokens:%s:daily:%s", t.prefix, t.provider, now.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(now time.Time) string {
	return fmt.Sprintf("%stokens:%s:monthly:%s", t.prefix, t.provider, now.Format("2006-01"))
}

// rollover zeroes counters when the day or month changes. Caller holds mu.
func (t *Tracker) rollover() {
	now := t.now().UTC()
	if d := truncateToDay(now); d.After(t.day) {
		t.dailyUsed = 0
		t.day = d
	}
	if m := truncateToMonth(now); m.After(t.month) {
		t.monthlyUsed = 0
		t.month = m
	}
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
