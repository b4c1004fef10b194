// Package budget persists token budget counters in the shared store so that every
// replica enforces one limit.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/shopfinder/internal/db"
)

// Default retention of period counters. A counter only has to outlive its period.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// counters is the consumer interface for budget operations (ISP).
type counters interface {
	GetInt64(ctx context.Context, key string) (int64, error)
	IncrByWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// Store implements tokenbudget.Store on shared counters.
type Store struct {
	kv         counters
	dailyTTL   time.Duration
	monthlyTTL time.Duration
}

// New creates a budget store. Non-positive TTLs fall back to the defaults.
func New(kv counters, dailyTTL, monthlyTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthlyTTL <= 0 {
		monthlyTTL = DefaultMonthlyTTL
	}
	return &Store{kv: kv, dailyTTL: dailyTTL, monthlyTTL: monthlyTTL}
}

// IncrBy adds spent tokens to a period counter.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if _, err := s.kv.IncrByWithTTL(ctx, key, val, s.retention(key)); err != nil {
		return fmt.Errorf("budget add %s: %w", key, err)
	}
	return nil
}

// Get returns the tokens spent in a period, 0 before the first write.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.kv.GetInt64(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget read %s: %w", key, err)
	}
	return n, nil
}

// retention picks the TTL from the period segment the tracker puts in its keys.
func (s *Store) retention(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthlyTTL
}
