package db

import (
	"context"
	"time"
)

// Store is the shared-state facade: the second cache layer, token budget counters
// and the reindex channel.
type Store interface {
	Pinger
	KVStore
	PubSub
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore holds cached answers and counters.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetInt64(ctx context.Context, key string) (int64, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) error
	IncrByWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// PubSub broadcasts small control messages between replicas.
type PubSub interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	// Subscribe blocks, calling fn for every message, until ctx is done or the
	// connection fails.
	Subscribe(ctx context.Context, channel string, fn func(msg []byte)) error
}
