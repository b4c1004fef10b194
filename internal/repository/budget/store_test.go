package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/shopfinder/internal/db"
)

type mockCounters struct {
	getFn  func(ctx context.Context, key string) (int64, error)
	incrFn func(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

func (m *mockCounters) GetInt64(ctx context.Context, key string) (int64, error) {
	return m.getFn(ctx, key)
}

func (m *mockCounters) IncrByWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error) {
	return m.incrFn(ctx, key, val, ttl)
}

func TestIncrBy_RetentionByPeriod(t *testing.T) {
	tests := []struct {
		key  string
		want time.Duration
	}{
		{"sf:tokens:openai:daily:2026-03-14", 48 * time.Hour},
		{"sf:tokens:openai:monthly:2026-03", 62 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var gotTTL time.Duration
			kv := &mockCounters{
				incrFn: func(_ context.Context, key string, val int64, ttl time.Duration) (int64, error) {
					if key != tt.key || val != 7 {
						t.Errorf("incr %s by %d", key, val)
					}
					gotTTL = ttl
					return val, nil
				},
			}
			if err := New(kv, 0, 0).IncrBy(context.Background(), tt.key, 7); err != nil {
				t.Fatalf("IncrBy: %v", err)
			}
			if gotTTL != tt.want {
				t.Errorf("ttl = %v, want %v", gotTTL, tt.want)
			}
		})
	}
}

func TestIncrBy_CustomRetention(t *testing.T) {
	var gotTTL time.Duration
	kv := &mockCounters{
		incrFn: func(_ context.Context, _ string, val int64, ttl time.Duration) (int64, error) {
			gotTTL = ttl
			return val, nil
		},
	}
	if err := New(kv, 26*time.Hour, 0).IncrBy(context.Background(), "p:tokens:x:daily:2026-01-01", 1); err != nil {
		t.Fatal(err)
	}
	if gotTTL != 26*time.Hour {
		t.Errorf("ttl = %v, want 26h", gotTTL)
	}
}

func TestIncrBy_Error(t *testing.T) {
	boom := errors.New("boom")
	kv := &mockCounters{
		incrFn: func(context.Context, string, int64, time.Duration) (int64, error) { return 0, boom },
	}
	if err := New(kv, time.Hour, time.Hour).IncrBy(context.Background(), "k", 1); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		val     int64
		err     error
		want    int64
		wantErr bool
	}{
		{"value", 1234, nil, 1234, false},
		{"missing", 0, db.ErrKeyNotFound, 0, false},
		{"transport", 0, &db.Error{Op: db.OpGet, Err: errors.New("down")}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := &mockCounters{getFn: func(context.Context, string) (int64, error) { return tt.val, tt.err }}
			got, err := New(kv, time.Hour, time.Hour).Get(context.Background(), "k")
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("Get = %d, %v", got, err)
			}
		})
	}
}
