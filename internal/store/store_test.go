package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type mockClock struct {
	mu   sync.Mutex
	time time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), "", 0)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// =============================================================================
// Tests: RedisStore
// =============================================================================

func TestRedisStore_ListKeys(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.Set("price_data:EUR_USD:1", "{}")
	mr.Set("price_data:EUR_USD:2", "{}")
	mr.Set("price_data:USD_JPY:1", "{}")
	mr.Set("other:EUR_USD:1", "{}")

	keys, err := s.ListKeys(context.Background(), "price_data:*:*")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	sort.Strings(keys)
	want := []string{"price_data:EUR_USD:1", "price_data:EUR_USD:2", "price_data:USD_JPY:1"}
	if !slices.Equal(keys, want) {
		t.Errorf("ListKeys = %v, want %v", keys, want)
	}
}

func TestRedisStore_GetMissing(t *testing.T) {
	s, _ := newTestRedis(t)
	v, ok, err := s.Get(context.Background(), "price_data:EUR_USD:1")
	if err != nil || ok || v != nil {
		t.Errorf("Get missing = %q, %v, %v", v, ok, err)
	}
}

func TestRedisStore_SetTTL(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	if err := s.Set(ctx, "price_data:EUR_USD:1", []byte(`{"bid":1}`), 5*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "price_data:EUR_USD:1")
	if err != nil || !ok || string(v) != `{"bid":1}` {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	mr.FastForward(6 * time.Second)
	if _, ok, _ := s.Get(ctx, "price_data:EUR_USD:1"); ok {
		t.Error("key survived its TTL")
	}
}

func TestRedisStore_PingUnreachable(t *testing.T) {
	s, mr := newTestRedis(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Ping(ctx); err == nil {
		t.Error("Ping succeeded against a closed server")
	}
	if _, err := s.ListKeys(ctx, "*"); err == nil {
		t.Error("ListKeys succeeded against a closed server")
	}
}

// =============================================================================
// Tests: MemoryStore
// =============================================================================

func TestMemoryStore_ListKeysGlob(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	for _, k := range []string{"price_data:B:1", "price_data:A:2", "price_data:A", "x:A:1"} {
		if err := s.Set(ctx, k, []byte("{}"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	keys, err := s.ListKeys(ctx, "price_data:*:*")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []string{"price_data:A:2", "price_data:B:1"}
	if !slices.Equal(keys, want) {
		t.Errorf("ListKeys = %v, want %v", keys, want)
	}

	if _, err := s.ListKeys(ctx, "price_data:[*"); err == nil {
		t.Error("expected error for malformed glob")
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	clock := &mockClock{time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(clock)
	ctx := context.Background()

	s.Set(ctx, "k:1", []byte("a"), 5*time.Second)
	s.Set(ctx, "k:2", []byte("b"), 0)

	clock.Advance(4 * time.Second)
	if _, ok, _ := s.Get(ctx, "k:1"); !ok {
		t.Error("k:1 expired early")
	}

	clock.Advance(time.Second)
	if _, ok, _ := s.Get(ctx, "k:1"); ok {
		t.Error("k:1 still present at TTL")
	}
	keys, _ := s.ListKeys(ctx, "k:*")
	if !slices.Equal(keys, []string{"k:2"}) {
		t.Errorf("ListKeys = %v", keys)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	buf := []byte("abc")
	s.Set(ctx, "k", buf, 0)
	buf[0] = 'z'

	v, _, _ := s.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", v)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.ListKeys(ctx, "*"); !errors.Is(err, context.Canceled) {
		t.Errorf("ListKeys error = %v", err)
	}
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get error = %v", err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{BackendMemory, false},
		{BackendRedis, false},
		{"", false},
		{"etcd", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(Options{Backend: tt.backend, Addr: "localhost:0"})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			s.Close()
		})
	}
}
