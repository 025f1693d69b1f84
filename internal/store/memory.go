package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for TTL expiry.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type memEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// MemoryStore is an in-process store with per-key TTL. It backs offline demo
// runs and engine tests. Glob matching follows path.Match, which agrees with
// Redis MATCH for the '*' and '?' patterns the engine uses.
type MemoryStore struct {
	mu    sync.Mutex
	clock Clock
	data  map[string]memEntry
}

// NewMemoryStore creates an empty store. A nil clock uses wall time.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = realClock{}
	}
	return &MemoryStore{
		clock: clock,
		data:  make(map[string]memEntry),
	}
}

// ListKeys returns live keys matching pattern in lexical order. Expired keys
// are evicted on the way.
func (s *MemoryStore) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var keys []string
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns a copy of the value under key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(s.clock.Now()) {
		delete(s.data, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := memEntry{value: append([]byte(nil), value...)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		e.expires = s.clock.Now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Delete removes a key. Used by tests to simulate expiry between list and get.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len returns the number of stored keys, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}
