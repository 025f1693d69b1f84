// Package store provides access to the key-value feed the engine polls.
//
// Producers write short-lived records under keys such as
// price_data:EUR_USD:1718000000123; the engine lists them by glob and reads
// each one once.
package store

import (
	"context"
	"fmt"
	"time"
)

// Reader is the read side consumed by the engine.
type Reader interface {
	// ListKeys returns every live key matching a glob pattern.
	ListKeys(ctx context.Context, pattern string) ([]string, error)

	// Get fetches one value. A missing or expired key returns ok=false and
	// no error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
}

// Writer is the write side used by the demo producer.
type Writer interface {
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store is a full store connection.
type Store interface {
	Reader
	Writer
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options configures Open.
type Options struct {
	Backend  string
	Addr     string
	Password string
	DB       int
}

// Open creates the store selected by opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendRedis, "":
		return NewRedisStore(opts.Addr, opts.Password, opts.DB), nil
	case BackendMemory:
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
