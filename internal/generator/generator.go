package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-flexgraph/internal/store"
)

// DefaultPrefix matches the default key pattern price_data:*:*.
const DefaultPrefix = "price_data:"

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds configuration for creating a new Producer.
type Config struct {
	Writer      store.Writer
	Prefix      string
	Instruments []string
	Interval    time.Duration // Live write interval (default: 200ms)
	TTL         time.Duration // Record expiry, 0 = none (default: 5s via flags)
	Seed        int64
	Logger      *slog.Logger
	Clock       Clock
}

// Producer writes one record per instrument every interval under
// prefix + instrument + ":" + epochMillis.
type Producer struct {
	writer   store.Writer
	prefix   string
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger
	clock    Clock

	instruments []*Instrument
	lastMillis  map[string]int64
	written     atomic.Int64
}

// New creates a new Producer.
func New(cfg Config) (*Producer, error) {
	if cfg.Writer == nil {
		return nil, errors.New("generator: writer is required")
	}
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("generator: at least one instrument is required")
	}

	p := &Producer{
		writer:     cfg.Writer,
		prefix:     cfg.Prefix,
		interval:   cfg.Interval,
		ttl:        cfg.TTL,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		lastMillis: make(map[string]int64, len(cfg.Instruments)),
	}
	if p.prefix == "" {
		p.prefix = DefaultPrefix
	}
	if p.interval <= 0 {
		p.interval = 200 * time.Millisecond
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.clock == nil {
		p.clock = realClock{}
	}
	for _, name := range cfg.Instruments {
		p.instruments = append(p.instruments, NewInstrument(name, cfg.Seed))
	}
	return p, nil
}

// Backfill writes n historical ticks per instrument, spaced by the interval
// and ending just before now.
func (p *Producer) Backfill(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	now := p.clock.Now()
	for i := 0; i < n; i++ {
		at := now.Add(-time.Duration(n-i) * p.interval)
		if err := p.writeAll(ctx, at); err != nil {
			return err
		}
	}
	p.logger.Info("demo_backfilled", "points", n, "instruments", len(p.instruments))
	return nil
}

// Tick writes one record per instrument stamped with the current time.
func (p *Producer) Tick(ctx context.Context) error {
	return p.writeAll(ctx, p.clock.Now())
}

// Run writes a tick every interval until the context is cancelled. Write
// failures are logged and do not stop the loop.
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("demo_producer_started",
		"instruments", len(p.instruments),
		"interval", p.interval.String(),
		"ttl", p.ttl.String(),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("demo_producer_stopped", "written", p.written.Load())
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("demo_write_failed", "error", err)
			}
		}
	}
}

// Written returns the number of records written.
func (p *Producer) Written() int64 {
	return p.written.Load()
}

func (p *Producer) writeAll(ctx context.Context, at time.Time) error {
	for _, in := range p.instruments {
		tick := in.Next(at)
		value, err := tick.Payload()
		if err != nil {
			return fmt.Errorf("encode %s: %w", in.Name, err)
		}

		key := p.key(in.Name, at)
		if err := p.writer.Set(ctx, key, value, p.ttl); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		p.written.Add(1)

		if tick.Signal != "" {
			p.logger.Debug("demo_signal", "instrument", in.Name, "signal", tick.Signal, "price", tick.Price)
		}
	}
	return nil
}

// key returns a key whose millisecond suffix strictly increases per
// instrument, so two ticks never overwrite each other.
func (p *Producer) key(name string, at time.Time) string {
	ms := at.UnixMilli()
	if last, ok := p.lastMillis[name]; ok && ms <= last {
		ms = last + 1
	}
	p.lastMillis[name] = ms
	return p.prefix + name + ":" + strconv.FormatInt(ms, 10)
}
