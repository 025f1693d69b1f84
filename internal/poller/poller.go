// Package poller drives the engine's poll cycles on a fixed interval, backs
// off while the store is failing and feeds the ingest rate tracker.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/go-flexgraph/internal/engine"
	"github.com/randomizedcoder/go-flexgraph/internal/timeseries"
)

// Target is the engine surface the poller needs.
type Target interface {
	PollOnce(ctx context.Context) error
	SyncKnown() ([]string, bool)
	Stats() engine.Stats
}

// Callbacks contains optional callback functions for poller events.
type Callbacks struct {
	// OnStateChange is called when the loop state changes.
	OnStateChange func(oldState, newState State)

	// OnRates is called after every rate sample.
	OnRates func(timeseries.RateStats)

	// OnSeriesChange is called after a poll that changed the set of known
	// series, with the new set.
	OnSeriesChange func(ids []string)
}

// Config holds configuration for creating a new Poller.
type Config struct {
	Target   Target
	Interval time.Duration

	// Backoff spaces out polls while the store fails (default:
	// DefaultBackoffConfig with the interval as its floor).
	Backoff *Backoff
	Rates    *timeseries.RateTracker
	Logger   *slog.Logger

	// SampleInterval is how often Rates is sampled (default: 1s).
	SampleInterval time.Duration

	Callbacks Callbacks
}

// Poller runs PollOnce until its context is cancelled.
type Poller struct {
	target         Target
	interval       time.Duration
	sampleInterval time.Duration
	backoff        *Backoff
	rates          *timeseries.RateTracker
	logger         *slog.Logger
	callbacks      Callbacks

	stateMu sync.RWMutex
	state   State

	// Only touched by the Run goroutine.
	lastIngested int64
}

// New creates a new Poller with the given configuration.
func New(cfg Config) (*Poller, error) {
	if cfg.Target == nil {
		return nil, errors.New("poller: target is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be positive")
	}

	backoff := cfg.Backoff
	if backoff == nil {
		bc := DefaultBackoffConfig()
		bc.Floor = cfg.Interval
		backoff = NewBackoffFromTime(bc)
	}
	rates := cfg.Rates
	if rates == nil {
		rates = timeseries.NewRateTracker()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sampleInterval := cfg.SampleInterval
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}

	return &Poller{
		target:         cfg.Target,
		interval:       cfg.Interval,
		sampleInterval: sampleInterval,
		backoff:        backoff,
		rates:          rates,
		logger:         logger,
		callbacks:      cfg.Callbacks,
		state:          StateIdle,
	}, nil
}

// Run polls immediately and then every interval. It blocks until the context
// is cancelled and returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Debug("poller_starting", "interval", p.interval.String())
	p.lastIngested = p.target.Stats().Ingested

	sample := time.NewTicker(p.sampleInterval)
	defer sample.Stop()

	next := time.NewTimer(0)
	defer next.Stop()

	for {
		select {
		case <-ctx.Done():
			p.setState(StateStopped)
			p.logger.Debug("poller_stopped", "reason", "context_cancelled")
			return ctx.Err()

		case <-sample.C:
			p.rates.Sample()
			if p.callbacks.OnRates != nil {
				p.callbacks.OnRates(p.rates.GetStats())
			}

		case <-next.C:
			delay, ok := p.poll(ctx)
			if !ok {
				continue
			}
			next.Reset(delay)
		}
	}
}

// poll runs one cycle and returns the delay before the next one. ok is false
// when the context was cancelled mid-poll.
func (p *Poller) poll(ctx context.Context) (time.Duration, bool) {
	p.setState(StatePolling)
	err := p.target.PollOnce(ctx)
	if ctx.Err() != nil {
		return 0, false
	}

	ingested := p.target.Stats().Ingested
	p.rates.Add(ingested - p.lastIngested)
	p.lastIngested = ingested

	// A failed poll may still have ingested keys before the store error.
	if ids, changed := p.target.SyncKnown(); changed {
		p.logger.Debug("series_changed", "count", len(ids))
		if p.callbacks.OnSeriesChange != nil {
			p.callbacks.OnSeriesChange(ids)
		}
	}

	if err != nil {
		delay := p.backoff.Fail(err, time.Now())
		p.logger.Warn("poll_failed",
			"error", err,
			"attempt", p.backoff.Outage().Failures,
			"retry_in", delay.String(),
		)
		p.setState(StateBackoff)
		return delay, true
	}

	if o := p.backoff.Recover(); o.Active() {
		p.logger.Info("poll_recovered",
			"failed_attempts", o.Failures,
			"outage", time.Since(o.Since).Round(time.Millisecond).String(),
		)
	}
	p.setState(StateIdle)
	return p.interval, true
}

// State returns the current loop state.
func (p *Poller) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// Outage returns the current run of failed polls; it is inactive while the
// store answers.
func (p *Poller) Outage() Outage {
	return p.backoff.Outage()
}

// Rates returns the ingest rate tracker.
func (p *Poller) Rates() *timeseries.RateTracker {
	return p.rates
}

func (p *Poller) setState(s State) {
	p.stateMu.Lock()
	old := p.state
	p.state = s
	p.stateMu.Unlock()

	if old != s && p.callbacks.OnStateChange != nil {
		p.callbacks.OnStateChange(old, s)
	}
}
