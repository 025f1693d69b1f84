package poller

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffConfig shapes the wait after failed polls.
type BackoffConfig struct {
	Initial    time.Duration // Wait after the first failed poll (default: 250ms)
	Max        time.Duration // Longest wait (default: 5s)
	Multiplier float64       // Growth per consecutive failure (default: 1.7)
	JitterPct  float64       // Width of the jitter band as a fraction of the wait (default: 0.4 = ±20%)

	// Floor is the shortest wait returned. A failing store is never polled
	// more often than a healthy one; the poller sets it to its interval.
	Floor time.Duration
}

// DefaultBackoffConfig returns the retry policy used when none is given.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.4,
	}
}

// Outage is a run of consecutive failed polls.
type Outage struct {
	Failures int
	Since    time.Time // first failure of the run
	LastErr  error
}

// Active reports whether the most recent poll failed.
func (o Outage) Active() bool {
	return o.Failures > 0
}

// Backoff tracks the current outage and spaces out the polls made during
// it. The poll loop records results; readiness checks read Outage from other
// goroutines.
type Backoff struct {
	config BackoffConfig

	mu     sync.Mutex
	rng    *rand.Rand
	outage Outage
}

// NewBackoff creates a Backoff whose jitter is drawn from seed.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// NewBackoffFromTime creates a Backoff seeded from the current time.
func NewBackoffFromTime(cfg BackoffConfig) *Backoff {
	return NewBackoff(time.Now().UnixNano(), cfg)
}

// Fail records a poll that failed at now and returns the wait before the
// next poll.
func (b *Backoff) Fail(err error, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.outage.Failures == 0 {
		b.outage.Since = now
	}
	wait := b.wait(b.outage.Failures)
	b.outage.Failures++
	b.outage.LastErr = err
	return wait
}

// Recover ends the current outage and returns it. The result is inactive
// when the previous poll had succeeded too.
func (b *Backoff) Recover() Outage {
	b.mu.Lock()
	defer b.mu.Unlock()

	o := b.outage
	b.outage = Outage{}
	return o
}

// Outage returns the current run of failures.
func (b *Backoff) Outage() Outage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outage
}

// Wait returns the wait after the given number of earlier failures in an
// outage, without recording anything.
func (b *Backoff) Wait(failures int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wait(failures)
}

func (b *Backoff) wait(failures int) time.Duration {
	d := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(failures))
	d = min(d, float64(b.config.Max))

	if b.config.JitterPct > 0 {
		band := d * b.config.JitterPct
		d += band*b.rng.Float64() - band/2
	}

	return time.Duration(max(d, float64(b.config.Floor), 0))
}
