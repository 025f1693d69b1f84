// Package timeseries tracks event rates over rolling windows.
//
// The poller counts ingested points here; the dashboard header and the
// flexgraph_ingest_points_per_second gauge read the windowed rates.
//
// Add is lock-free; Sample and GetStats take the ring buffer lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	window1s   = 1 * time.Second
	window30s  = 30 * time.Second
	window60s  = 60 * time.Second
	window300s = 300 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is the cumulative count at an instant.
type sample struct {
	at    time.Time
	count int64
}

// RateTracker counts events and reports per-second rates.
//
//	tracker := NewRateTracker()
//	tracker.Add(n)        // after each poll
//	tracker.Sample()      // once a second
//	stats := tracker.GetStats()
type RateTracker struct {
	total atomic.Int64

	mu       sync.RWMutex
	samples  []sample // ring buffer, chronological from writeIdx when full
	writeIdx int
	start    time.Time

	clock Clock
}

// RateStats holds rates in events per second.
type RateStats struct {
	Total   int64
	Instant float64 // last second
	Avg30s  float64
	Avg60s  float64
	Avg300s float64
	Overall float64
}

// NewRateTracker creates a tracker on wall time.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples: make([]sample, 0, ringBufferSize),
		start:   now,
		clock:   clock,
	}
	t.samples = append(t.samples, sample{at: now})
	return t
}

// Add counts n events. Non-positive values are ignored.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// Sample records the running total. Call about once a second.
func (t *RateTracker) Sample() {
	s := sample{at: t.clock.Now(), count: t.total.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// GetStats computes the windowed rates. Windows longer than the recorded
// history use the oldest sample.
func (t *RateTracker) GetStats() RateStats {
	now := t.clock.Now()
	total := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{Total: total}
	if elapsed := now.Sub(t.start).Seconds(); elapsed > 0 {
		stats.Overall = float64(total) / elapsed
	}
	stats.Instant = t.rate(now, total, window1s)
	stats.Avg30s = t.rate(now, total, window30s)
	stats.Avg60s = t.rate(now, total, window60s)
	stats.Avg300s = t.rate(now, total, window300s)
	return stats
}

// rate uses the newest sample at or before now-window as the baseline.
// Must be called with mu held.
func (t *RateTracker) rate(now time.Time, total int64, window time.Duration) float64 {
	n := len(t.samples)
	if n == 0 {
		return 0
	}

	cutoff := now.Add(-window)
	base := t.at(0)
	for i := 0; i < n; i++ {
		s := t.at(i)
		if s.at.After(cutoff) {
			break
		}
		base = s
	}

	elapsed := now.Sub(base.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-base.count) / elapsed
}

// at returns the i-th oldest sample. Must be called with mu held.
func (t *RateTracker) at(i int) sample {
	if len(t.samples) < ringBufferSize {
		return t.samples[i]
	}
	return t.samples[(t.writeIdx+i)%ringBufferSize]
}

// Reset clears all data and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Store(0)
	t.samples = append(t.samples[:0], sample{at: now})
	t.writeIdx = 0
	t.start = now
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
