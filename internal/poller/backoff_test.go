package poller

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

// =============================================================================
// Table-Driven Tests: DefaultBackoffConfig
// =============================================================================

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()

	if cfg.Initial != 250*time.Millisecond {
		t.Errorf("Initial = %v, want 250ms", cfg.Initial)
	}
	if cfg.Max != 5*time.Second {
		t.Errorf("Max = %v, want 5s", cfg.Max)
	}
	if cfg.Multiplier != 1.7 {
		t.Errorf("Multiplier = %v, want 1.7", cfg.Multiplier)
	}
	if cfg.JitterPct != 0.4 {
		t.Errorf("JitterPct = %v, want 0.4", cfg.JitterPct)
	}
	if cfg.Floor != 0 {
		t.Errorf("Floor = %v, want 0", cfg.Floor)
	}
}

// =============================================================================
// Table-Driven Tests: Backoff.Wait (no jitter)
// =============================================================================

func TestBackoff_Wait_NoJitter(t *testing.T) {
	tests := []struct {
		name     string
		floor    time.Duration
		failures int
		want     time.Duration
	}{
		{"first failure", 0, 0, 100 * time.Millisecond},
		{"second failure", 0, 1, 200 * time.Millisecond},
		{"third failure", 0, 2, 400 * time.Millisecond},
		{"capped", 0, 4, 1 * time.Second},
		{"long outage capped", 0, 100, 1 * time.Second},
		{"floor above growth", 300 * time.Millisecond, 0, 300 * time.Millisecond},
		{"growth above floor", 300 * time.Millisecond, 2, 400 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(1, BackoffConfig{
				Initial:    100 * time.Millisecond,
				Max:        time.Second,
				Multiplier: 2,
				Floor:      tt.floor,
			})
			if got := b.Wait(tt.failures); got != tt.want {
				t.Errorf("Wait(%d) = %v, want %v", tt.failures, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: outage tracking
// =============================================================================

func TestBackoff_FailAndRecover(t *testing.T) {
	b := NewBackoff(1, BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2})
	refused := errors.New("connection refused")
	reset := errors.New("connection reset")

	if b.Outage().Active() {
		t.Fatal("new backoff reports an outage")
	}

	if d := b.Fail(refused, t0); d != 100*time.Millisecond {
		t.Errorf("Fail #1 = %v, want 100ms", d)
	}
	if d := b.Fail(reset, t0.Add(time.Second)); d != 200*time.Millisecond {
		t.Errorf("Fail #2 = %v, want 200ms", d)
	}

	o := b.Outage()
	if !o.Active() || o.Failures != 2 || !o.Since.Equal(t0) || !errors.Is(o.LastErr, reset) {
		t.Errorf("Outage = %+v, want 2 failures since t0 ending with reset", o)
	}

	ended := b.Recover()
	if ended.Failures != 2 || !ended.Since.Equal(t0) {
		t.Errorf("Recover = %+v", ended)
	}
	if b.Outage().Active() {
		t.Error("outage still active after Recover")
	}
	if again := b.Recover(); again.Active() {
		t.Errorf("second Recover = %+v, want inactive", again)
	}

	// A new outage starts from the first wait again.
	if d := b.Fail(refused, t0.Add(time.Minute)); d != 100*time.Millisecond {
		t.Errorf("Fail after recovery = %v, want 100ms", d)
	}
	if o := b.Outage(); !o.Since.Equal(t0.Add(time.Minute)) {
		t.Errorf("new outage Since = %v", o.Since)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := NewBackoff(42, BackoffConfig{Initial: time.Second, Max: time.Second, Multiplier: 1, JitterPct: 0.4})

	for i := 0; i < 200; i++ {
		d := b.Fail(errors.New("down"), t0)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("wait %v outside ±20%% of 1s", d)
		}
	}
}

func TestBackoff_DeterministicJitter(t *testing.T) {
	cfg := DefaultBackoffConfig()
	b1 := NewBackoff(7, cfg)
	b2 := NewBackoff(7, cfg)

	for i := 0; i < 10; i++ {
		if d1, d2 := b1.Fail(nil, t0), b2.Fail(nil, t0); d1 != d2 {
			t.Fatalf("failure %d: %v != %v with the same seed", i, d1, d2)
		}
	}
}

func TestBackoff_ZeroInitial(t *testing.T) {
	b := NewBackoff(1, BackoffConfig{Max: time.Second, Multiplier: 2, JitterPct: 0.4})
	if d := b.Wait(0); d != 0 {
		t.Errorf("Wait(0) with zero initial = %v, want 0", d)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state   State
		want    string
		healthy bool
	}{
		{StateIdle, "idle", true},
		{StatePolling, "polling", true},
		{StateBackoff, "backoff", false},
		{StateStopped, "stopped", false},
		{State(99), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.state.Healthy(); got != tt.healthy {
				t.Errorf("Healthy() = %v, want %v", got, tt.healthy)
			}
		})
	}
}
