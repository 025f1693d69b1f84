package logging

import (
	"sync"
	"time"
)

// MaxRejects is the number of rejected records kept for display.
const MaxRejects = 100

// Reject is one record the engine marked seen without storing.
type Reject struct {
	At     time.Time
	Key    string
	Reason string
	Error  string
}

// RejectLog keeps the most recent rejects for the dashboard and exit
// summary. The engine logs each reject itself; this only buffers them.
type RejectLog struct {
	mu      sync.Mutex
	buffer  []Reject
	bufIdx  int
	total   int
	reasons map[string]int
	now     func() time.Time
}

// NewRejectLog creates an empty reject log.
func NewRejectLog() *RejectLog {
	return &RejectLog{
		buffer:  make([]Reject, MaxRejects),
		reasons: make(map[string]int),
		now:     time.Now,
	}
}

// Record stores a reject. It satisfies engine.RejectSink.
func (l *RejectLog) Record(key, reason string, err error) {
	r := Reject{Key: key, Reason: reason}
	if err != nil {
		r.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r.At = l.now()
	l.buffer[l.bufIdx] = r
	l.bufIdx = (l.bufIdx + 1) % MaxRejects
	l.total++
	l.reasons[reason]++
}

// Recent returns up to n rejects, oldest first.
func (l *RejectLog) Recent(n int) []Reject {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > MaxRejects {
		n = MaxRejects
	}
	if n > l.total {
		n = l.total
	}

	out := make([]Reject, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.bufIdx - n + i + MaxRejects) % MaxRejects
		out = append(out, l.buffer[idx])
	}
	return out
}

// Total returns the number of rejects ever recorded.
func (l *RejectLog) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// CountByReason returns lifetime counts per reason.
func (l *RejectLog) CountByReason() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		counts[k] = v
	}
	return counts
}
