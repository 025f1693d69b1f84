// Package engine is the live series cache. It polls a key-value store for
// records matching a key pattern, ingests each key once, keeps a bounded
// history per series and serves windowed snapshots.
//
// A single coarse mutex guards all state. Store I/O happens outside it, and
// readers copy under it and filter outside it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/go-flexgraph/internal/keypattern"
	"github.com/randomizedcoder/go-flexgraph/internal/normalize"
	"github.com/randomizedcoder/go-flexgraph/internal/series"
	"github.com/randomizedcoder/go-flexgraph/internal/store"
)

// ErrStore wraps failures talking to the store. A poll that returns it has
// been abandoned; already ingested points stay.
var ErrStore = errors.New("store unavailable")

// Reject reasons passed to RejectSink and Recorder.
const (
	ReasonMalformedKey = "malformed_key"
	ReasonDecode       = "decode"
	ReasonTimestamp    = "timestamp"
	ReasonUntimed      = "untimed"
	ReasonOther        = "other"
)

// RejectSink receives records that were marked seen without being stored.
type RejectSink interface {
	Record(key, reason string, err error)
}

// Config holds configuration for creating a new Engine.
type Config struct {
	Reader    store.Reader
	Pattern   string
	MaxPoints int // 0 = series.DefaultMaxPoints

	// DropUntimed rejects records without a usable timestamp instead of
	// storing them ahead of every timed point.
	DropUntimed bool

	Logger   *slog.Logger
	Recorder Recorder   // optional
	Rejects  RejectSink // optional
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Pattern    string
	Series     int
	Points     int
	SeenKeys   int
	Generation uint64

	Polls       int64
	PollErrors  int64
	Ingested    int64
	Rejected    int64
	Expired     int64
	Trimmed     int64
	LastPollAt  time.Time
	LastPollDur time.Duration
}

// Engine owns the pattern, the seen-key set, the per-series histories and
// the known-series registry.
type Engine struct {
	reader      store.Reader
	logger      *slog.Logger
	recorder    Recorder
	rejects     RejectSink
	maxPoints   int
	dropUntimed bool
	now         func() time.Time

	mu         sync.Mutex
	pattern    keypattern.Pattern
	seen       map[string]struct{}
	histories  map[string]*series.History
	known      map[string]struct{}
	generation uint64
	counters   Stats
}

// New creates an engine. The pattern is validated up front.
func New(cfg Config) (*Engine, error) {
	if cfg.Reader == nil {
		return nil, errors.New("engine: nil store reader")
	}
	p, err := keypattern.Parse(cfg.Pattern)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	maxPoints := cfg.MaxPoints
	if maxPoints <= 0 {
		maxPoints = series.DefaultMaxPoints
	}

	return &Engine{
		reader:      cfg.Reader,
		logger:      logger,
		recorder:    recorder,
		rejects:     cfg.Rejects,
		maxPoints:   maxPoints,
		dropUntimed: cfg.DropUntimed,
		now:         time.Now,
		pattern:     p,
		seen:        make(map[string]struct{}),
		histories:   make(map[string]*series.History),
		known:       make(map[string]struct{}),
	}, nil
}

// Pattern returns the active key pattern.
func (e *Engine) Pattern() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pattern.String()
}

// MaxPoints returns the per-series cap.
func (e *Engine) MaxPoints() int {
	return e.maxPoints
}

// PollOnce lists the keys matching the active pattern and ingests every key
// not seen before. Record-level failures are recorded and skipped; a store
// failure abandons the rest of the cycle. A reconfiguration that lands while
// the poll is running discards whatever the poll has not applied yet.
func (e *Engine) PollOnce(ctx context.Context) error {
	start := e.now()

	e.mu.Lock()
	p := e.pattern
	gen := e.generation
	e.mu.Unlock()

	keys, err := e.reader.ListKeys(ctx, p.String())
	if err != nil {
		return e.finishPoll(start, fmt.Errorf("%w: list %q: %w", ErrStore, p.String(), err))
	}

	// SCAN may report a key more than once per listing.
	e.mu.Lock()
	pending := make([]string, 0, len(keys))
	listed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := listed[k]; dup {
			continue
		}
		listed[k] = struct{}{}
		if _, ok := e.seen[k]; !ok {
			pending = append(pending, k)
		}
	}
	e.mu.Unlock()

	for _, key := range pending {
		raw, ok, err := e.reader.Get(ctx, key)
		if err != nil {
			return e.finishPoll(start, fmt.Errorf("%w: get %q: %w", ErrStore, key, err))
		}

		var (
			dp     series.DataPoint
			reason string
			recErr error
		)
		if ok && len(raw) > 0 {
			dp, reason, recErr = e.prepare(p, key, raw)
		}

		if !e.apply(gen, key, ok && len(raw) > 0, dp, reason, recErr) {
			e.logger.Debug("poll_discarded", "reason", "reconfigured", "pattern", p.String())
			break
		}
	}

	return e.finishPoll(start, nil)
}

// prepare resolves and normalizes one record outside the lock.
func (e *Engine) prepare(p keypattern.Pattern, key string, raw []byte) (series.DataPoint, string, error) {
	id, err := p.Resolve(key)
	if err != nil {
		return series.DataPoint{}, ReasonMalformedKey, err
	}
	dp, err := normalize.Normalize(key, raw)
	if err != nil {
		return series.DataPoint{}, rejectReason(err), err
	}
	if e.dropUntimed && !dp.HasTimestamp {
		return series.DataPoint{}, ReasonUntimed, errors.New("no usable timestamp")
	}
	dp.SeriesID = id
	return dp, "", nil
}

// apply commits one record under the lock. Returns false when the
// generation moved and the poll must stop.
func (e *Engine) apply(gen uint64, key string, present bool, dp series.DataPoint, reason string, recErr error) bool {
	var (
		dropped int
		created bool
	)

	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return false
	}
	if _, dup := e.seen[key]; dup {
		e.mu.Unlock()
		return true
	}
	e.seen[key] = struct{}{}

	switch {
	case !present:
		e.counters.Expired++
	case recErr != nil:
		e.counters.Rejected++
	default:
		h, ok := e.histories[dp.SeriesID]
		if !ok {
			h = series.NewHistory(e.maxPoints)
			e.histories[dp.SeriesID] = h
			created = true
		}
		dropped = h.Append(dp)
		e.counters.Ingested++
		e.counters.Trimmed += int64(dropped)
	}
	seriesCount := len(e.histories)
	e.mu.Unlock()

	switch {
	case !present:
		e.recorder.RecordExpired()
	case recErr != nil:
		e.reject(key, reason, recErr)
	default:
		e.recorder.RecordIngested(dp.SeriesID)
		if dropped > 0 {
			e.recorder.RecordTrimmed(dp.SeriesID, dropped)
		}
		if created {
			e.logger.Info("series_created", "series", dp.SeriesID)
			e.recorder.SetSeriesCount(seriesCount)
		}
	}
	return true
}

func (e *Engine) reject(key, reason string, err error) {
	e.logger.Warn("record_rejected", "key", key, "reason", reason, "error", err)
	e.recorder.RecordRejected(reason)
	if e.rejects != nil {
		e.rejects.Record(key, reason, err)
	}
}

func (e *Engine) finishPoll(start time.Time, err error) error {
	d := e.now().Sub(start)

	e.mu.Lock()
	e.counters.Polls++
	if err != nil {
		e.counters.PollErrors++
	}
	e.counters.LastPollAt = start
	e.counters.LastPollDur = d
	e.mu.Unlock()

	e.recorder.RecordPoll(d, err)
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, normalize.ErrTimestampParse):
		return ReasonTimestamp
	case errors.Is(err, normalize.ErrDecode):
		return ReasonDecode
	default:
		return ReasonOther
	}
}

// Snapshot returns every stored point of a series in (timestamp, sequence)
// order. Unknown series yield an empty slice.
func (e *Engine) Snapshot(seriesID string) []series.DataPoint {
	e.mu.Lock()
	h, ok := e.histories[seriesID]
	if !ok {
		e.mu.Unlock()
		return []series.DataPoint{}
	}
	points := h.Copy()
	e.mu.Unlock()

	series.Sort(points)
	return points
}

// Read returns the windowed view of a series for q.
func (e *Engine) Read(seriesID string, q series.Query) []series.DataPoint {
	return series.ApplyWindow(e.Snapshot(seriesID), q)
}

// PauseReference returns the newest usable timestamp of a series. A view
// pauses at this instant.
func (e *Engine) PauseReference(seriesID string) (time.Time, bool) {
	e.mu.Lock()
	h, ok := e.histories[seriesID]
	if !ok {
		e.mu.Unlock()
		return time.Time{}, false
	}
	points := h.Copy()
	e.mu.Unlock()

	return series.Latest(points)
}

// SeriesIDs returns the identifiers of all series with a history, sorted.
func (e *Engine) SeriesIDs() []string {
	e.mu.Lock()
	ids := make([]string, 0, len(e.histories))
	for id := range e.histories {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// KnownSeries polls once and returns the current series list. The poll
// error, if any, is returned alongside the list of what is already cached.
func (e *Engine) KnownSeries(ctx context.Context) ([]string, error) {
	err := e.PollOnce(ctx)
	return e.SeriesIDs(), err
}

// HasChangedSince reports whether the current series set differs from prior.
// Order and duplicates in prior are ignored.
func (e *Engine) HasChangedSince(prior []string) bool {
	return !sameSet(e.SeriesIDs(), prior)
}

// SyncKnown compares the current series set with the registry's record,
// stores the current set and reports whether it changed.
func (e *Engine) SyncKnown() ([]string, bool) {
	ids := e.SeriesIDs()

	e.mu.Lock()
	defer e.mu.Unlock()

	changed := len(ids) != len(e.known)
	if !changed {
		for _, id := range ids {
			if _, ok := e.known[id]; !ok {
				changed = true
				break
			}
		}
	}
	if changed {
		e.known = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			e.known[id] = struct{}{}
		}
	}
	return ids, changed
}

// Reconfigure switches to a new key pattern. The pattern is validated first;
// on success the seen-key set, every history and the known-series set are
// dropped together.
func (e *Engine) Reconfigure(pattern string) error {
	p, err := keypattern.Parse(pattern)
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := e.pattern.String()
	e.pattern = p
	e.seen = make(map[string]struct{})
	e.histories = make(map[string]*series.History)
	e.known = make(map[string]struct{})
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	e.logger.Info("engine_reconfigured", "old_pattern", old, "pattern", p.String(), "generation", gen)
	e.recorder.RecordReconfigure()
	e.recorder.SetSeriesCount(0)
	return nil
}

// ClearAll drops all state while keeping the current pattern.
func (e *Engine) ClearAll() {
	// The active pattern is always valid.
	_ = e.Reconfigure(e.Pattern())
}

// ClearSeries drops one series and forgets the keys under its prefix so
// records still in the store are ingested again. Returns false when the
// series was not cached.
func (e *Engine) ClearSeries(seriesID string) bool {
	e.mu.Lock()
	_, existed := e.histories[seriesID]
	delete(e.histories, seriesID)

	prefix := e.pattern.SeriesPrefix(seriesID)
	forgotten := 0
	for k := range e.seen {
		if strings.HasPrefix(k, prefix) {
			delete(e.seen, k)
			forgotten++
		}
	}
	seriesCount := len(e.histories)
	e.mu.Unlock()

	e.logger.Info("series_cleared", "series", seriesID, "existed", existed, "keys_forgotten", forgotten)
	e.recorder.SetSeriesCount(seriesCount)
	return existed
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.counters
	s.Pattern = e.pattern.String()
	s.Series = len(e.histories)
	s.SeenKeys = len(e.seen)
	s.Generation = e.generation
	for _, h := range e.histories {
		s.Points += h.Len()
	}
	return s
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, s := range a {
		as[s] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, s := range b {
		bs[s] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}
