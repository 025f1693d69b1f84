// Package metrics provides Prometheus metrics for go-flexgraph.
//
// Metrics are organized into two tiers:
//   - Tier 1 (always enabled): engine-wide counters and gauges
//   - Tier 2 (optional, -prom-series-metrics): per-series counters, one label
//     value per series id
package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-flexgraph/internal/timeseries"
)

// =============================================================================
// Tier 1: Engine Metrics (Always Enabled)
// =============================================================================

// --- Overview ---
var (
	flexgraphInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flexgraph_info",
			Help: "Information about the running instance (value always 1)",
		},
		[]string{"version", "store"},
	)

	flexgraphSeries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flexgraph_series",
			Help: "Series currently cached",
		},
	)

	flexgraphReconfigurationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flexgraph_reconfigurations_total",
			Help: "Key pattern changes and clear-all operations",
		},
	)
)

// --- Polling ---
var (
	flexgraphPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexgraph_polls_total",
			Help: "Poll cycles by result (ok, error)",
		},
		[]string{"result"},
	)

	flexgraphPollDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flexgraph_poll_duration_seconds",
			Help:    "Time to list and ingest one poll cycle",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// --- Ingestion ---
var (
	flexgraphPointsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flexgraph_points_ingested_total",
			Help: "Points appended to a series history",
		},
	)

	flexgraphRecordsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexgraph_records_rejected_total",
			Help: "Records marked seen without being stored, by reason",
		},
		[]string{"reason"},
	)

	flexgraphRecordsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flexgraph_records_expired_total",
			Help: "Keys that vanished between listing and fetching",
		},
	)

	flexgraphPointsTrimmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flexgraph_points_trimmed_total",
			Help: "Points dropped to keep histories under the cap",
		},
	)

	flexgraphIngestRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flexgraph_ingest_points_per_second",
			Help: "Ingest rate averaged over a window (1s, 30s, 60s, 300s, overall)",
		},
		[]string{"window"},
	)
)

// --- Read surface ---
var (
	flexgraphStreamSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flexgraph_stream_sessions",
			Help: "Open WebSocket stream sessions",
		},
	)

	flexgraphHTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexgraph_http_requests_total",
			Help: "API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// =============================================================================
// Tier 2: Per-Series Metrics (Optional)
// =============================================================================

var (
	flexgraphSeriesPointsIngestedTotal *prometheus.CounterVec
	flexgraphSeriesPointsTrimmedTotal  *prometheus.CounterVec
)

// initPerSeriesMetrics initializes Tier 2 metrics.
// Only called when -prom-series-metrics is enabled.
func initPerSeriesMetrics(registry prometheus.Registerer) {
	flexgraphSeriesPointsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexgraph_series_points_ingested_total",
			Help: "Per-series points ingested (requires -prom-series-metrics)",
		},
		[]string{"series"},
	)

	flexgraphSeriesPointsTrimmedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexgraph_series_points_trimmed_total",
			Help: "Per-series points trimmed (requires -prom-series-metrics)",
		},
		[]string{"series"},
	)

	registry.MustRegister(flexgraphSeriesPointsIngestedTotal, flexgraphSeriesPointsTrimmedTotal)
}

// =============================================================================
// Collector
// =============================================================================

// Collector records engine and API events. It implements engine.Recorder.
type Collector struct {
	perSeriesEnabled bool
	startTime        time.Time

	mu               sync.Mutex
	polls            int64
	pollErrors       int64
	ingested         int64
	rejected         map[string]int64
	expired          int64
	trimmed          int64
	reconfigurations int64
	peakSeries       int
	pollDurations    []time.Duration

	// Track series label values for cleanup
	registeredSeries map[string]struct{}
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version          string
	StoreBackend     string
	PerSeriesMetrics bool
}

// maxPollSamples bounds the poll durations kept for the summary.
const maxPollSamples = 4096

// NewCollector creates a new metrics collector.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		perSeriesEnabled: cfg.PerSeriesMetrics,
		startTime:        time.Now(),
		rejected:         make(map[string]int64),
		pollDurations:    make([]time.Duration, 0, 256),
		registeredSeries: make(map[string]struct{}),
	}

	registry.MustRegister(
		flexgraphInfo,
		flexgraphSeries,
		flexgraphReconfigurationsTotal,
		flexgraphPollsTotal,
		flexgraphPollDurationSeconds,
		flexgraphPointsIngestedTotal,
		flexgraphRecordsRejectedTotal,
		flexgraphRecordsExpiredTotal,
		flexgraphPointsTrimmedTotal,
		flexgraphIngestRate,
		flexgraphStreamSessions,
		flexgraphHTTPRequestsTotal,
	)

	if cfg.PerSeriesMetrics {
		initPerSeriesMetrics(registry)
	}

	flexgraphInfo.WithLabelValues(cfg.Version, cfg.StoreBackend).Set(1)
	return c
}

// =============================================================================
// engine.Recorder
// =============================================================================

// RecordPoll records one poll cycle.
func (c *Collector) RecordPoll(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	flexgraphPollsTotal.WithLabelValues(result).Inc()
	flexgraphPollDurationSeconds.Observe(d.Seconds())

	c.mu.Lock()
	c.polls++
	if err != nil {
		c.pollErrors++
	}
	if len(c.pollDurations) < maxPollSamples {
		c.pollDurations = append(c.pollDurations, d)
	} else {
		c.pollDurations[c.polls%maxPollSamples] = d
	}
	c.mu.Unlock()
}

// RecordIngested records one stored point.
func (c *Collector) RecordIngested(seriesID string) {
	flexgraphPointsIngestedTotal.Inc()

	c.mu.Lock()
	c.ingested++
	if c.perSeriesEnabled {
		c.registeredSeries[seriesID] = struct{}{}
	}
	c.mu.Unlock()

	if c.perSeriesEnabled {
		flexgraphSeriesPointsIngestedTotal.WithLabelValues(seriesID).Inc()
	}
}

// RecordRejected records a rejected record.
func (c *Collector) RecordRejected(reason string) {
	flexgraphRecordsRejectedTotal.WithLabelValues(reason).Inc()

	c.mu.Lock()
	c.rejected[reason]++
	c.mu.Unlock()
}

// RecordExpired records a key that expired before it was read.
func (c *Collector) RecordExpired() {
	flexgraphRecordsExpiredTotal.Inc()

	c.mu.Lock()
	c.expired++
	c.mu.Unlock()
}

// RecordTrimmed records points dropped by the history cap.
func (c *Collector) RecordTrimmed(seriesID string, n int) {
	flexgraphPointsTrimmedTotal.Add(float64(n))

	c.mu.Lock()
	c.trimmed += int64(n)
	c.mu.Unlock()

	if c.perSeriesEnabled {
		flexgraphSeriesPointsTrimmedTotal.WithLabelValues(seriesID).Add(float64(n))
	}
}

// RecordReconfigure records a reconfiguration and drops per-series labels.
func (c *Collector) RecordReconfigure() {
	flexgraphReconfigurationsTotal.Inc()

	c.mu.Lock()
	c.reconfigurations++
	ids := make([]string, 0, len(c.registeredSeries))
	for id := range c.registeredSeries {
		ids = append(ids, id)
	}
	c.registeredSeries = make(map[string]struct{})
	c.mu.Unlock()

	for _, id := range ids {
		c.removeSeriesLabels(id)
	}
}

// SetSeriesCount updates the cached series gauge.
func (c *Collector) SetSeriesCount(n int) {
	flexgraphSeries.Set(float64(n))

	c.mu.Lock()
	if n > c.peakSeries {
		c.peakSeries = n
	}
	c.mu.Unlock()
}

// =============================================================================
// Other Event Recording Methods
// =============================================================================

// RecordIngestRates publishes the windowed ingest rates.
func (c *Collector) RecordIngestRates(s timeseries.RateStats) {
	flexgraphIngestRate.WithLabelValues("1s").Set(s.Instant)
	flexgraphIngestRate.WithLabelValues("30s").Set(s.Avg30s)
	flexgraphIngestRate.WithLabelValues("60s").Set(s.Avg60s)
	flexgraphIngestRate.WithLabelValues("300s").Set(s.Avg300s)
	flexgraphIngestRate.WithLabelValues("overall").Set(s.Overall)
}

// StreamOpened records a new WebSocket session.
func (c *Collector) StreamOpened() {
	flexgraphStreamSessions.Inc()
}

// StreamClosed records a finished WebSocket session.
func (c *Collector) StreamClosed() {
	flexgraphStreamSessions.Dec()
}

// RecordRequest records one API request.
func (c *Collector) RecordRequest(route string, code int) {
	flexgraphHTTPRequestsTotal.WithLabelValues(route, statusLabel(code)).Inc()
}

// RemoveSeries drops the per-series label values of one series.
func (c *Collector) RemoveSeries(seriesID string) {
	if !c.perSeriesEnabled {
		return
	}

	c.mu.Lock()
	delete(c.registeredSeries, seriesID)
	c.mu.Unlock()

	c.removeSeriesLabels(seriesID)
}

func (c *Collector) removeSeriesLabels(seriesID string) {
	if !c.perSeriesEnabled {
		return
	}
	flexgraphSeriesPointsIngestedTotal.DeleteLabelValues(seriesID)
	flexgraphSeriesPointsTrimmedTotal.DeleteLabelValues(seriesID)
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration         time.Duration
	Polls            int64
	PollErrors       int64
	Ingested         int64
	Rejected         map[string]int64
	Expired          int64
	Trimmed          int64
	Reconfigurations int64
	PeakSeries       int
	PollP50          time.Duration
	PollP95          time.Duration
	PollP99          time.Duration
}

// TotalRejected sums rejects across reasons.
func (s *Summary) TotalRejected() int64 {
	var n int64
	for _, v := range s.Rejected {
		n += v
	}
	return n
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:         time.Since(c.startTime),
		Polls:            c.polls,
		PollErrors:       c.pollErrors,
		Ingested:         c.ingested,
		Rejected:         make(map[string]int64, len(c.rejected)),
		Expired:          c.expired,
		Trimmed:          c.trimmed,
		Reconfigurations: c.reconfigurations,
		PeakSeries:       c.peakSeries,
	}

	for reason, n := range c.rejected {
		s.Rejected[reason] = n
	}

	if len(c.pollDurations) > 0 {
		sorted := slices.Clone(c.pollDurations)
		slices.Sort(sorted)

		s.PollP50 = percentile(sorted, 0.50)
		s.PollP95 = percentile(sorted, 0.95)
		s.PollP99 = percentile(sorted, 0.99)
	}

	return s
}

// PeakSeries returns the largest series count seen.
func (c *Collector) PeakSeries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakSeries
}

// PerSeriesEnabled returns whether per-series metrics are enabled.
func (c *Collector) PerSeriesEnabled() bool {
	return c.perSeriesEnabled
}

// =============================================================================
// Helper Functions
// =============================================================================

// percentile returns the value at the given percentile (0.0-1.0).
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
