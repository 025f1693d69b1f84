// Package api serves the cached series over HTTP: JSON reads with per-request
// window and pause parameters, cache management, live reconfiguration and a
// WebSocket stream with per-connection pause state.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/randomizedcoder/go-flexgraph/internal/config"
	"github.com/randomizedcoder/go-flexgraph/internal/engine"
	"github.com/randomizedcoder/go-flexgraph/internal/keypattern"
	"github.com/randomizedcoder/go-flexgraph/internal/logging"
	"github.com/randomizedcoder/go-flexgraph/internal/normalize"
	"github.com/randomizedcoder/go-flexgraph/internal/series"
	"github.com/randomizedcoder/go-flexgraph/internal/stats"
)

// Engine is the cache surface the API reads and manages.
type Engine interface {
	series.ReferenceSource
	Pattern() string
	KnownSeries(ctx context.Context) ([]string, error)
	Read(seriesID string, q series.Query) []series.DataPoint
	ClearSeries(seriesID string) bool
	ClearAll()
	Reconfigure(pattern string) error
	Stats() engine.Stats
}

// Recorder receives request and stream events.
type Recorder interface {
	RecordRequest(route string, code int)
	StreamOpened()
	StreamClosed()
	RemoveSeries(seriesID string)
}

// RejectSource exposes recently rejected records.
type RejectSource interface {
	Recent(n int) []logging.Reject
	CountByReason() map[string]int
}

// Config holds configuration for creating a new Handler.
type Config struct {
	Engine Engine

	// Display returns the current display configuration. Optional.
	Display func() config.Display

	Recorder Recorder
	Rejects  RejectSource
	Logger   *slog.Logger

	// PushInterval is the stream refresh period (default: 500ms).
	PushInterval time.Duration

	// AllowedOrigins for CORS and WebSocket upgrades (default: any).
	AllowedOrigins []string
}

// Handler is the /api HTTP handler.
type Handler struct {
	engine       Engine
	display      func() config.Display
	recorder     Recorder
	rejects      RejectSource
	logger       *slog.Logger
	pushInterval time.Duration
	origins      []string

	root http.Handler

	// Streams are hijacked connections; server shutdown does not reach them.
	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

// Route names, used as the metrics route label.
const (
	routeSeriesList   = "series_list"
	routeSeriesGet    = "series_get"
	routeSeriesDelete = "series_delete"
	routeSeriesClear  = "series_clear"
	routeSeriesStream = "series_stream"
	routePatternGet   = "pattern_get"
	routePatternPut   = "pattern_put"
	routeDisplay      = "display"
	routeStatus       = "status"
)

// maxRecentRejects bounds the rejects returned by /api/status.
const maxRecentRejects = 20

// NewHandler creates the API handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("api: engine is required")
	}

	h := &Handler{
		engine:       cfg.Engine,
		display:      cfg.Display,
		recorder:     cfg.Recorder,
		rejects:      cfg.Rejects,
		logger:       cfg.Logger,
		pushInterval: cfg.PushInterval,
		origins:      cfg.AllowedOrigins,
	}
	if h.display == nil {
		h.display = config.EmptyDisplay
	}
	if h.recorder == nil {
		h.recorder = noopRecorder{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.pushInterval <= 0 {
		h.pushInterval = 500 * time.Millisecond
	}
	if len(h.origins) == 0 {
		h.origins = []string{"*"}
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/series", h.listSeries).Methods(http.MethodGet).Name(routeSeriesList)
	api.HandleFunc("/series", h.clearAll).Methods(http.MethodDelete).Name(routeSeriesClear)
	api.HandleFunc("/series/{id}", h.getSeries).Methods(http.MethodGet).Name(routeSeriesGet)
	api.HandleFunc("/series/{id}", h.clearSeries).Methods(http.MethodDelete).Name(routeSeriesDelete)
	api.HandleFunc("/series/{id}/stream", h.stream).Methods(http.MethodGet).Name(routeSeriesStream)
	api.HandleFunc("/pattern", h.getPattern).Methods(http.MethodGet).Name(routePatternGet)
	api.HandleFunc("/pattern", h.putPattern).Methods(http.MethodPut).Name(routePatternPut)
	api.HandleFunc("/display", h.getDisplay).Methods(http.MethodGet).Name(routeDisplay)
	api.HandleFunc("/status", h.getStatus).Methods(http.MethodGet).Name(routeStatus)

	router.Use(h.recoverMiddleware)
	router.Use(h.instrumentMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	h.root = c.Handler(router)

	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// Close ends every open stream and waits for the sessions to finish.
func (h *Handler) Close() {
	h.cancel()
	h.sessions.Wait()
}

// =============================================================================
// Routes
// =============================================================================

type seriesListResponse struct {
	Pattern string   `json:"pattern"`
	Series  []string `json:"series"`
}

func (h *Handler) listSeries(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.KnownSeries(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, seriesListResponse{Pattern: h.engine.Pattern(), Series: ids})
}

func (h *Handler) getSeries(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	q, err := parseQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Paused && !q.HasPauseRef {
		q.PauseRef, q.HasPauseRef = h.engine.PauseReference(id)
	}

	respondJSON(w, http.StatusOK, h.buildView(id, q))
}

func (h *Handler) clearSeries(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existed := h.engine.ClearSeries(id)
	h.recorder.RemoveSeries(id)
	respondJSON(w, http.StatusOK, map[string]any{"series": id, "cleared": existed})
}

func (h *Handler) clearAll(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearAll()
	respondJSON(w, http.StatusOK, map[string]any{"pattern": h.engine.Pattern(), "cleared": true})
}

type patternRequest struct {
	Pattern string `json:"pattern"`
}

func (h *Handler) getPattern(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, patternRequest{Pattern: h.engine.Pattern()})
}

func (h *Handler) putPattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.engine.Reconfigure(req.Pattern); err != nil {
		if errors.Is(err, keypattern.ErrInvalidPattern) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, patternRequest{Pattern: h.engine.Pattern()})
}

func (h *Handler) getDisplay(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.display())
}

type rejectJSON struct {
	At     time.Time `json:"at"`
	Key    string    `json:"key"`
	Reason string    `json:"reason"`
	Error  string    `json:"error"`
}

type statusResponse struct {
	Pattern     string         `json:"pattern"`
	Series      int            `json:"series"`
	Points      int            `json:"points"`
	SeenKeys    int            `json:"seen_keys"`
	Polls       int64          `json:"polls"`
	PollErrors  int64          `json:"poll_errors"`
	Ingested    int64          `json:"ingested"`
	Rejected    int64          `json:"rejected"`
	Expired     int64          `json:"expired"`
	Trimmed     int64          `json:"trimmed"`
	LastPollAt  *time.Time     `json:"last_poll_at,omitempty"`
	RejectCount map[string]int `json:"rejects_by_reason,omitempty"`
	Recent      []rejectJSON   `json:"recent_rejects,omitempty"`
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	s := h.engine.Stats()
	resp := statusResponse{
		Pattern:    s.Pattern,
		Series:     s.Series,
		Points:     s.Points,
		SeenKeys:   s.SeenKeys,
		Polls:      s.Polls,
		PollErrors: s.PollErrors,
		Ingested:   s.Ingested,
		Rejected:   s.Rejected,
		Expired:    s.Expired,
		Trimmed:    s.Trimmed,
	}
	if !s.LastPollAt.IsZero() {
		resp.LastPollAt = &s.LastPollAt
	}
	if h.rejects != nil {
		resp.RejectCount = h.rejects.CountByReason()
		for _, rj := range h.rejects.Recent(maxRecentRejects) {
			resp.Recent = append(resp.Recent, rejectJSON(rj))
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Views
// =============================================================================

type viewResponse struct {
	Series        string               `json:"series"`
	Pattern       string               `json:"pattern"`
	WindowMinutes float64              `json:"window_minutes"`
	Paused        bool                 `json:"paused"`
	Reference     *time.Time           `json:"reference,omitempty"`
	Fields        []string             `json:"fields"`
	Selected      []string             `json:"selected"`
	Points        []pointJSON          `json:"points"`
	Summaries     []stats.FieldSummary `json:"summaries"`
}

// buildView reads the windowed points and summarizes the selected fields.
func (h *Handler) buildView(id string, q series.Query) viewResponse {
	points := h.engine.Read(id, q)
	fields := stats.NumericFields(points)
	selected := stats.SelectFields(q.Fields, fields)

	resp := viewResponse{
		Series:        id,
		Pattern:       h.engine.Pattern(),
		WindowMinutes: q.WindowMinutes,
		Paused:        q.Paused,
		Fields:        fields,
		Selected:      selected,
		Points:        make([]pointJSON, len(points)),
		Summaries:     stats.SummarizeAll(points, selected),
	}
	if q.Paused && q.HasPauseRef {
		ref := q.PauseRef
		resp.Reference = &ref
	}
	for i, p := range points {
		resp.Points[i] = pointJSON(p)
	}
	return resp
}

// parseQuery reads minutes, paused, ref and fields from the query string.
func parseQuery(r *http.Request) (series.Query, error) {
	var q series.Query
	v := r.URL.Query()

	if s := v.Get("minutes"); s != "" {
		m, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, fmt.Errorf("invalid minutes %q", s)
		}
		q.WindowMinutes = m
	}

	if s := v.Get("paused"); s != "" {
		p, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("invalid paused %q", s)
		}
		q.Paused = p
	}

	if s := v.Get("ref"); s != "" {
		ref, err := normalize.ParseTimestamp(s)
		if err != nil {
			return q, fmt.Errorf("invalid ref %q", s)
		}
		q.PauseRef, q.HasPauseRef = ref, true
	}

	for _, s := range v["fields"] {
		for _, f := range strings.Split(s, ",") {
			if f = strings.TrimSpace(f); f != "" {
				q.Fields = append(q.Fields, f)
			}
		}
	}
	return q, nil
}

// =============================================================================
// Middleware and helpers
// =============================================================================

func (h *Handler) instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cr := mux.CurrentRoute(r); cr != nil && cr.GetName() != "" {
			route = cr.GetName()
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.recorder.RecordRequest(route, rec.status)
		h.logger.Debug("api_request",
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				h.logger.Error("api_panic", "path", r.URL.Path, "panic", fmt.Sprint(v))
				respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// respondJSON encodes before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "{\"error\":%q}\n", "encode response: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusRecorder captures the response code. It forwards Hijack so stream
// upgrades work through the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	// A successful upgrade answers 101.
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

type noopRecorder struct{}

func (noopRecorder) RecordRequest(string, int) {}
func (noopRecorder) StreamOpened()             {}
func (noopRecorder) StreamClosed()             {}
func (noopRecorder) RemoveSeries(string)       {}
