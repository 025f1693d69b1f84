package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// decodeMetrics parses a text exposition into families keyed by name.
func decodeMetrics(t *testing.T, r io.Reader) map[string]*dto.MetricFamily {
	t.Helper()
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("decode error: %v", err)
		}
		families[mf.GetName()] = &mf
	}
	return families
}

func TestServer_Metrics(t *testing.T) {
	c, reg := newTestCollector(t, CollectorConfig{Version: "test", StoreBackend: "memory"})
	c.SetSeriesCount(4)
	c.RecordPoll(time.Millisecond, nil)

	s := NewServer(ServerConfig{Logger: discardLogger(), Gatherer: reg})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "text/plain")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	families := decodeMetrics(t, rec.Body)
	series, ok := families["flexgraph_series"]
	if !ok {
		t.Fatal("flexgraph_series missing from /metrics")
	}
	if got := series.GetMetric()[0].GetGauge().GetValue(); got != 4 {
		t.Errorf("flexgraph_series = %v, want 4", got)
	}
	if _, ok := families["flexgraph_poll_duration_seconds"]; !ok {
		t.Error("flexgraph_poll_duration_seconds missing from /metrics")
	}
}

func TestServer_Health(t *testing.T) {
	readyErr := errors.New("store unreachable")
	var failing bool

	s := NewServer(ServerConfig{
		Logger: discardLogger(),
		Ready: func() error {
			if failing {
				return readyErr
			}
			return nil
		},
	})

	tests := []struct {
		name    string
		path    string
		failing bool
		want    int
	}{
		{"health", "/health", false, http.StatusOK},
		{"healthz", "/healthz", true, http.StatusOK},
		{"ready", "/ready", false, http.StatusOK},
		{"readyz", "/readyz", false, http.StatusOK},
		{"not ready", "/ready", true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing = tt.failing
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("%s status = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestServer_MountsAPI(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "api:"+r.URL.Path)
	})
	s := NewServer(ServerConfig{Logger: discardLogger(), API: api})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series", nil))

	if got := rec.Body.String(); got != "api:/api/series" {
		t.Errorf("body = %q", got)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer(ServerConfig{Addr: "127.0.0.1:0", Logger: discardLogger()})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strings.HasSuffix(s.Addr(), ":0") {
		t.Errorf("Addr = %q, want bound port", s.Addr())
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServer_StartBadAddr(t *testing.T) {
	s := NewServer(ServerConfig{Addr: "256.0.0.1:bad", Logger: discardLogger()})
	if err := s.Start(); err == nil {
		t.Fatal("Start with invalid address succeeded")
	}
}
