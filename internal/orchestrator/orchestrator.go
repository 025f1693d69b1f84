// Package orchestrator wires the store, the series engine and its poll loop,
// the HTTP server, the config watcher, the demo producer and the dashboard,
// and runs them until shutdown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-flexgraph/internal/api"
	"github.com/randomizedcoder/go-flexgraph/internal/config"
	"github.com/randomizedcoder/go-flexgraph/internal/engine"
	"github.com/randomizedcoder/go-flexgraph/internal/generator"
	"github.com/randomizedcoder/go-flexgraph/internal/keypattern"
	"github.com/randomizedcoder/go-flexgraph/internal/logging"
	"github.com/randomizedcoder/go-flexgraph/internal/metrics"
	"github.com/randomizedcoder/go-flexgraph/internal/poller"
	"github.com/randomizedcoder/go-flexgraph/internal/preflight"
	"github.com/randomizedcoder/go-flexgraph/internal/stats"
	"github.com/randomizedcoder/go-flexgraph/internal/store"
	"github.com/randomizedcoder/go-flexgraph/internal/tui"
)

// shutdownTimeout bounds the HTTP server drain.
const shutdownTimeout = 10 * time.Second

// Deps overrides what New would otherwise build. Zero fields use defaults.
type Deps struct {
	Version string

	// Store replaces the backend selected by the config.
	Store store.Store

	// Registry replaces the default Prometheus registry.
	Registry *prometheus.Registry

	// Out receives preflight results and the exit summary (default: stdout).
	Out io.Writer
}

// Orchestrator coordinates all components of a dashboard run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	store     store.Store
	storeName string
	engine    *engine.Engine
	rejects   *logging.RejectLog
	metrics   *metrics.Collector
	api       *api.Handler
	server    *metrics.Server
	poller    *poller.Poller
	producer  *generator.Producer // nil unless the demo is on

	display atomic.Pointer[config.Display]

	started   chan struct{}
	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	return NewWithDeps(cfg, logger, Deps{})
}

// NewWithDeps creates an Orchestrator, using deps where set.
func NewWithDeps(cfg *config.Config, logger *slog.Logger, deps Deps) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		config:  cfg,
		logger:  logger,
		out:     deps.Out,
		rejects: logging.NewRejectLog(),
		started: make(chan struct{}),
	}
	if o.out == nil {
		o.out = os.Stdout
	}
	empty := config.EmptyDisplay()
	o.display.Store(&empty)

	// Store
	o.store = deps.Store
	o.storeName = cfg.StoreBackend
	if o.store == nil {
		s, err := store.Open(store.Options{
			Backend:  cfg.StoreBackend,
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		o.store = s
	}
	if cfg.StoreBackend == store.BackendRedis || cfg.StoreBackend == "" {
		o.storeName = "redis " + cfg.RedisAddr()
	}

	// Metrics
	collectorCfg := metrics.CollectorConfig{
		Version:          deps.Version,
		StoreBackend:     cfg.StoreBackend,
		PerSeriesMetrics: cfg.PromSeriesMetrics,
	}
	var gatherer prometheus.Gatherer
	if deps.Registry != nil {
		o.metrics = metrics.NewCollectorWithRegistry(collectorCfg, deps.Registry)
		gatherer = deps.Registry
	} else {
		o.metrics = metrics.NewCollector(collectorCfg)
	}

	// Engine
	eng, err := engine.New(engine.Config{
		Reader:      o.store,
		Pattern:     cfg.KeyPattern,
		MaxPoints:   cfg.MaxPoints,
		DropUntimed: cfg.DropUntimed,
		Logger:      logger,
		Recorder:    o.metrics,
		Rejects:     o.rejects,
	})
	if err != nil {
		o.store.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	o.engine = eng

	// Poll loop
	o.poller, err = poller.New(poller.Config{
		Target:   eng,
		Interval: cfg.PollInterval,
		Backoff: poller.NewBackoffFromTime(poller.BackoffConfig{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiply,
			JitterPct:  poller.DefaultBackoffConfig().JitterPct,
			Floor:      cfg.PollInterval,
		}),
		Logger: logger,
		Callbacks: poller.Callbacks{
			OnStateChange:  o.onPollerState,
			OnRates:        o.metrics.RecordIngestRates,
			OnSeriesChange: o.onSeriesChange,
		},
	})
	if err != nil {
		o.store.Close()
		return nil, err
	}

	// HTTP API, metrics and health on one listener
	o.api, err = api.NewHandler(api.Config{
		Engine:       eng,
		Display:      o.Display,
		Recorder:     o.metrics,
		Rejects:      o.rejects,
		Logger:       logger,
		PushInterval: cfg.PushInterval,

		AllowedOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		o.store.Close()
		return nil, err
	}
	o.server = metrics.NewServer(metrics.ServerConfig{
		Addr:     cfg.ListenAddr(),
		Logger:   logger,
		API:      o.api,
		Gatherer: gatherer,
		Ready:    o.ready,
	})

	// Demo producer writes under the pattern's prefix
	if cfg.Demo {
		o.producer, err = generator.New(generator.Config{
			Writer:      o.store,
			Prefix:      keypattern.MustParse(cfg.KeyPattern).Prefix(),
			Instruments: cfg.DemoInstruments,
			Interval:    cfg.DemoInterval,
			TTL:         cfg.DemoTTL,
			Seed:        time.Now().UnixNano(),
			Logger:      logger,
		})
		if err != nil {
			o.store.Close()
			return nil, err
		}
	}

	return o, nil
}

// Run starts every component and blocks until a signal, the dashboard
// quitting or ctx being cancelled. It then shuts down and prints the summary.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, preflight.Options{
			Store:      o.store,
			StoreName:  o.storeName,
			KeyPattern: o.config.KeyPattern,
			ConfigDir:  o.config.ConfigDir,
			ListenAddr: o.config.ListenAddr(),
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			o.store.Close()
			return errors.New("preflight checks failed (use -skip-preflight to override)")
		}
	}

	o.loadDisplay()

	if err := o.server.Start(); err != nil {
		o.store.Close()
		return fmt.Errorf("failed to start http server: %w", err)
	}
	close(o.started)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup
	o.goRun(&wg, "poller", func() error { return o.poller.Run(ctx) })

	if o.config.WatchConfig {
		o.startWatcher(ctx, &wg)
	}

	if o.producer != nil {
		o.goRun(&wg, "demo_producer", func() error {
			if err := o.producer.Backfill(ctx, o.config.DemoBackfill); err != nil {
				o.logger.Warn("demo_backfill_failed", "error", err)
			}
			return o.producer.Run(ctx)
		})
	}

	o.logger.Info("dashboard_started",
		"pattern", o.engine.Pattern(),
		"store", o.storeName,
		"addr", o.server.Addr(),
		"tui", o.config.TUIEnabled,
		"demo", o.producer != nil,
	)

	var (
		program *tea.Program
		tuiDone chan struct{}
	)
	if o.config.TUIEnabled {
		program, tuiDone = o.startTUI()
	}

	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-tuiDone:
		o.logger.Info("tui_exited")
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	}

	cancel()
	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	// Stream sessions are hijacked; the server drain does not reach them.
	o.api.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := o.server.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("http_server_shutdown_error", "error", err)
	}

	wg.Wait()
	if err := o.store.Close(); err != nil {
		o.logger.Warn("store_close_error", "error", err)
	}

	fmt.Fprint(o.out, o.exitSummary())
	return nil
}

func (o *Orchestrator) goRun(wg *sync.WaitGroup, name string, fn func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("component_failed", "component", name, "error", err)
		}
	}()
}

// loadDisplay reads the display files once at startup.
func (o *Orchestrator) loadDisplay() {
	d, warnings := config.LoadDisplay(o.config.ConfigDir)
	for _, err := range warnings {
		o.logger.Warn("display_config_invalid", "error", err)
	}
	o.display.Store(&d)
}

func (o *Orchestrator) startWatcher(ctx context.Context, wg *sync.WaitGroup) {
	w, err := config.NewWatcher(config.WatcherConfig{
		Dir:            o.config.ConfigDir,
		MainFile:       o.config.MainFile(),
		Pattern:        o.engine.Pattern(),
		CurrentPattern: o.engine.Pattern,
		Logger:         o.logger,
		OnDisplay: func(d config.Display) {
			o.display.Store(&d)
		},
		OnPattern: o.engine.Reconfigure,
	})
	if err != nil {
		o.logger.Warn("config_watch_disabled", "dir", o.config.ConfigDir, "error", err)
		return
	}
	o.goRun(wg, "config_watcher", func() error { return w.Run(ctx) })
}

func (o *Orchestrator) startTUI() (*tea.Program, chan struct{}) {
	model := tui.New(tui.Config{
		Engine:        o.engine,
		Display:       o.Display,
		Rates:         o.poller.Rates().GetStats,
		Rejects:       o.rejects,
		ListenAddr:    o.server.Addr(),
		WindowMinutes: o.config.WindowMinutes,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil {
			o.logger.Error("tui_failed", "error", err)
		}
	}()
	return program, done
}

func (o *Orchestrator) onPollerState(oldState, newState poller.State) {
	o.logger.Debug("poller_state_changed", "from", oldState.String(), "to", newState.String())
}

func (o *Orchestrator) onSeriesChange(ids []string) {
	o.logger.Info("series_changed", "count", len(ids), "series", ids)
}

// ready fails while the poll loop is backing off from store errors.
func (o *Orchestrator) ready() error {
	s := o.poller.State()
	if s.Healthy() {
		return nil
	}
	if out := o.poller.Outage(); out.Active() {
		return fmt.Errorf("store unavailable for %s after %d failed polls: %v",
			time.Since(out.Since).Round(time.Second), out.Failures, out.LastErr)
	}
	return fmt.Errorf("poller %s", s)
}

// exitSummary formats the run summary from the collector and the engine.
func (o *Orchestrator) exitSummary() string {
	summary := o.metrics.GenerateSummary()
	es := o.engine.Stats()

	return stats.FormatExitSummary(stats.SummaryConfig{
		Duration:         time.Since(o.startTime),
		Pattern:          es.Pattern,
		Store:            o.storeName,
		Series:           es.Series,
		PeakSeries:       summary.PeakSeries,
		Polls:            summary.Polls,
		PollErrors:       summary.PollErrors,
		Ingested:         summary.Ingested,
		Trimmed:          summary.Trimmed,
		Expired:          summary.Expired,
		Reconfigurations: summary.Reconfigurations,
		Rejected:         summary.Rejected,
		PollP50:          summary.PollP50,
		PollP95:          summary.PollP95,
		PollP99:          summary.PollP99,
		ListenAddr:       o.server.Addr(),
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Display returns the current display configuration.
func (o *Orchestrator) Display() config.Display {
	return *o.display.Load()
}

// Engine returns the series engine.
func (o *Orchestrator) Engine() *engine.Engine {
	return o.engine
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Started is closed once the HTTP server is listening.
func (o *Orchestrator) Started() <-chan struct{} {
	return o.started
}

// Addr returns the HTTP listener address.
func (o *Orchestrator) Addr() string {
	return o.server.Addr()
}
