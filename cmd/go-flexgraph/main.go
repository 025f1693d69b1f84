// Package main provides the go-flexgraph CLI entry point.
//
// go-flexgraph polls a key-value store for JSON records matching a key
// pattern, keeps a bounded history per series and serves live windowed
// views over HTTP, WebSocket and a terminal dashboard.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-flexgraph/internal/config"
	"github.com/randomizedcoder/go-flexgraph/internal/logging"
	"github.com/randomizedcoder/go-flexgraph/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-flexgraph
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-flexgraph %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Printf("go-flexgraph %s\n", version)
		return 0
	}

	// main.json and FLEXGRAPH_* fill in what the flags left unset
	if err := config.LoadFile(cfg.MainFile(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", cfg.MainFile(), err)
		return 1
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.PrintConfig {
		printConfig(cfg)
		return 0
	}

	// Initialize logger
	// The dashboard owns the terminal, so logs go to a file or nowhere.
	var logger *slog.Logger
	switch {
	case cfg.LogFile != "":
		var closer io.Closer
		logger, closer = logging.NewFileLogger(logging.FileOptions{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		}, cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
		defer closer.Close()
	case cfg.TUIEnabled:
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	default:
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Log startup
	logger.Info("starting",
		"version", version,
		"store", cfg.StoreBackend,
		"pattern", cfg.KeyPattern,
		"max_points", cfg.MaxPoints,
		"poll_interval", cfg.PollInterval.String(),
		"listen_addr", cfg.ListenAddr(),
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	orch, err := orchestrator.NewWithDeps(cfg, logger, orchestrator.Deps{Version: version})
	if err != nil {
		logger.Error("orchestrator_init_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-flexgraph                             ║")
	fmt.Println("║          Live series cache over a polled key-value feed           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	if cfg.StoreBackend == "memory" {
		fmt.Println("  Store:       memory")
	} else {
		fmt.Printf("  Store:       redis %s (db %d)\n", cfg.RedisAddr(), cfg.RedisDB)
	}
	fmt.Printf("  Pattern:     %s\n", cfg.KeyPattern)
	fmt.Printf("  Max points:  %d per series\n", cfg.MaxPoints)
	fmt.Printf("  API:         http://%s/api/series\n", cfg.ListenAddr())
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.ListenAddr())
	if cfg.Demo {
		fmt.Printf("  Demo:        %v every %s\n", cfg.DemoInstruments, cfg.DemoInterval)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printConfig prints the effective configuration as JSON.
func printConfig(cfg *config.Config) {
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding config: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
