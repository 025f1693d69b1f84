package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// listFlag is a comma-separated, repeatable string list.
type listFlag struct {
	values *[]string
	set    bool
}

func (l *listFlag) String() string {
	if l.values == nil {
		return ""
	}
	return strings.Join(*l.values, ",")
}

func (l *listFlag) Set(value string) error {
	// The first explicit value replaces the default.
	if !l.set {
		*l.values = nil
		l.set = true
	}
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l.values = append(*l.values, v)
		}
	}
	return nil
}

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses the given arguments. Usage and errors go to out.
func ParseArgs(args []string, out io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("go-flexgraph", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.Usage = func() {
		fmt.Fprintf(out, `go-flexgraph - live charts over a polled key-value feed

Usage:
  go-flexgraph [flags]

Store:
`)
		printFlagCategory(fs, out, []string{"store", "redis-host", "redis-port", "redis-password", "redis-db"})

		fmt.Fprintf(out, "\nSeries Cache:\n")
		printFlagCategory(fs, out, []string{"pattern", "max-points", "poll-interval", "drop-untimed"})

		fmt.Fprintf(out, "\nPoll Retry:\n")
		printFlagCategory(fs, out, []string{"backoff-initial", "backoff-max", "backoff-multiply"})

		fmt.Fprintf(out, "\nHTTP / Metrics:\n")
		printFlagCategory(fs, out, []string{"listen-host", "port", "push-interval", "cors-origins"})

		fmt.Fprintf(out, "\nDisplay Config:\n")
		printFlagCategory(fs, out, []string{"config-dir", "config", "watch-config"})

		fmt.Fprintf(out, "\nDashboard:\n")
		printFlagCategory(fs, out, []string{"tui", "window"})

		fmt.Fprintf(out, "\nDemo Producer:\n")
		printFlagCategory(fs, out, []string{"demo", "demo-instruments", "demo-interval", "demo-ttl", "demo-backfill"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"v", "log-level", "log-format", "log-file", "log-max-size", "log-max-backups", "log-max-age", "prom-series-metrics"})

		fmt.Fprintf(out, "\nDiagnostics:\n")
		printFlagCategory(fs, out, []string{"print-config", "skip-preflight", "version"})

		fmt.Fprintf(out, `
Examples:
  # Watch the default price_data:*:* feed on localhost
  go-flexgraph

  # Offline demo with a synthetic USD_JPY feed
  go-flexgraph -store memory -demo -demo-backfill 600

  # Different feed, headless, API on :9000
  go-flexgraph -pattern 'ticks:*:*' -tui=false -port 9000

`)
	}

	// Store
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, `Store backend: "redis" or "memory"`)
	fs.StringVar(&cfg.RedisHost, "redis-host", cfg.RedisHost, "Redis host")
	fs.IntVar(&cfg.RedisPort, "redis-port", cfg.RedisPort, "Redis port")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")

	// Series cache
	fs.StringVar(&cfg.KeyPattern, "pattern", cfg.KeyPattern, "Key pattern: prefix, series wildcard, record wildcard")
	fs.IntVar(&cfg.MaxPoints, "max-points", cfg.MaxPoints, "Points kept per series")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Store poll interval")
	fs.BoolVar(&cfg.DropUntimed, "drop-untimed", cfg.DropUntimed, "Reject records without a usable timestamp")

	// Poll retry
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "First retry delay after a store error")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum retry delay")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Retry delay multiplier")

	// HTTP
	fs.StringVar(&cfg.ListenHost, "listen-host", cfg.ListenHost, "HTTP listen host")
	fs.IntVar(&cfg.AppPort, "port", cfg.AppPort, "HTTP port for API, /metrics and /health")
	fs.DurationVar(&cfg.PushInterval, "push-interval", cfg.PushInterval, "WebSocket push interval")
	fs.Var(&listFlag{values: &cfg.CORSOrigins}, "cors-origins", "Comma-separated browser origins allowed by the API (default any)")

	// Display config
	fs.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "Directory with main.json and display JSON files")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Path to main.json (default <config-dir>/main.json)")
	fs.BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "Reload display config and key pattern on change")

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (use -tui=false to disable)")
	fs.Float64Var(&cfg.WindowMinutes, "window", cfg.WindowMinutes, "Initial display window in minutes (0 = all)")

	// Demo
	fs.BoolVar(&cfg.Demo, "demo", cfg.Demo, "Run the synthetic instrument producer")
	fs.Var(&listFlag{values: &cfg.DemoInstruments}, "demo-instruments", "Comma-separated demo instruments")
	fs.DurationVar(&cfg.DemoInterval, "demo-interval", cfg.DemoInterval, "Demo write interval")
	fs.DurationVar(&cfg.DemoTTL, "demo-ttl", cfg.DemoTTL, "TTL of demo records")
	fs.IntVar(&cfg.DemoBackfill, "demo-backfill", cfg.DemoBackfill, "Historical demo points written at start")

	// Observability
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to a rotating file instead of stderr")
	fs.IntVar(&cfg.LogMaxSizeMB, "log-max-size", cfg.LogMaxSizeMB, "Rotate log file after N megabytes")
	fs.IntVar(&cfg.LogMaxBackups, "log-max-backups", cfg.LogMaxBackups, "Rotated log files to keep")
	fs.IntVar(&cfg.LogMaxAgeDays, "log-max-age", cfg.LogMaxAgeDays, "Days to keep rotated log files")

	fs.BoolVar(&cfg.PromSeriesMetrics, "prom-series-metrics", cfg.PromSeriesMetrics, "Export per-series metrics (one label per series)")

	// Diagnostics
	fs.BoolVar(&cfg.PrintConfig, "print-config", cfg.PrintConfig, "Print effective configuration and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg.explicit = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		cfg.explicit[f.Name] = true
	})

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(out, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(out)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if getter, ok := f.Value.(flag.Getter); ok {
		switch getter.Get().(type) {
		case bool:
			return ""
		case int, int64:
			return "int"
		case float64:
			return "float"
		case fmt.Stringer:
			return "duration"
		}
	}
	if _, ok := f.Value.(*listFlag); ok {
		return "list"
	}
	return "string"
}
