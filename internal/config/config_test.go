package config

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// =============================================================================
// Tests: defaults and flags
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.KeyPattern != "price_data:*:*" {
		t.Errorf("KeyPattern = %q", cfg.KeyPattern)
	}
	if cfg.MaxPoints != 10000 {
		t.Errorf("MaxPoints = %d", cfg.MaxPoints)
	}
	if cfg.RedisAddr() != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr())
	}
	if cfg.ListenAddr() != "0.0.0.0:8051" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
	if cfg.MainFile() != filepath.Join("config", "main.json") {
		t.Errorf("MainFile = %q", cfg.MainFile())
	}
	if !cfg.TUIEnabled || cfg.LogFormat != "json" || cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"-pattern", "ticks:*:*",
		"-max-points", "500",
		"-poll-interval", "1s",
		"-store", "memory",
		"-demo",
		"-demo-instruments", "EUR_USD, GBP_USD",
		"-demo-instruments", "USD_CHF",
		"-tui=false",
		"-window", "2.5",
		"-cors-origins", "http://localhost:3000",
	}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	if cfg.KeyPattern != "ticks:*:*" || cfg.MaxPoints != 500 || cfg.PollInterval != time.Second {
		t.Errorf("engine flags not applied: %+v", cfg)
	}
	if cfg.StoreBackend != "memory" || !cfg.Demo || cfg.TUIEnabled || cfg.WindowMinutes != 2.5 {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if want := []string{"EUR_USD", "GBP_USD", "USD_CHF"}; !slices.Equal(cfg.DemoInstruments, want) {
		t.Errorf("DemoInstruments = %v, want %v", cfg.DemoInstruments, want)
	}
	if want := []string{"http://localhost:3000"}; !slices.Equal(cfg.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", cfg.CORSOrigins, want)
	}
	if !cfg.Explicit("pattern") || cfg.Explicit("redis-port") {
		t.Error("explicit flag tracking is wrong")
	}
}

func TestParseArgs_Errors(t *testing.T) {
	if _, err := ParseArgs([]string{"-no-such-flag"}, io.Discard); err == nil {
		t.Error("expected error for unknown flag")
	}
	if _, err := ParseArgs([]string{"stray"}, io.Discard); err == nil {
		t.Error("expected error for positional argument")
	}
}

func TestParseArgs_Usage(t *testing.T) {
	var out strings.Builder
	_, err := ParseArgs([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("error = %v, want flag.ErrHelp", err)
	}
	for _, want := range []string{"Series Cache:", "-pattern string", "-poll-interval duration", "-drop-untimed", "-demo-instruments list"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

// =============================================================================
// Tests: main.json
// =============================================================================

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.json", `{
		"redis_key_pattern": "feeds:fx:*:*",
		"app_port": 9000,
		"redis_port": 6380,
		"max_points": 2000,
		"poll_interval": "250ms"
	}`)

	t.Run("file values apply", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := LoadFile(path, cfg); err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if cfg.KeyPattern != "feeds:fx:*:*" || cfg.AppPort != 9000 || cfg.RedisPort != 6380 {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if cfg.MaxPoints != 2000 || cfg.PollInterval != 250*time.Millisecond {
			t.Errorf("extended keys not applied: %+v", cfg)
		}
		if cfg.RedisHost != "localhost" {
			t.Errorf("unset key changed RedisHost to %q", cfg.RedisHost)
		}
	})

	t.Run("explicit flags win", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"-port", "7000"}, io.Discard)
		if err != nil {
			t.Fatalf("ParseArgs: %v", err)
		}
		if err := LoadFile(path, cfg); err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if cfg.AppPort != 7000 {
			t.Errorf("AppPort = %d, want flag value 7000", cfg.AppPort)
		}
		if cfg.KeyPattern != "feeds:fx:*:*" {
			t.Errorf("KeyPattern = %q", cfg.KeyPattern)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("FLEXGRAPH_REDIS_HOST", "redis.internal")
		cfg := DefaultConfig()
		if err := LoadFile(path, cfg); err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if cfg.RedisHost != "redis.internal" {
			t.Errorf("RedisHost = %q", cfg.RedisHost)
		}
	})
}

func TestLoadFile_MissingAndInvalid(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(t.TempDir(), "main.json"), cfg); err != nil {
		t.Errorf("missing file: %v", err)
	}
	if cfg.KeyPattern != "price_data:*:*" {
		t.Error("missing file changed defaults")
	}

	bad := writeFile(t, t.TempDir(), "main.json", `{"redis_key_pattern": `)
	if err := LoadFile(bad, DefaultConfig()); err == nil {
		t.Error("expected error for malformed main.json")
	}
}

func TestReadPattern(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.json", `{"redis_key_pattern": "ticks:*:*"}`)
	p, err := ReadPattern(path)
	if err != nil || p != "ticks:*:*" {
		t.Errorf("ReadPattern = %q, %v", p, err)
	}
}

// =============================================================================
// Tests: Validate
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty pattern", func(c *Config) { c.KeyPattern = "" }, "redis_key_pattern"},
		{"pattern without wildcard", func(c *Config) { c.KeyPattern = "price_data" }, "redis_key_pattern"},
		{"bad backend", func(c *Config) { c.StoreBackend = "etcd" }, "store_backend"},
		{"bad redis port", func(c *Config) { c.RedisPort = 0 }, "redis_port"},
		{"empty redis host", func(c *Config) { c.RedisHost = "" }, "redis_host"},
		{"zero max points", func(c *Config) { c.MaxPoints = 0 }, "max_points"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"bad app port", func(c *Config) { c.AppPort = 70000 }, "app_port"},
		{"negative window", func(c *Config) { c.WindowMinutes = -1 }, "window_minutes"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"zero backoff", func(c *Config) { c.BackoffInitial = 0 }, "backoff_initial"},
		{"backoff max below initial", func(c *Config) { c.BackoffMax = time.Millisecond }, "backoff_max"},
		{"backoff multiply below one", func(c *Config) { c.BackoffMultiply = 0.5 }, "backoff_multiply"},
		{"demo without instruments", func(c *Config) { c.Demo = true; c.DemoInstruments = nil }, "demo_instruments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field+":") {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestValidate_MemoryBackendSkipsRedis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreBackend = "memory"
	cfg.RedisHost = ""
	cfg.RedisPort = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("memory backend rejected: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPoints = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error %v is not a ValidationError", err)
	}
	if !strings.Contains(err.Error(), "max_points") || !strings.Contains(err.Error(), "log_format") {
		t.Errorf("joined error missing fields: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "max_points", Message: "must be at least 1"}
	if err.Error() != "max_points: must be at least 1" {
		t.Errorf("Error() = %q", err.Error())
	}
}

// =============================================================================
// Tests: display config
// =============================================================================

func TestLoadDisplay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, AxesFileName, `{"bid": "y", "volume": "y2"}`)
	writeFile(t, dir, ModesFileName, `{"bid": "lines", "signal": "sparkles", "ema_12": "markers"}`)
	writeFile(t, dir, MarkersFileName, `{"bid": {"size": 6, "color": "red"}, "ask": "blue"}`)
	writeFile(t, dir, LinesFileName, `{"ema_12": {"color": "#ff8800", "width": 2}}`)
	writeFile(t, dir, TooltipFileName, `{"fields": ["timestamp", "price", "description"]}`)

	d, warnings := LoadDisplay(dir)
	if len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}

	if d.Axis("volume") != AxisSecondary || d.Axis("bid") != AxisPrimary || d.Axis("unknown") != AxisPrimary {
		t.Errorf("axes = %v", d.Axes)
	}
	if d.Mode("signal") != FallbackMode {
		t.Errorf("invalid mode mapped to %q, want %q", d.Mode("signal"), FallbackMode)
	}
	if d.Mode("ema_12") != "markers" || d.Mode("missing") != DefaultMode {
		t.Errorf("modes = %v", d.Modes)
	}
	if _, ok := d.Markers["ask"]; ok {
		t.Error("non-object marker style kept")
	}
	if c, ok := d.Color("ema_12"); !ok || c != "#ff8800" {
		t.Errorf("Color(ema_12) = %q, %v", c, ok)
	}
	if c, ok := d.Color("bid"); !ok || c != "red" {
		t.Errorf("Color(bid) = %q, %v", c, ok)
	}
	if !slices.Equal(d.Tooltip(), []string{"timestamp", "price", "description"}) {
		t.Errorf("Tooltip = %v", d.Tooltip())
	}
}

func TestLoadDisplay_MissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, AxesFileName, `[1, 2`)

	d, warnings := LoadDisplay(dir)
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one for axes.json", warnings)
	}
	if d.Axes == nil || len(d.Axes) != 0 || d.Modes == nil {
		t.Errorf("sections should be empty maps: %+v", d)
	}
	if !slices.Equal(d.Tooltip(), DefaultTooltipFields) {
		t.Errorf("Tooltip = %v, want defaults", d.Tooltip())
	}
}

// =============================================================================
// Tests: Watcher
// =============================================================================

func TestWatcher_ReloadsDisplayAndPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, MainFileName, `{"redis_key_pattern": "price_data:*:*"}`)

	displays := make(chan Display, 4)
	patterns := make(chan string, 4)
	w, err := NewWatcher(WatcherConfig{
		Dir:       dir,
		Pattern:   "price_data:*:*",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnDisplay: func(d Display) { displays <- d },
		OnPattern: func(p string) error {
			patterns <- p
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, dir, AxesFileName, `{"volume": "y2"}`)
	select {
	case d := <-displays:
		if d.Axis("volume") != AxisSecondary {
			t.Errorf("reloaded axes = %v", d.Axes)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("display reload not observed")
	}

	writeFile(t, dir, MainFileName, `{"redis_key_pattern": "ticks:*:*"}`)
	select {
	case p := <-patterns:
		if p != "ticks:*:*" {
			t.Errorf("pattern = %q", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pattern change not observed")
	}
}

func TestWatcher_ComparesAgainstCurrentPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, MainFileName, `{"redis_key_pattern": "price_data:*:*"}`)

	// The pattern was switched elsewhere after the watcher started.
	var mu sync.Mutex
	active := "ticks:*:*"
	patterns := make(chan string, 4)
	w, err := NewWatcher(WatcherConfig{
		Dir:     dir,
		Pattern: "price_data:*:*",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		CurrentPattern: func() string {
			mu.Lock()
			defer mu.Unlock()
			return active
		},
		OnPattern: func(p string) error {
			mu.Lock()
			active = p
			mu.Unlock()
			patterns <- p
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Same text as the start pattern, but not the one in effect.
	writeFile(t, dir, MainFileName, `{"redis_key_pattern": "price_data:*:*", "app_port": 8051}`)
	select {
	case p := <-patterns:
		if p != "price_data:*:*" {
			t.Errorf("pattern = %q", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("switch back to the main.json pattern not observed")
	}
}
