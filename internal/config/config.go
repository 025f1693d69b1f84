// Package config provides configuration management for go-flexgraph.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all configuration options for the dashboard.
type Config struct {
	// Store
	StoreBackend  string `json:"store_backend"` // redis, memory
	RedisHost     string `json:"redis_host"`
	RedisPort     int    `json:"redis_port"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`

	// Engine
	KeyPattern   string        `json:"redis_key_pattern"`
	MaxPoints    int           `json:"max_points"`
	PollInterval time.Duration `json:"poll_interval"`
	DropUntimed  bool          `json:"drop_untimed"`

	// Poll retry policy
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`

	// HTTP API, metrics and health share one listener
	ListenHost   string        `json:"listen_host"`
	AppPort      int           `json:"app_port"`
	PushInterval time.Duration `json:"push_interval"`
	CORSOrigins  []string      `json:"cors_origins"` // empty = any

	// Display configuration
	ConfigDir   string `json:"config_dir"`
	ConfigFile  string `json:"config_file"` // main.json; empty = <config_dir>/main.json
	WatchConfig bool   `json:"watch_config"`

	// Dashboard
	TUIEnabled    bool    `json:"tui"`
	WindowMinutes float64 `json:"window_minutes"` // initial window, 0 = all

	// Demo producer
	Demo            bool          `json:"demo"`
	DemoInstruments []string      `json:"demo_instruments"`
	DemoInterval    time.Duration `json:"demo_interval"`
	DemoTTL         time.Duration `json:"demo_ttl"`
	DemoBackfill    int           `json:"demo_backfill"`

	// Observability
	Verbose       bool   `json:"verbose"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"` // json, text
	LogFile       string `json:"log_file"`
	LogMaxSizeMB  int    `json:"log_max_size"`
	LogMaxBackups int    `json:"log_max_backups"`
	LogMaxAgeDays int    `json:"log_max_age"`

	// PromSeriesMetrics enables per-series Prometheus labels (Tier 2).
	PromSeriesMetrics bool `json:"prom_series_metrics"`

	// Diagnostic modes
	PrintConfig   bool `json:"-"`
	ShowVersion   bool `json:"-"`
	SkipPreflight bool `json:"skip_preflight"`

	// explicit records flags set on the command line; they beat main.json.
	explicit map[string]bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Store
		StoreBackend: "redis",
		RedisHost:    "localhost",
		RedisPort:    6379,
		RedisDB:      0,

		// Engine
		KeyPattern:   "price_data:*:*",
		MaxPoints:    10000,
		PollInterval: 500 * time.Millisecond,

		// Poll retry policy
		BackoffInitial:  250 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		BackoffMultiply: 1.7,

		// Server
		ListenHost:   "0.0.0.0",
		AppPort:      8051,
		PushInterval: 500 * time.Millisecond,

		// Display
		ConfigDir:   "config",
		WatchConfig: true,

		// Dashboard
		TUIEnabled: true,

		// Demo
		DemoInstruments: []string{"USD_JPY"},
		DemoInterval:    200 * time.Millisecond,
		DemoTTL:         5 * time.Second,

		// Observability
		LogLevel:      "info",
		LogFormat:     "json",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
		LogMaxAgeDays: 7,
	}
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// ListenAddr returns host:port for the HTTP listener.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.AppPort))
}

// MainFile returns the path of main.json.
func (c *Config) MainFile() string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	return joinDir(c.ConfigDir, MainFileName)
}

// Explicit reports whether a flag was set on the command line.
func (c *Config) Explicit(flagName string) bool {
	return c.explicit[flagName]
}
