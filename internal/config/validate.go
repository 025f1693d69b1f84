package config

import (
	"errors"
	"fmt"

	"github.com/randomizedcoder/go-flexgraph/internal/keypattern"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := keypattern.Parse(cfg.KeyPattern); err != nil {
		errs = append(errs, ValidationError{
			Field:   "redis_key_pattern",
			Message: err.Error(),
		})
	}

	validBackends := map[string]bool{"redis": true, "memory": true}
	if !validBackends[cfg.StoreBackend] {
		errs = append(errs, ValidationError{
			Field:   "store_backend",
			Message: fmt.Sprintf("must be 'redis' or 'memory' (got %q)", cfg.StoreBackend),
		})
	}

	if cfg.StoreBackend == "redis" {
		if cfg.RedisHost == "" {
			errs = append(errs, ValidationError{Field: "redis_host", Message: "must not be empty"})
		}
		if cfg.RedisPort < 1 || cfg.RedisPort > 65535 {
			errs = append(errs, ValidationError{
				Field:   "redis_port",
				Message: fmt.Sprintf("must be 1-65535 (got %d)", cfg.RedisPort),
			})
		}
		if cfg.RedisDB < 0 {
			errs = append(errs, ValidationError{Field: "redis_db", Message: "must not be negative"})
		}
	}

	if cfg.MaxPoints < 1 {
		errs = append(errs, ValidationError{Field: "max_points", Message: "must be at least 1"})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{Field: "poll_interval", Message: "must be positive"})
	}
	if cfg.PushInterval <= 0 {
		errs = append(errs, ValidationError{Field: "push_interval", Message: "must be positive"})
	}

	// Port 0 lets the OS pick, which only makes sense in tests.
	if cfg.AppPort < 0 || cfg.AppPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "app_port",
			Message: fmt.Sprintf("must be 0-65535 (got %d)", cfg.AppPort),
		})
	}

	if cfg.WindowMinutes < 0 {
		errs = append(errs, ValidationError{Field: "window_minutes", Message: "must not be negative"})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Backoff settings
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	if cfg.Demo {
		if len(cfg.DemoInstruments) == 0 {
			errs = append(errs, ValidationError{Field: "demo_instruments", Message: "at least one instrument is required"})
		}
		if cfg.DemoInterval <= 0 {
			errs = append(errs, ValidationError{Field: "demo_interval", Message: "must be positive"})
		}
		if cfg.DemoTTL < 0 {
			errs = append(errs, ValidationError{Field: "demo_ttl", Message: "must not be negative"})
		}
		if cfg.DemoBackfill < 0 {
			errs = append(errs, ValidationError{Field: "demo_backfill", Message: "must not be negative"})
		}
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
