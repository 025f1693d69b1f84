package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MainFileName is the application settings file inside the config dir.
const MainFileName = "main.json"

// EnvPrefix prefixes environment overrides, e.g. FLEXGRAPH_REDIS_PORT.
const EnvPrefix = "FLEXGRAPH"

// fileKey binds a main.json key to the flag that overrides it.
type fileKey struct {
	key   string
	flag  string
	apply func(v *viper.Viper, cfg *Config)
}

var fileKeys = []fileKey{
	{"redis_key_pattern", "pattern", func(v *viper.Viper, c *Config) { c.KeyPattern = v.GetString("redis_key_pattern") }},
	{"app_port", "port", func(v *viper.Viper, c *Config) { c.AppPort = v.GetInt("app_port") }},
	{"redis_port", "redis-port", func(v *viper.Viper, c *Config) { c.RedisPort = v.GetInt("redis_port") }},
	{"redis_host", "redis-host", func(v *viper.Viper, c *Config) { c.RedisHost = v.GetString("redis_host") }},
	{"redis_db", "redis-db", func(v *viper.Viper, c *Config) { c.RedisDB = v.GetInt("redis_db") }},
	{"max_points", "max-points", func(v *viper.Viper, c *Config) { c.MaxPoints = v.GetInt("max_points") }},
	{"poll_interval", "poll-interval", func(v *viper.Viper, c *Config) { c.PollInterval = v.GetDuration("poll_interval") }},
}

// LoadFile overlays main.json and FLEXGRAPH_* environment variables onto
// cfg. Flags set on the command line win. A missing file is not an error.
func LoadFile(path string, cfg *Config) error {
	v, err := readMain(path)
	if err != nil {
		return err
	}
	for _, k := range fileKeys {
		if cfg.Explicit(k.flag) || !v.IsSet(k.key) {
			continue
		}
		k.apply(v, cfg)
	}
	return nil
}

// ReadPattern returns redis_key_pattern from main.json, or "" when unset.
func ReadPattern(path string) (string, error) {
	v, err := readMain(path)
	if err != nil {
		return "", err
	}
	return v.GetString("redis_key_pattern"), nil
}

func readMain(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only answers keys viper already knows about.
	for _, k := range fileKeys {
		if err := v.BindEnv(k.key); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := v.ReadConfig(f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

func joinDir(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
