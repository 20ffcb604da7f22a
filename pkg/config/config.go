// Package config holds the scan settings shared by the CLI and library
// callers.
//
// Settings come from three layers, each overriding the previous one:
// [Default], a YAML file read by [Load], and the environment applied by
// [Config.ApplyEnv]. The CLI applies its flags last.
//
//	workers: 8
//	exclude:
//	  - "**/testdata/**"
//	detectors: [cargo-lock, npm-lock]
//	disable_rust_cli: false
//	cache:
//	  backend: redis
//	  redis_url: redis://localhost:6379/0
//	  ttl: 24h
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/depscan/pkg/errors"
)

// Environment variables read by ApplyEnv.
const (
	EnvWorkers        = "DEPSCAN_WORKERS"
	EnvRedisURL       = "DEPSCAN_REDIS_URL"
	EnvDisableRustCLI = "DisableRustCliScan"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// DefaultCacheTTL is how long cached command output stays valid.
const DefaultCacheTTL = 24 * time.Hour

// Config is the full scan configuration.
type Config struct {
	Workers        int         `yaml:"workers"`
	Exclude        []string    `yaml:"exclude"`
	Detectors      []string    `yaml:"detectors"`
	DisableRustCLI bool        `yaml:"disable_rust_cli"`
	Cache          CacheConfig `yaml:"cache"`
}

// CacheConfig selects where cached command output is stored.
type CacheConfig struct {
	Backend  string        `yaml:"backend"`
	Dir      string        `yaml:"dir"`
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers: runtime.NumCPU(),
		Cache: CacheConfig{
			Backend: CacheFile,
			TTL:     DefaultCacheTTL,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s", path)
		}
		return cfg, errors.Wrap(errors.ErrCodeInvalidPath, err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Malformed values are
// reported and leave the field unchanged.
func (c *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s=%q", EnvWorkers, v)
		}
		c.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvDisableRustCLI)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s=%q", EnvDisableRustCLI, v)
		}
		c.DisableRustCLI = b
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisURL)); v != "" {
		c.Cache.RedisURL = v
		c.Cache.Backend = CacheRedis
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must be at least 1, got %d", c.Workers)
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return errors.New(errors.ErrCodeInvalidConfig, "invalid exclude pattern %q", p)
		}
	}
	switch c.Cache.Backend {
	case CacheFile, CacheNone:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "redis cache requires a redis_url")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q (want %s, %s or %s)", c.Cache.Backend, CacheFile, CacheRedis, CacheNone)
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache ttl cannot be negative")
	}
	return nil
}
