// Package config loads evalboard configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/evalboard/evalboard/pkg/models"
)

// Config holds all evalboard configuration.
type Config struct {
	Listen  string               `yaml:"listen" envconfig:"EVALBOARD_LISTEN"`
	DBPath  string               `yaml:"db_path" envconfig:"EVALBOARD_DB_PATH"`
	Log     LogConfig            `yaml:"log"`
	Store   StoreConfig          `yaml:"store"`
	Fetcher FetcherConfig        `yaml:"fetcher"`
	History models.HistoryConfig `yaml:"history"`
	Warm    WarmConfig           `yaml:"warm"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"EVALBOARD_LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"EVALBOARD_LOG_FORMAT"`
}

// StoreConfig selects the persistence backend for the report cache.
// Backend is "sqlite" (default), "redis" or "memory".
type StoreConfig struct {
	Backend  string `yaml:"backend" envconfig:"EVALBOARD_STORE_BACKEND"`
	Capacity int    `yaml:"capacity" envconfig:"EVALBOARD_STORE_CAPACITY"`
	Key      string `yaml:"key" envconfig:"EVALBOARD_STORE_KEY"`
	RedisURL string `yaml:"redis_url" envconfig:"EVALBOARD_REDIS_URL"`
}

// FetcherConfig points at the report endpoint.
type FetcherConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"EVALBOARD_FETCHER_BASE_URL"`
	Path              string        `yaml:"path" envconfig:"EVALBOARD_FETCHER_PATH"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"EVALBOARD_FETCHER_TIMEOUT"`
	RateLimit         float64       `yaml:"rate_limit" envconfig:"EVALBOARD_FETCHER_RATE_LIMIT"` // 0 = unlimited
	Burst             int           `yaml:"burst" envconfig:"EVALBOARD_FETCHER_BURST"`
	MinTotalQuestions int           `yaml:"min_total_questions" envconfig:"EVALBOARD_FETCHER_MIN_TOTAL_QUESTIONS"`
}

// WarmConfig lists filters preloaded by the warm command.
type WarmConfig struct {
	Concurrency int                `yaml:"concurrency" envconfig:"EVALBOARD_WARM_CONCURRENCY"`
	Filters     []models.FilterKey `yaml:"filters" ignored:"true"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "evalboard.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Backend:  "sqlite",
			Capacity: 10,
			Key:      "experimentReportCache",
			RedisURL: "redis://localhost:6379",
		},
		Fetcher: FetcherConfig{
			BaseURL: "http://localhost:3000",
			Path:    "/api/experiment-report",
			Timeout: 30 * time.Second,
			Burst:   1,
		},
		History: models.HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Warm: WarmConfig{
			Concurrency: 2,
		},
	}
}

// Load reads an optional YAML config file, expands environment variables in
// it, applies EVALBOARD_* overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	if cfg.History.DBPath == "" {
		cfg.History.DBPath = cfg.DBPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the rest of the program
// cannot work with.
func (c *Config) Validate() error {
	var errs []string

	validBackends := map[string]bool{"sqlite": true, "redis": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		errs = append(errs, fmt.Sprintf("invalid store backend: %s (must be sqlite, redis, or memory)", c.Store.Backend))
	}
	if c.Store.Capacity < 1 {
		errs = append(errs, "store capacity must be positive")
	}
	if strings.TrimSpace(c.Store.Key) == "" {
		errs = append(errs, "store key must not be empty")
	}
	if c.Store.Backend == "sqlite" && c.DBPath == "" {
		errs = append(errs, "db_path is required for the sqlite backend")
	}

	if c.Fetcher.RateLimit < 0 {
		errs = append(errs, "fetcher rate_limit must not be negative")
	}
	if c.Fetcher.MinTotalQuestions < 0 {
		errs = append(errs, "fetcher min_total_questions must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.History.RetentionDays < 0 {
		errs = append(errs, "history retention_days must not be negative")
	}
	if c.Warm.Concurrency < 1 {
		errs = append(errs, "warm concurrency must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
