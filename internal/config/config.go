// Package config loads lattice runtime configuration from an optional YAML
// file and LATTICE_* environment variables. The environment wins.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration of the CLI and embedders.
type Config struct {
	Database    string            `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Policy      string            `yaml:"policy,omitempty"`
	Seed        string            `yaml:"seed,omitempty"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CheckpointsConfig tunes checkpoint leasing.
type CheckpointsConfig struct {
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database:    "lattice.db",
		Log:         LogConfig{Level: "info", Format: "text"},
		Checkpoints: CheckpointsConfig{LeaseTTL: 30 * time.Second},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database = getEnv("LATTICE_DB", c.Database)
	c.Log.Level = getEnv("LATTICE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LATTICE_LOG_FORMAT", c.Log.Format)
	c.Policy = getEnv("LATTICE_POLICY", c.Policy)
	c.Seed = getEnv("LATTICE_SEED", c.Seed)
	c.Checkpoints.LeaseTTL = getEnvDuration("LATTICE_LEASE_TTL", c.Checkpoints.LeaseTTL)
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("config: database is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format %q must be text or json", c.Log.Format)
	}
	if c.Checkpoints.LeaseTTL <= 0 {
		return fmt.Errorf("config: checkpoints.lease_ttl must be positive, got %s", c.Checkpoints.LeaseTTL)
	}
	return nil
}

// NewLogger builds the configured slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return l, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
