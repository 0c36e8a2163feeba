package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all LeaseGate configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Governor GovernorConfig `yaml:"governor"`
	Policy   PolicyConfig   `yaml:"policy"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ListenConfig controls the governor's socket.
// Network is "unix" (default) or "tcp".
type ListenConfig struct {
	Network       string        `yaml:"network"`
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	MaxFrameBytes int           `yaml:"max_frame_bytes"`
}

// GovernorConfig sets the admission limits.
type GovernorConfig struct {
	MaxInFlight      int           `yaml:"max_in_flight"`
	DailyBudgetCents int           `yaml:"daily_budget_cents"`
	LeaseTTL         time.Duration `yaml:"lease_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// PolicyConfig locates the policy file. An empty path allows everything.
type PolicyConfig struct {
	Path      string `yaml:"path"`
	HotReload bool   `yaml:"hot_reload"`
}

// AuditConfig selects the audit sink.
// Sink is "jsonl" (default), "sqlite", "both" or "none".
type AuditConfig struct {
	Sink          string `yaml:"sink"`
	Dir           string `yaml:"dir"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// MetricsConfig controls the Prometheus listener. An empty address disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Network:       "unix",
			Address:       "/tmp/leasegate.sock",
			ReadTimeout:   5 * time.Second,
			MaxFrameBytes: 16 << 20,
		},
		Governor: GovernorConfig{
			MaxInFlight:      4,
			DailyBudgetCents: 500,
			LeaseTTL:         20 * time.Second,
			SweepInterval:    time.Second,
		},
		Audit: AuditConfig{
			Sink:          "jsonl",
			Dir:           "audit",
			DBPath:        "leasegate-audit.db",
			RetentionDays: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Listen.Network {
	case "unix", "tcp":
	default:
		errs = append(errs, fmt.Errorf("listen.network: unsupported %q", c.Listen.Network))
	}
	if c.Listen.Address == "" {
		errs = append(errs, errors.New("listen.address: required"))
	}
	if c.Listen.ReadTimeout < 0 {
		errs = append(errs, errors.New("listen.read_timeout: must not be negative"))
	}
	if c.Listen.MaxFrameBytes < 0 {
		errs = append(errs, errors.New("listen.max_frame_bytes: must not be negative"))
	}
	if c.Governor.MaxInFlight < 0 {
		errs = append(errs, errors.New("governor.max_in_flight: must not be negative"))
	}
	if c.Governor.DailyBudgetCents < 0 {
		errs = append(errs, errors.New("governor.daily_budget_cents: must not be negative"))
	}
	if c.Governor.LeaseTTL <= 0 {
		errs = append(errs, errors.New("governor.lease_ttl: must be positive"))
	}
	if c.Governor.SweepInterval <= 0 {
		errs = append(errs, errors.New("governor.sweep_interval: must be positive"))
	}
	switch c.Audit.Sink {
	case "jsonl", "sqlite", "both", "none":
	default:
		errs = append(errs, fmt.Errorf("audit.sink: unsupported %q", c.Audit.Sink))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, errors.New("audit.retention_days: must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
