// Package config provides configuration loading for sessiond.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults. It carries the gate definitions, the
// alert threshold table, and storage settings for backups and handoffs.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Config holds the complete sessiond configuration.
type Config struct {
	// StateDir is the root directory for sessiond state
	// (backups, handoffs, KPI events). Default: ~/.sessiond
	StateDir string `koanf:"state_dir"`

	Gates        []GateConfig       `koanf:"gates"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Alerts       AlertsConfig       `koanf:"alerts"`
	Backup       BackupConfig       `koanf:"backup"`
	Handoff      HandoffConfig      `koanf:"handoff"`
	KPI          KPIConfig          `koanf:"kpi"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// GateConfig declares one verification command.
type GateConfig struct {
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	Command     string `koanf:"command"`

	// Required marks the gate as must-pass (vs informational).
	// Defaults to true when omitted.
	Required *bool `koanf:"required"`

	// Critical gates can block session end on failure.
	Critical bool `koanf:"critical"`

	// Timeout is the per-gate execution deadline (default: 60s).
	Timeout Duration `koanf:"timeout"`

	// FilePatterns are doublestar globs; the gate only applies when a
	// changed file matches one of them. Empty means always applicable.
	FilePatterns []string `koanf:"file_patterns"`
}

// IsRequired reports whether the gate is must-pass, defaulting to true.
func (g GateConfig) IsRequired() bool {
	return g.Required == nil || *g.Required
}

// OrchestratorConfig holds gate execution settings.
type OrchestratorConfig struct {
	// Parallel runs all applicable gates concurrently.
	// Defaults to true when omitted.
	Parallel *bool `koanf:"parallel"`

	// FailFast skips not-yet-started gates after a critical failure
	// in sequential mode. Defaults to true when omitted.
	FailFast *bool `koanf:"fail_fast"`

	// GlobalTimeout is the wall-clock ceiling for a whole run (default: 5m).
	GlobalTimeout Duration `koanf:"global_timeout"`

	// MaxWorkers bounds concurrent gate subprocesses (default: 4).
	MaxWorkers int `koanf:"max_workers"`

	// MaxOutputBytes bounds captured gate output (default: 64KiB).
	MaxOutputBytes int `koanf:"max_output_bytes"`

	// WorkingDir is where gate commands execute (default: current directory).
	WorkingDir string `koanf:"working_dir"`
}

// IsParallel reports whether gates run concurrently, defaulting to true.
func (o OrchestratorConfig) IsParallel() bool {
	return o.Parallel == nil || *o.Parallel
}

// IsFailFast reports whether sequential runs stop after a critical
// failure, defaulting to true.
func (o OrchestratorConfig) IsFailFast() bool {
	return o.FailFast == nil || *o.FailFast
}

// AlertsConfig holds the severity threshold table.
type AlertsConfig struct {
	Thresholds ThresholdsConfig `koanf:"thresholds"`
}

// ThresholdsConfig maps severities to rate thresholds, CRITICAL first.
// Thresholds must be monotonically non-increasing as severity decreases.
type ThresholdsConfig struct {
	Critical RateThresholds `koanf:"critical"`
	High     RateThresholds `koanf:"high"`
	Medium   RateThresholds `koanf:"medium"`
	Low      RateThresholds `koanf:"low"`
}

// RateThresholds holds failure-rate and timeout-rate boundaries for one
// severity. A rate meeting or exceeding a boundary trips the severity.
type RateThresholds struct {
	FailureRate float64 `koanf:"failure_rate"`
	TimeoutRate float64 `koanf:"timeout_rate"`
}

// BackupConfig holds snapshot storage settings.
type BackupConfig struct {
	// Dir is the backup root (default: <state_dir>/backups).
	Dir string `koanf:"dir"`

	// Keep is how many backups retention pruning preserves (default: 10).
	Keep int `koanf:"keep"`

	// Files are the default files snapshotted on pre-compact.
	Files []string `koanf:"files"`
}

// HandoffConfig holds handoff storage settings.
type HandoffConfig struct {
	// Dir is the handoff root (default: <state_dir>/handoffs).
	Dir string `koanf:"dir"`

	// Keep is how many handoffs retention pruning preserves (default: 30).
	Keep int `koanf:"keep"`

	// ContextFiles are read (bounded) into the context snapshot.
	ContextFiles []string `koanf:"context_files"`

	// MaxContextFileBytes caps the per-file snapshot read (default: 16KiB).
	MaxContextFileBytes int `koanf:"max_context_file_bytes"`
}

// KPIConfig holds KPI event log settings.
type KPIConfig struct {
	// Enabled turns on JSONL event recording. Defaults to true.
	Enabled *bool `koanf:"enabled"`

	// Path is the events file (default: <state_dir>/kpis/events.jsonl).
	Path string `koanf:"path"`
}

// IsEnabled reports whether KPI recording is on, defaulting to true.
func (k KPIConfig) IsEnabled() bool {
	return k.Enabled == nil || *k.Enabled
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `koanf:"level"`

	// Format is json or console (default: console).
	Format string `koanf:"format"`

	// Fields are constant fields attached to every record.
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns configuration with production-ready defaults
// and no gates defined.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.StateDir == "" {
		cfg.StateDir = "~/.sessiond"
	}

	// Gate defaults
	for i := range cfg.Gates {
		if cfg.Gates[i].Required == nil {
			required := true
			cfg.Gates[i].Required = &required
		}
		if cfg.Gates[i].Timeout == 0 {
			cfg.Gates[i].Timeout = Duration(60 * time.Second)
		}
	}

	// Orchestrator defaults
	if cfg.Orchestrator.GlobalTimeout == 0 {
		cfg.Orchestrator.GlobalTimeout = Duration(5 * time.Minute)
	}
	if cfg.Orchestrator.MaxWorkers == 0 {
		cfg.Orchestrator.MaxWorkers = 4
	}
	if cfg.Orchestrator.MaxOutputBytes == 0 {
		cfg.Orchestrator.MaxOutputBytes = 64 * 1024
	}

	// Alert threshold defaults, tripping CRITICAL at half the gates failing
	if cfg.Alerts.Thresholds == (ThresholdsConfig{}) {
		cfg.Alerts.Thresholds = ThresholdsConfig{
			Critical: RateThresholds{FailureRate: 0.5, TimeoutRate: 0.5},
			High:     RateThresholds{FailureRate: 0.3, TimeoutRate: 0.4},
			Medium:   RateThresholds{FailureRate: 0.2, TimeoutRate: 0.3},
			Low:      RateThresholds{FailureRate: 0.05, TimeoutRate: 0.1},
		}
	}

	// Storage defaults
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = filepath.Join(cfg.StateDir, "backups")
	}
	if cfg.Handoff.Dir == "" {
		cfg.Handoff.Dir = filepath.Join(cfg.StateDir, "handoffs")
	}
	if cfg.KPI.Path == "" {
		cfg.KPI.Path = filepath.Join(cfg.StateDir, "kpis", "events.jsonl")
	}
	if cfg.Backup.Keep == 0 {
		cfg.Backup.Keep = 10
	}
	if cfg.Handoff.Keep == 0 {
		cfg.Handoff.Keep = 30
	}
	if cfg.Handoff.MaxContextFileBytes == 0 {
		cfg.Handoff.MaxContextFileBytes = 16 * 1024
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return errors.New("state_dir cannot be empty")
	}

	seen := make(map[string]bool, len(c.Gates))
	for i, g := range c.Gates {
		if g.Name == "" {
			return fmt.Errorf("gate %d: name cannot be empty", i)
		}
		if seen[g.Name] {
			return fmt.Errorf("duplicate gate name: %s", g.Name)
		}
		seen[g.Name] = true

		if g.Command == "" {
			return fmt.Errorf("gate %s: command cannot be empty", g.Name)
		}
		if g.Timeout.Duration() <= 0 {
			return fmt.Errorf("gate %s: timeout must be positive", g.Name)
		}
		for _, pattern := range g.FilePatterns {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("gate %s: invalid file pattern %q", g.Name, pattern)
			}
		}
	}

	if c.Orchestrator.GlobalTimeout.Duration() <= 0 {
		return errors.New("orchestrator global_timeout must be positive")
	}
	if c.Orchestrator.MaxWorkers < 1 {
		return errors.New("orchestrator max_workers must be >= 1")
	}
	if c.Orchestrator.MaxOutputBytes <= 0 {
		return errors.New("orchestrator max_output_bytes must be positive")
	}

	if err := c.Alerts.Thresholds.Validate(); err != nil {
		return fmt.Errorf("alert thresholds: %w", err)
	}

	if c.Backup.Keep < 1 {
		return errors.New("backup keep must be >= 1")
	}
	if c.Handoff.Keep < 1 {
		return errors.New("handoff keep must be >= 1")
	}
	if c.Handoff.MaxContextFileBytes < 1 {
		return errors.New("handoff max_context_file_bytes must be >= 1")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}

// Validate checks ranges and the monotonicity invariant: each rate
// threshold must not increase as severity decreases, so a single
// CRITICAL-downward scan emits at most one severity.
func (t *ThresholdsConfig) Validate() error {
	ordered := []struct {
		name  string
		rates RateThresholds
	}{
		{"critical", t.Critical},
		{"high", t.High},
		{"medium", t.Medium},
		{"low", t.Low},
	}

	for _, entry := range ordered {
		if entry.rates.FailureRate < 0 || entry.rates.FailureRate > 1 {
			return fmt.Errorf("%s failure_rate must be in [0,1], got %v", entry.name, entry.rates.FailureRate)
		}
		if entry.rates.TimeoutRate < 0 || entry.rates.TimeoutRate > 1 {
			return fmt.Errorf("%s timeout_rate must be in [0,1], got %v", entry.name, entry.rates.TimeoutRate)
		}
	}

	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if cur.rates.FailureRate > prev.rates.FailureRate {
			return fmt.Errorf("%s failure_rate (%v) exceeds %s failure_rate (%v)",
				cur.name, cur.rates.FailureRate, prev.name, prev.rates.FailureRate)
		}
		if cur.rates.TimeoutRate > prev.rates.TimeoutRate {
			return fmt.Errorf("%s timeout_rate (%v) exceeds %s timeout_rate (%v)",
				cur.name, cur.rates.TimeoutRate, prev.name, prev.rates.TimeoutRate)
		}
	}

	return nil
}
