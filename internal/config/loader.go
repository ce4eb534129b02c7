package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces sessiond environment overrides.
	envPrefix = "SESSIOND_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SESSIOND_ORCHESTRATOR_GLOBAL_TIMEOUT, ...)
//  2. YAML config file (~/.sessiond/config.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables are mapped by stripping the SESSIOND_ prefix,
// lowercasing, and splitting on the first underscore:
//
//	SESSIOND_LOGGING_LEVEL          -> logging.level
//	SESSIOND_ORCHESTRATOR_PARALLEL  -> orchestrator.parallel
//	SESSIOND_BACKUP_KEEP            -> backup.keep
//	SESSIOND_STATE_DIR              -> state_dir
//
// Files larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".sessiond", "config.yaml")
	}

	// Load from YAML file if it exists
	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Use rawbytes provider to avoid re-opening the file
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// SESSIOND_LOGGING_LEVEL -> logging.level
		// Split on first underscore only (section.field_name pattern),
		// keeping underscores inside the field name.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		// state_dir is the only compound top-level key; splitting it
		// would produce state.dir, which matches nothing.
		if lower == "state_dir" {
			return lower
		}
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	expandPaths(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureStateDir creates the sessiond state directory if it doesn't exist.
// The directory is created with 0700 permissions (owner only).
func EnsureStateDir(cfg *Config) error {
	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", cfg.StateDir, err)
	}
	return nil
}

// expandPaths resolves a leading ~ in every configured path.
func expandPaths(cfg *Config) {
	cfg.StateDir = expandHome(cfg.StateDir)
	cfg.Backup.Dir = expandHome(cfg.Backup.Dir)
	cfg.Handoff.Dir = expandHome(cfg.Handoff.Dir)
	cfg.KPI.Path = expandHome(cfg.KPI.Path)
	cfg.Orchestrator.WorkingDir = expandHome(cfg.Orchestrator.WorkingDir)

	for i, p := range cfg.Backup.Files {
		cfg.Backup.Files[i] = expandHome(p)
	}
	for i, p := range cfg.Handoff.ContextFiles {
		cfg.Handoff.ContextFiles[i] = expandHome(p)
	}
}

// expandHome replaces a leading ~ with the user's home directory. Paths
// are returned unchanged when the home directory cannot be resolved.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
