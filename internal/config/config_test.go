package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "~/.sessiond", cfg.StateDir)
	assert.Empty(t, cfg.Gates)
	assert.True(t, cfg.Orchestrator.IsParallel())
	assert.True(t, cfg.Orchestrator.IsFailFast())
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.GlobalTimeout.Duration())
	assert.Equal(t, 64*1024, cfg.Orchestrator.MaxOutputBytes)
	assert.Equal(t, 10, cfg.Backup.Keep)
	assert.Equal(t, 30, cfg.Handoff.Keep)
	assert.True(t, cfg.KPI.IsEnabled())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestNewDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())
}

func TestGateConfig_IsRequired(t *testing.T) {
	var g GateConfig
	assert.True(t, g.IsRequired(), "required defaults to true")

	required := false
	g.Required = &required
	assert.False(t, g.IsRequired())
}

func TestConfig_Validate_Gates(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty gate name",
			mutate: func(c *Config) {
				c.Gates = []GateConfig{{Command: "true"}}
				applyDefaults(c)
			},
			wantErr: "name cannot be empty",
		},
		{
			name: "duplicate gate name",
			mutate: func(c *Config) {
				c.Gates = []GateConfig{
					{Name: "lint", Command: "true"},
					{Name: "lint", Command: "false"},
				}
				applyDefaults(c)
			},
			wantErr: "duplicate gate name",
		},
		{
			name: "empty command",
			mutate: func(c *Config) {
				c.Gates = []GateConfig{{Name: "lint"}}
				applyDefaults(c)
			},
			wantErr: "command cannot be empty",
		},
		{
			name: "negative timeout",
			mutate: func(c *Config) {
				c.Gates = []GateConfig{{Name: "lint", Command: "true", Timeout: Duration(-time.Second)}}
			},
			wantErr: "timeout must be positive",
		},
		{
			name: "invalid file pattern",
			mutate: func(c *Config) {
				c.Gates = []GateConfig{{
					Name:         "lint",
					Command:      "true",
					FilePatterns: []string{"[invalid"},
				}}
				applyDefaults(c)
			},
			wantErr: "invalid file pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate_ValidGates(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Gates = []GateConfig{
		{Name: "lint", Command: "golangci-lint run", FilePatterns: []string{"**/*.go"}},
		{Name: "test", Command: "go test ./...", Critical: true},
	}
	applyDefaults(cfg)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Gates[0].Timeout.Duration())
	assert.True(t, cfg.Gates[0].IsRequired())
}

func TestThresholdsConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		thresholds ThresholdsConfig
		wantErr    string
	}{
		{
			name: "valid monotonic",
			thresholds: ThresholdsConfig{
				Critical: RateThresholds{FailureRate: 0.5, TimeoutRate: 0.5},
				High:     RateThresholds{FailureRate: 0.3, TimeoutRate: 0.4},
				Medium:   RateThresholds{FailureRate: 0.2, TimeoutRate: 0.3},
				Low:      RateThresholds{FailureRate: 0.05, TimeoutRate: 0.1},
			},
		},
		{
			name: "out of range",
			thresholds: ThresholdsConfig{
				Critical: RateThresholds{FailureRate: 1.5},
			},
			wantErr: "must be in [0,1]",
		},
		{
			name: "non-monotonic failure rate",
			thresholds: ThresholdsConfig{
				Critical: RateThresholds{FailureRate: 0.3},
				High:     RateThresholds{FailureRate: 0.5},
			},
			wantErr: "exceeds critical failure_rate",
		},
		{
			name: "non-monotonic timeout rate",
			thresholds: ThresholdsConfig{
				Critical: RateThresholds{TimeoutRate: 0.5},
				High:     RateThresholds{TimeoutRate: 0.4},
				Medium:   RateThresholds{TimeoutRate: 0.45},
			},
			wantErr: "exceeds high timeout_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.thresholds.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")), "negative durations rejected")
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := Duration(2 * time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2m0s"`, string(data))
}
