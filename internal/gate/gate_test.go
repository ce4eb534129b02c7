package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

func TestFromConfig(t *testing.T) {
	required := false
	gc := config.GateConfig{
		Name:         "lint",
		Description:  "run the linter",
		Command:      "golangci-lint run",
		Required:     &required,
		Critical:     true,
		Timeout:      config.Duration(30 * time.Second),
		FilePatterns: []string{"**/*.go"},
	}

	g := FromConfig(gc)

	assert.Equal(t, "lint", g.Name)
	assert.Equal(t, "golangci-lint run", g.Command)
	assert.False(t, g.Required)
	assert.True(t, g.Critical)
	assert.Equal(t, 30*time.Second, g.Timeout)
	assert.Equal(t, []string{"**/*.go"}, g.FilePatterns)
}

func TestGate_Applies(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		files    []string
		want     bool
	}{
		{
			name:  "no patterns always applies",
			files: []string{"README.md"},
			want:  true,
		},
		{
			name:     "no patterns applies to empty change set",
			files:    []string{},
			want:     true,
		},
		{
			name:     "doublestar match",
			patterns: []string{"**/*.go"},
			files:    []string{"internal/gate/runner.go"},
			want:     true,
		},
		{
			name:     "base name match for bare glob",
			patterns: []string{"*.go"},
			files:    []string{"internal/gate/runner.go"},
			want:     true,
		},
		{
			name:     "no match",
			patterns: []string{"*.py"},
			files:    []string{"internal/gate/runner.go", "README.md"},
			want:     false,
		},
		{
			name:     "empty change set with patterns",
			patterns: []string{"*.go"},
			files:    []string{},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Gate{Name: "g", FilePatterns: tt.patterns}
			assert.Equal(t, tt.want, g.Applies(tt.files))
		})
	}
}

func TestFilter(t *testing.T) {
	gates := []Gate{
		{Name: "go", FilePatterns: []string{"*.go"}},
		{Name: "py", FilePatterns: []string{"*.py"}},
		{Name: "always"},
	}

	filtered := Filter(gates, []string{"cmd/main.go"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "go", filtered[0].Name)
	assert.Equal(t, "always", filtered[1].Name)

	// nil change set means unknown changes: everything applies
	assert.Len(t, Filter(gates, nil), 3)
}

func TestResult_Flags(t *testing.T) {
	assert.True(t, Result{Status: StatusPassed}.Success())
	assert.False(t, Result{Status: StatusFailed}.Success())
	assert.True(t, Result{Status: StatusTimeout}.TimedOut())
	assert.False(t, Result{Status: StatusTimeout}.Success())
	assert.False(t, Result{Status: StatusSkipped}.TimedOut())
}
