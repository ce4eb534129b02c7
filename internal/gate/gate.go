package gate

import (
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

// Status is the outcome of one gate execution.
type Status string

const (
	// StatusPassed means the command exited zero.
	StatusPassed Status = "passed"

	// StatusFailed means the command exited non-zero or could not start.
	StatusFailed Status = "failed"

	// StatusTimeout means the per-gate or global deadline elapsed first.
	StatusTimeout Status = "timeout"

	// StatusSkipped means fail-fast stopped the gate before it started.
	StatusSkipped Status = "skipped"
)

// Gate declares one verification command. Immutable once loaded.
type Gate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Command     string `json:"command"`

	// Required marks the gate as must-pass rather than informational.
	Required bool `json:"required"`

	// Critical gates force an overall failure outcome and trigger
	// fail-fast when they do not pass.
	Critical bool `json:"critical"`

	// Timeout is the hard wall-clock deadline for the command.
	Timeout time.Duration `json:"timeout"`

	// FilePatterns are doublestar globs deciding whether the gate
	// applies to a change set. Empty means always applicable.
	FilePatterns []string `json:"file_patterns,omitempty"`
}

// FromConfig converts a declarative gate definition.
func FromConfig(gc config.GateConfig) Gate {
	return Gate{
		Name:         gc.Name,
		Description:  gc.Description,
		Command:      gc.Command,
		Required:     gc.IsRequired(),
		Critical:     gc.Critical,
		Timeout:      gc.Timeout.Duration(),
		FilePatterns: gc.FilePatterns,
	}
}

// GatesFromConfig converts all gate definitions, preserving order.
func GatesFromConfig(gcs []config.GateConfig) []Gate {
	gates := make([]Gate, 0, len(gcs))
	for _, gc := range gcs {
		gates = append(gates, FromConfig(gc))
	}
	return gates
}

// Applies reports whether the gate should run for the given change set.
// A gate without file patterns always applies; a pattern matches either
// the full relative path or the base name, so "*.go" covers nested files.
func (g Gate) Applies(changedFiles []string) bool {
	if len(g.FilePatterns) == 0 {
		return true
	}
	for _, file := range changedFiles {
		for _, pattern := range g.FilePatterns {
			if ok, _ := doublestar.Match(pattern, file); ok {
				return true
			}
			if ok, _ := doublestar.Match(pattern, filepath.Base(file)); ok {
				return true
			}
		}
	}
	return false
}

// Filter returns the gates applicable to the change set, in declaration
// order. A nil change set means "unknown changes": every gate applies.
func Filter(gates []Gate, changedFiles []string) []Gate {
	if changedFiles == nil {
		return gates
	}
	applicable := make([]Gate, 0, len(gates))
	for _, g := range gates {
		if g.Applies(changedFiles) {
			applicable = append(applicable, g)
		}
	}
	return applicable
}

// Result captures one gate execution. Produced exactly once per gate
// and never mutated afterwards.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Success reports whether the gate passed.
func (r Result) Success() bool {
	return r.Status == StatusPassed
}

// TimedOut reports whether the gate hit a deadline.
func (r Result) TimedOut() bool {
	return r.Status == StatusTimeout
}
