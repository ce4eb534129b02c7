// Package kpi appends session metrics to a JSONL event log.
//
// The log is a sink for continuous-improvement analysis: gate-run
// summaries, alerts, backup and handoff events. Nothing in the core
// reads it back to make decisions.
package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

// Event types recorded by sessiond.
const (
	EventGateRun    = "gate_run"
	EventAlert      = "alert"
	EventBackup     = "backup"
	EventHandoff    = "handoff"
	EventSessionEnd = "session_end"
)

// Event is one KPI record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger appends events to a JSONL file. A disabled logger records
// nothing and never errors.
type Logger struct {
	path    string
	enabled bool
	logger  *zap.Logger

	mu sync.Mutex
}

// NewLogger creates a KPI logger from configuration.
func NewLogger(cfg config.KPIConfig, logger *zap.Logger) (*Logger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IsEnabled() && cfg.Path == "" {
		return nil, errors.New("kpi path is required when enabled")
	}
	return &Logger{
		path:    cfg.Path,
		enabled: cfg.IsEnabled(),
		logger:  logger,
	}, nil
}

// Record appends one event. Failures are surfaced to the caller but are
// expected to be treated as advisory; KPI recording never gates core
// behavior.
func (l *Logger) Record(_ context.Context, event Event) error {
	if !l.enabled {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal kpi event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create kpi directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open kpi log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append kpi event: %w", err)
	}
	return nil
}

// Tail returns up to n most recent events, oldest first within the
// returned slice. Unparsable lines are skipped and logged.
func (l *Logger) Tail(n int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read kpi log: %w", err)
	}

	var events []Event
	for _, line := range splitLines(data) {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			l.logger.Warn("skipping unparsable kpi event", zap.Error(err))
			continue
		}
		events = append(events, e)
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
