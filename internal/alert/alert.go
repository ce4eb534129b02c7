// Package alert maps aggregate gate statistics to escalation severities.
//
// The evaluator derives a failure rate and a timeout rate from a run's
// results and walks the configured threshold table from CRITICAL down,
// emitting at most one alert per evaluation. Only CRITICAL blocks
// session termination; every other severity is advisory.
package alert

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessiond/internal/config"
	"github.com/fyrsmithlabs/sessiond/internal/gate"
)

// Severity is an ordered escalation level, CRITICAL highest.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Alert categories name the metric that tripped the threshold.
const (
	CategoryFailureRate = "failure_rate"
	CategoryTimeoutRate = "timeout_rate"
)

// Alert is one emitted escalation. Alerts are ephemeral values; sinks
// such as the KPI log may persist them, the evaluator never does.
type Alert struct {
	Severity  Severity          `json:"severity"`
	Category  string            `json:"category"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// Evaluation is the outcome of evaluating one gate run.
type Evaluation struct {
	// Alert is nil when every rate is below every threshold.
	Alert *Alert `json:"alert,omitempty"`

	FailureRate float64 `json:"failure_rate"`
	TimeoutRate float64 `json:"timeout_rate"`

	// BlocksSession is true only for a CRITICAL alert.
	BlocksSession bool `json:"blocks_session"`
}

// Evaluator applies a severity threshold table to gate results.
type Evaluator struct {
	thresholds config.ThresholdsConfig
	logger     *zap.Logger
}

// NewEvaluator creates an evaluator. The threshold table is assumed
// validated (monotonically non-increasing as severity decreases).
func NewEvaluator(cfg config.AlertsConfig, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		thresholds: cfg.Thresholds,
		logger:     logger,
	}
}

// Evaluate computes failure and timeout rates for the results and emits
// the highest severity whose threshold either rate meets or exceeds.
// An empty result set produces rates of zero and no alert, never a
// division error. Evaluation has no side effects beyond constructing
// the Alert value.
func (e *Evaluator) Evaluate(results []gate.Result) Evaluation {
	eval := Evaluation{}
	if len(results) == 0 {
		return eval
	}

	total := len(results)
	failed := 0
	timedOut := 0
	for _, r := range results {
		switch r.Status {
		case gate.StatusFailed:
			failed++
		case gate.StatusTimeout:
			timedOut++
		}
	}

	eval.FailureRate = float64(failed) / float64(total)
	eval.TimeoutRate = float64(timedOut) / float64(total)

	ordered := []struct {
		severity Severity
		rates    config.RateThresholds
	}{
		{SeverityCritical, e.thresholds.Critical},
		{SeverityHigh, e.thresholds.High},
		{SeverityMedium, e.thresholds.Medium},
		{SeverityLow, e.thresholds.Low},
	}

	for _, entry := range ordered {
		category, rate, threshold, ok := tripped(entry.rates, eval.FailureRate, eval.TimeoutRate)
		if !ok {
			continue
		}

		eval.Alert = &Alert{
			Severity:  entry.severity,
			Category:  category,
			Message:   fmt.Sprintf("%s %.1f%% >= threshold %.1f%%", category, rate*100, threshold*100),
			Source:    "gates",
			Timestamp: time.Now().UTC(),
			Context: map[string]string{
				"failed":    fmt.Sprintf("%d", failed),
				"timed_out": fmt.Sprintf("%d", timedOut),
				"total":     fmt.Sprintf("%d", total),
			},
		}
		eval.BlocksSession = entry.severity == SeverityCritical

		e.logger.Warn("quality alert",
			zap.String("severity", string(entry.severity)),
			zap.String("category", category),
			zap.Float64("failure_rate", eval.FailureRate),
			zap.Float64("timeout_rate", eval.TimeoutRate),
			zap.Bool("blocks_session", eval.BlocksSession),
		)
		break
	}

	return eval
}

// tripped checks one severity's thresholds against both rates. A zero
// threshold disables that metric for the severity, so a partially
// configured table cannot alert on every clean run. Failure rate wins
// when both metrics trip.
func tripped(rates config.RateThresholds, failureRate, timeoutRate float64) (category string, rate, threshold float64, ok bool) {
	if rates.FailureRate > 0 && failureRate >= rates.FailureRate {
		return CategoryFailureRate, failureRate, rates.FailureRate, true
	}
	if rates.TimeoutRate > 0 && timeoutRate >= rates.TimeoutRate {
		return CategoryTimeoutRate, timeoutRate, rates.TimeoutRate, true
	}
	return "", 0, 0, false
}
