package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessiond/internal/config"
	"github.com/fyrsmithlabs/sessiond/internal/gate"
)

func defaultEvaluator() *Evaluator {
	return NewEvaluator(config.AlertsConfig{
		Thresholds: config.ThresholdsConfig{
			Critical: config.RateThresholds{FailureRate: 0.5, TimeoutRate: 0.5},
			High:     config.RateThresholds{FailureRate: 0.3, TimeoutRate: 0.4},
			Medium:   config.RateThresholds{FailureRate: 0.2, TimeoutRate: 0.3},
			Low:      config.RateThresholds{FailureRate: 0.05, TimeoutRate: 0.1},
		},
	}, zap.NewNop())
}

func results(passed, failed, timedOut int) []gate.Result {
	var rs []gate.Result
	for i := 0; i < passed; i++ {
		rs = append(rs, gate.Result{Status: gate.StatusPassed})
	}
	for i := 0; i < failed; i++ {
		rs = append(rs, gate.Result{Status: gate.StatusFailed})
	}
	for i := 0; i < timedOut; i++ {
		rs = append(rs, gate.Result{Status: gate.StatusTimeout})
	}
	return rs
}

func TestEvaluator_Evaluate_Empty(t *testing.T) {
	eval := defaultEvaluator().Evaluate(nil)

	assert.Nil(t, eval.Alert)
	assert.Zero(t, eval.FailureRate)
	assert.Zero(t, eval.TimeoutRate)
	assert.False(t, eval.BlocksSession)
}

func TestEvaluator_Evaluate_CriticalBlocksSession(t *testing.T) {
	// 4 of 8 gates failing meets the 0.5 CRITICAL threshold.
	eval := defaultEvaluator().Evaluate(results(4, 4, 0))

	require.NotNil(t, eval.Alert)
	assert.Equal(t, SeverityCritical, eval.Alert.Severity)
	assert.Equal(t, CategoryFailureRate, eval.Alert.Category)
	assert.True(t, eval.BlocksSession)
	assert.InDelta(t, 0.5, eval.FailureRate, 1e-9)
	assert.Equal(t, "8", eval.Alert.Context["total"])
}

func TestEvaluator_Evaluate_InclusiveBoundary(t *testing.T) {
	// 1 of 20 = 0.05 exactly meets the LOW boundary.
	eval := defaultEvaluator().Evaluate(results(19, 1, 0))

	require.NotNil(t, eval.Alert)
	assert.Equal(t, SeverityLow, eval.Alert.Severity)
	assert.False(t, eval.BlocksSession)
}

func TestEvaluator_Evaluate_BelowEveryThreshold(t *testing.T) {
	// 1 of 25 = 0.04 sits below the 0.05 LOW boundary.
	eval := defaultEvaluator().Evaluate(results(24, 1, 0))

	assert.Nil(t, eval.Alert)
	assert.False(t, eval.BlocksSession)
}

func TestEvaluator_Evaluate_AllPassed(t *testing.T) {
	eval := defaultEvaluator().Evaluate(results(10, 0, 0))

	assert.Nil(t, eval.Alert)
}

func TestEvaluator_Evaluate_TimeoutRate(t *testing.T) {
	// 2 of 5 timed out: 0.4 meets the HIGH timeout threshold while the
	// failure rate stays at zero.
	eval := defaultEvaluator().Evaluate(results(3, 0, 2))

	require.NotNil(t, eval.Alert)
	assert.Equal(t, SeverityHigh, eval.Alert.Severity)
	assert.Equal(t, CategoryTimeoutRate, eval.Alert.Category)
	assert.False(t, eval.BlocksSession)
}

func TestEvaluator_Evaluate_SingleAlertPerRun(t *testing.T) {
	// Both rates trip multiple severities; only the highest one with
	// failure rate preferred is emitted.
	eval := defaultEvaluator().Evaluate(results(0, 3, 3))

	require.NotNil(t, eval.Alert)
	assert.Equal(t, SeverityCritical, eval.Alert.Severity)
	assert.Equal(t, CategoryFailureRate, eval.Alert.Category)
}

func TestEvaluator_Evaluate_SkippedGatesCountTowardTotal(t *testing.T) {
	rs := results(1, 1, 0)
	rs = append(rs, gate.Result{Status: gate.StatusSkipped}, gate.Result{Status: gate.StatusSkipped})

	eval := defaultEvaluator().Evaluate(rs)

	assert.InDelta(t, 0.25, eval.FailureRate, 1e-9)
}

func TestEvaluator_Evaluate_ZeroThresholdDisabled(t *testing.T) {
	e := NewEvaluator(config.AlertsConfig{
		Thresholds: config.ThresholdsConfig{
			Critical: config.RateThresholds{FailureRate: 0.5},
		},
	}, zap.NewNop())

	eval := e.Evaluate(results(5, 0, 0))
	assert.Nil(t, eval.Alert, "zero-valued thresholds must not alert on clean runs")

	eval = e.Evaluate(results(0, 5, 0))
	require.NotNil(t, eval.Alert)
	assert.Equal(t, SeverityCritical, eval.Alert.Severity)
}
