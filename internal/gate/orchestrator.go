package gate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

// Summary aggregates one orchestration run.
type Summary struct {
	// Results holds exactly one entry per gate, in declaration order
	// regardless of completion order.
	Results []Result `json:"results"`

	// Passed is false when any critical gate failed or timed out.
	Passed bool `json:"passed"`

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration `json:"duration"`
}

// Failed counts gates with StatusFailed.
func (s *Summary) Failed() int {
	return s.count(StatusFailed)
}

// TimedOut counts gates with StatusTimeout.
func (s *Summary) TimedOut() int {
	return s.count(StatusTimeout)
}

// Skipped counts gates with StatusSkipped.
func (s *Summary) Skipped() int {
	return s.count(StatusSkipped)
}

func (s *Summary) count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Orchestrator runs a set of gates and aggregates their results.
//
// Fail-fast policy: in sequential mode a critical failure skips every
// gate not yet started. In parallel mode in-flight gates always run to
// completion; a critical failure never cancels them, and only the
// global ceiling aborts pending work. The worker limit is a concurrency
// bound, not staged batches: gates queued behind it still start after a
// critical failure, so every result is real rather than skipped.
type Orchestrator struct {
	runner        *Runner
	parallel      bool
	failFast      bool
	globalTimeout time.Duration
	maxWorkers    int
	logger        *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	runCounter  metric.Int64Counter
	gateCounter metric.Int64Counter
}

// NewOrchestrator creates an orchestrator from configuration.
func NewOrchestrator(cfg config.OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 4
	}

	o := &Orchestrator{
		runner:        NewRunner(cfg.WorkingDir, cfg.MaxOutputBytes, logger),
		parallel:      cfg.IsParallel(),
		failFast:      cfg.IsFailFast(),
		globalTimeout: cfg.GlobalTimeout.Duration(),
		maxWorkers:    maxWorkers,
		logger:        logger,
		tracer:        otel.Tracer(instrumentationName),
		meter:         otel.Meter(instrumentationName),
	}

	o.initMetrics()
	return o
}

func (o *Orchestrator) initMetrics() {
	var err error

	o.runCounter, err = o.meter.Int64Counter(
		"sessiond.gates.runs_total",
		metric.WithDescription("Total number of gate orchestration runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		o.logger.Warn("failed to create run counter", zap.Error(err))
	}

	o.gateCounter, err = o.meter.Int64Counter(
		"sessiond.gates.executions_total",
		metric.WithDescription("Total number of individual gate executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		o.logger.Warn("failed to create gate counter", zap.Error(err))
	}
}

// Execute runs the given gates and returns one Result per gate in
// declaration order. Individual gate failures are data in the Summary,
// never an error.
func (o *Orchestrator) Execute(ctx context.Context, gates []Gate) *Summary {
	ctx, span := o.tracer.Start(ctx, "gates.execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gate_count", len(gates)),
		attribute.Bool("parallel", o.parallel),
	)

	start := time.Now()

	var results []Result
	if o.parallel {
		results = o.executeParallel(ctx, gates)
	} else {
		results = o.executeSequential(ctx, gates)
	}

	summary := &Summary{
		Results:  results,
		Passed:   overallPassed(gates, results),
		Duration: time.Since(start),
	}

	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("passed", summary.Passed),
		))
	}
	if o.gateCounter != nil {
		for _, r := range results {
			o.gateCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("status", string(r.Status)),
			))
		}
	}

	o.logger.Info("gate run complete",
		zap.Int("gates", len(gates)),
		zap.Int("failed", summary.Failed()),
		zap.Int("timed_out", summary.TimedOut()),
		zap.Int("skipped", summary.Skipped()),
		zap.Bool("passed", summary.Passed),
		zap.Duration("duration", summary.Duration),
	)
	span.SetAttributes(attribute.Bool("passed", summary.Passed))

	return summary
}

// executeParallel starts all gates concurrently, bounded by maxWorkers,
// under the global ceiling. Results are indexed by declaration position
// so completion order never leaks into the output.
func (o *Orchestrator) executeParallel(ctx context.Context, gates []Gate) []Result {
	ctx, cancel := context.WithTimeout(ctx, o.globalTimeout)
	defer cancel()

	results := make([]Result, len(gates))

	var group errgroup.Group
	group.SetLimit(o.maxWorkers)
	for i, g := range gates {
		group.Go(func() error {
			results[i] = o.runner.Run(ctx, g)
			return nil
		})
	}
	// Workers never return errors; results carry all failures.
	_ = group.Wait()

	return results
}

// executeSequential runs gates one at a time in declaration order. With
// fail-fast, a critical gate that does not pass skips the remainder.
func (o *Orchestrator) executeSequential(ctx context.Context, gates []Gate) []Result {
	ctx, cancel := context.WithTimeout(ctx, o.globalTimeout)
	defer cancel()

	results := make([]Result, 0, len(gates))

	for i, g := range gates {
		result := o.runner.Run(ctx, g)
		results = append(results, result)

		if o.failFast && g.Critical && !result.Success() {
			o.logger.Warn("critical gate failed, skipping remaining gates",
				zap.String("gate", g.Name),
				zap.Int("skipped", len(gates)-i-1),
			)
			for _, skipped := range gates[i+1:] {
				results = append(results, Result{
					Name:   skipped.Name,
					Status: StatusSkipped,
					Error:  "skipped after critical gate failure",
				})
			}
			break
		}
	}

	return results
}

// overallPassed is the exit signal for the run: any critical gate that
// failed or timed out forces failure regardless of other results.
func overallPassed(gates []Gate, results []Result) bool {
	critical := make(map[string]bool, len(gates))
	for _, g := range gates {
		if g.Critical {
			critical[g.Name] = true
		}
	}
	for _, r := range results {
		if critical[r.Name] && (r.Status == StatusFailed || r.Status == StatusTimeout) {
			return false
		}
	}
	return true
}
