package gate

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/sessiond/internal/gate"

// Runner executes a single gate as a subprocess with a hard timeout.
type Runner struct {
	workingDir string
	maxOutput  int
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewRunner creates a runner. workingDir may be empty for the current
// directory; maxOutput bounds captured combined output in bytes.
func NewRunner(workingDir string, maxOutput int, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxOutput <= 0 {
		maxOutput = 64 * 1024
	}
	return &Runner{
		workingDir: workingDir,
		maxOutput:  maxOutput,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
	}
}

// Run executes the gate's command and always produces a Result: non-zero
// exits, timeouts, and launch failures (missing binary, permission
// denied) are recorded, never raised to the caller.
func (r *Runner) Run(ctx context.Context, g Gate) Result {
	ctx, span := r.tracer.Start(ctx, "gate.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("gate", g.Name),
		attribute.Bool("critical", g.Critical),
	)

	// A parent deadline already hit (global ceiling) means the gate
	// never starts; record it as timed out, not silently dropped.
	if err := ctx.Err(); err != nil {
		span.SetAttributes(attribute.String("status", string(StatusTimeout)))
		return Result{
			Name:   g.Name,
			Status: StatusTimeout,
			Error:  "global timeout exceeded before gate started",
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	var buf boundedBuffer
	buf.max = r.maxOutput

	start := time.Now()
	cmd := exec.CommandContext(runCtx, "sh", "-c", g.Command)
	cmd.Dir = r.workingDir
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Name:     g.Name,
		Duration: duration,
		Output:   buf.String(),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		result.Status = StatusTimeout
		result.Error = fmt.Sprintf("timeout after %s", g.Timeout)
	case ctx.Err() != nil:
		result.Status = StatusTimeout
		result.Error = "global timeout exceeded"
	case err != nil:
		// Covers non-zero exits and launch failures alike.
		result.Status = StatusFailed
		result.Error = err.Error()
	default:
		result.Status = StatusPassed
	}

	r.logger.Debug("gate executed",
		zap.String("gate", g.Name),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", duration),
	)
	span.SetAttributes(attribute.String("status", string(result.Status)))

	return result
}

// boundedBuffer captures subprocess output up to max bytes, discarding
// the rest so pathological command output cannot grow without bound.
type boundedBuffer struct {
	mu        sync.Mutex
	max       int
	data      []byte
	truncated bool
}

// Write implements io.Writer. Writes beyond max are accepted but
// dropped; commands must not see write errors from output capture.
func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - len(b.data)
	if remaining > 0 {
		if len(p) <= remaining {
			b.data = append(b.data, p...)
		} else {
			b.data = append(b.data, p[:remaining]...)
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return string(b.data) + "\n... [output truncated]"
	}
	return string(b.data)
}
