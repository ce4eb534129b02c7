// Package health verifies the sessiond installation before a session
// starts: context files present and non-empty, state directories
// writable, disk headroom.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/sessiond/internal/health"

// Status is a health check outcome level.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank orders statuses from best to worst for worst-of aggregation.
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Disk headroom boundaries, in bytes.
const (
	diskUnhealthyBelow = 50 * 1024 * 1024
	diskDegradedBelow  = 100 * 1024 * 1024
)

// Result is the outcome of one check.
type Result struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Report aggregates all check results.
type Report struct {
	Status  Status   `json:"status"`
	Results []Result `json:"results"`
}

// Checker runs installation health checks against the configured
// state layout.
type Checker struct {
	cfg    *config.Config
	logger *zap.Logger
	tracer trace.Tracer

	// statfs is swappable for tests.
	statfs func(path string, st *unix.Statfs_t) error
}

// NewChecker creates a health checker.
func NewChecker(cfg *config.Config, logger *zap.Logger) (*Checker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		statfs: unix.Statfs,
	}, nil
}

// Check runs every check and aggregates worst-of.
func (c *Checker) Check(ctx context.Context) *Report {
	_, span := c.tracer.Start(ctx, "health.check")
	defer span.End()

	results := []Result{
		c.checkContextFiles(),
		c.checkStorage(),
		c.checkDiskSpace(),
	}

	report := &Report{
		Status:  overall(results),
		Results: results,
	}
	span.SetAttributes(attribute.String("health.status", string(report.Status)))

	if report.Status != StatusHealthy {
		c.logger.Warn("health check not clean", zap.String("status", string(report.Status)))
	}
	return report
}

// checkContextFiles verifies every configured context file exists,
// is readable, and is not empty. A missing file is unhealthy, an
// empty one degraded.
func (c *Checker) checkContextFiles() Result {
	files := c.cfg.Handoff.ContextFiles
	if len(files) == 0 {
		return Result{
			Name:    "context_files",
			Status:  StatusHealthy,
			Message: "no context files configured",
		}
	}

	var missing, empty []string
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			missing = append(missing, path)
			continue
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			empty = append(empty, path)
		}
	}

	switch {
	case len(missing) > 0:
		return Result{
			Name:    "context_files",
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("context files unreadable: %s", strings.Join(missing, ", ")),
			Details: map[string]any{"missing": missing},
		}
	case len(empty) > 0:
		return Result{
			Name:    "context_files",
			Status:  StatusDegraded,
			Message: fmt.Sprintf("context files empty: %s", strings.Join(empty, ", ")),
			Details: map[string]any{"empty": empty},
		}
	default:
		return Result{
			Name:    "context_files",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d context files OK", len(files)),
		}
	}
}

// checkStorage verifies the backup and handoff directories can be
// created and written.
func (c *Checker) checkStorage() Result {
	dirs := []string{c.cfg.Backup.Dir, c.cfg.Handoff.Dir}
	if c.cfg.KPI.IsEnabled() && c.cfg.KPI.Path != "" {
		dirs = append(dirs, filepath.Dir(c.cfg.KPI.Path))
	}

	var failed []string
	for _, dir := range dirs {
		if err := probeWritable(dir); err != nil {
			failed = append(failed, dir)
		}
	}

	if len(failed) > 0 {
		return Result{
			Name:    "storage",
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("state directories not writable: %s", strings.Join(failed, ", ")),
			Details: map[string]any{"directories": failed},
		}
	}
	return Result{
		Name:    "storage",
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d state directories writable", len(dirs)),
	}
}

// checkDiskSpace verifies free space under the state directory.
func (c *Checker) checkDiskSpace() Result {
	var st unix.Statfs_t
	if err := c.statfs(c.cfg.StateDir, &st); err != nil {
		return Result{
			Name:    "disk_space",
			Status:  StatusDegraded,
			Message: fmt.Sprintf("disk space check failed: %v", err),
		}
	}

	free := st.Bavail * uint64(st.Bsize)
	freeMB := free / (1024 * 1024)
	details := map[string]any{"free_mb": freeMB}

	switch {
	case free < diskUnhealthyBelow:
		return Result{
			Name:    "disk_space",
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("low disk space: %d MB free", freeMB),
			Details: details,
		}
	case free < diskDegradedBelow:
		return Result{
			Name:    "disk_space",
			Status:  StatusDegraded,
			Message: fmt.Sprintf("low disk space: %d MB free", freeMB),
			Details: details,
		}
	default:
		return Result{
			Name:    "disk_space",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("disk space OK: %d MB free", freeMB),
			Details: details,
		}
	}
}

func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func overall(results []Result) Status {
	worst := StatusHealthy
	for _, r := range results {
		if r.Status.rank() > worst.rank() {
			worst = r.Status
		}
	}
	return worst
}
