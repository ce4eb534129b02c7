package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessiond/internal/alert"
	"github.com/fyrsmithlabs/sessiond/internal/backup"
	"github.com/fyrsmithlabs/sessiond/internal/config"
	"github.com/fyrsmithlabs/sessiond/internal/gate"
	"github.com/fyrsmithlabs/sessiond/internal/handoff"
	"github.com/fyrsmithlabs/sessiond/internal/kpi"
)

const instrumentationName = "github.com/fyrsmithlabs/sessiond/internal/session"

// EndReport is the outcome of the session-end sequence.
type EndReport struct {
	SessionID  string           `json:"session_id"`
	Summary    *gate.Summary    `json:"summary"`
	Evaluation alert.Evaluation `json:"evaluation"`

	// Blocked is true when the session must not end cleanly: a
	// critical gate failed or a CRITICAL alert tripped.
	Blocked bool `json:"blocked"`
}

// CompactReport is the outcome of the pre-compact sequence.
type CompactReport struct {
	SessionID      string `json:"session_id"`
	HandoffID      string `json:"handoff_id"`
	BackupID       string `json:"backup_id,omitempty"`
	HandoffsPruned int    `json:"handoffs_pruned"`
	BackupsPruned  int    `json:"backups_pruned"`
}

// Coordinator wires the gate orchestrator, alert evaluator, backup
// manager, handoff writer and KPI log into the lifecycle sequences.
type Coordinator struct {
	cfg    *config.Config
	gates  []gate.Gate
	orch   *gate.Orchestrator
	eval   *alert.Evaluator
	backup *backup.Manager
	hand   *handoff.Writer
	kpis   *kpi.Logger
	hooks  *Hooks
	logger *zap.Logger
	tracer trace.Tracer
}

// NewCoordinator builds a coordinator and its component tree from
// configuration.
func NewCoordinator(cfg *config.Config, logger *zap.Logger) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm, err := backup.NewManager(cfg.Backup, logger)
	if err != nil {
		return nil, fmt.Errorf("backup manager: %w", err)
	}
	hw, err := handoff.NewWriter(cfg.Handoff, logger)
	if err != nil {
		return nil, fmt.Errorf("handoff writer: %w", err)
	}
	kl, err := kpi.NewLogger(cfg.KPI, logger)
	if err != nil {
		return nil, fmt.Errorf("kpi logger: %w", err)
	}

	return &Coordinator{
		cfg:    cfg,
		gates:  gate.GatesFromConfig(cfg.Gates),
		orch:   gate.NewOrchestrator(cfg.Orchestrator, logger),
		eval:   alert.NewEvaluator(cfg.Alerts, logger),
		backup: bm,
		hand:   hw,
		kpis:   kl,
		hooks:  NewHooks(),
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Hooks exposes the lifecycle registry so callers can attach extra
// handlers before running sequences.
func (c *Coordinator) Hooks() *Hooks {
	return c.hooks
}

// Backup exposes the backup manager for direct CLI operations.
func (c *Coordinator) Backup() *backup.Manager {
	return c.backup
}

// Handoff exposes the handoff writer for direct CLI operations.
func (c *Coordinator) Handoff() *handoff.Writer {
	return c.hand
}

// KPI exposes the KPI event log.
func (c *Coordinator) KPI() *kpi.Logger {
	return c.kpis
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// EndSession runs the session-end sequence: gates scoped to the changed
// files, then alert evaluation over the results. The report is returned
// even when the session is blocked. KPI write failures are logged, not
// returned; only a registered hook failure surfaces as an error.
func (c *Coordinator) EndSession(ctx context.Context, sessionID string, changedFiles []string) (*EndReport, error) {
	ctx, span := c.tracer.Start(ctx, "session.end",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if sessionID == "" {
		sessionID = NewSessionID()
	}

	applicable := gate.Filter(c.gates, changedFiles)
	summary := c.orch.Execute(ctx, applicable)
	evaluation := c.eval.Evaluate(summary.Results)

	report := &EndReport{
		SessionID:  sessionID,
		Summary:    summary,
		Evaluation: evaluation,
		Blocked:    !summary.Passed || evaluation.BlocksSession,
	}

	span.SetAttributes(
		attribute.Bool("session.blocked", report.Blocked),
		attribute.Int("gates.total", len(summary.Results)),
		attribute.Int("gates.failed", summary.Failed()),
	)

	// The KPI log is a sink: an unwritable sink never changes the
	// session outcome or the caller's exit code.
	if err := c.recordEndEvents(ctx, report); err != nil {
		span.RecordError(err)
		c.logger.Warn("kpi record failed", zap.Error(err))
	}

	if err := c.hooks.Fire(ctx, EventSessionEnd, map[string]any{
		"session_id": sessionID,
		"blocked":    report.Blocked,
	}); err != nil {
		span.RecordError(err)
		return report, err
	}

	c.logger.Info("session end evaluated",
		zap.String("session_id", sessionID),
		zap.Bool("passed", summary.Passed),
		zap.Bool("blocked", report.Blocked),
		zap.Duration("duration", summary.Duration),
	)
	return report, nil
}

// Compact runs the pre-compact sequence: capture a handoff with a
// bounded context snapshot, back up the configured state files, then
// prune both stores to their retention limits.
func (c *Coordinator) Compact(ctx context.Context, sessionID string, data handoff.SessionData) (*CompactReport, error) {
	ctx, span := c.tracer.Start(ctx, "session.compact",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if err := c.hooks.Fire(ctx, EventPreCompact, map[string]any{
		"session_id": sessionID,
	}); err != nil {
		return nil, err
	}

	if data.ContextSnapshot == nil {
		data.ContextSnapshot = readSnapshot(
			c.cfg.Handoff.ContextFiles,
			int64(c.cfg.Handoff.MaxContextFileBytes),
		)
	}
	if data.FromSession == "" {
		data.FromSession = sessionID
	}

	h, err := c.hand.Create(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handoff create failed")
		return nil, fmt.Errorf("create handoff: %w", err)
	}

	report := &CompactReport{
		SessionID: sessionID,
		HandoffID: h.ID,
	}

	// State backup is best-effort when nothing is configured; a
	// configured backup that fails aborts compaction so state is not
	// lost without a safety copy.
	if len(c.cfg.Backup.Files) > 0 {
		meta, err := c.backup.Create(ctx, c.cfg.Backup.Files, "pre-compact")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backup create failed")
			return nil, fmt.Errorf("pre-compact backup: %w", err)
		}
		report.BackupID = meta.BackupID
	}

	if n, err := c.hand.Prune(ctx, c.cfg.Handoff.Keep); err != nil {
		c.logger.Warn("handoff prune failed", zap.Error(err))
	} else {
		report.HandoffsPruned = n
	}
	if n, err := c.backup.Prune(ctx, c.cfg.Backup.Keep); err != nil {
		c.logger.Warn("backup prune failed", zap.Error(err))
	} else {
		report.BackupsPruned = n
	}

	if err := c.kpis.Record(ctx, kpi.Event{
		SessionID: sessionID,
		EventType: kpi.EventHandoff,
		Data: map[string]any{
			"handoff_id": report.HandoffID,
			"backup_id":  report.BackupID,
		},
	}); err != nil {
		c.logger.Warn("kpi record failed", zap.Error(err))
	}

	if err := c.hooks.Fire(ctx, EventPostCompact, map[string]any{
		"session_id": sessionID,
		"handoff_id": report.HandoffID,
	}); err != nil {
		return report, err
	}

	c.logger.Info("compaction captured",
		zap.String("session_id", sessionID),
		zap.String("handoff_id", report.HandoffID),
		zap.String("backup_id", report.BackupID),
	)
	return report, nil
}

func (c *Coordinator) recordEndEvents(ctx context.Context, report *EndReport) error {
	summary := report.Summary
	if err := c.kpis.Record(ctx, kpi.Event{
		SessionID: report.SessionID,
		EventType: kpi.EventGateRun,
		Data: map[string]any{
			"total":       len(summary.Results),
			"failed":      summary.Failed(),
			"timed_out":   summary.TimedOut(),
			"skipped":     summary.Skipped(),
			"passed":      summary.Passed,
			"duration_ms": summary.Duration.Milliseconds(),
		},
	}); err != nil {
		return fmt.Errorf("record gate run: %w", err)
	}

	if a := report.Evaluation.Alert; a != nil {
		if err := c.kpis.Record(ctx, kpi.Event{
			SessionID: report.SessionID,
			EventType: kpi.EventAlert,
			Data: map[string]any{
				"severity":       string(a.Severity),
				"category":       a.Category,
				"message":        a.Message,
				"blocks_session": report.Evaluation.BlocksSession,
			},
		}); err != nil {
			return fmt.Errorf("record alert: %w", err)
		}
	}

	return c.kpis.Record(ctx, kpi.Event{
		SessionID: report.SessionID,
		EventType: kpi.EventSessionEnd,
		Data: map[string]any{
			"blocked": report.Blocked,
		},
	})
}
