package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/sessiond/internal/handoff"

	idFormat      = "20060102-150405"
	maxIDAttempts = 1000
)

// ErrNotFound means no committed handoff exists under the given id.
var ErrNotFound = errors.New("handoff not found")

// SessionData carries the explicit inputs for one handoff. Task fields
// accept either structured lists or unstructured text; text is run
// through ExtractTasks.
type SessionData struct {
	FromSession string
	ToSession   string

	CompletedTasks []string
	CompletedText  string

	NextSteps     []string
	NextStepsText string

	Artifacts       []string
	ContextSnapshot map[string]string
	Notes           string
}

// Writer owns one handoff directory tree.
type Writer struct {
	dir    string
	logger *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	createCounter metric.Int64Counter
}

// NewWriter creates a handoff writer rooted at cfg.Dir.
func NewWriter(cfg config.HandoffConfig, logger *zap.Logger) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, errors.New("handoff directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create handoff directory: %w", err)
	}

	w := &Writer{
		dir:    cfg.Dir,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	w.createCounter, err = w.meter.Int64Counter(
		"sessiond.handoff.creates_total",
		metric.WithDescription("Total number of handoffs written"),
		metric.WithUnit("{handoff}"),
	)
	if err != nil {
		w.logger.Warn("failed to create handoff counter", zap.Error(err))
	}

	return w, nil
}

// Create assembles a handoff from explicit inputs and persists the
// markdown rendering plus its machine-readable JSON twin under one id.
// The markdown write reserves the id; the JSON write commits the pair.
func (w *Writer) Create(ctx context.Context, data SessionData) (*Handoff, error) {
	ctx, span := w.tracer.Start(ctx, "handoff.create")
	defer span.End()

	from := data.FromSession
	if from == "" {
		from = "current"
	}
	to := data.ToSession
	if to == "" {
		to = "next"
	}
	span.SetAttributes(attribute.String("from_session", from))

	completed := data.CompletedTasks
	if len(completed) == 0 && data.CompletedText != "" {
		completed = ExtractTasks(data.CompletedText)
	}
	nextSteps := data.NextSteps
	if len(nextSteps) == 0 && data.NextStepsText != "" {
		nextSteps = ExtractTasks(data.NextStepsText)
	}

	now := time.Now().UTC()
	id, mdFile, err := w.allocateID(now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	h := &Handoff{
		ID:              id,
		FromSession:     from,
		ToSession:       to,
		CompletedTasks:  completed,
		NextSteps:       nextSteps,
		Artifacts:       data.Artifacts,
		Timestamp:       now,
		ContextSnapshot: data.ContextSnapshot,
		Notes:           data.Notes,
	}

	commit := func() error {
		if err := os.WriteFile(mdFile, []byte(h.Markdown()), 0600); err != nil {
			return fmt.Errorf("failed to write handoff markdown: %w", err)
		}
		jsonData, err := json.MarshalIndent(h, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal handoff: %w", err)
		}
		if err := os.WriteFile(w.jsonPath(id), jsonData, 0600); err != nil {
			return fmt.Errorf("failed to write handoff json: %w", err)
		}
		return nil
	}
	if err := commit(); err != nil {
		_ = os.Remove(mdFile)
		_ = os.Remove(w.jsonPath(id))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if w.createCounter != nil {
		w.createCounter.Add(ctx, 1)
	}
	w.logger.Info("created handoff",
		zap.String("handoff_id", id),
		zap.String("from_session", from),
		zap.Int("completed_tasks", len(completed)),
		zap.Int("next_steps", len(nextSteps)),
	)
	span.SetAttributes(attribute.String("handoff_id", id))

	return h, nil
}

// allocateID reserves a unique id by exclusively creating the markdown
// file. Same-second collisions get a zero-padded ordinal suffix so ids
// stay distinct and lexicographically ordered.
func (w *Writer) allocateID(now time.Time) (string, string, error) {
	base := now.Format(idFormat)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := base
		if attempt > 0 {
			id = fmt.Sprintf("%s-%03d", base, attempt+1)
		}
		path := w.mdPath(id)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			f.Close()
			return id, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("failed to create handoff file: %w", err)
		}
	}
	return "", "", fmt.Errorf("exhausted handoff ids for timestamp %s", base)
}

// Load reads one committed handoff back from its JSON twin.
func (w *Writer) Load(_ context.Context, id string) (*Handoff, error) {
	data, err := os.ReadFile(w.jsonPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read handoff %s: %w", id, err)
	}

	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("corrupt handoff %s: %w", id, err)
	}
	return &h, nil
}

// List returns committed handoffs newest first, up to limit (0 for
// all). Corrupt records are skipped and logged, never fatal.
func (w *Writer) List(ctx context.Context, limit int) ([]*Handoff, error) {
	ids, err := w.committedIDs()
	if err != nil {
		return nil, err
	}

	handoffs := make([]*Handoff, 0, len(ids))
	for _, id := range ids {
		h, err := w.Load(ctx, id)
		if err != nil {
			w.logger.Warn("skipping unreadable handoff record",
				zap.String("handoff_id", id),
				zap.Error(err),
			)
			continue
		}
		handoffs = append(handoffs, h)
		if limit > 0 && len(handoffs) >= limit {
			break
		}
	}
	return handoffs, nil
}

// Prune deletes all but the keep most recent handoff pairs and returns
// how many pairs were removed. Only committed pairs are candidates; a
// reserved markdown file without its JSON twin is never touched.
func (w *Writer) Prune(ctx context.Context, keep int) (int, error) {
	_, span := w.tracer.Start(ctx, "handoff.prune")
	defer span.End()
	span.SetAttributes(attribute.Int("keep", keep))

	if keep < 0 {
		return 0, errors.New("keep must be >= 0")
	}

	ids, err := w.committedIDs()
	if err != nil {
		return 0, err
	}
	if len(ids) <= keep {
		return 0, nil
	}

	removed := 0
	for _, id := range ids[keep:] {
		if err := os.Remove(w.jsonPath(id)); err != nil {
			return removed, fmt.Errorf("failed to prune handoff %s: %w", id, err)
		}
		// Markdown twin may already be gone; the pair counts once.
		if err := os.Remove(w.mdPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to prune handoff %s: %w", id, err)
		}
		removed++
	}

	w.logger.Info("pruned handoffs", zap.Int("removed", removed), zap.Int("kept", keep))
	span.SetAttributes(attribute.Int("removed", removed))
	return removed, nil
}

// committedIDs returns ids with a JSON twin, newest first.
func (w *Writer) committedIDs() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read handoff directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "handoff-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "handoff-"), ".json"))
	}

	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

func (w *Writer) mdPath(id string) string {
	return filepath.Join(w.dir, "handoff-"+id+".md")
}

func (w *Writer) jsonPath(id string) string {
	return filepath.Join(w.dir, "handoff-"+id+".json")
}
