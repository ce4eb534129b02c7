// Package backup snapshots session state files into timestamped,
// self-describing directories with restore and retention pruning.
//
// A snapshot is a directory named by its backup id holding the copied
// payload plus a metadata.json record. The metadata write is the commit
// point: a directory without metadata is in-progress or abandoned and is
// never listed, restored, or pruned.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
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
	instrumentationName = "github.com/fyrsmithlabs/sessiond/internal/backup"

	metadataFile = "metadata.json"

	// idFormat keys snapshot directories by creation time. One-second
	// resolution alone is a collision hazard under rapid successive
	// creates, so id allocation retries with an ordinal suffix.
	idFormat = "20060102-150405"

	// maxIDAttempts caps same-second suffix probing.
	maxIDAttempts = 1000
)

var (
	// ErrNotFound means no backup exists under the given id.
	ErrNotFound = errors.New("backup not found")

	// ErrIncomplete means the backup directory exists but its metadata
	// record is missing, so the snapshot never committed.
	ErrIncomplete = errors.New("backup is incomplete: metadata missing")
)

// Metadata is the self-describing record of one snapshot. It alone is
// sufficient to reverse the backup without consulting code.
type Metadata struct {
	BackupID       string    `json:"backup_id"`
	Timestamp      time.Time `json:"timestamp"`
	FilesBackedUp  []string  `json:"files_backed_up"`
	Reason         string    `json:"reason"`
	RestoreCommand string    `json:"restore_command"`
}

// Manager owns one backup directory tree.
type Manager struct {
	dir    string
	logger *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	createCounter  metric.Int64Counter
	restoreCounter metric.Int64Counter
}

// NewManager creates a backup manager rooted at cfg.Dir.
func NewManager(cfg config.BackupConfig, logger *zap.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	m := &Manager{
		dir:    cfg.Dir,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	m.initMetrics()
	return m, nil
}

func (m *Manager) initMetrics() {
	var err error

	m.createCounter, err = m.meter.Int64Counter(
		"sessiond.backup.creates_total",
		metric.WithDescription("Total number of backups created"),
		metric.WithUnit("{backup}"),
	)
	if err != nil {
		m.logger.Warn("failed to create backup counter", zap.Error(err))
	}

	m.restoreCounter, err = m.meter.Int64Counter(
		"sessiond.backup.restores_total",
		metric.WithDescription("Total number of backup restores"),
		metric.WithUnit("{restore}"),
	)
	if err != nil {
		m.logger.Warn("failed to create restore counter", zap.Error(err))
	}
}

// Create snapshots the given files under a fresh backup id and returns
// the committed metadata. Every source must be readable: on any copy
// failure the partial directory is removed and nothing is registered.
// Two files sharing a base name cannot coexist in one snapshot.
func (m *Manager) Create(ctx context.Context, files []string, reason string) (*Metadata, error) {
	ctx, span := m.tracer.Start(ctx, "backup.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int("file_count", len(files)),
		attribute.String("reason", reason),
	)

	if len(files) == 0 {
		return nil, errors.New("no files to back up")
	}

	seen := make(map[string]string, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		if prev, ok := seen[base]; ok {
			return nil, fmt.Errorf("duplicate payload name %q (%s and %s)", base, prev, f)
		}
		seen[base] = f
	}

	id, backupPath, err := m.allocateID(time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	backedUp := make([]string, 0, len(files))
	for _, src := range files {
		dest := filepath.Join(backupPath, filepath.Base(src))
		if err := copyFile(src, dest); err != nil {
			// Unreadable source fails the whole snapshot; without a
			// metadata record the directory is never restorable, and
			// removing it keeps the tree clean.
			_ = os.RemoveAll(backupPath)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to back up %s: %w", src, err)
		}
		backedUp = append(backedUp, src)
	}

	meta := &Metadata{
		BackupID:       id,
		Timestamp:      time.Now().UTC(),
		FilesBackedUp:  backedUp,
		Reason:         reason,
		RestoreCommand: fmt.Sprintf("sessiond backup restore %s", id),
	}

	if err := writeMetadata(backupPath, meta); err != nil {
		_ = os.RemoveAll(backupPath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if m.createCounter != nil {
		m.createCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	m.logger.Info("created backup",
		zap.String("backup_id", id),
		zap.Int("files", len(backedUp)),
		zap.String("reason", reason),
	)
	span.SetAttributes(attribute.String("backup_id", id))

	return meta, nil
}

// allocateID reserves a unique snapshot directory. os.Mkdir is the
// atomic uniqueness check; same-second collisions get an ordinal suffix
// so rapid successive creates yield distinct ids instead of a silent
// overwrite.
func (m *Manager) allocateID(now time.Time) (string, string, error) {
	base := now.Format(idFormat)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := base
		if attempt > 0 {
			// Zero-padded so same-second ids keep lexicographic order.
			id = fmt.Sprintf("%s-%03d", base, attempt+1)
		}
		path := filepath.Join(m.dir, id)
		err := os.Mkdir(path, 0700)
		if err == nil {
			return id, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("failed to create backup directory: %w", err)
		}
	}
	return "", "", fmt.Errorf("exhausted backup ids for timestamp %s", base)
}

// Restore copies the snapshot's payload back into place. With an empty
// targetDir every file returns to its original recorded path; otherwise
// all payload files land in targetDir.
func (m *Manager) Restore(ctx context.Context, backupID, targetDir string) error {
	ctx, span := m.tracer.Start(ctx, "backup.restore")
	defer span.End()
	span.SetAttributes(attribute.String("backup_id", backupID))

	meta, err := m.Load(ctx, backupID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	backupPath := filepath.Join(m.dir, backupID)
	for _, original := range meta.FilesBackedUp {
		src := filepath.Join(backupPath, filepath.Base(original))

		dest := original
		if targetDir != "" {
			dest = filepath.Join(targetDir, filepath.Base(original))
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
		}
		if err := copyFile(src, dest); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to restore %s: %w", original, err)
		}
	}

	if m.restoreCounter != nil {
		m.restoreCounter.Add(ctx, 1)
	}
	m.logger.Info("restored backup",
		zap.String("backup_id", backupID),
		zap.Int("files", len(meta.FilesBackedUp)),
	)

	return nil
}

// Load reads one snapshot's metadata.
func (m *Manager) Load(_ context.Context, backupID string) (*Metadata, error) {
	backupPath := filepath.Join(m.dir, backupID)
	if info, err := os.Stat(backupPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}

	meta, err := readMetadata(backupPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIncomplete, backupID)
		}
		return nil, fmt.Errorf("failed to read metadata for %s: %w", backupID, err)
	}
	return meta, nil
}

// List returns metadata for every committed snapshot, newest first.
// Directories without readable metadata are skipped and logged, never
// fatal to the whole listing.
func (m *Manager) List(_ context.Context) ([]*Metadata, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]*Metadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			m.logger.Warn("skipping unreadable backup record",
				zap.String("backup_id", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		backups = append(backups, meta)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].BackupID > backups[j].BackupID
	})
	return backups, nil
}

// Prune deletes all but the keep most recent committed snapshots and
// returns how many were removed. Only directories with a metadata
// record are candidates, so a concurrent in-progress Create is never
// deleted out from under its writer.
func (m *Manager) Prune(ctx context.Context, keep int) (int, error) {
	ctx, span := m.tracer.Start(ctx, "backup.prune")
	defer span.End()
	span.SetAttributes(attribute.Int("keep", keep))

	if keep < 0 {
		return 0, errors.New("keep must be >= 0")
	}

	backups, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, meta := range backups[keep:] {
		if err := os.RemoveAll(filepath.Join(m.dir, meta.BackupID)); err != nil {
			return removed, fmt.Errorf("failed to prune backup %s: %w", meta.BackupID, err)
		}
		removed++
	}

	m.logger.Info("pruned backups", zap.Int("removed", removed), zap.Int("kept", keep))
	span.SetAttributes(attribute.Int("removed", removed))
	return removed, nil
}

func writeMetadata(backupPath string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(backupPath, metadataFile), data, 0600); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func readMetadata(backupPath string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(backupPath, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata: %w", err)
	}
	return &meta, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
