package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.BackupConfig{Dir: t.TempDir(), Keep: 10}, zap.NewNop())
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestManager_Create(t *testing.T) {
	m := newTestManager(t)
	src := t.TempDir()
	a := writeFile(t, src, "notes.md", "alpha")
	b := writeFile(t, src, "state.json", `{"k":"v"}`)

	meta, err := m.Create(context.Background(), []string{a, b}, "pre-compact")
	require.NoError(t, err)

	assert.NotEmpty(t, meta.BackupID)
	assert.Equal(t, []string{a, b}, meta.FilesBackedUp)
	assert.Equal(t, "pre-compact", meta.Reason)
	assert.Equal(t, "sessiond backup restore "+meta.BackupID, meta.RestoreCommand)

	// Payload and metadata both on disk
	assert.FileExists(t, filepath.Join(m.dir, meta.BackupID, "notes.md"))
	assert.FileExists(t, filepath.Join(m.dir, meta.BackupID, metadataFile))
}

func TestManager_Create_NoFiles(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(context.Background(), nil, "manual")
	require.Error(t, err)
}

func TestManager_Create_UnreadableSource(t *testing.T) {
	m := newTestManager(t)
	src := t.TempDir()
	a := writeFile(t, src, "ok.md", "fine")
	missing := filepath.Join(src, "missing.md")

	_, err := m.Create(context.Background(), []string{a, missing}, "manual")
	require.Error(t, err)

	// Partial state must not be registered as restorable.
	backups, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestManager_Create_DuplicateBaseName(t *testing.T) {
	m := newTestManager(t)
	a := writeFile(t, t.TempDir(), "notes.md", "one")
	b := writeFile(t, t.TempDir(), "notes.md", "two")

	_, err := m.Create(context.Background(), []string{a, b}, "manual")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate payload name")
}

func TestManager_Create_SameSecondDistinctIDs(t *testing.T) {
	m := newTestManager(t)
	a := writeFile(t, t.TempDir(), "f.txt", "x")

	// Rapid successive creates land in the same one-second window.
	first, err := m.Create(context.Background(), []string{a}, "manual")
	require.NoError(t, err)
	second, err := m.Create(context.Background(), []string{a}, "manual")
	require.NoError(t, err)

	assert.NotEqual(t, first.BackupID, second.BackupID)

	backups, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestManager_RestoreRoundTrip(t *testing.T) {
	m := newTestManager(t)
	src := t.TempDir()
	path := writeFile(t, src, "config.yaml", "original: true\n")

	meta, err := m.Create(context.Background(), []string{path}, "manual")
	require.NoError(t, err)

	// Mutate, then restore in place.
	require.NoError(t, os.WriteFile(path, []byte("clobbered"), 0600))
	require.NoError(t, m.Restore(context.Background(), meta.BackupID, ""))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original: true\n", string(content), "restore reproduces byte-identical files")
}

func TestManager_Restore_TargetDir(t *testing.T) {
	m := newTestManager(t)
	path := writeFile(t, t.TempDir(), "a.txt", "payload")

	meta, err := m.Create(context.Background(), []string{path}, "manual")
	require.NoError(t, err)

	target := t.TempDir()
	require.NoError(t, m.Restore(context.Background(), meta.BackupID, target))

	content, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestManager_Restore_NotFound(t *testing.T) {
	m := newTestManager(t)

	err := m.Restore(context.Background(), "19700101-000000", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_Restore_Incomplete(t *testing.T) {
	m := newTestManager(t)
	// Directory exists but never committed (no metadata).
	require.NoError(t, os.Mkdir(filepath.Join(m.dir, "20240101-000000"), 0700))

	err := m.Restore(context.Background(), "20240101-000000", "")
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestManager_List_NewestFirstSkippingCorrupt(t *testing.T) {
	m := newTestManager(t)
	a := writeFile(t, t.TempDir(), "f.txt", "x")

	first, err := m.Create(context.Background(), []string{a}, "one")
	require.NoError(t, err)
	second, err := m.Create(context.Background(), []string{a}, "two")
	require.NoError(t, err)

	// An uncommitted directory and a corrupt record are both skipped.
	require.NoError(t, os.Mkdir(filepath.Join(m.dir, "20991231-235959"), 0700))
	corrupt := filepath.Join(m.dir, "20991230-000000")
	require.NoError(t, os.Mkdir(corrupt, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, metadataFile), []byte("{not json"), 0600))

	backups, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, second.BackupID, backups[0].BackupID, "newest first")
	assert.Equal(t, first.BackupID, backups[1].BackupID)
}

func TestManager_Prune(t *testing.T) {
	m := newTestManager(t)
	a := writeFile(t, t.TempDir(), "f.txt", "x")

	var ids []string
	for i := 0; i < 5; i++ {
		meta, err := m.Create(context.Background(), []string{a}, "manual")
		require.NoError(t, err)
		ids = append(ids, meta.BackupID)
	}

	// An in-progress (uncommitted) snapshot must survive pruning.
	inProgress := filepath.Join(m.dir, "20991231-235959")
	require.NoError(t, os.Mkdir(inProgress, 0700))

	removed, err := m.Prune(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	backups, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, ids[4], backups[0].BackupID)
	assert.Equal(t, ids[3], backups[1].BackupID)
	assert.DirExists(t, inProgress)
}

func TestManager_Prune_KeepExceedsTotal(t *testing.T) {
	m := newTestManager(t)
	a := writeFile(t, t.TempDir(), "f.txt", "x")
	_, err := m.Create(context.Background(), []string{a}, "manual")
	require.NoError(t, err)

	removed, err := m.Prune(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestMetadata_SelfDescribing(t *testing.T) {
	m := newTestManager(t)
	path := writeFile(t, t.TempDir(), "f.txt", "x")

	meta, err := m.Create(context.Background(), []string{path}, "pre-compact")
	require.NoError(t, err)

	loaded, err := m.Load(context.Background(), meta.BackupID)
	require.NoError(t, err)
	assert.Equal(t, meta.BackupID, loaded.BackupID)
	assert.Equal(t, meta.FilesBackedUp, loaded.FilesBackedUp)
	assert.Equal(t, meta.RestoreCommand, loaded.RestoreCommand)
	assert.WithinDuration(t, time.Now().UTC(), loaded.Timestamp, time.Minute)
}
