package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSnapshotSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "NOTES.md")
	require.NoError(t, os.WriteFile(present, []byte("remember the milk"), 0o644))

	snap := readSnapshot([]string{present, filepath.Join(dir, "missing.md")}, 1024)
	require.Len(t, snap, 1)
	assert.Equal(t, "remember the milk", snap[present])
}

func TestReadSnapshotTruncatesLargeFiles(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.md")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 2048)), 0o644))

	snap := readSnapshot([]string{big}, 100)
	require.Contains(t, snap, big)
	assert.True(t, strings.HasSuffix(snap[big], "... [truncated]"))
	assert.Less(t, len(snap[big]), 200)
}

func TestReadSnapshotExactFitIsNotTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fit.md")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("y", 100)), 0o644))

	snap := readSnapshot([]string{path}, 100)
	assert.Equal(t, strings.Repeat("y", 100), snap[path])
}

func TestReadSnapshotEmptyInputs(t *testing.T) {
	assert.Nil(t, readSnapshot(nil, 1024))
	assert.Nil(t, readSnapshot([]string{"/nonexistent/x.md"}, 1024))
}
