package session

import (
	"errors"
	"io"
	"os"
)

// readSnapshot reads the configured context files and returns a map of
// path to contents. Each file is truncated at maxBytes so one oversized
// file cannot bloat the handoff record. Missing files are skipped; the
// snapshot describes what exists, not what should.
func readSnapshot(paths []string, maxBytes int64) map[string]string {
	if len(paths) == 0 {
		return nil
	}
	snapshot := make(map[string]string, len(paths))
	for _, path := range paths {
		content, err := readBounded(path, maxBytes)
		if err != nil {
			continue
		}
		snapshot[path] = content
	}
	if len(snapshot) == 0 {
		return nil
	}
	return snapshot
}

func readBounded(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", err
	}

	// Detect truncation by attempting one more byte.
	var extra [1]byte
	if _, err := f.Read(extra[:]); err == nil {
		return string(data) + "\n... [truncated]", nil
	} else if !errors.Is(err, io.EOF) {
		return "", err
	}
	return string(data), nil
}
