package gate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testGate(name, command string, timeout time.Duration) Gate {
	return Gate{Name: name, Command: command, Required: true, Timeout: timeout}
}

func TestRunner_Run_Passes(t *testing.T) {
	r := NewRunner("", 0, zap.NewNop())

	result := r.Run(context.Background(), testGate("ok", "echo hello", 5*time.Second))

	assert.Equal(t, StatusPassed, result.Status)
	assert.True(t, result.Success())
	assert.Contains(t, result.Output, "hello")
	assert.Empty(t, result.Error)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	r := NewRunner("", 0, zap.NewNop())

	result := r.Run(context.Background(), testGate("fail", "exit 3", 5*time.Second))

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.Success())
	assert.False(t, result.TimedOut())
	assert.Contains(t, result.Error, "exit status 3")
}

func TestRunner_Run_Timeout(t *testing.T) {
	r := NewRunner("", 0, zap.NewNop())

	start := time.Now()
	result := r.Run(context.Background(), testGate("slow", "sleep 10", 100*time.Millisecond))

	assert.Equal(t, StatusTimeout, result.Status)
	assert.True(t, result.TimedOut())
	assert.False(t, result.Success())
	assert.Contains(t, result.Error, "timeout after")
	assert.Less(t, time.Since(start), 5*time.Second, "deadline is hard, not advisory")
}

func TestRunner_Run_LaunchFailure(t *testing.T) {
	r := NewRunner("", 0, zap.NewNop())

	// Missing binary must become a failed result, never propagate.
	result := r.Run(context.Background(), testGate("missing", "definitely-not-a-binary-xyz", 5*time.Second))

	assert.Equal(t, StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestRunner_Run_ExpiredParentContext(t *testing.T) {
	r := NewRunner("", 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Run(ctx, testGate("never", "echo hi", 5*time.Second))

	assert.Equal(t, StatusTimeout, result.Status)
	assert.Contains(t, result.Error, "before gate started")
}

func TestRunner_Run_OutputBounded(t *testing.T) {
	r := NewRunner("", 256, zap.NewNop())

	result := r.Run(context.Background(), testGate("noisy", "yes x | head -c 100000", 10*time.Second))

	assert.Equal(t, StatusPassed, result.Status)
	assert.LessOrEqual(t, len(result.Output), 256+len("\n... [output truncated]"))
	assert.Contains(t, result.Output, "[output truncated]")
}

func TestRunner_Run_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(dir, 0, zap.NewNop())

	result := r.Run(context.Background(), testGate("pwd", "pwd", 5*time.Second))

	require.Equal(t, StatusPassed, result.Status)
	// TempDir may sit behind a symlink on some platforms; compare suffixes.
	assert.True(t, strings.HasSuffix(strings.TrimSpace(result.Output), dir[strings.LastIndex(dir, "/"):]),
		"command should run in %s, got output %q", dir, result.Output)
}

func TestBoundedBuffer(t *testing.T) {
	var b boundedBuffer
	b.max = 5

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", b.String())

	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n, "writer must report full write to the subprocess")
	assert.Contains(t, b.String(), "abcde")
	assert.Contains(t, b.String(), "truncated")
}
