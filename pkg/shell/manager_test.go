//go:build !windows

package shell

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts)
	t.Cleanup(m.Shutdown)
	return m
}

func TestRunSimpleCommand(t *testing.T) {
	m := newTestManager(t, Options{})

	res, err := m.RunCommand(context.Background(), CommandRequest{Command: "echo hello"})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.False(t, res.TimedOut)
}

func TestRunSimpleCommandNonZeroExit(t *testing.T) {
	m := newTestManager(t, Options{})

	res, err := m.RunCommand(context.Background(), CommandRequest{Command: "exit 3"})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 3, *res.ExitCode)
}

func TestCdIntercept(t *testing.T) {
	m := newTestManager(t, Options{})
	dir := t.TempDir()

	res, err := m.RunCommand(context.Background(), CommandRequest{Command: "cd " + dir})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, dir, res.Stdout)

	// The next simple command runs in the new directory.
	res, err = m.RunCommand(context.Background(), CommandRequest{Command: "pwd"})
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", res.Stdout)
}

func TestCdInterceptMissingDirectory(t *testing.T) {
	m := newTestManager(t, Options{})

	res, err := m.RunCommand(context.Background(), CommandRequest{Command: "cd /definitely/not/here"})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 1, *res.ExitCode)
	assert.Contains(t, res.Stderr, "cd: no such directory")
}

func TestSessionCommandTracksCwd(t *testing.T) {
	m := newTestManager(t, Options{})
	dir := t.TempDir()

	info, err := m.CreateSession("")
	require.NoError(t, err)

	res, err := m.RunCommand(context.Background(), CommandRequest{
		SessionID: info.ID,
		Command:   "cd " + dir,
	})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, dir, res.Cwd)

	// Environment persists across commands on the same session.
	_, err = m.RunCommand(context.Background(), CommandRequest{
		SessionID: info.ID,
		Command:   "MARKER=present",
	})
	require.NoError(t, err)
	res, err = m.RunCommand(context.Background(), CommandRequest{
		SessionID: info.ID,
		Command:   "echo $MARKER",
	})
	require.NoError(t, err)
	assert.Equal(t, "present\n", res.Stdout)
	assert.Equal(t, dir, res.Cwd)
}

// drainUntilCompleted polls WriteStdin until the in-flight command reports
// completion, writing chars on the first call only. The child may be slow to
// start (login shells source profiles), so a single yield is not enough.
func drainUntilCompleted(t *testing.T, m *Manager, sessionID, chars string) (*StdinResult, string) {
	t.Helper()
	var out strings.Builder
	input := chars
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		stdin, err := m.WriteStdin(sessionID, input, 200)
		require.NoError(t, err)
		input = ""
		out.WriteString(stdin.Stdout)
		if stdin.Completed != nil {
			return stdin, out.String()
		}
	}
	t.Fatal("command did not complete before deadline")
	return nil, ""
}

func TestSessionBusyReturnsStructuredResult(t *testing.T) {
	m := newTestManager(t, Options{})

	info, err := m.CreateSession("")
	require.NoError(t, err)

	res, err := m.RunCommand(context.Background(), CommandRequest{
		SessionID: info.ID,
		Command:   "sleep 1 && echo done",
		TimeoutMs: 100,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Nil(t, res.ExitCode)

	// Busy is a structured outcome, not an error: null exit code with an
	// explanatory stderr.
	res, err = m.RunCommand(context.Background(), CommandRequest{
		SessionID: info.ID,
		Command:   "echo queued",
	})
	require.NoError(t, err)
	assert.Nil(t, res.ExitCode)
	assert.Contains(t, res.Stderr, "command in flight")
	assert.Equal(t, info.ID, res.SessionID)

	res, err = m.RunCommand(context.Background(), CommandRequest{
		SessionID:   info.ID,
		Command:     "echo interactive",
		Interactive: true,
	})
	require.NoError(t, err)
	assert.Nil(t, res.ExitCode)
	assert.Contains(t, res.Stderr, "command in flight")

	// Draining via WriteStdin picks up the sentinel once the command ends.
	stdin, output := drainUntilCompleted(t, m, info.ID, "")
	require.NotNil(t, stdin.Completed.ExitCode)
	assert.Equal(t, 0, *stdin.Completed.ExitCode)
	assert.Contains(t, output, "done")

	// The session is free again.
	res, err = m.RunCommand(context.Background(), CommandRequest{
		SessionID: info.ID,
		Command:   "echo after",
	})
	require.NoError(t, err)
	assert.Equal(t, "after\n", res.Stdout)
}

func TestInteractiveCommandDrivenByStdin(t *testing.T) {
	m := newTestManager(t, Options{})

	info, err := m.CreateSession("")
	require.NoError(t, err)

	res, err := m.RunCommand(context.Background(), CommandRequest{
		SessionID:   info.ID,
		Command:     `read line && echo "got $line"`,
		Interactive: true,
		TimeoutMs:   100,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)

	stdin, output := drainUntilCompleted(t, m, info.ID, "world\n")
	require.NotNil(t, stdin.Completed.ExitCode)
	assert.Equal(t, 0, *stdin.Completed.ExitCode)
	assert.Contains(t, output, "got world")
	assert.False(t, stdin.Running)
}

func TestOutputTruncationKeepsTail(t *testing.T) {
	m := newTestManager(t, Options{MaxOutputChars: 50})

	res, err := m.RunCommand(context.Background(), CommandRequest{
		Command: "printf 'a%.0s' $(seq 1 200); echo END",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Stdout, "...[truncated]"))
	assert.Contains(t, res.Stdout, "END")
}

func TestEvictionAtCapacity(t *testing.T) {
	m := newTestManager(t, Options{MaxSessions: 2})

	first, err := m.CreateSession("")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = m.CreateSession("")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = m.CreateSession("")
	require.NoError(t, err)

	sessions := m.Sessions()
	assert.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.NotEqual(t, first.ID, s.ID)
	}
}

func TestCloseSession(t *testing.T) {
	m := newTestManager(t, Options{})

	info, err := m.CreateSession("")
	require.NoError(t, err)
	assert.True(t, m.CloseSession(info.ID))
	assert.False(t, m.CloseSession(info.ID))

	_, err = m.WriteStdin(info.ID, "x", 0)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRunCommandUnknownSession(t *testing.T) {
	m := newTestManager(t, Options{})

	_, err := m.RunCommand(context.Background(), CommandRequest{
		SessionID: "nope",
		Command:   "echo hi",
	})
	assert.ErrorIs(t, err, ErrUnknownSession)
}
