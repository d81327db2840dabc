package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"
)

const sentinelPrefix = "__SHRIMP_DONE_"

const pollInterval = 25 * time.Millisecond

// ErrSessionBusy reports a run_command against a session that already has a
// command in flight. Callers fail fast instead of queueing.
var ErrSessionBusy = errors.New("session already has a command in flight")

// ErrUnknownSession reports an id that is not registered with the manager.
var ErrUnknownSession = errors.New("unknown shell session")

// CommandResult is the outcome of one command. ExitCode is nil when the
// command timed out and is still running.
type CommandResult struct {
	SessionID  string `json:"sessionId,omitempty"`
	ExitCode   *int   `json:"exitCode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Cwd        string `json:"cwd,omitempty"`
	TimedOut   bool   `json:"timedOut,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Completed describes a command that finished while draining via WriteStdin.
type Completed struct {
	ExitCode *int   `json:"exitCode"`
	Cwd      string `json:"cwd,omitempty"`
}

// StdinResult is the outcome of one WriteStdin call.
type StdinResult struct {
	SessionID string     `json:"sessionId"`
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	Running   bool       `json:"running"`
	Completed *Completed `json:"completed,omitempty"`
}

// SessionInfo is the externally visible snapshot of one session.
type SessionInfo struct {
	ID         string    `json:"sessionId"`
	Shell      string    `json:"shell"`
	OS         string    `json:"os"`
	Cwd        string    `json:"cwd"`
	Busy       bool      `json:"busy"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// pendingCommand tracks one non-interactive command multiplexed over the
// long-lived shell. The start positions mark where this command's output
// begins in the session streams; the cursors advance as output is drained.
type pendingCommand struct {
	token        string
	startedAt    time.Time
	stdoutStart  int64
	stderrStart  int64
	stdoutCursor int64
	stderrCursor int64
}

// interactiveChild is a separate one-shot process driven via WriteStdin.
type interactiveChild struct {
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	stdout       *stream
	stderr       *stream
	stdoutCursor int64
	stderrCursor int64
	done         chan struct{}
	exitCode     int
}

func (c *interactiveChild) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Session is one long-lived shell with piped stdio. At most one of pending
// and active is non-nil at any time.
type Session struct {
	ID        string
	shellPath string
	createdAt time.Time

	mu         sync.Mutex
	cwd        string
	lastUsedAt time.Time
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *stream
	stderr     *stream
	pending    *pendingCommand
	active     *interactiveChild
	closed     bool
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:         s.ID,
		Shell:      s.shellPath,
		OS:         runtime.GOOS,
		Cwd:        s.cwd,
		Busy:       s.pending != nil || s.active != nil,
		CreatedAt:  s.createdAt,
		LastUsedAt: s.lastUsedAt,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// kill terminates the shell process and any interactive child.
func (s *Session) kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.active != nil && s.active.cmd.Process != nil {
		s.active.cmd.Process.Kill()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// beginPending claims the session for a non-interactive command and writes
// the sentinel-wrapped script to the shell's stdin.
func (s *Session) beginPending(command, token string) (*pendingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrUnknownSession
	}
	if s.pending != nil || s.active != nil {
		return nil, ErrSessionBusy
	}

	p := &pendingCommand{
		token:       token,
		startedAt:   time.Now(),
		stdoutStart: s.stdout.pos(),
		stderrStart: s.stderr.pos(),
	}
	p.stdoutCursor = p.stdoutStart
	p.stderrCursor = p.stderrStart

	if _, err := io.WriteString(s.stdin, sentinelScript(command, token)); err != nil {
		return nil, fmt.Errorf("failed to write command to shell: %w", err)
	}
	s.pending = p
	s.lastUsedAt = time.Now()
	return p, nil
}

// sentinelPattern matches the completion line for one token. The exit code
// may be negative on signal death; the cwd is everything after the second
// colon.
func sentinelPattern(token string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + sentinelPrefix + regexp.QuoteMeta(token) + `:(-?\d+):(.*?)\r?$`)
}

// tryConsumeSentinel scans stdout for the pending command's sentinel. When
// found it clears pending, updates the session cwd and returns the command's
// output slices. maxOutput trims each slice to its last maxOutput bytes.
func (s *Session) tryConsumeSentinel(maxOutput int) (*CommandResult, bool) {
	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()
	if p == nil {
		return nil, false
	}

	base, buf := s.stdout.snapshot()
	loc := sentinelPattern(p.token).FindSubmatchIndex(buf)
	if loc == nil {
		return nil, false
	}

	exitCode, _ := strconv.Atoi(string(buf[loc[2]:loc[3]]))
	cwd := string(buf[loc[4]:loc[5]])
	sentinelStart := base + int64(loc[0])
	sentinelEnd := base + int64(loc[1])
	// Step past the line terminator so the next command's slice starts clean.
	if int(sentinelEnd-base) < len(buf) && buf[sentinelEnd-base] == '\n' {
		sentinelEnd++
	}

	stdout := sliceAbs(base, buf, p.stdoutCursor, sentinelStart)
	stderr := s.stderr.since(p.stderrCursor)

	s.mu.Lock()
	s.pending = nil
	if cwd != "" {
		s.cwd = cwd
	}
	s.lastUsedAt = time.Now()
	sessionCwd := s.cwd
	s.mu.Unlock()

	return &CommandResult{
		SessionID:  s.ID,
		ExitCode:   &exitCode,
		Stdout:     truncateOutput(stdout, maxOutput),
		Stderr:     truncateOutput(stderr, maxOutput),
		Cwd:        sessionCwd,
		DurationMs: time.Since(p.startedAt).Milliseconds(),
	}, true
}

// waitPending blocks until the sentinel shows up, the timeout elapses, or
// ctx is done. On timeout the pending command stays claimed so the caller
// can drain it later via WriteStdin.
func (s *Session) waitPending(ctx context.Context, p *pendingCommand, timeout time.Duration, maxOutput int) (*CommandResult, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if res, ok := s.tryConsumeSentinel(maxOutput); ok {
			return res, nil
		}
		if time.Now().After(deadline) {
			return s.timeoutResult(p, maxOutput), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.stdout.changed():
		case <-ticker.C:
		}
	}
}

// timeoutResult reports whatever accumulated since the command started and
// advances the drain cursors so a later WriteStdin does not repeat it.
func (s *Session) timeoutResult(p *pendingCommand, maxOutput int) *CommandResult {
	stdout := s.stdout.since(p.stdoutCursor)
	stderr := s.stderr.since(p.stderrCursor)

	s.mu.Lock()
	p.stdoutCursor = s.stdout.pos()
	p.stderrCursor = s.stderr.pos()
	cwd := s.cwd
	s.mu.Unlock()

	return &CommandResult{
		SessionID:  s.ID,
		ExitCode:   nil,
		Stdout:     truncateOutput(stdout, maxOutput),
		Stderr:     truncateOutput(stderr, maxOutput),
		Cwd:        cwd,
		TimedOut:   true,
		DurationMs: time.Since(p.startedAt).Milliseconds(),
	}
}

// beginInteractive claims the session and spawns a one-shot child for the
// command, with its own retained tails.
func (s *Session) beginInteractive(command string, tailCap int) (*interactiveChild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrUnknownSession
	}
	if s.pending != nil || s.active != nil {
		return nil, ErrSessionBusy
	}

	cmd := interactiveCommand(s.shellPath, command)
	cmd.Dir = s.cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	child := &interactiveChild{
		cmd:    cmd,
		stdin:  stdin,
		stdout: newStream(tailCap),
		stderr: newStream(tailCap),
		done:   make(chan struct{}),
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start interactive command: %w", err)
	}

	go pump(child.stdout, stdoutPipe)
	go pump(child.stderr, stderrPipe)
	go func() {
		err := cmd.Wait()
		child.exitCode = exitCodeOf(err)
		close(child.done)
	}()

	s.active = child
	s.lastUsedAt = time.Now()
	return child, nil
}

// waitInteractive blocks until the child exits or the timeout elapses. On
// timeout the child keeps running and stays attached to the session.
func (s *Session) waitInteractive(ctx context.Context, child *interactiveChild, timeout time.Duration, maxOutput int) (*CommandResult, error) {
	started := time.Now()
	select {
	case <-child.done:
	case <-time.After(timeout):
		stdout := child.stdout.since(child.stdoutCursor)
		stderr := child.stderr.since(child.stderrCursor)
		s.mu.Lock()
		child.stdoutCursor = child.stdout.pos()
		child.stderrCursor = child.stderr.pos()
		cwd := s.cwd
		s.mu.Unlock()
		return &CommandResult{
			SessionID:  s.ID,
			Stdout:     truncateOutput(stdout, maxOutput),
			Stderr:     truncateOutput(stderr, maxOutput),
			Cwd:        cwd,
			TimedOut:   true,
			DurationMs: time.Since(started).Milliseconds(),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exitCode := child.exitCode
	stdout := child.stdout.since(child.stdoutCursor)
	stderr := child.stderr.since(child.stderrCursor)

	s.mu.Lock()
	s.active = nil
	s.lastUsedAt = time.Now()
	cwd := s.cwd
	s.mu.Unlock()

	return &CommandResult{
		SessionID:  s.ID,
		ExitCode:   &exitCode,
		Stdout:     truncateOutput(stdout, maxOutput),
		Stderr:     truncateOutput(stderr, maxOutput),
		Cwd:        cwd,
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

// writeStdin drives whichever command is in flight: the interactive child if
// one is attached, else the long-lived shell serving a pending command, else
// the bare shell.
func (s *Session) writeStdin(chars string, yieldMs int, maxOutput int) (*StdinResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrUnknownSession
	}
	child := s.active
	pending := s.pending
	s.lastUsedAt = time.Now()
	s.mu.Unlock()

	if child != nil {
		return s.driveInteractive(child, chars, yieldMs, maxOutput)
	}

	if chars != "" {
		if _, err := io.WriteString(s.stdin, chars); err != nil {
			return nil, fmt.Errorf("failed to write to shell stdin: %w", err)
		}
	}
	time.Sleep(time.Duration(yieldMs) * time.Millisecond)

	if pending != nil {
		if res, ok := s.tryConsumeSentinel(maxOutput); ok {
			return &StdinResult{
				SessionID: s.ID,
				Stdout:    res.Stdout,
				Stderr:    res.Stderr,
				Running:   false,
				Completed: &Completed{ExitCode: res.ExitCode, Cwd: res.Cwd},
			}, nil
		}
		stdout := s.stdout.since(pending.stdoutCursor)
		stderr := s.stderr.since(pending.stderrCursor)
		s.mu.Lock()
		pending.stdoutCursor = s.stdout.pos()
		pending.stderrCursor = s.stderr.pos()
		s.mu.Unlock()
		return &StdinResult{
			SessionID: s.ID,
			Stdout:    truncateOutput(stdout, maxOutput),
			Stderr:    truncateOutput(stderr, maxOutput),
			Running:   true,
		}, nil
	}

	// No command in flight: report anything the shell printed on its own.
	return &StdinResult{
		SessionID: s.ID,
		Stdout:    "",
		Stderr:    "",
		Running:   false,
	}, nil
}

func (s *Session) driveInteractive(child *interactiveChild, chars string, yieldMs int, maxOutput int) (*StdinResult, error) {
	if chars != "" && !child.exited() {
		if _, err := io.WriteString(child.stdin, chars); err != nil && !child.exited() {
			return nil, fmt.Errorf("failed to write to command stdin: %w", err)
		}
	}
	time.Sleep(time.Duration(yieldMs) * time.Millisecond)

	stdout := child.stdout.since(child.stdoutCursor)
	stderr := child.stderr.since(child.stderrCursor)
	child.stdoutCursor = child.stdout.pos()
	child.stderrCursor = child.stderr.pos()

	result := &StdinResult{
		SessionID: s.ID,
		Stdout:    truncateOutput(stdout, maxOutput),
		Stderr:    truncateOutput(stderr, maxOutput),
		Running:   !child.exited(),
	}
	if child.exited() {
		exitCode := child.exitCode
		s.mu.Lock()
		s.active = nil
		cwd := s.cwd
		s.mu.Unlock()
		result.Completed = &Completed{ExitCode: &exitCode, Cwd: cwd}
	}
	return result, nil
}

func pump(dst *stream, src io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			dst.append(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// truncateOutput keeps the last max bytes, marking the cut with a prefix.
func truncateOutput(out string, max int) string {
	if max <= 0 || len(out) <= max {
		return out
	}
	return "...[truncated]" + out[len(out)-max:]
}
