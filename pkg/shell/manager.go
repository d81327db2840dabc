// Package shell owns the pool of long-lived child shells. Commands are
// multiplexed over a shell's stdin/stdout with an out-of-band sentinel line,
// so consecutive commands on one session share environment and working
// directory.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"shrimp/pkg/utils"
)

const (
	// DefaultMaxSessions caps the pool; the oldest idle session is evicted
	// when a new spawn would exceed it.
	DefaultMaxSessions = 8

	// DefaultTimeout applies when a command does not specify one.
	DefaultTimeout = 30 * time.Second

	// MaxTimeout is the hard ceiling for any command or stdin yield.
	MaxTimeout = 5 * time.Minute

	// DefaultMaxOutputChars trims each returned output slice.
	DefaultMaxOutputChars = 20000

	sessionTTL    = 30 * time.Minute
	sweepInterval = 30 * time.Second
)

var cdPattern = regexp.MustCompile(`^\s*cd(?:\s+(.+))?\s*$`)

// Options tunes a Manager. Zero values fall back to the defaults above.
type Options struct {
	MaxSessions    int
	DefaultTimeout time.Duration
	MaxOutputChars int
}

// Manager is the process-global shell pool. Different sessions may run
// commands in parallel; a single session fails fast on concurrent use.
type Manager struct {
	opts Options

	mu        sync.Mutex
	sessions  map[string]*Session
	simpleCwd string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager builds the pool and starts the idle-session sweeper.
func NewManager(opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.MaxOutputChars <= 0 {
		opts.MaxOutputChars = DefaultMaxOutputChars
	}

	cwd, _ := os.Getwd()
	m := &Manager{
		opts:      opts,
		sessions:  make(map[string]*Session),
		simpleCwd: cwd,
		stop:      make(chan struct{}),
	}
	go m.sweep()
	return m
}

// tailCap is the retention window per stream.
func (m *Manager) tailCap() int {
	cap := 2 * m.opts.MaxOutputChars
	if cap < 2000 {
		cap = 2000
	}
	return cap
}

// CreateSession spawns a long-lived shell in cwd (defaults to the manager's
// working directory). Capacity is enforced before the spawn.
func (m *Manager) CreateSession(cwd string) (*SessionInfo, error) {
	if cwd == "" {
		cwd = m.simpleCwd
	}
	absCwd, err := filepath.Abs(cwd)
	if err == nil {
		cwd = absCwd
	}
	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("cwd is not a directory: %s", cwd)
	}

	m.evictIfFull()

	shellPath := defaultShellPath()
	cmd := longLivedShell(shellPath)
	cmd.Dir = cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open shell stdin: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open shell stdout: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open shell stderr: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:         utils.GenerateID(),
		shellPath:  shellPath,
		createdAt:  now,
		cwd:        cwd,
		lastUsedAt: now,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     newStream(m.tailCap()),
		stderr:     newStream(m.tailCap()),
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn shell: %w", err)
	}
	go pump(s.stdout, stdoutPipe)
	go pump(s.stderr, stderrPipe)
	go cmd.Wait()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("Shell session created", "sessionId", s.ID, "shell", shellPath, "cwd", cwd)
	info := s.info()
	return &info, nil
}

// CloseSession kills and removes the session. Returns false when the id was
// not registered.
func (m *Manager) CloseSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.kill()
	slog.Info("Shell session closed", "sessionId", id)
	return true
}

// Sessions lists snapshots of all live sessions.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info())
	}
	return out
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// CommandRequest is one run_command invocation.
type CommandRequest struct {
	SessionID   string
	Command     string
	Cwd         string
	TimeoutMs   int
	Interactive bool
}

// RunCommand routes the request: a session id selects the sentinel protocol
// on that session's shell, interactive mode spawns a one-shot child, and a
// bare command runs through the simple one-off path.
func (m *Manager) RunCommand(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, fmt.Errorf("command is empty")
	}
	timeout := m.clampTimeout(req.TimeoutMs)

	if req.SessionID == "" && !req.Interactive {
		return m.runSimple(ctx, req.Command, req.Cwd, timeout)
	}

	var s *Session
	var err error
	if req.SessionID == "" {
		// Interactive with no session: spin one up so the caller can keep
		// driving it via write_stdin.
		info, createErr := m.CreateSession(req.Cwd)
		if createErr != nil {
			return nil, createErr
		}
		s, err = m.get(info.ID)
	} else {
		s, err = m.get(req.SessionID)
	}
	if err != nil {
		return nil, err
	}

	if req.Interactive {
		child, err := s.beginInteractive(req.Command, m.tailCap())
		if err != nil {
			if errors.Is(err, ErrSessionBusy) {
				return busyResult(s.ID), nil
			}
			return nil, err
		}
		return s.waitInteractive(ctx, child, timeout, m.opts.MaxOutputChars)
	}

	p, err := s.beginPending(req.Command, utils.GenerateToken())
	if err != nil {
		if errors.Is(err, ErrSessionBusy) {
			return busyResult(s.ID), nil
		}
		return nil, err
	}
	return s.waitPending(ctx, p, timeout, m.opts.MaxOutputChars)
}

// busyResult is the structured outcome for a session that already has a
// command in flight. Busy is not a failure; the caller reads the explanation
// from stderr and may drain the session via write_stdin.
func busyResult(sessionID string) *CommandResult {
	return &CommandResult{
		SessionID: sessionID,
		Stderr:    ErrSessionBusy.Error(),
	}
}

// WriteStdin feeds chars to the session's in-flight command, waits yieldMs,
// and returns the output produced since the previous call.
func (m *Manager) WriteStdin(sessionID, chars string, yieldMs int) (*StdinResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	if yieldMs < 0 {
		yieldMs = 0
	}
	if max := int(MaxTimeout / time.Millisecond); yieldMs > max {
		yieldMs = max
	}
	return s.writeStdin(chars, yieldMs, m.opts.MaxOutputChars)
}

// Shutdown stops the sweeper and kills every session.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.kill()
	}
}

func (m *Manager) clampTimeout(timeoutMs int) time.Duration {
	if timeoutMs <= 0 {
		return m.opts.DefaultTimeout
	}
	d := time.Duration(timeoutMs) * time.Millisecond
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// evictIfFull removes the oldest-used session when the pool is at capacity.
func (m *Manager) evictIfFull() {
	m.mu.Lock()
	var victim *Session
	if len(m.sessions) >= m.opts.MaxSessions {
		for _, s := range m.sessions {
			if victim == nil || s.idleSince().Before(victim.idleSince()) {
				victim = s
			}
		}
		if victim != nil {
			delete(m.sessions, victim.ID)
		}
	}
	m.mu.Unlock()
	if victim != nil {
		victim.kill()
		slog.Info("Shell session evicted", "sessionId", victim.ID)
	}
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-sessionTTL)
			m.mu.Lock()
			var expired []*Session
			for id, s := range m.sessions {
				if s.idleSince().Before(cutoff) {
					expired = append(expired, s)
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
			for _, s := range expired {
				s.kill()
				slog.Info("Shell session expired", "sessionId", s.ID)
			}
		}
	}
}

// runSimple executes one command in a throwaway shell. A bare cd is
// intercepted and moves the manager-level working directory instead.
func (m *Manager) runSimple(ctx context.Context, command, cwd string, timeout time.Duration) (*CommandResult, error) {
	m.mu.Lock()
	if cwd == "" {
		cwd = m.simpleCwd
	}
	m.mu.Unlock()

	if match := cdPattern.FindStringSubmatch(command); match != nil {
		return m.interceptCd(match[1], cwd)
	}

	started := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := interactiveCommand(defaultShellPath(), command)
	cmd.Dir = cwd

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timedOut bool
	var exitCode *int
	select {
	case err := <-done:
		code := exitCodeOf(err)
		exitCode = &code
	case <-runCtx.Done():
		cmd.Process.Kill()
		<-done
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		timedOut = true
	}

	return &CommandResult{
		ExitCode:   exitCode,
		Stdout:     truncateOutput(stdout.String(), m.opts.MaxOutputChars),
		Stderr:     truncateOutput(stderr.String(), m.opts.MaxOutputChars),
		Cwd:        cwd,
		TimedOut:   timedOut,
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

func (m *Manager) interceptCd(arg, cwd string) (*CommandResult, error) {
	target := strings.TrimSpace(arg)
	switch {
	case target == "" || target == "~":
		target = homeDir()
	case strings.HasPrefix(target, "~/"):
		target = filepath.Join(homeDir(), target[2:])
	case !filepath.IsAbs(target):
		target = filepath.Join(cwd, target)
	}
	target = filepath.Clean(target)

	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		code := 1
		return &CommandResult{
			ExitCode: &code,
			Stderr:   fmt.Sprintf("cd: no such directory: %s", strings.TrimSpace(arg)),
			Cwd:      cwd,
		}, nil
	}

	m.mu.Lock()
	m.simpleCwd = target
	m.mu.Unlock()

	code := 0
	return &CommandResult{
		ExitCode: &code,
		Stdout:   target,
		Cwd:      target,
	}, nil
}

// OSName reports the platform advertised in session info.
func OSName() string {
	return runtime.GOOS
}

// DefaultShell reports the shell program new sessions spawn.
func DefaultShell() string {
	return defaultShellPath()
}
