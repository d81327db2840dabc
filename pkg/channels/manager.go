package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// startAttempt is one in-flight Start call. Concurrent starters of the same
// channel wait on the same attempt instead of starting twice.
type startAttempt struct {
	done chan struct{}
	err  error
}

// Manager holds the singleton channel instances and serializes their
// lifecycle. Each channel has at most one outstanding start at a time.
type Manager struct {
	mu       sync.Mutex
	channels map[string]Channel
	running  map[string]bool
	starts   map[string]*startAttempt
}

func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		running:  make(map[string]bool),
		starts:   make(map[string]*startAttempt),
	}
}

// Register adds a channel instance. Registering the same id twice replaces
// the previous instance; callers register once at startup.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID()] = ch
}

// Channels returns the registered channel ids.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start brings one channel up. A second Start while the first is still
// connecting blocks until that attempt finishes and returns its result; a
// Start on an already running channel is a no-op.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	ch, ok := m.channels[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown channel %q", id)
	}
	if m.running[id] {
		m.mu.Unlock()
		return nil
	}
	if attempt, inFlight := m.starts[id]; inFlight {
		m.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	attempt := &startAttempt{done: make(chan struct{})}
	m.starts[id] = attempt
	m.mu.Unlock()

	err := ch.Start(ctx)

	m.mu.Lock()
	delete(m.starts, id)
	if err == nil {
		m.running[id] = true
	}
	m.mu.Unlock()

	attempt.err = err
	close(attempt.done)

	if err != nil {
		slog.Error("channel start failed", "channel", id, "error", err)
		return err
	}
	slog.Info("channel started", "channel", id)
	return nil
}

// StartAll starts every registered channel, collecting the first error but
// attempting all of them.
func (m *Manager) StartAll(ctx context.Context) error {
	var firstErr error
	for _, id := range m.Channels() {
		if err := m.Start(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop shuts one channel down.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	ch, ok := m.channels[id]
	wasRunning := m.running[id]
	delete(m.running, id)
	m.mu.Unlock()
	if !ok || !wasRunning {
		return nil
	}
	return ch.Stop()
}

// StopAll shuts every running channel down.
func (m *Manager) StopAll() {
	for _, id := range m.Channels() {
		if err := m.Stop(id); err != nil {
			slog.Warn("channel stop failed", "channel", id, "error", err)
		}
	}
}

// Status reports the state of every registered channel.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	chs := make([]Channel, 0, len(ids))
	for _, id := range ids {
		chs = append(chs, m.channels[id])
	}
	m.mu.Unlock()

	statuses := make([]Status, 0, len(chs))
	for _, ch := range chs {
		statuses = append(statuses, ch.Status())
	}
	return statuses
}
