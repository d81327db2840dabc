package channels

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowChannel struct {
	id       string
	delay    time.Duration
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (c *slowChannel) ID() string { return c.id }

func (c *slowChannel) Start(ctx context.Context) error {
	c.starts.Add(1)
	time.Sleep(c.delay)
	return c.startErr
}

func (c *slowChannel) Stop() error {
	c.stops.Add(1)
	return nil
}

func (c *slowChannel) Status() Status {
	return Status{Channel: c.id, Running: c.starts.Load() > 0}
}

func TestManagerStartDeduplicates(t *testing.T) {
	ch := &slowChannel{id: "telegram", delay: 100 * time.Millisecond}
	m := NewManager()
	m.Register(ch)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Start(context.Background(), "telegram")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), ch.starts.Load())

	// Already running, still a single underlying start.
	require.NoError(t, m.Start(context.Background(), "telegram"))
	assert.Equal(t, int32(1), ch.starts.Load())
}

func TestManagerStartFailureAllowsRetry(t *testing.T) {
	ch := &slowChannel{id: "whatsapp", startErr: errors.New("no network")}
	m := NewManager()
	m.Register(ch)

	require.ErrorContains(t, m.Start(context.Background(), "whatsapp"), "no network")

	ch.startErr = nil
	require.NoError(t, m.Start(context.Background(), "whatsapp"))
	assert.Equal(t, int32(2), ch.starts.Load())
}

func TestManagerUnknownChannel(t *testing.T) {
	m := NewManager()
	require.ErrorContains(t, m.Start(context.Background(), "fax"), "unknown channel")
}

func TestManagerStopOnlyWhenRunning(t *testing.T) {
	ch := &slowChannel{id: "telegram"}
	m := NewManager()
	m.Register(ch)

	require.NoError(t, m.Stop("telegram"))
	assert.Equal(t, int32(0), ch.stops.Load())

	require.NoError(t, m.Start(context.Background(), "telegram"))
	require.NoError(t, m.Stop("telegram"))
	assert.Equal(t, int32(1), ch.stops.Load())
}

func TestManagerStatusSorted(t *testing.T) {
	m := NewManager()
	m.Register(&slowChannel{id: "whatsapp"})
	m.Register(&slowChannel{id: "telegram"})

	statuses := m.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, "telegram", statuses[0].Channel)
	assert.Equal(t, "whatsapp", statuses[1].Channel)
}
