package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamAbsolutePositions(t *testing.T) {
	s := newStream(2000)
	s.append([]byte("hello "))
	s.append([]byte("world"))

	assert.Equal(t, int64(11), s.pos())
	assert.Equal(t, "world", s.since(6))
	assert.Equal(t, "hello", s.between(0, 5))
}

func TestStreamCapDropsFront(t *testing.T) {
	s := newStream(2000)
	big := make([]byte, 3000)
	for i := range big {
		big[i] = 'x'
	}
	s.append(big)

	// The window holds the last capBytes; positions still count from zero.
	assert.Equal(t, int64(3000), s.pos())
	base, buf := s.snapshot()
	assert.Equal(t, int64(1000), base)
	assert.Len(t, buf, 2000)

	// A cursor that scrolled out of retention clamps to the window start.
	assert.Len(t, s.since(0), 2000)
}

func TestStreamNotifyOnAppend(t *testing.T) {
	s := newStream(2000)
	s.append([]byte("x"))
	select {
	case <-s.changed():
	default:
		t.Fatal("expected a change notification")
	}
}

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", truncateOutput("short", 100))
	got := truncateOutput("aaaaabbbbb", 5)
	assert.Equal(t, "...[truncated]bbbbb", got)
}
