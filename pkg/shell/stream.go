package shell

import "sync"

// stream is a retained tail of one child stdio pipe. Positions handed to
// callers are absolute: the index a byte had in the full output since the
// session started. offset is the absolute position of data[0], so
// offset + len(data) always equals the total bytes ever appended.
type stream struct {
	mu       sync.Mutex
	offset   int64
	data     []byte
	capBytes int
	notify   chan struct{}
}

func newStream(capBytes int) *stream {
	if capBytes < 2000 {
		capBytes = 2000
	}
	return &stream{
		capBytes: capBytes,
		notify:   make(chan struct{}, 1),
	}
}

func (s *stream) append(b []byte) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	s.data = append(s.data, b...)
	if len(s.data) > s.capBytes {
		drop := len(s.data) - s.capBytes
		s.offset += int64(drop)
		s.data = s.data[drop:]
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pos returns the absolute position of the next byte to be appended.
func (s *stream) pos() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset + int64(len(s.data))
}

// changed returns the channel pulsed on every append. A single waiter per
// stream is assumed.
func (s *stream) changed() <-chan struct{} {
	return s.notify
}

// snapshot copies the retained window together with its base offset.
func (s *stream) snapshot() (base int64, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, append([]byte(nil), s.data...)
}

// since returns the bytes from absolute position start to the end of the
// window. A start that has already scrolled out of retention is clamped.
func (s *stream) since(start int64) string {
	base, buf := s.snapshot()
	return sliceAbs(base, buf, start, base+int64(len(buf)))
}

// between returns the bytes in the absolute range [start, end), clamped to
// the retained window.
func (s *stream) between(start, end int64) string {
	base, buf := s.snapshot()
	return sliceAbs(base, buf, start, end)
}

func sliceAbs(base int64, buf []byte, start, end int64) string {
	if start < base {
		start = base
	}
	top := base + int64(len(buf))
	if end > top {
		end = top
	}
	if start >= end {
		return ""
	}
	return string(buf[start-base : end-base])
}
