// Package testutil provides in-memory fakes and fixtures for the tensile
// pipeline tests.
package testutil

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockSource is a scripted byte source. Each Read returns at most one chunk.
// Once the chunks run out it returns io.EOF, or, when held open, behaves
// like a quiet serial line and times out with (0, nil).
type MockSource struct {
	mu       sync.Mutex
	chunks   [][]byte
	pending  []byte
	holdOpen bool
	timeout  time.Duration
	closed   bool

	ReadErr    error
	ReadCalls  int
	CloseCalls int
}

// NewMockSource creates a source that yields chunks in order then io.EOF.
func NewMockSource(chunks ...string) *MockSource {
	s := &MockSource{timeout: 10 * time.Millisecond}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

// HoldOpen keeps the source alive after the last chunk.
func (s *MockSource) HoldOpen() *MockSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdOpen = true
	return s
}

// Push appends a chunk to a live source.
func (s *MockSource) Push(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, []byte(chunk))
}

// Read implements io.Reader.
func (s *MockSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	s.ReadCalls++

	if s.closed {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if s.ReadErr != nil {
		err := s.ReadErr
		s.mu.Unlock()
		return 0, err
	}

	if len(s.pending) == 0 && len(s.chunks) > 0 {
		s.pending, s.chunks = s.chunks[0], s.chunks[1:]
	}
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}

	holdOpen, timeout := s.holdOpen, s.timeout
	s.mu.Unlock()

	if !holdOpen {
		return 0, io.EOF
	}
	time.Sleep(timeout)
	return 0, nil
}

// SetReadTimeout sets how long an idle Read blocks.
func (s *MockSource) SetReadTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
	return nil
}

// Close marks the source closed.
func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockSink records everything written to it.
type MockSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	closed bool

	WriteErr error
}

// NewMockSink creates an empty sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Write implements io.Writer.
func (s *MockSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	s.writes++
	return s.buf.Write(p)
}

// Close implements io.Closer.
func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// String returns everything written so far.
func (s *MockSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Writes returns the number of successful writes.
func (s *MockSink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Closed reports whether Close was called.
func (s *MockSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockObserver collects observed pairs.
type MockObserver struct {
	mu    sync.Mutex
	pairs [][2]float64

	// FailAfter makes Observe fail once this many pairs were accepted. Zero disables it.
	FailAfter int
}

// ErrMockObserve is returned by MockObserver when FailAfter trips.
var ErrMockObserve = errors.New("mock observe failed")

// Observe records a force/displacement pair.
func (o *MockObserver) Observe(force, displacement float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.FailAfter > 0 && len(o.pairs) >= o.FailAfter {
		return ErrMockObserve
	}
	o.pairs = append(o.pairs, [2]float64{force, displacement})
	return nil
}

// Pairs returns a copy of the observed pairs.
func (o *MockObserver) Pairs() [][2]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][2]float64(nil), o.pairs...)
}

// Count returns the number of observed pairs.
func (o *MockObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pairs)
}
