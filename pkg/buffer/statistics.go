package buffer

import (
	"sync/atomic"
)

// Statistics counts buffer operations. Always collected.
type Statistics struct {
	writes  atomic.Int64
	reads   atomic.Int64
	drops   atomic.Int64
	size    atomic.Int64
	maxSize atomic.Int64
}

// NewStatistics returns zeroed statistics
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) write(size int) {
	s.writes.Add(1)
	s.setSize(int64(size))
}

func (s *Statistics) read(size int) {
	s.reads.Add(1)
	s.setSize(int64(size))
}

func (s *Statistics) drop() {
	s.drops.Add(1)
}

func (s *Statistics) setSize(size int64) {
	s.size.Store(size)
	for {
		cur := s.maxSize.Load()
		if size <= cur || s.maxSize.CompareAndSwap(cur, size) {
			return
		}
	}
}

// Writes returns the number of accepted writes
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of read operations
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the number of items dropped by the overflow policy
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the size after the last operation
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the high-water mark
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }
