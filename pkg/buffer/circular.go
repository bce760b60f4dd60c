package buffer

import (
	"sync"
	"time"

	"github.com/7-Dany/Stress-Strain/errors"
)

// ErrClosed is returned by reads and writes on a closed buffer
var ErrClosed = errors.ErrTransportClosed

type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool

	notFull *sync.Cond
	ready   chan struct{} // signalled on write and close

	stats   *Statistics
	metrics *bufferMetrics
	opts    *bufferOptions[T]
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	cb.notFull = sync.NewCond(&cb.mu)
	return cb, nil
}

// Write adds an item according to the overflow policy
func (cb *circularBuffer[T]) Write(item T) error {
	var dropped []T
	defer func() {
		if cb.opts.dropCallback != nil {
			for _, d := range dropped {
				cb.opts.dropCallback(d)
			}
		}
	}()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return errors.WrapInvalid(ErrClosed, "Buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		switch cb.opts.overflowPolicy {
		case DropOldest:
			dropped = append(dropped, cb.pop())
			cb.recordDrop()
		case DropNewest:
			dropped = append(dropped, item)
			cb.recordDrop()
			return nil
		case Block:
			for cb.size == cb.capacity && !cb.closed {
				cb.notFull.Wait()
			}
			if cb.closed {
				return errors.WrapInvalid(ErrClosed, "Buffer", "Write", "buffer closed while blocked")
			}
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.write(cb.size)
	cb.metrics.recordWrite(cb.size, cb.capacity)
	cb.signal()
	return nil
}

func (cb *circularBuffer[T]) recordDrop() {
	cb.stats.drop()
	cb.metrics.recordDrop()
}

// pop removes the tail item, caller holds the lock and size > 0
func (cb *circularBuffer[T]) pop() T {
	var zero T
	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--
	return item
}

func (cb *circularBuffer[T]) signal() {
	select {
	case cb.ready <- struct{}{}:
	default:
	}
}

// Read removes one item
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}
	item := cb.pop()
	cb.stats.read(cb.size)
	cb.metrics.recordRead(cb.size, cb.capacity)
	cb.notFull.Signal()
	return item, true
}

// ReadWait removes one item, waiting up to timeout
func (cb *circularBuffer[T]) ReadWait(timeout time.Duration) (T, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if item, ok := cb.Read(); ok {
			return item, true, nil
		}

		cb.mu.Lock()
		closed := cb.closed
		cb.mu.Unlock()
		if closed {
			var zero T
			return zero, false, ErrClosed
		}

		select {
		case <-cb.ready:
		case <-deadline.C:
			var zero T
			return zero, false, nil
		}
	}
}

// ReadBatch removes up to max items
func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	n := min(max, cb.size)
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cb.pop())
	}
	cb.stats.read(cb.size)
	cb.metrics.recordRead(cb.size, cb.capacity)
	cb.notFull.Broadcast()
	return out
}

func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close is idempotent
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true
	cb.notFull.Broadcast()
	close(cb.ready)
	return nil
}
