// Package buffer provides a generic, thread-safe circular buffer with
// configurable overflow policies. Push-based transports use it to hand
// messages to a polling reader.
package buffer

import (
	"time"
)

// Buffer is the interface satisfied by every buffer implementation
type Buffer[T any] interface {
	// Write adds an item. Behaviour when full depends on the overflow policy.
	Write(item T) error

	// Read removes one item, false when empty
	Read() (T, bool)

	// ReadWait removes one item, waiting up to timeout for one to arrive.
	// It returns false with a nil error on timeout and ErrClosed once the
	// buffer is closed and drained.
	ReadWait(timeout time.Duration) (T, bool, error)

	// ReadBatch removes up to max items
	ReadBatch(max int) []T

	Size() int
	Capacity() int
	Stats() *Statistics

	// Close wakes blocked writers and readers. Buffered items stay readable.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest

	// Block causes Write to block until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped by the overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer. Capacity below 1 is raised to 1.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
