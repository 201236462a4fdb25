// Package fifo provides a fixed-capacity circular buffer.
package fifo

import "errors"

var (
	// ErrFull is returned by Push when the buffer holds Cap() items.
	ErrFull = errors.New("fifo: buffer full")

	// ErrEmpty is returned by Pop when the buffer holds no items.
	ErrEmpty = errors.New("fifo: buffer empty")

	// ErrOutOfRange is returned by Peek for an index outside [0, Len()).
	ErrOutOfRange = errors.New("fifo: index out of range")
)

// FIFO is a first-in first-out queue over a contiguous slice that never grows.
// Not safe for concurrent use; callers synchronize.
type FIFO[T any] struct {
	buf   []T
	head  int // oldest item
	count int
}

// New creates a FIFO holding at most capacity items. A capacity below 1 is
// treated as 1.
func New[T any](capacity int) *FIFO[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO[T]{buf: make([]T, capacity)}
}

// Push appends item at the tail. When the buffer is full the item is rejected
// with ErrFull and the contents are left untouched.
func (f *FIFO[T]) Push(item T) error {
	if f.count == len(f.buf) {
		return ErrFull
	}
	f.buf[(f.head+f.count)%len(f.buf)] = item
	f.count++
	return nil
}

// Pop removes and returns the item at the head.
func (f *FIFO[T]) Pop() (T, error) {
	var zero T
	if f.count == 0 {
		return zero, ErrEmpty
	}
	item := f.buf[f.head]
	f.buf[f.head] = zero // release references held by the slot
	f.head = (f.head + 1) % len(f.buf)
	f.count--
	return item, nil
}

// Peek returns the n-th item counted from the head without removing it.
func (f *FIFO[T]) Peek(n int) (T, error) {
	if n < 0 || n >= f.count {
		var zero T
		return zero, ErrOutOfRange
	}
	return f.buf[(f.head+n)%len(f.buf)], nil
}

// Len returns the number of queued items.
func (f *FIFO[T]) Len() int {
	return f.count
}

// Cap returns the fixed capacity.
func (f *FIFO[T]) Cap() int {
	return len(f.buf)
}

// Full reports whether another Push would fail.
func (f *FIFO[T]) Full() bool {
	return f.count == len(f.buf)
}

// Clear drops every queued item.
func (f *FIFO[T]) Clear() {
	var zero T
	for i := range f.buf {
		f.buf[i] = zero
	}
	f.head = 0
	f.count = 0
}
