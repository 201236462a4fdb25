package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeSource is a test double that lets tests inject edges by hand.
type FakeSource struct {
	mu       sync.Mutex
	handlers map[int]Handler
	levels   map[int]Level

	// WatchError, if set, will be returned by Watch.
	WatchError error

	// FailPin, if non-negative, makes Watch fail only for that pin.
	FailPin int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates a FakeSource with every pin reading High.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		handlers: make(map[int]Handler),
		levels:   make(map[int]Level),
		FailPin:  -1,
	}
}

// Watch records the handler for pin.
func (f *FakeSource) Watch(pin int, h Handler) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WatchError != nil {
		return f.WatchError
	}
	if pin == f.FailPin {
		return fmt.Errorf("fake: cannot watch pin %d", pin)
	}
	if _, ok := f.handlers[pin]; ok {
		return fmt.Errorf("fake: pin %d already watched", pin)
	}
	f.handlers[pin] = h
	return nil
}

// Unwatch removes the handler for pin.
func (f *FakeSource) Unwatch(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[pin]; !ok {
		return ErrUnknownPin
	}
	delete(f.handlers, pin)
	return nil
}

// Read returns the last level emitted on pin, High if none.
func (f *FakeSource) Read(pin int) (Level, error) {
	if err := checkPin(pin); err != nil {
		return High, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.levels[pin]; ok {
		return l, nil
	}
	return High, nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Watched reports whether pin currently has a handler attached.
func (f *FakeSource) Watched(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[pin]
	return ok
}

// Emit delivers an edge to the handler of pin, synchronously. It returns false
// if no handler is attached, as a detached interrupt would.
func (f *FakeSource) Emit(pin int, level Level, t time.Duration) bool {
	f.mu.Lock()
	f.levels[pin] = level
	h, ok := f.handlers[pin]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(Edge{Pin: pin, Level: level, Time: t})
	return true
}
