package timer

import (
	"sync"
	"time"
)

// Fake is a OneShot that only fires when told to.
type Fake struct {
	mu      sync.Mutex
	fn      func()
	delay   time.Duration
	running bool
	starts  int
	stops   int
}

// NewFake creates a disarmed Fake.
func NewFake() *Fake {
	return &Fake{}
}

// Start records the callback and delay.
func (f *Fake) Start(d time.Duration, fn func()) {
	f.mu.Lock()
	f.fn = fn
	f.delay = d
	f.running = true
	f.starts++
	f.mu.Unlock()
}

// Stop disarms the fake.
func (f *Fake) Stop() {
	f.mu.Lock()
	f.running = false
	f.stops++
	f.mu.Unlock()
}

// Fire runs the armed callback as an expiry would and reports whether it did.
// The callback runs on the caller's goroutine.
func (f *Fake) Fire() bool {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return false
	}
	f.running = false
	fn := f.fn
	f.mu.Unlock()

	fn()
	return true
}

// Callback returns the last armed callback, even if it was stopped since.
// Calling it simulates an expiry that raced with Stop.
func (f *Fake) Callback() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn
}

// Running reports whether the fake is armed.
func (f *Fake) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Delay returns the delay of the last Start.
func (f *Fake) Delay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delay
}

// Starts returns how many times Start was called.
func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Stops returns how many times Stop was called.
func (f *Fake) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
