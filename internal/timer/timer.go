// Package timer provides the single-fire alarm used to detect long presses.
package timer

import (
	"sync"
	"time"
)

// OneShot schedules a callback once after a delay.
type OneShot interface {
	// Start arms the alarm. If it is already armed, the previous callback is
	// cancelled first. Start must not block.
	Start(d time.Duration, fn func())

	// Stop disarms the alarm. Stopping an idle alarm is a no-op.
	Stop()
}

// Alarm is a OneShot backed by the runtime timer. The callback runs on its own
// goroutine.
type Alarm struct {
	mu sync.Mutex
	t  *time.Timer
}

// NewAlarm creates a disarmed Alarm.
func NewAlarm() *Alarm {
	return &Alarm{}
}

// Start arms the alarm for d.
func (a *Alarm) Start(d time.Duration, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
	}
	a.t = time.AfterFunc(d, fn)
}

// Stop disarms the alarm. A callback that already started running is not
// interrupted.
func (a *Alarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
}
