// Package status provides a thread-safe status tracker for the button-sensor daemon.
// It is read by HTTP handlers and used to build MQTT lifecycle payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Button is a monitored pin as shown on the status surfaces.
type Button struct {
	Pin  int
	Name string
}

// Config contains daemon configuration for display.
type Config struct {
	Buttons     []Button
	DebounceMs  int64
	LongPressMs int64
	PollMs      int64
	HeartbeatMs int64
	Backend     string
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Detector      logic.State
	LastAction    *logic.Event
	Counts        logic.ActionCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Detector:  logic.StateStopped,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the detector state and counters.
// Called from runLoop on every tick.
func (t *Tracker) Update(state logic.State, counts logic.ActionCounts) {
	t.mu.Lock()
	t.snap.Detector = state
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordAction stores the most recently consumed action.
func (t *Tracker) RecordAction(event logic.Event) {
	t.mu.Lock()
	t.snap.LastAction = &event
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastAction != nil {
		a := *s.LastAction
		s.LastAction = &a
	}
	s.Now = time.Now()
	return s
}
