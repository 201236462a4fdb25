// Package logic contains the press classification state machine.
// It talks to hardware only through the gpio.Source and timer.OneShot
// interfaces; time comes from edge timestamps, so tests drive it with fakes.
package logic

import (
	"errors"
	"time"
)

// Default thresholds.
const (
	DefaultDebounce  = 200 * time.Millisecond
	DefaultLongPress = 1000 * time.Millisecond
)

// MaxButtons is the size of the handler table.
const MaxButtons = 8

var (
	// ErrInvalidPin is returned by Begin for an empty, oversized, duplicated
	// or out-of-range pin list.
	ErrInvalidPin = errors.New("invalid pin")

	// ErrAlreadyStarted is returned by Begin when detection is running.
	ErrAlreadyStarted = errors.New("detector already started")

	// ErrNotStarted is returned by End when detection is not running.
	ErrNotStarted = errors.New("detector not started")

	// ErrNoPendingAction is returned by the poll API when no action is latched.
	ErrNoPendingAction = errors.New("no pending action")
)

// ActionKind classifies a completed press.
type ActionKind string

const (
	ActionPressed     ActionKind = "PRESSED"
	ActionLongPressed ActionKind = "LONG_PRESSED"
)

// State is the phase of the current press sequence.
type State string

const (
	StateStopped  State = "STOPPED"  // Begin not called, or End called
	StateIdle     State = "IDLE"     // no pin locked
	StateArmed    State = "ARMED"    // pin locked, waiting for release or long press
	StateResolved State = "RESOLVED" // action latched, waiting for Processed
)

// Action is the single pending result.
type Action struct {
	Pin     int
	Kind    ActionKind
	HeldFor time.Duration
}

// ActionCounts tracks classified sequences since Begin.
type ActionCounts struct {
	Pressed     int
	LongPressed int
	// Abandoned counts sequences released before the debounce threshold
	// and never pressed again before the long-press timer expired.
	Abandoned int
}

// Event is a consumed action, stamped for publishing.
type Event struct {
	Timestamp time.Time
	Pin       int
	Name      string
	Action    ActionKind
	HeldFor   time.Duration
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    ActionCounts
}
