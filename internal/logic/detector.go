package logic

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/timer"
)

const noPin = -1

// Options holds the classification thresholds. Zero values take the defaults.
type Options struct {
	// Debounce is the minimum down time for a release to count as a press.
	Debounce time.Duration
	// LongPress is the down time after which the sequence resolves as a long press.
	LongPress time.Duration
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.LongPress <= 0 {
		o.LongPress = DefaultLongPress
	}
	return o
}

// Detector turns edge notifications from several mutually exclusive buttons
// into one classified action at a time.
//
// Edge handlers and the long-press expiry run on the source and timer
// goroutines; ToProcess, Pin, Action, Pending and Processed are meant for a
// single polling goroutine. Only one button sequence is in flight at a time
// and a latched action blocks all further detection until Processed is called.
type Detector struct {
	src   gpio.Source
	timer timer.OneShot
	opts  Options

	mu     sync.Mutex
	active bool
	pins   [MaxButtons]int // handler table, indexed by slot
	npins  int

	locked    int           // pin owning the current sequence, noPin if none
	start     time.Duration // timestamp of the qualifying falling edge
	lastLevel gpio.Level    // last level seen on the locked pin
	gen       uint64        // incremented on every arm; stale expiries are dropped

	pending bool
	action  Action
	counts  ActionCounts
}

// NewDetector creates a stopped Detector. Call Begin to attach it to pins.
func NewDetector(src gpio.Source, t timer.OneShot, opts Options) *Detector {
	return &Detector{
		src:    src,
		timer:  t,
		opts:   opts.withDefaults(),
		locked: noPin,
	}
}

// Options returns the thresholds in effect.
func (d *Detector) Options() Options {
	return d.opts
}

// Begin attaches one handler per pin and starts detection in the idle state.
// Pins must be distinct, at most MaxButtons, and within gpio.ValidPin.
func (d *Detector) Begin(pins []int) error {
	if err := validatePins(pins); err != nil {
		return err
	}

	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.resetLocked()
	d.counts = ActionCounts{}
	d.npins = copy(d.pins[:], pins)
	d.active = true
	d.mu.Unlock()

	for i, pin := range pins {
		slot := i
		if err := d.src.Watch(pin, func(e gpio.Edge) { d.onEdge(slot, e) }); err != nil {
			d.abortBegin(pins[:i])
			return fmt.Errorf("watch pin %d: %w", pin, err)
		}
	}

	log.Infof("button detection started: pins=%v debounce=%v long_press=%v", pins, d.opts.Debounce, d.opts.LongPress)
	return nil
}

func (d *Detector) abortBegin(attached []int) {
	d.mu.Lock()
	d.active = false
	d.gen++
	d.timer.Stop()
	d.resetLocked()
	d.npins = 0
	d.mu.Unlock()

	for _, pin := range attached {
		if err := d.src.Unwatch(pin); err != nil {
			log.Warnf("unwatch pin %d: %v", pin, err)
		}
	}
}

// End stops the timer, detaches every handler and drops any pending action.
// It is safe to call with a sequence in progress.
func (d *Detector) End() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return ErrNotStarted
	}
	d.active = false
	d.gen++
	d.timer.Stop()
	pins := append([]int(nil), d.pins[:d.npins]...)
	d.npins = 0
	d.resetLocked()
	d.mu.Unlock()

	// Unwatch may wait for a handler blocked on d.mu, so it runs unlocked.
	var errs []error
	for _, pin := range pins {
		if err := d.src.Unwatch(pin); err != nil {
			errs = append(errs, fmt.Errorf("unwatch pin %d: %w", pin, err))
		}
	}

	log.Info("button detection stopped")
	if len(errs) > 0 {
		return fmt.Errorf("end errors: %v", errs)
	}
	return nil
}

// ToProcess reports whether an action is latched and not yet processed.
func (d *Detector) ToProcess() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Pin returns the pin of the pending action.
func (d *Detector) Pin() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return noPin, ErrNoPendingAction
	}
	return d.action.Pin, nil
}

// Action returns the kind of the pending action.
func (d *Detector) Action() (ActionKind, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return "", ErrNoPendingAction
	}
	return d.action.Kind, nil
}

// Pending returns the pending action, if any.
func (d *Detector) Pending() (Action, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.action, d.pending
}

// Processed acknowledges the pending action and re-enables detection.
// Without a pending action it returns ErrNoPendingAction and changes nothing.
func (d *Detector) Processed() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return ErrNoPendingAction
	}
	d.resetLocked()
	return nil
}

// State returns the current phase of the state machine.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.active:
		return StateStopped
	case d.pending:
		return StateResolved
	case d.locked != noPin:
		return StateArmed
	default:
		return StateIdle
	}
}

// Counts returns the classification counters since Begin.
func (d *Detector) Counts() ActionCounts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts
}

// onEdge handles an edge from the pin in handler slot.
func (d *Detector) onEdge(slot int, e gpio.Edge) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || slot >= d.npins {
		return
	}
	pin := d.pins[slot]

	if d.pending {
		log.Debugf("pin %d %s ignored: action pending", pin, e.Level)
		return
	}

	switch e.Level {
	case gpio.Low:
		if d.locked != noPin {
			if d.locked == pin {
				// Bounce: no restart of timing.
				d.lastLevel = gpio.Low
			} else {
				log.Debugf("pin %d press ignored: pin %d is active", pin, d.locked)
			}
			return
		}
		d.start = e.Time
		d.lastLevel = gpio.Low
		d.locked = pin
		d.gen++
		gen := d.gen
		d.timer.Start(d.opts.LongPress, func() { d.expire(gen) })

	case gpio.High:
		if d.locked != pin {
			return
		}
		held := e.Time - d.start
		if held < d.opts.Debounce {
			log.Debugf("pin %d released after %v: bounce", pin, held)
			d.lastLevel = gpio.High
			return
		}
		d.timer.Stop()
		d.latch(Action{Pin: pin, Kind: ActionPressed, HeldFor: held})
		d.counts.Pressed++
	}
}

// expire handles the long-press timer for the sequence armed as gen.
func (d *Detector) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || gen != d.gen || d.pending || d.locked == noPin {
		return
	}

	if d.lastLevel == gpio.High {
		log.Debugf("pin %d sequence abandoned: released before debounce", d.locked)
		d.locked = noPin
		d.counts.Abandoned++
		return
	}

	d.latch(Action{Pin: d.locked, Kind: ActionLongPressed, HeldFor: d.opts.LongPress})
	d.counts.LongPressed++
}

func (d *Detector) latch(a Action) {
	d.action = a
	d.pending = true
	log.Debugf("pin %d %s after %v", a.Pin, a.Kind, a.HeldFor)
}

// resetLocked returns to idle. Caller holds d.mu.
func (d *Detector) resetLocked() {
	d.pending = false
	d.action = Action{}
	d.locked = noPin
	d.start = 0
	d.lastLevel = gpio.High
}

func validatePins(pins []int) error {
	if len(pins) == 0 {
		return fmt.Errorf("%w: no pins given", ErrInvalidPin)
	}
	if len(pins) > MaxButtons {
		return fmt.Errorf("%w: %d pins given, at most %d supported", ErrInvalidPin, len(pins), MaxButtons)
	}
	seen := make(map[int]bool, len(pins))
	for _, pin := range pins {
		if !gpio.ValidPin(pin) {
			return fmt.Errorf("%w: pin %d outside 0..%d", ErrInvalidPin, pin, gpio.MaxPin)
		}
		if seen[pin] {
			return fmt.Errorf("%w: duplicate pin %d", ErrInvalidPin, pin)
		}
		seen[pin] = true
	}
	return nil
}
