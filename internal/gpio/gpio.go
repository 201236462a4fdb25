// Package gpio provides edge notifications for push buttons wired to ground.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// MaxPin is the highest line offset accepted by the sources.
const MaxPin = 63

// ErrUnknownPin is returned when operating on a pin that is not watched.
var ErrUnknownPin = errors.New("gpio: pin not watched")

// Level is the logic level of an input line.
type Level uint8

const (
	// Low means the button is pressed (line pulled to ground).
	Low Level = iota
	// High means the button is released (held up by the pull-up).
	High
)

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// Edge is a single transition observed on a pin.
type Edge struct {
	Pin   int
	Level Level         // level after the transition
	Time  time.Duration // monotonic timestamp, arbitrary epoch
}

// Handler receives edges. It runs on the source's goroutine and must not block.
type Handler func(Edge)

// Source delivers edge notifications for individual pins.
type Source interface {
	// Watch configures pin as an input with pull-up, enables both edges and
	// attaches h to it.
	Watch(pin int, h Handler) error

	// Unwatch detaches the handler from pin.
	Unwatch(pin int) error

	// Read returns the current level of pin.
	Read(pin int) (Level, error)

	// Close releases GPIO resources.
	Close() error
}

// ValidPin reports whether pin is inside the supported range.
func ValidPin(pin int) bool {
	return pin >= 0 && pin <= MaxPin
}

func checkPin(pin int) error {
	if !ValidPin(pin) {
		return fmt.Errorf("gpio: pin %d outside 0..%d", pin, MaxPin)
	}
	return nil
}
