//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// ChipSource delivers edges from actual hardware using the Linux GPIO character device.
// Handlers run on the gpiocdev event goroutine.
type ChipSource struct {
	chip  *gpiocdev.Chip
	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

// NewChipSource opens the named GPIO chip.
func NewChipSource(name string) (*ChipSource, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &ChipSource{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// Watch requests pin as an input with pull-up and both-edge detection.
func (s *ChipSource) Watch(pin int, h Handler) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[pin]; ok {
		return fmt.Errorf("pin %d already watched", pin)
	}

	line, err := s.chip.RequestLine(pin,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			// Raw value follows the physical line: falling edge = pressed.
			level := High
			if evt.Type == gpiocdev.LineEventFallingEdge {
				level = Low
			}
			h(Edge{Pin: evt.Offset, Level: level, Time: evt.Timestamp})
		}),
	)
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	s.lines[pin] = line
	return nil
}

// Unwatch releases the line, which stops its event handler.
func (s *ChipSource) Unwatch(pin int) error {
	s.mu.Lock()
	line, ok := s.lines[pin]
	delete(s.lines, pin)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownPin
	}
	if err := line.Close(); err != nil {
		return fmt.Errorf("close pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the level of pin. Unwatched pins are requested briefly as
// pulled-up inputs.
func (s *ChipSource) Read(pin int) (Level, error) {
	if err := checkPin(pin); err != nil {
		return High, err
	}
	s.mu.Lock()
	line, ok := s.lines[pin]
	s.mu.Unlock()

	if !ok {
		l, err := s.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			return High, fmt.Errorf("request pin %d: %w", pin, err)
		}
		defer l.Close()
		line = l
	}

	raw, err := line.Value()
	if err != nil {
		return High, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if raw == 0 {
		return Low, nil
	}
	return High, nil
}

// Close releases every watched line and the chip.
func (s *ChipSource) Close() error {
	var errs []error

	s.mu.Lock()
	for pin, line := range s.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(s.lines, pin)
	}
	s.mu.Unlock()

	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
