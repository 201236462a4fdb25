package gpio

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgeWait bounds each WaitForEdge call so Unwatch is honoured promptly.
const edgeWait = 250 * time.Millisecond

type periphWatch struct {
	pin  gpio.PinIO
	stop chan struct{}
	done chan struct{}
}

// PeriphSource delivers edges through periph.io. Each watched pin gets a
// goroutine blocked in WaitForEdge; handlers run on that goroutine.
type PeriphSource struct {
	epoch   time.Time
	lookup  func(name string) gpio.PinIO
	mu      sync.Mutex
	watches map[int]*periphWatch
}

// NewPeriphSource initializes the periph.io host drivers.
func NewPeriphSource() (*PeriphSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return newPeriphSource(gpioreg.ByName), nil
}

func newPeriphSource(lookup func(name string) gpio.PinIO) *PeriphSource {
	return &PeriphSource{
		epoch:   time.Now(),
		lookup:  lookup,
		watches: make(map[int]*periphWatch),
	}
}

func (s *PeriphSource) pin(pin int) (gpio.PinIO, error) {
	if err := checkPin(pin); err != nil {
		return nil, err
	}
	p := s.lookup(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("pin GPIO%d not found", pin)
	}
	return p, nil
}

// Watch configures pin with pull-up and both edges and starts its edge goroutine.
func (s *PeriphSource) Watch(pin int, h Handler) error {
	p, err := s.pin(pin)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watches[pin]; ok {
		return fmt.Errorf("pin %d already watched", pin)
	}
	if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return fmt.Errorf("configure pin %d: %w", pin, err)
	}

	w := &periphWatch{
		pin:  p,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.watches[pin] = w
	go s.loop(pin, w, h)
	return nil
}

func (s *PeriphSource) loop(pin int, w *periphWatch, h Handler) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		if !w.pin.WaitForEdge(edgeWait) {
			continue
		}

		select {
		case <-w.stop:
			return
		default:
		}
		h(Edge{Pin: pin, Level: fromPeriph(w.pin.Read()), Time: time.Since(s.epoch)})
	}
}

// Unwatch stops the edge goroutine of pin and disables its edge detection.
// It waits for the goroutine to exit, so it must not be called from a Handler.
func (s *PeriphSource) Unwatch(pin int) error {
	s.mu.Lock()
	w, ok := s.watches[pin]
	delete(s.watches, pin)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownPin
	}

	close(w.stop)
	<-w.done
	if err := w.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("disable edges on pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the current level of pin.
func (s *PeriphSource) Read(pin int) (Level, error) {
	s.mu.Lock()
	w, ok := s.watches[pin]
	s.mu.Unlock()
	if ok {
		return fromPeriph(w.pin.Read()), nil
	}

	p, err := s.pin(pin)
	if err != nil {
		return High, err
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return High, fmt.Errorf("configure pin %d: %w", pin, err)
	}
	return fromPeriph(p.Read()), nil
}

// Close stops every watch.
func (s *PeriphSource) Close() error {
	s.mu.Lock()
	pins := make([]int, 0, len(s.watches))
	for pin := range s.watches {
		pins = append(pins, pin)
	}
	s.mu.Unlock()

	var errs []error
	for _, pin := range pins {
		if err := s.Unwatch(pin); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func fromPeriph(l gpio.Level) Level {
	if l == gpio.Low {
		return Low
	}
	return High
}
