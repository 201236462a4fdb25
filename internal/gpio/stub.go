//go:build !linux

package gpio

import "errors"

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

var errUnsupported = errors.New("gpio: character device not supported on this platform (requires Linux)")

// ChipSource is not available on non-Linux platforms.
type ChipSource struct{}

// NewChipSource returns an error on non-Linux platforms.
func NewChipSource(name string) (*ChipSource, error) {
	return nil, errUnsupported
}

// Watch is not implemented on non-Linux platforms.
func (s *ChipSource) Watch(pin int, h Handler) error {
	return errUnsupported
}

// Unwatch is not implemented on non-Linux platforms.
func (s *ChipSource) Unwatch(pin int) error {
	return errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (s *ChipSource) Read(pin int) (Level, error) {
	return High, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (s *ChipSource) Close() error {
	return nil
}
