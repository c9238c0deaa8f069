//go:build !linux

package gpio

import "errors"

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(Pins) (*RealBoard, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ReadRaw is not implemented on non-Linux platforms.
func (b *RealBoard) ReadRaw(string) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// SetOutput is not implemented on non-Linux platforms.
func (b *RealBoard) SetOutput(string, bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error {
	return nil
}
