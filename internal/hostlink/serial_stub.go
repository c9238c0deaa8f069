//go:build !linux

package hostlink

import (
	"errors"
	"io"
)

// OpenSerial is not available on non-Linux platforms.
func OpenSerial(SerialConfig) (io.ReadWriteCloser, error) {
	return nil, errors.New("serial: not supported on this platform (requires Linux)")
}
