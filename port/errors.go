package port

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid driver or pin configuration.
	ErrConfig = errors.New("port: configuration error")

	// ErrAcquire is returned when a physical line cannot be requested.
	ErrAcquire = errors.New("port: cannot acquire hardware")

	// ErrClosed is returned by operations on a closed port.
	ErrClosed = errors.New("port: closed")

	// ErrNotWatchable is returned by Watch on a port requested without edge detection.
	ErrNotWatchable = errors.New("port: edge detection not requested")

	// ErrNotOutput is returned by Write on an input port.
	ErrNotOutput = errors.New("port: not an output")
)

func errUnsupported(driver string) error {
	return fmt.Errorf("%w: %s driver not supported on this platform", ErrAcquire, driver)
}
