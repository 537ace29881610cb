// Package port abstracts a single digital I/O pin and the drivers that
// hand them out.
//
// A Port is exclusively owned by the component that requested it; nothing in
// this package arbitrates between writers.
package port

import (
	"fmt"
	"time"
)

// Level is the binary level of a pin.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Port is a single physical pin.
type Port interface {
	// Read returns the current level of the pin.
	Read() (Level, error)

	// Write drives an output pin. Writing an input port is an error.
	Write(level Level) error

	// Watch registers fn to be called with the new level on every edge.
	// The returned func removes the registration.
	Watch(fn func(Level)) (cancel func(), err error)

	// Close releases the pin. Outputs keep their last level; owners write
	// their idle level before closing.
	Close() error
}

// InputOptions configures an input request.
type InputOptions struct {
	Pull     Pull
	Debounce time.Duration
	// Watch requests edge detection so that Port.Watch can be used.
	Watch bool
}

// Driver hands out ports on a GPIO chip.
type Driver interface {
	Output(pin int, initial Level) (Port, error)
	Input(pin int, opts InputOptions) (Port, error)

	// Close releases chip-level resources. Ports should be closed first.
	Close() error
}

// Config holds configuration for the GPIO driver.
type Config struct {
	Driver string `yaml:"driver"` // "gpiocdev", "gpiomem", "periph", "sim"
	Chip   string `yaml:"chip"`   // gpiocdev only, e.g. "gpiochip0"
}

// Open returns the driver selected by cfg.
func Open(cfg Config) (Driver, error) {
	switch cfg.Driver {
	case "", "gpiocdev", "cdev":
		return NewCdev(cfg.Chip), nil
	case "gpiomem", "mem":
		return NewMem()
	case "periph":
		return NewPeriph()
	case "sim":
		return NewSimDriver(), nil
	default:
		return nil, fmt.Errorf("%w: unknown gpio driver %q", ErrConfig, cfg.Driver)
	}
}
