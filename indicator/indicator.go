package indicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"garagectl/port"
)

// Indicator is the interface for visual feedback implementations (LEDs,
// neopixels).
type Indicator interface {
	// Idle sets the indicator to its resting state.
	Idle()

	// Granted signals an accepted code for doorID. It returns when the
	// signal has finished.
	Granted(ctx context.Context, doorID string) error

	// Denied signals a failed attempt. It returns when the signal has
	// finished.
	Denied(ctx context.Context) error

	// ConnectionLost signals that the host connection is down.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Connector is implemented by indicators whose idle state depends on the
// host connection.
type Connector interface {
	SetConnected()
}

// Config holds configuration for indicator implementations.
type Config struct {
	// FailedLedPin lights on failed attempts (nil = not configured).
	FailedLedPin *int `yaml:"failed_led_pin"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`

	// DoorPins maps door ids to their LED pin. Filled from the door list.
	DoorPins map[string]int `yaml:"-"`
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if both GPIO and Neopixel are configured.
func New(drv port.Driver, cfg Config, log *slog.Logger) (Indicator, error) {
	var indicators []Indicator

	if cfg.FailedLedPin != nil || len(cfg.DoorPins) > 0 {
		gpio, err := openGPIO(drv, cfg)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			releaseAll(indicators)
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if log != nil {
		log.Info("indicator configured", "component", "indicator", "count", len(indicators))
	}

	switch len(indicators) {
	case 0:
		return &Noop{}, nil
	case 1:
		return indicators[0], nil
	default:
		return NewMulti(indicators...), nil
	}
}

func openGPIO(drv port.Driver, cfg Config) (*GPIO, error) {
	var opened []port.Port
	fail := func(err error) (*GPIO, error) {
		for _, p := range opened {
			p.Close()
		}
		return nil, err
	}

	var failed port.Port
	if cfg.FailedLedPin != nil {
		p, err := drv.Output(*cfg.FailedLedPin, port.Low)
		if err != nil {
			return fail(fmt.Errorf("failed led pin %d: %w", *cfg.FailedLedPin, err))
		}
		opened = append(opened, p)
		failed = p
	}

	ids := make([]string, 0, len(cfg.DoorPins))
	for id := range cfg.DoorPins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doors := make(map[string]port.Port, len(ids))
	for _, id := range ids {
		pin := cfg.DoorPins[id]
		p, err := drv.Output(pin, port.Low)
		if err != nil {
			return fail(fmt.Errorf("door %q led pin %d: %w", id, pin, err))
		}
		opened = append(opened, p)
		doors[id] = p
	}
	return NewGPIO(failed, doors), nil
}

func releaseAll(inds []Indicator) error {
	var errs []error
	for _, ind := range inds {
		if err := ind.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
