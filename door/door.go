// Package door drives a door engine and tracks the door through an
// "opened" and a "closed" position sensor.
package door

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for an actuation.
const (
	DefaultEnginePulse   = 300 * time.Millisecond
	DefaultMaxSensorWait = 30000 * time.Millisecond
)

var (
	// ErrConfig is returned for an invalid door configuration.
	ErrConfig = errors.New("door: configuration error")

	// ErrBusy is returned when an actuation is already in flight.
	ErrBusy = errors.New("door: operation in progress")
)

// State is the door position derived from the sensors.
type State int

const (
	Closed State = iota
	Open
	Unknown
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds configuration for one door.
type Config struct {
	ID   string   `yaml:"id"`
	Name string   `yaml:"name"`
	Code []string `yaml:"code"`

	EnginePin       *int `yaml:"engine_pin"`
	EngineActiveLow bool `yaml:"engine_active_low"` // relay boards that switch on low
	EnginePulseMs   int  `yaml:"engine_pulse_ms"`
	MaxSensorWaitMs int  `yaml:"max_sensor_wait_ms"`

	Sensors *SensorConfig `yaml:"sensors"`

	LedPin    *int `yaml:"led_pin"`
	ButtonPin *int `yaml:"button_pin"`
	// ButtonNormallyClosed selects a falling edge as the press.
	ButtonNormallyClosed bool `yaml:"button_normally_closed"`
}

// SensorConfig holds the position sensor pins of a door.
type SensorConfig struct {
	OpenedPin      *int `yaml:"opened_pin"`
	ClosedPin      *int `yaml:"closed_pin"`
	NormallyClosed bool `yaml:"normally_closed"`
	DebounceMs     int  `yaml:"debounce_ms"`
}

// DisplayName returns Name, falling back to ID.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Validate checks the parts of cfg that do not need hardware.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: door id is required", ErrConfig)
	}
	if c.EnginePin == nil {
		return fmt.Errorf("%w: door %q has no engine_pin", ErrConfig, c.ID)
	}
	if s := c.Sensors; s != nil && (s.OpenedPin == nil) != (s.ClosedPin == nil) {
		return fmt.Errorf("%w: door %q needs both opened_pin and closed_pin or neither", ErrConfig, c.ID)
	}
	if c.EnginePulseMs < 0 || c.MaxSensorWaitMs < 0 {
		return fmt.Errorf("%w: door %q has a negative duration", ErrConfig, c.ID)
	}
	return nil
}

// Outcome describes a finished actuation.
type Outcome struct {
	Before State
	After  State
	// Confirmed is true when a sensor transition ended the wait rather than
	// the timeout.
	Confirmed bool
}
