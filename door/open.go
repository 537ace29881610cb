package door

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"garagectl/port"
)

// OpenActuator requests the lines named in cfg from drv and builds the actuator.
// Lines already requested are released if a later step fails.
func OpenActuator(drv port.Driver, cfg Config, log *slog.Logger) (*Actuator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []Option{WithName(cfg.DisplayName()), WithLogger(log)}
	initial := port.Low
	if cfg.EngineActiveLow {
		opts = append(opts, WithActiveLow())
		initial = port.High
	}
	if cfg.EnginePulseMs > 0 {
		opts = append(opts, WithEnginePulse(time.Duration(cfg.EnginePulseMs)*time.Millisecond))
	}
	if cfg.MaxSensorWaitMs > 0 {
		opts = append(opts, WithMaxSensorWait(time.Duration(cfg.MaxSensorWaitMs)*time.Millisecond))
	}

	engine, err := drv.Output(*cfg.EnginePin, initial)
	if err != nil {
		return nil, fmt.Errorf("door %q: engine pin %d: %w", cfg.ID, *cfg.EnginePin, err)
	}

	var opened, closed *Sensor
	if s := cfg.Sensors; s != nil && s.OpenedPin != nil {
		opened, err = openSensor(drv, *s.OpenedPin, s)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("door %q: opened sensor: %w", cfg.ID, err)
		}
		closed, err = openSensor(drv, *s.ClosedPin, s)
		if err != nil {
			engine.Close()
			opened.Close()
			return nil, fmt.Errorf("door %q: closed sensor: %w", cfg.ID, err)
		}
	}

	a, err := NewActuator(cfg.ID, engine, opened, closed, opts...)
	if err != nil {
		errs := []error{err, engine.Close()}
		if opened != nil {
			errs = append(errs, opened.Close(), closed.Close())
		}
		return nil, errors.Join(errs...)
	}
	return a, nil
}

func openSensor(drv port.Driver, pin int, cfg *SensorConfig) (*Sensor, error) {
	pull := port.PullDown
	if cfg.NormallyClosed {
		pull = port.PullUp
	}
	p, err := drv.Input(pin, port.InputOptions{
		Pull:     pull,
		Debounce: time.Duration(cfg.DebounceMs) * time.Millisecond,
		Watch:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("pin %d: %w", pin, err)
	}
	s, err := NewSensor(p, cfg.NormallyClosed)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("pin %d: %w", pin, err)
	}
	return s, nil
}

// OpenButton requests the button line named in cfg, if any. It returns a
// nil Button when no button is configured.
func OpenButton(drv port.Driver, cfg Config, onPress func()) (*Button, error) {
	if cfg.ButtonPin == nil {
		return nil, nil
	}
	pull := port.PullDown
	if cfg.ButtonNormallyClosed {
		pull = port.PullUp
	}
	p, err := drv.Input(*cfg.ButtonPin, port.InputOptions{
		Pull:     pull,
		Debounce: 50 * time.Millisecond,
		Watch:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("door %q: button pin %d: %w", cfg.ID, *cfg.ButtonPin, err)
	}
	b, err := NewButton(p, cfg.ButtonNormallyClosed, onPress)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("door %q: button: %w", cfg.ID, err)
	}
	return b, nil
}
