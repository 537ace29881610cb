package door

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"garagectl/logging"
	"garagectl/port"
)

// Actuator pulses the door engine and reports the door state.
type Actuator struct {
	id   string
	name string
	log  *slog.Logger

	engine   port.Port
	active   port.Level
	inactive port.Level

	opened *Sensor
	closed *Sensor

	pulse   time.Duration
	maxWait time.Duration

	busy sync.Mutex

	mu      sync.Mutex
	last    State
	subs    map[int]func(State)
	next    int
	unwatch []func()
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithEnginePulse sets how long the engine line is held active.
func WithEnginePulse(d time.Duration) Option {
	return func(a *Actuator) { a.pulse = d }
}

// WithMaxSensorWait sets how long an actuation waits for the sensor.
func WithMaxSensorWait(d time.Duration) Option {
	return func(a *Actuator) { a.maxWait = d }
}

// WithActiveLow makes a low level start the engine.
func WithActiveLow() Option {
	return func(a *Actuator) { a.active, a.inactive = port.Low, port.High }
}

// WithName sets the display name used in logs.
func WithName(name string) Option {
	return func(a *Actuator) { a.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Actuator) {
		if l != nil {
			a.log = l
		}
	}
}

// NewActuator builds an actuator over an engine output and an optional pair
// of sensors. opened and closed must both be set or both be nil. The
// actuator owns the ports and sensors from here on.
func NewActuator(id string, engine port.Port, opened, closed *Sensor, opts ...Option) (*Actuator, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: door %q has no engine", ErrConfig, id)
	}
	if (opened == nil) != (closed == nil) {
		return nil, fmt.Errorf("%w: door %q needs both sensors or neither", ErrConfig, id)
	}
	a := &Actuator{
		id:       id,
		name:     id,
		log:      logging.Discard(),
		engine:   engine,
		active:   port.High,
		inactive: port.Low,
		opened:   opened,
		closed:   closed,
		pulse:    DefaultEnginePulse,
		maxWait:  DefaultMaxSensorWait,
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "door", "door", a.id)

	if err := a.engine.Write(a.inactive); err != nil {
		return nil, fmt.Errorf("door %q: idle engine: %w", id, err)
	}

	a.last = a.compute()
	if a.HasSensors() {
		a.unwatch = []func(){
			a.opened.Subscribe(func(bool) { a.recompute() }),
			a.closed.Subscribe(func(bool) { a.recompute() }),
		}
	}
	return a, nil
}

// ID returns the door id.
func (a *Actuator) ID() string { return a.id }

// Name returns the display name.
func (a *Actuator) Name() string { return a.name }

// HasSensors reports whether position sensors are attached.
func (a *Actuator) HasSensors() bool { return a.opened != nil }

// compute applies the state policy to the cached sensor values. A door
// without sensors is always reported closed.
func (a *Actuator) compute() State {
	if !a.HasSensors() {
		return Closed
	}
	atOpen, atClosed := a.opened.IsClosed(), a.closed.IsClosed()
	switch {
	case atOpen && atClosed:
		a.log.Warn("both position sensors active, reporting open")
		return Open
	case atClosed:
		return Closed
	default:
		return Open
	}
}

func (a *Actuator) recompute() {
	a.setState(a.compute())
}

func (a *Actuator) setState(st State) {
	a.mu.Lock()
	if st == a.last {
		a.mu.Unlock()
		return
	}
	a.last = st
	fns := make([]func(State), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	a.log.Info("door state changed", "state", st.String())
	for _, fn := range fns {
		fn(st)
	}
}

// State returns the current door state.
func (a *Actuator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// IsClosed reports whether the door is considered closed.
func (a *Actuator) IsClosed() bool {
	return a.State() == Closed
}

// Refresh re-reads both sensors from the hardware. A read error yields
// Unknown until the next transition or refresh.
func (a *Actuator) Refresh() State {
	if !a.HasSensors() {
		return Closed
	}
	for _, s := range []*Sensor{a.opened, a.closed} {
		if _, err := s.Refresh(); err != nil {
			a.log.Error("sensor read failed", "error", err)
			a.setState(Unknown)
			return Unknown
		}
	}
	st := a.compute()
	a.setState(st)
	return st
}

// Subscribe registers fn for state changes.
func (a *Actuator) Subscribe(fn func(State)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	a.subs[id] = fn
	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// OpenClose pulses the engine and waits for the sensor opposite the
// starting position to change, for at most the max sensor wait. Without
// sensors it waits the full max sensor wait. It returns ErrBusy if another
// actuation is in flight.
func (a *Actuator) OpenClose(ctx context.Context) (Outcome, error) {
	if !a.busy.TryLock() {
		return Outcome{}, ErrBusy
	}
	defer a.busy.Unlock()

	out := Outcome{Before: a.State()}

	var moved chan struct{}
	if a.HasSensors() {
		target := a.closed
		if out.Before == Closed {
			target = a.opened
		}
		moved = make(chan struct{}, 1)
		cancel := target.Subscribe(func(bool) {
			select {
			case moved <- struct{}{}:
			default:
			}
		})
		defer cancel()
	}

	a.log.Info("starting engine", "state", out.Before.String())
	if err := a.pulseEngine(ctx); err != nil {
		return out, err
	}

	timer := time.NewTimer(a.maxWait)
	defer timer.Stop()

	select {
	case <-moved:
		out.Confirmed = true
	case <-timer.C:
		if a.HasSensors() {
			a.log.Warn("no sensor change before timeout", "wait", a.maxWait)
		}
	case <-ctx.Done():
		a.recompute()
		out.After = a.State()
		return out, ctx.Err()
	}

	a.recompute()
	out.After = a.State()
	a.log.Info("engine cycle finished",
		"before", out.Before.String(),
		"after", out.After.String(),
		"confirmed", out.Confirmed)
	return out, nil
}

// pulseEngine holds the engine active for the pulse duration. The line is
// always returned to inactive, also when ctx ends early.
func (a *Actuator) pulseEngine(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.engine.Write(a.active); err != nil {
		return fmt.Errorf("door %q: start engine: %w", a.id, err)
	}

	t := time.NewTimer(a.pulse)
	var cerr error
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
		cerr = ctx.Err()
	}

	if err := a.engine.Write(a.inactive); err != nil {
		return fmt.Errorf("door %q: stop engine: %w", a.id, err)
	}
	return cerr
}

// Close idles the engine and releases every line.
func (a *Actuator) Close() error {
	a.mu.Lock()
	unwatch := a.unwatch
	a.unwatch = nil
	a.subs = make(map[int]func(State))
	a.mu.Unlock()
	for _, fn := range unwatch {
		fn()
	}

	var errs []error
	if err := a.engine.Write(a.inactive); err != nil {
		errs = append(errs, err)
	}
	if err := a.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, s := range []*Sensor{a.opened, a.closed} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
