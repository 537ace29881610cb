package port

import (
	"fmt"
	"sync"
)

// Sim is an in-memory pin. Outputs record every write; inputs are driven
// with Set.
type Sim struct {
	mu       sync.Mutex
	level    Level
	output   bool
	closed   bool
	history  []Level
	readFn   func() Level
	watchers watchers
}

// NewSim returns a pin at the given level. Output pins accept Write.
func NewSim(initial Level, output bool) *Sim {
	return &Sim{level: initial, output: output}
}

// SetReadFunc makes Read return fn() instead of the stored level. Used to
// model pins whose level depends on other pins, like keypad columns.
func (s *Sim) SetReadFunc(fn func() Level) {
	s.mu.Lock()
	s.readFn = fn
	s.mu.Unlock()
}

// Set changes the level of the pin and notifies watchers on change.
func (s *Sim) Set(level Level) {
	s.mu.Lock()
	changed := s.level != level
	s.level = level
	s.mu.Unlock()
	if changed {
		s.watchers.notify(level)
	}
}

// Level returns the last level set or written.
func (s *Sim) Level() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// History returns every level written through Write.
func (s *Sim) History() []Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Level(nil), s.history...)
}

// Closed reports whether Close has been called.
func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sim) Read() (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Low, ErrClosed
	}
	if s.readFn != nil {
		return s.readFn(), nil
	}
	return s.level, nil
}

func (s *Sim) Write(level Level) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.output {
		s.mu.Unlock()
		return ErrNotOutput
	}
	s.level = level
	s.history = append(s.history, level)
	s.mu.Unlock()
	return nil
}

func (s *Sim) Watch(fn func(Level)) (func(), error) {
	return s.watchers.add(fn), nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.watchers.clear()
	return nil
}

// SimDriver hands out Sim pins, one per pin number, so a desktop build can
// run the whole controller without hardware.
type SimDriver struct {
	mu   sync.Mutex
	pins map[int]*Sim
}

// NewSimDriver returns an empty simulated chip.
func NewSimDriver() *SimDriver {
	return &SimDriver{pins: make(map[int]*Sim)}
}

// Output implements Driver.Output.
func (d *SimDriver) Output(pin int, initial Level) (Port, error) {
	p, err := d.request(pin, initial, true)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Input implements Driver.Input. Pull-ups start the pin high.
func (d *SimDriver) Input(pin int, opts InputOptions) (Port, error) {
	initial := Low
	if opts.Pull == PullUp {
		initial = High
	}
	p, err := d.request(pin, initial, false)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *SimDriver) request(pin int, initial Level, output bool) (*Sim, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pins[pin]; ok && !p.Closed() {
		return nil, fmt.Errorf("%w: sim pin %d already requested", ErrAcquire, pin)
	}
	p := NewSim(initial, output)
	d.pins[pin] = p
	return p, nil
}

// Pin returns the simulated pin for a number, or nil.
func (d *SimDriver) Pin(pin int) *Sim {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pins[pin]
}

// Close implements Driver.Close.
func (d *SimDriver) Close() error {
	return nil
}
