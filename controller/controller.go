// Package controller routes resolved keypad codes to door actuations and
// audible and visual feedback.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"garagectl/buzzer"
	"garagectl/door"
	"garagectl/indicator"
	"garagectl/keypad"
	"garagectl/lock"
	"garagectl/logging"
)

// Key beep played on every press.
const (
	KeyBeepFreq     = 440
	KeyBeepDuration = 50 * time.Millisecond
)

var (
	// ErrConfig is returned for an invalid controller configuration.
	ErrConfig = errors.New("controller: configuration error")

	// ErrUnknownDoor is returned for a door id that is not configured.
	ErrUnknownDoor = errors.New("controller: unknown door")
)

// Default special codes.
var (
	DefaultToggleSoundCode = lock.Code{"*", "*", "*"}
	DefaultMelodyCode      = lock.Code{"1", "1", "3", "8"}
)

// KeySource is a keypad the controller can run.
type KeySource interface {
	lock.Source
	Start(ctx context.Context) error
	Stop()
	Close() error
}

// Actuator is the door side the controller drives.
type Actuator interface {
	State() door.State
	HasSensors() bool
	OpenClose(ctx context.Context) (door.Outcome, error)
	Subscribe(fn func(door.State)) func()
	Close() error
}

// Door is one configured door.
type Door struct {
	ID       string
	Name     string
	Code     lock.Code
	Actuator Actuator
}

// DoorInfo describes a door to the host.
type DoorInfo struct {
	ID   string
	Name string
}

// Config holds the controller settings read from the config file.
type Config struct {
	ToggleSoundCode    []string `yaml:"toggle_sound_code"`
	MelodyCode         []string `yaml:"melody_code"`
	InactivityWindowMs int      `yaml:"inactivity_window_ms"`
}

// Options converts cfg into controller options.
func (c Config) Options() []Option {
	var opts []Option
	if len(c.ToggleSoundCode) > 0 {
		opts = append(opts, WithToggleSoundCode(lock.ParseCode(c.ToggleSoundCode)))
	}
	if len(c.MelodyCode) > 0 {
		opts = append(opts, WithMelodyCode(lock.ParseCode(c.MelodyCode)))
	}
	if c.InactivityWindowMs > 0 {
		opts = append(opts, WithInactivityWindow(time.Duration(c.InactivityWindowMs)*time.Millisecond))
	}
	return opts
}

// Controller is the garage door controller.
type Controller struct {
	log    *slog.Logger
	keys   KeySource
	lock   *lock.Lock
	sound  *buzzer.Sequencer
	ind    indicator.Indicator
	doors  []*Door
	byID   map[string]*Door
	toggle lock.Code
	melody lock.Code
	window time.Duration

	jobs   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	busyMu sync.Mutex
	busy   map[string]bool

	subMu   sync.Mutex
	subs    map[int]func(id string, closed bool)
	nextSub int

	detach   []func()
	stopOnce sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithToggleSoundCode overrides DefaultToggleSoundCode.
func WithToggleSoundCode(code lock.Code) Option {
	return func(c *Controller) { c.toggle = code }
}

// WithMelodyCode overrides DefaultMelodyCode.
func WithMelodyCode(code lock.Code) Option {
	return func(c *Controller) { c.melody = code }
}

// WithInactivityWindow sets the lock's inactivity window.
func WithInactivityWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New builds a controller. The controller owns keys, the actuators, sound
// and ind from here on and releases them in Close.
func New(keys KeySource, doors []Door, sound *buzzer.Sequencer, ind indicator.Indicator, opts ...Option) (*Controller, error) {
	c := &Controller{
		log:    logging.Discard(),
		keys:   keys,
		sound:  sound,
		ind:    ind,
		byID:   make(map[string]*Door),
		busy:   make(map[string]bool),
		toggle: DefaultToggleSoundCode,
		melody: DefaultMelodyCode,
		window: lock.DefaultInactivityWindow,
		subs:   make(map[int]func(string, bool)),
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.log
	c.log = c.log.With("component", "controller")
	if c.ind == nil {
		c.ind = &indicator.Noop{}
	}
	if c.sound == nil {
		c.sound = buzzer.New(buzzer.Noop{})
	}

	codes, err := c.addDoors(doors)
	if err != nil {
		return nil, err
	}

	c.lock, err = lock.New(keys, codes,
		lock.WithInactivityWindow(c.window),
		lock.WithLogger(base))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	c.lock.Subscribe(c.handleLock)

	c.jobs, c.cancel = context.WithCancel(context.Background())
	c.detach = append(c.detach, keys.Subscribe(c.handleKey))
	for _, d := range c.doors {
		id := d.ID
		c.detach = append(c.detach, d.Actuator.Subscribe(func(st door.State) {
			c.notify(id, st == door.Closed)
		}))
	}
	return c, nil
}

// addDoors validates doors and returns every code the lock must know.
func (c *Controller) addDoors(doors []Door) ([]lock.Code, error) {
	if len(c.toggle) == 0 || len(c.melody) == 0 {
		return nil, fmt.Errorf("%w: special codes must not be empty", ErrConfig)
	}
	codes := []lock.Code{c.toggle, c.melody}
	names := []string{"toggle sound code", "melody code"}

	for i := range doors {
		d := doors[i]
		switch {
		case d.ID == "":
			return nil, fmt.Errorf("%w: door %d has no id", ErrConfig, i)
		case c.byID[d.ID] != nil:
			return nil, fmt.Errorf("%w: duplicate door id %q", ErrConfig, d.ID)
		case d.Actuator == nil:
			return nil, fmt.Errorf("%w: door %q has no actuator", ErrConfig, d.ID)
		case len(d.Code) == 0:
			return nil, fmt.Errorf("%w: configuration doesn't provide door code for door %q", ErrConfig, d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		codes = append(codes, d.Code)
		names = append(names, fmt.Sprintf("door %q", d.ID))
		c.doors = append(c.doors, &d)
		c.byID[d.ID] = &d
		c.log.Info("door configured", "door", d.ID, "name", d.Name)
		c.log.Debug("door code", "door", d.ID, "code", d.Code.String())
	}

	for i := range codes {
		for j := i + 1; j < len(codes); j++ {
			if codes[i].Equal(codes[j]) {
				return nil, fmt.Errorf("%w: %s and %s share code %s", ErrConfig, names[i], names[j], codes[i])
			}
		}
	}
	return codes, nil
}

// Start begins scanning the keypad.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.keys.Start(ctx); err != nil {
		return fmt.Errorf("start keypad: %w", err)
	}
	c.log.Info("garage control running", "doors", len(c.doors))
	return nil
}

// Stop stops the keypad and the lock, cancels running feedback and waits
// for it to finish. It does not release hardware.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.keys.Stop()
		c.lock.Stop()
		for _, fn := range c.detach {
			fn()
		}
		c.cancel()
		c.wg.Wait()
		c.log.Info("garage control stopped")
	})
}

// Close stops the controller and releases every component it owns.
func (c *Controller) Close() error {
	c.Stop()
	c.ind.Shutdown()

	var errs []error
	if err := c.keys.Close(); err != nil {
		errs = append(errs, fmt.Errorf("keypad: %w", err))
	}
	for _, d := range c.doors {
		if err := d.Actuator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("door %q: %w", d.ID, err))
		}
	}
	if err := c.sound.Close(); err != nil {
		errs = append(errs, fmt.Errorf("buzzer: %w", err))
	}
	if err := c.ind.Release(); err != nil {
		errs = append(errs, fmt.Errorf("indicator: %w", err))
	}
	return errors.Join(errs...)
}

// spawn runs fn as a feedback job tracked by Stop.
func (c *Controller) spawn(name string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := fn(c.jobs)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, door.ErrBusy) {
			c.log.Error("feedback failed", "job", name, "error", err)
		}
	}()
}

func (c *Controller) handleKey(evt keypad.Event) {
	if evt.Type != keypad.EventPressed {
		return
	}
	c.spawn("key beep", func(ctx context.Context) error {
		return c.sound.Beep(ctx, KeyBeepFreq, KeyBeepDuration)
	})
}

func (c *Controller) handleLock(evt lock.Event) {
	switch evt.Type {
	case lock.EventInput:
		c.log.Debug("input", "keys", lock.Code(evt.Attempt).String())

	case lock.EventFailed:
		c.log.Info("failed to unlock")
		c.spawn("failed", func(ctx context.Context) error {
			// blink first, then the melody
			lerr := c.ind.Denied(ctx)
			if err := ctx.Err(); err != nil {
				return err
			}
			return errors.Join(lerr, c.sound.Play(ctx, buzzer.Failure))
		})

	case lock.EventUnlocked:
		switch {
		case evt.Code.Equal(c.toggle):
			c.sound.Toggle()
		case evt.Code.Equal(c.melody):
			c.spawn("melody", func(ctx context.Context) error {
				return c.sound.Play(ctx, buzzer.ImperialMarch)
			})
		default:
			d := c.doorByCode(evt.Code)
			if d == nil {
				c.log.Error("unknown code detected", "code", evt.Code.String())
				return
			}
			c.spawn("door "+d.ID, func(ctx context.Context) error {
				return c.openClose(ctx, d)
			})
		}
	}
}

func (c *Controller) doorByCode(code lock.Code) *Door {
	for _, d := range c.doors {
		if d.Code.Equal(code) {
			return d
		}
	}
	return nil
}

// openClose runs the door LED, the engine and the success melody together
// and waits for all three. A door already in motion returns door.ErrBusy
// without any feedback.
func (c *Controller) openClose(ctx context.Context, d *Door) error {
	log := c.log.With("door", d.ID)
	if !c.reserve(d.ID) {
		log.Warn("door is busy, ignoring")
		return door.ErrBusy
	}
	defer c.release(d.ID)
	log.Info("unlocked door")

	var g errgroup.Group
	g.Go(func() error { return c.ind.Granted(ctx, d.ID) })
	g.Go(func() error {
		out, err := d.Actuator.OpenClose(ctx)
		if err != nil {
			return err
		}
		if d.Actuator.HasSensors() && !out.Confirmed {
			log.Warn("door movement not confirmed by sensor", "state", out.After.String())
		}
		return nil
	})
	g.Go(func() error { return c.sound.Play(ctx, buzzer.Success) })
	return g.Wait()
}

func (c *Controller) reserve(id string) bool {
	c.busyMu.Lock()
	defer c.busyMu.Unlock()
	if c.busy[id] {
		return false
	}
	c.busy[id] = true
	return true
}

func (c *Controller) release(id string) {
	c.busyMu.Lock()
	defer c.busyMu.Unlock()
	delete(c.busy, id)
}

func (c *Controller) door(id string) (*Door, error) {
	d := c.byID[id]
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDoor, id)
	}
	return d, nil
}

// Doors lists the configured doors in configuration order.
func (c *Controller) Doors() []DoorInfo {
	out := make([]DoorInfo, 0, len(c.doors))
	for _, d := range c.doors {
		out = append(out, DoorInfo{ID: d.ID, Name: d.Name})
	}
	return out
}

// DoorState returns the state of a door.
func (c *Controller) DoorState(id string) (door.State, error) {
	d, err := c.door(id)
	if err != nil {
		return door.Unknown, err
	}
	return d.Actuator.State(), nil
}

// IsDoorClosed reports whether a door is closed.
func (c *Controller) IsDoorClosed(id string) (bool, error) {
	st, err := c.DoorState(id)
	return st == door.Closed, err
}

// OpenCloseDoor actuates a door with full feedback and returns when the
// operation has finished.
func (c *Controller) OpenCloseDoor(ctx context.Context, id string) error {
	d, err := c.door(id)
	if err != nil {
		return err
	}
	return c.openClose(ctx, d)
}

// Trigger starts OpenCloseDoor in the background, for callers that must
// not block such as button handlers.
func (c *Controller) Trigger(id string) error {
	d, err := c.door(id)
	if err != nil {
		return err
	}
	c.spawn("door "+d.ID, func(ctx context.Context) error {
		return c.openClose(ctx, d)
	})
	return nil
}

// OnDoorStateChanged registers fn for door state changes.
func (c *Controller) OnDoorStateChanged(fn func(id string, closed bool)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) notify(id string, closed bool) {
	c.subMu.Lock()
	fns := make([]func(string, bool), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.subMu.Unlock()

	c.log.Info("door state changed", "door", id, "closed", closed)
	for _, fn := range fns {
		fn(id, closed)
	}
}
