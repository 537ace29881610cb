// Package lock implements the combination lock: key presses accumulate into
// an attempt that is resolved against the registered codes once the keypad
// has been quiet for the inactivity window.
package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"garagectl/keypad"
	"garagectl/logging"
)

// DefaultInactivityWindow is the quiet period after which an attempt is resolved.
const DefaultInactivityWindow = 1000 * time.Millisecond

// ErrConfig is returned when a code uses keys the keypad does not have.
var ErrConfig = errors.New("lock: configuration error")

// Code is an ordered key sequence.
type Code []keypad.Key

// ParseCode converts a config code into a Code.
func ParseCode(keys []string) Code {
	c := make(Code, len(keys))
	for i, k := range keys {
		c[i] = keypad.Key(k)
	}
	return c
}

// Equal reports exact sequence equality.
func (c Code) Equal(other []keypad.Key) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

func (c Code) String() string {
	keys := make([]string, len(c))
	for i, k := range c {
		keys[i] = string(k)
	}
	return "[" + strings.Join(keys, ",") + "]"
}

// Source is a keypad event stream with a known key set.
type Source interface {
	Keys() []keypad.Key
	Subscribe(fn func(keypad.Event)) (cancel func())
}

// State is the lock's state.
type State int

const (
	// StateIdle means the attempt is empty and no timer is armed.
	StateIdle State = iota
	// StateAccumulating means at least one key was pressed and the inactivity timer is armed.
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "ACCUMULATING"
	}
	return "IDLE"
}

// EventType identifies a lock event.
type EventType int

const (
	// EventInput carries the complete attempt; it precedes every resolution.
	EventInput EventType = iota
	// EventUnlocked carries the matched code.
	EventUnlocked
	// EventFailed means the attempt matched no code.
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventInput:
		return "input"
	case EventUnlocked:
		return "unlocked"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered to subscribers.
type Event struct {
	Type    EventType
	Attempt []keypad.Key // EventInput
	Code    Code         // EventUnlocked
}

// Lock accumulates key presses and resolves them after a quiet period.
type Lock struct {
	log    *slog.Logger
	codes  []Code
	window time.Duration

	// resolveMu is held for a whole resolution so Stop can wait it out.
	resolveMu sync.Mutex

	mu      sync.Mutex
	attempt []keypad.Key
	timer   *time.Timer
	gen     uint64
	stopped bool
	detach  func()

	subMu sync.Mutex
	subs  []func(Event)
}

// Option configures a Lock.
type Option func(*Lock)

// WithInactivityWindow overrides DefaultInactivityWindow.
func WithInactivityWindow(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Lock) {
		if log != nil {
			l.log = log
		}
	}
}

// New validates every code against the source's keys and attaches to its
// pressed events.
func New(src Source, codes []Code, opts ...Option) (*Lock, error) {
	available := make(map[keypad.Key]bool)
	for _, k := range src.Keys() {
		available[k] = true
	}
	for _, code := range codes {
		for _, k := range code {
			if !available[k] {
				return nil, fmt.Errorf("%w: given key combination is not available on keypad %s", ErrConfig, code)
			}
		}
	}

	l := &Lock{
		log:    logging.Discard(),
		codes:  append([]Code(nil), codes...),
		window: DefaultInactivityWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("component", "lock")

	l.detach = src.Subscribe(func(evt keypad.Event) {
		if evt.Type == keypad.EventPressed {
			l.Press(evt.Key)
		}
	})
	return l, nil
}

// Subscribe registers fn for lock events. fn runs on the timer goroutine.
func (l *Lock) Subscribe(fn func(Event)) {
	l.subMu.Lock()
	l.subs = append(l.subs, fn)
	l.subMu.Unlock()
}

// Press appends key to the attempt and restarts the inactivity timer.
func (l *Lock) Press(key keypad.Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}

	l.attempt = append(l.attempt, key)
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
	}
	gen := l.gen
	l.timer = time.AfterFunc(l.window, func() { l.resolve(gen) })
}

// State returns the current state.
func (l *Lock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.attempt) > 0 {
		return StateAccumulating
	}
	return StateIdle
}

func (l *Lock) resolve(gen uint64) {
	l.resolveMu.Lock()
	defer l.resolveMu.Unlock()

	l.mu.Lock()
	// A press after this timer fired but before we got the lock owns the
	// attempt now.
	if l.stopped || gen != l.gen {
		l.mu.Unlock()
		return
	}
	attempt := l.attempt
	l.attempt = nil
	l.timer = nil
	l.mu.Unlock()

	l.emit(Event{Type: EventInput, Attempt: attempt})
	if code, ok := l.match(attempt); ok {
		l.emit(Event{Type: EventUnlocked, Code: code})
	} else {
		l.emit(Event{Type: EventFailed})
	}
}

func (l *Lock) match(attempt []keypad.Key) (Code, bool) {
	for _, code := range l.codes {
		if code.Equal(attempt) {
			return code, true
		}
	}
	return nil, false
}

func (l *Lock) emit(evt Event) {
	l.subMu.Lock()
	subs := append([]func(Event){}, l.subs...)
	l.subMu.Unlock()

	for _, fn := range subs {
		fn(evt)
	}
}

// Stop cancels a pending resolution and detaches from the key source. No
// events are emitted once Stop returns. Must not be called from a
// subscriber.
func (l *Lock) Stop() {
	l.resolveMu.Lock()
	defer l.resolveMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.attempt = nil
	if l.detach != nil {
		l.detach()
	}
}
