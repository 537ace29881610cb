package door

import (
	"fmt"
	"sync"

	"garagectl/port"
)

// sensorReadAttempts bounds the initial read, which stops early on a high
// level to ride out a floating line.
const sensorReadAttempts = 3

// Sensor is a position switch, normalised to a logical closed/open contact.
// A normally closed switch reads low when closed, a normally open one high.
type Sensor struct {
	port        port.Port
	closedLevel port.Level

	mu      sync.Mutex
	closed  bool
	subs    map[int]func(bool)
	next    int
	unwatch func()
}

// NewSensor reads the initial state and starts watching edges. The sensor
// owns p from here on.
func NewSensor(p port.Port, normallyClosed bool) (*Sensor, error) {
	s := &Sensor{
		port:        p,
		closedLevel: port.High,
		subs:        make(map[int]func(bool)),
	}
	if normallyClosed {
		s.closedLevel = port.Low
	}

	var lvl port.Level
	var err error
	for i := 0; i < sensorReadAttempts; i++ {
		lvl, err = p.Read()
		if err == nil && lvl == port.High {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read sensor: %w", err)
	}
	s.closed = lvl == s.closedLevel

	unwatch, err := p.Watch(s.handleLevel)
	if err != nil {
		return nil, fmt.Errorf("watch sensor: %w", err)
	}
	s.unwatch = unwatch
	return s, nil
}

func (s *Sensor) handleLevel(lvl port.Level) {
	closed := lvl == s.closedLevel

	s.mu.Lock()
	if closed == s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = closed
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(closed)
	}
}

// IsClosed returns the last known contact state.
func (s *Sensor) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Refresh re-reads the line and applies any change as if an edge had fired.
func (s *Sensor) Refresh() (bool, error) {
	lvl, err := s.port.Read()
	if err != nil {
		return false, err
	}
	s.handleLevel(lvl)
	return lvl == s.closedLevel, nil
}

// Subscribe registers fn for contact changes.
func (s *Sensor) Subscribe(fn func(closed bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops watching and releases the line.
func (s *Sensor) Close() error {
	s.mu.Lock()
	s.subs = make(map[int]func(bool))
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	return s.port.Close()
}
