// Package keypad turns key hardware into pressed/released events.
//
// Scanner polls a row/column matrix through port.Port lines, Evdev reads a
// USB numeric keypad and Serial reads a Wiegand keypad behind a serial
// bridge. All of them emit the same Event stream and expose their key set.
package keypad

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrConfig is returned for layouts that do not match the configured lines.
var ErrConfig = errors.New("keypad: configuration error")

// Key is a symbol on the keypad. Keys compare by value only.
type Key string

// Layout is the grid of keys, indexed [row][col].
type Layout [][]Key

// DefaultLayout is the 4x3 telephone keypad.
var DefaultLayout = Layout{
	{"1", "2", "3"},
	{"4", "5", "6"},
	{"7", "8", "9"},
	{"*", "0", "#"},
}

// ParseLayout converts a grid of strings from config into a Layout.
func ParseLayout(rows [][]string) Layout {
	l := make(Layout, len(rows))
	for i, row := range rows {
		l[i] = make([]Key, len(row))
		for j, k := range row {
			l[i][j] = Key(k)
		}
	}
	return l
}

// Keys returns the flattened key set in row-major order.
func (l Layout) Keys() []Key {
	var keys []Key
	for _, row := range l {
		keys = append(keys, row...)
	}
	return keys
}

// Duplicates returns the keys that appear at more than one position.
func (l Layout) Duplicates() []Key {
	seen := make(map[Key]int)
	var dups []Key
	for _, k := range l.Keys() {
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}

func (l Layout) String() string {
	rows := make([]string, len(l))
	for i, row := range l {
		keys := make([]string, len(row))
		for j, k := range row {
			keys[j] = string(k)
		}
		rows[i] = strings.Join(keys, " ")
	}
	return strings.Join(rows, " | ")
}

// EventType identifies the kind of keypad event.
type EventType int

const (
	EventPressed EventType = iota
	EventReleased
	EventCombination
)

func (t EventType) String() string {
	switch t {
	case EventPressed:
		return "pressed"
	case EventReleased:
		return "released"
	case EventCombination:
		return "combination"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered to subscribers. Key is set for pressed and released
// events; Keys holds the full pressed set for combination events.
type Event struct {
	Type EventType
	Key  Key
	Keys []Key
}

// subscribers is an ordered callback registry.
type subscribers struct {
	mu   sync.Mutex
	next int
	ids  []int
	fns  map[int]func(Event)
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	id := s.next
	s.next++
	s.ids = append(s.ids, id)
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.fns, id)
			for i, v := range s.ids {
				if v == id {
					s.ids = append(s.ids[:i], s.ids[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *subscribers) emit(evts []Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.ids))
	for _, id := range s.ids {
		fns = append(fns, s.fns[id])
	}
	s.mu.Unlock()

	for _, evt := range evts {
		for _, fn := range fns {
			fn(evt)
		}
	}
}
