package door

import (
	"fmt"

	"garagectl/port"
)

// Button is a momentary push button wired to an input line.
type Button struct {
	port    port.Port
	unwatch func()
}

// NewButton calls onPress on every press edge: falling for a normally
// closed button, rising otherwise. The button owns p from here on.
func NewButton(p port.Port, normallyClosed bool, onPress func()) (*Button, error) {
	pressed := port.High
	if normallyClosed {
		pressed = port.Low
	}
	unwatch, err := p.Watch(func(lvl port.Level) {
		if lvl == pressed {
			onPress()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch button: %w", err)
	}
	return &Button{port: p, unwatch: unwatch}, nil
}

// Close releases the line.
func (b *Button) Close() error {
	b.unwatch()
	return b.port.Close()
}
