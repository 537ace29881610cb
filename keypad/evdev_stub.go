//go:build !linux

package keypad

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotSupported is returned on platforms without evdev.
var ErrNotSupported = errors.New("evdev keypad not supported on this platform")

// Evdev is a stub for non-linux platforms.
type Evdev struct{}

// OpenEvdev returns an error on non-linux platforms.
func OpenEvdev(path string, keyMap map[int]Key, log *slog.Logger) (*Evdev, error) {
	return nil, ErrNotSupported
}

func (e *Evdev) Keys() []Key                        { return nil }
func (e *Evdev) Subscribe(fn func(Event)) func()    { return func() {} }
func (e *Evdev) Start(ctx context.Context) error    { return ErrNotSupported }
func (e *Evdev) Stop()                              {}
func (e *Evdev) Close() error                       { return nil }
