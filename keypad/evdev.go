//go:build linux

package keypad

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kenshaw/evdev"

	"garagectl/logging"
)

// Evdev reads a USB numeric keypad through the Linux input subsystem.
type Evdev struct {
	log    *slog.Logger
	device *evdev.Evdev
	held   heldKeys
	subs   subscribers

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// OpenEvdev opens the input device at path. keyMap maps key codes to keys;
// nil selects DefaultKeyMap.
func OpenEvdev(path string, keyMap map[int]Key, log *slog.Logger) (*Evdev, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: evdev keypad needs a device", ErrConfig)
	}
	if log == nil {
		log = logging.Discard()
	}
	if keyMap == nil {
		keyMap = DefaultKeyMap
	}
	log = log.With("component", "keypad")

	dev, err := evdev.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", path, err)
	}

	log.Info("opened keypad device", "name", dev.Name(),
		"vendor", fmt.Sprintf("0x%04x", dev.ID().Vendor),
		"product", fmt.Sprintf("0x%04x", dev.ID().Product))

	return &Evdev{
		log:    log,
		device: dev,
		held:   heldKeys{keyMap: keyMap},
	}, nil
}

// Keys implements Source.Keys.
func (e *Evdev) Keys() []Key {
	return keySet(e.held.keyMap)
}

// Subscribe registers fn for every event.
func (e *Evdev) Subscribe(fn func(Event)) func() {
	return e.subs.add(fn)
}

// Start begins reading key events.
func (e *Evdev) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, e.done)
	return nil
}

func (e *Evdev) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ch := e.device.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				e.log.Error("keypad device closed")
				return
			}
			if _, ok := event.Type.(evdev.KeyType); !ok {
				continue
			}
			if evts := e.held.transition(int(event.Code), event.Value); len(evts) > 0 {
				e.subs.emit(evts)
			}
		}
	}
}

// Stop ends reading.
func (e *Evdev) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops reading and closes the device.
func (e *Evdev) Close() error {
	e.Stop()
	return e.device.Close()
}
