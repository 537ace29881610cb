//go:build linux

package port

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "garagectl"

// Cdev hands out lines from a GPIO character device.
type Cdev struct {
	chip string
}

// NewCdev creates a gpiocdev driver for chip (default "gpiochip0").
func NewCdev(chip string) *Cdev {
	if chip == "" {
		chip = "gpiochip0"
	}
	return &Cdev{chip: chip}
}

// Output implements Driver.Output.
func (c *Cdev) Output(pin int, initial Level) (Port, error) {
	line, err := gpiocdev.RequestLine(c.chip, pin,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.AsOutput(int(initial)))
	if err != nil {
		return nil, fmt.Errorf("%w: request output %s:%d: %v", ErrAcquire, c.chip, pin, err)
	}
	return &cdevLine{line: line, output: true}, nil
}

// Input implements Driver.Input.
func (c *Cdev) Input(pin int, opts InputOptions) (Port, error) {
	l := &cdevLine{watchable: opts.Watch}

	reqOpts := []gpiocdev.LineReqOption{
		gpiocdev.WithConsumer(consumer),
		gpiocdev.AsInput,
	}
	switch opts.Pull {
	case PullUp:
		reqOpts = append(reqOpts, gpiocdev.WithPullUp)
	case PullDown:
		reqOpts = append(reqOpts, gpiocdev.WithPullDown)
	}
	if opts.Debounce > 0 {
		reqOpts = append(reqOpts, gpiocdev.WithDebounce(opts.Debounce))
	}
	if opts.Watch {
		reqOpts = append(reqOpts,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(l.handleEvent))
	}

	line, err := gpiocdev.RequestLine(c.chip, pin, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: request input %s:%d: %v", ErrAcquire, c.chip, pin, err)
	}
	l.line = line
	return l, nil
}

// Close implements Driver.Close. Lines are released individually.
func (c *Cdev) Close() error {
	return nil
}

type cdevLine struct {
	mu        sync.Mutex
	line      *gpiocdev.Line
	output    bool
	watchable bool
	closed    bool
	watchers  watchers
}

func (l *cdevLine) handleEvent(evt gpiocdev.LineEvent) {
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		l.watchers.notify(High)
	case gpiocdev.LineEventFallingEdge:
		l.watchers.notify(Low)
	}
}

func (l *cdevLine) Read() (Level, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Low, ErrClosed
	}
	v, err := l.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read line %d: %w", l.line.Offset(), err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

func (l *cdevLine) Write(level Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if !l.output {
		return ErrNotOutput
	}
	if err := l.line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write line %d: %w", l.line.Offset(), err)
	}
	return nil
}

func (l *cdevLine) Watch(fn func(Level)) (func(), error) {
	if !l.watchable {
		return nil, ErrNotWatchable
	}
	return l.watchers.add(fn), nil
}

func (l *cdevLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.watchers.clear()
	return l.line.Close()
}
