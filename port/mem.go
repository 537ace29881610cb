//go:build linux

package port

import (
	"fmt"
	"sync"

	gpiomem "github.com/warthog618/gpio"
)

// Mem hands out pins through /dev/gpiomem. Only one Mem may be open per
// process since the underlying mapping is global.
type Mem struct{}

// NewMem maps the GPIO registers.
func NewMem() (*Mem, error) {
	if err := gpiomem.Open(); err != nil {
		return nil, fmt.Errorf("%w: open gpiomem: %v", ErrAcquire, err)
	}
	return &Mem{}, nil
}

// Output implements Driver.Output.
func (m *Mem) Output(pin int, initial Level) (Port, error) {
	p := gpiomem.NewPin(pin)
	p.Output()
	p.Write(gpiomem.Level(initial == High))
	return &memPin{pin: p, output: true}, nil
}

// Input implements Driver.Input. Debounce is not supported by gpiomem and
// is ignored.
func (m *Mem) Input(pin int, opts InputOptions) (Port, error) {
	p := gpiomem.NewPin(pin)
	p.Input()
	switch opts.Pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullNone()
	}

	mp := &memPin{pin: p, watchable: opts.Watch}
	if opts.Watch {
		err := p.Watch(gpiomem.EdgeBoth, func(p *gpiomem.Pin) {
			mp.watchers.notify(fromMem(p.Read()))
		})
		if err != nil {
			return nil, fmt.Errorf("%w: watch pin %d: %v", ErrAcquire, pin, err)
		}
	}
	return mp, nil
}

// Close implements Driver.Close.
func (m *Mem) Close() error {
	return gpiomem.Close()
}

func fromMem(l gpiomem.Level) Level {
	if l == gpiomem.High {
		return High
	}
	return Low
}

type memPin struct {
	mu        sync.Mutex
	pin       *gpiomem.Pin
	output    bool
	watchable bool
	closed    bool
	watchers  watchers
}

func (p *memPin) Read() (Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Low, ErrClosed
	}
	return fromMem(p.pin.Read()), nil
}

func (p *memPin) Write(level Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.output {
		return ErrNotOutput
	}
	p.pin.Write(gpiomem.Level(level == High))
	return nil
}

func (p *memPin) Watch(fn func(Level)) (func(), error) {
	if !p.watchable {
		return nil, ErrNotWatchable
	}
	return p.watchers.add(fn), nil
}

func (p *memPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.watchers.clear()
	if p.watchable {
		p.pin.Unwatch()
	}
	if p.output {
		p.pin.Input()
	}
	return nil
}
