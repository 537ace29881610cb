package port

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgePoll bounds how long a watch loop blocks before checking for close.
const edgePoll = 100 * time.Millisecond

// Periph hands out pins registered by periph.io host drivers. Pins are
// addressed by BCM number ("GPIO17").
type Periph struct{}

// NewPeriph initialises the periph host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: periph host init: %v", ErrAcquire, err)
	}
	return &Periph{}, nil
}

func lookup(pin int) (gpio.PinIO, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("%w: no such pin GPIO%d", ErrAcquire, pin)
	}
	return p, nil
}

func toPeriph(l Level) gpio.Level {
	if l == High {
		return gpio.High
	}
	return gpio.Low
}

func fromPeriph(l gpio.Level) Level {
	if l == gpio.High {
		return High
	}
	return Low
}

// Output implements Driver.Output.
func (d *Periph) Output(pin int, initial Level) (Port, error) {
	p, err := lookup(pin)
	if err != nil {
		return nil, err
	}
	if err := p.Out(toPeriph(initial)); err != nil {
		return nil, fmt.Errorf("%w: GPIO%d out: %v", ErrAcquire, pin, err)
	}
	return &periphPin{pin: p, output: true}, nil
}

// Input implements Driver.Input. Debounce is not supported and is ignored.
func (d *Periph) Input(pin int, opts InputOptions) (Port, error) {
	p, err := lookup(pin)
	if err != nil {
		return nil, err
	}

	pull := gpio.Float
	switch opts.Pull {
	case PullUp:
		pull = gpio.PullUp
	case PullDown:
		pull = gpio.PullDown
	}
	edge := gpio.NoEdge
	if opts.Watch {
		edge = gpio.BothEdges
	}
	if err := p.In(pull, edge); err != nil {
		return nil, fmt.Errorf("%w: GPIO%d in: %v", ErrAcquire, pin, err)
	}

	pp := &periphPin{pin: p, watchable: opts.Watch}
	if opts.Watch {
		pp.done = make(chan struct{})
		pp.stopped = make(chan struct{})
		go pp.watchLoop()
	}
	return pp, nil
}

// Close implements Driver.Close.
func (d *Periph) Close() error {
	return nil
}

type periphPin struct {
	mu        sync.Mutex
	pin       gpio.PinIO
	output    bool
	watchable bool
	closed    bool
	watchers  watchers
	done      chan struct{}
	stopped   chan struct{}
}

func (p *periphPin) watchLoop() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		if p.pin.WaitForEdge(edgePoll) {
			p.watchers.notify(fromPeriph(p.pin.Read()))
		}
	}
}

func (p *periphPin) Read() (Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Low, ErrClosed
	}
	return fromPeriph(p.pin.Read()), nil
}

func (p *periphPin) Write(level Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.output {
		return ErrNotOutput
	}
	if err := p.pin.Out(toPeriph(level)); err != nil {
		return fmt.Errorf("write %s: %w", p.pin.Name(), err)
	}
	return nil
}

func (p *periphPin) Watch(fn func(Level)) (func(), error) {
	if !p.watchable {
		return nil, ErrNotWatchable
	}
	return p.watchers.add(fn), nil
}

func (p *periphPin) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.watchers.clear()
	p.mu.Unlock()

	if p.done != nil {
		close(p.done)
		<-p.stopped
	}
	return p.pin.Halt()
}
