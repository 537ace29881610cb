package indicator

import (
	"context"
	"errors"
	"sync"
	"time"

	"garagectl/port"
)

// LED timings.
const (
	GrantedDuration = 1000 * time.Millisecond
	BlinkOn         = 125 * time.Millisecond
	BlinkOff        = 125 * time.Millisecond
	DeniedBlinks    = 4
)

// GPIO implements Indicator using discrete LEDs: one per door and one for
// failed attempts.
type GPIO struct {
	mu     sync.Mutex
	failed port.Port
	doors  map[string]port.Port

	granted  time.Duration
	blinkOn  time.Duration
	blinkOff time.Duration
	blinks   int
}

// NewGPIO creates a GPIO indicator over output ports. failed may be nil and
// doors may miss entries; those signals are then skipped. The indicator
// owns the ports from here on.
func NewGPIO(failed port.Port, doors map[string]port.Port) *GPIO {
	return &GPIO{
		failed:   failed,
		doors:    doors,
		granted:  GrantedDuration,
		blinkOn:  BlinkOn,
		blinkOff: BlinkOff,
		blinks:   DeniedBlinks,
	}
}

// Idle implements Indicator.Idle.
func (g *GPIO) Idle() {
	g.allOff()
}

// Granted implements Indicator.Granted.
func (g *GPIO) Granted(ctx context.Context, doorID string) error {
	led := g.doors[doorID]
	if led == nil {
		return nil
	}
	return g.flash(ctx, led, g.granted)
}

// Denied implements Indicator.Denied.
func (g *GPIO) Denied(ctx context.Context) error {
	if g.failed == nil {
		return nil
	}
	for i := 0; i < g.blinks; i++ {
		if err := g.flash(ctx, g.failed, g.blinkOn); err != nil {
			return err
		}
		if err := wait(ctx, g.blinkOff); err != nil {
			return err
		}
	}
	return nil
}

// ConnectionLost implements Indicator.ConnectionLost. Discrete LEDs have
// no state for it.
func (g *GPIO) ConnectionLost() {}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.allOff()
}

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.allOff()
	var errs []error
	for _, p := range g.ports() {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *GPIO) flash(ctx context.Context, led port.Port, d time.Duration) error {
	if err := g.write(led, port.High); err != nil {
		return err
	}
	werr := wait(ctx, d)
	if err := g.write(led, port.Low); err != nil {
		return err
	}
	return werr
}

func (g *GPIO) write(led port.Port, lvl port.Level) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return led.Write(lvl)
}

func (g *GPIO) ports() []port.Port {
	var ps []port.Port
	if g.failed != nil {
		ps = append(ps, g.failed)
	}
	for _, p := range g.doors {
		ps = append(ps, p)
	}
	return ps
}

func (g *GPIO) allOff() {
	for _, p := range g.ports() {
		g.write(p, port.Low)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
