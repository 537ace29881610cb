//go:build linux

package buzzer

import (
	"fmt"
	"sync"

	"github.com/hjkoskel/govattu"
)

// pwmClock is the PWM counter frequency with the 19.2 MHz oscillator and a
// divisor of 19.
const pwmClock = 19200000 / 19

// PWM plays tones on the Raspberry Pi hardware PWM0 channel.
type PWM struct {
	mu sync.Mutex
	hw govattu.Vattu
}

// OpenPWM maps the PWM registers and routes PWM0 to pin, which must be a
// PWM0-capable pin such as 18.
func OpenPWM(pin uint8) (*PWM, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open pwm: %w", err)
	}
	hw.PinMode(pin, govattu.ALT5)
	hw.PwmSetMode(true, true, false, false)
	hw.PwmSetClock(19)
	hw.Pwm0Set(0)
	return &PWM{hw: hw}, nil
}

// Tone sets the period to freq and the duty cycle to volume/2 percent, so
// full volume is a square wave.
func (p *PWM) Tone(freq, volume int) error {
	if freq <= 0 {
		return p.Silence()
	}
	rng := uint32(pwmClock / freq)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hw.Pwm0SetRange(rng)
	p.hw.Pwm0Set(rng * uint32(volume) / 200)
	return nil
}

func (p *PWM) Silence() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hw.Pwm0Set(0)
	return nil
}

func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hw.Pwm0Set(0)
	return p.hw.Close()
}
