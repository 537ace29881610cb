//go:build !linux

package buzzer

import "errors"

// PWM is only available on linux.
type PWM struct{}

// OpenPWM always fails on this platform.
func OpenPWM(pin uint8) (*PWM, error) {
	return nil, errors.New("pwm: not supported on this platform")
}

func (p *PWM) Tone(freq, volume int) error { return nil }
func (p *PWM) Silence() error              { return nil }
func (p *PWM) Close() error                { return nil }
