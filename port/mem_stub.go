//go:build !linux

package port

// Mem is a stub for non-linux platforms.
type Mem struct{}

// NewMem always fails off linux.
func NewMem() (*Mem, error) { return nil, errUnsupported("gpiomem") }

func (m *Mem) Output(pin int, initial Level) (Port, error)     { return nil, errUnsupported("gpiomem") }
func (m *Mem) Input(pin int, opts InputOptions) (Port, error) { return nil, errUnsupported("gpiomem") }
func (m *Mem) Close() error                                   { return nil }
