//go:build !linux

package port

// Cdev is a stub for non-linux platforms.
type Cdev struct{}

// NewCdev returns a driver whose requests always fail.
func NewCdev(chip string) *Cdev { return &Cdev{} }

func (c *Cdev) Output(pin int, initial Level) (Port, error)     { return nil, errUnsupported("gpiocdev") }
func (c *Cdev) Input(pin int, opts InputOptions) (Port, error) { return nil, errUnsupported("gpiocdev") }
func (c *Cdev) Close() error                                   { return nil }
