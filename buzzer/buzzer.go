// Package buzzer plays beeps and melodies on a single tone output. Only the
// most recently requested job produces sound.
package buzzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"garagectl/logging"
	"garagectl/port"
)

// DefaultGap is the silence between two steps of a melody.
const DefaultGap = 20 * time.Millisecond

// ErrConfig is returned for an invalid buzzer configuration.
var ErrConfig = errors.New("buzzer: configuration error")

// Step is one note. A zero Freq is a rest.
type Step struct {
	Freq     int
	Duration time.Duration
}

// Melody is an ordered list of steps.
type Melody []Step

// Duration returns the playing time of m without gaps.
func (m Melody) Duration() time.Duration {
	var d time.Duration
	for _, s := range m {
		d += s.Duration
	}
	return d
}

// Output is a physical tone generator.
type Output interface {
	// Tone starts a tone at freq Hz with volume 0..100.
	Tone(freq, volume int) error
	Silence() error
	Close() error
}

// Sequencer plays jobs on an Output. Every Beep or Play call is a new job;
// a job stops producing output as soon as a newer one is issued.
type Sequencer struct {
	out    Output
	log    *slog.Logger
	gap    time.Duration
	volume int

	enabled atomic.Bool
	job     atomic.Uint64

	// mu makes the current-job check and the output write one step.
	mu sync.Mutex
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithGap sets the silence between melody steps.
func WithGap(d time.Duration) Option {
	return func(s *Sequencer) { s.gap = d }
}

// WithVolume sets the volume, 0..100.
func WithVolume(v int) Option {
	return func(s *Sequencer) { s.volume = min(max(v, 0), 100) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns an enabled sequencer playing on out.
func New(out Output, opts ...Option) *Sequencer {
	s := &Sequencer{
		out:    out,
		log:    logging.Discard(),
		gap:    DefaultGap,
		volume: 100,
	}
	s.enabled.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "buzzer")
	return s
}

// Enabled reports whether output is produced.
func (s *Sequencer) Enabled() bool { return s.enabled.Load() }

// SetEnabled switches sound on or off for future steps.
func (s *Sequencer) SetEnabled(on bool) {
	s.enabled.Store(on)
	s.log.Info("sound toggled", "enabled", on)
}

// Toggle flips the enabled flag and returns the new value.
func (s *Sequencer) Toggle() bool {
	for {
		old := s.enabled.Load()
		if s.enabled.CompareAndSwap(old, !old) {
			s.log.Info("sound toggled", "enabled", !old)
			return !old
		}
	}
}

// Beep plays a single tone as its own job.
func (s *Sequencer) Beep(ctx context.Context, freq int, d time.Duration) error {
	return s.Play(ctx, Melody{{Freq: freq, Duration: d}})
}

// Play plays m as a new job and returns when it has finished, has been
// preempted by a newer job, or ctx is done. Preemption is not an error.
func (s *Sequencer) Play(ctx context.Context, m Melody) error {
	s.mu.Lock()
	job := s.job.Add(1)
	s.mu.Unlock()

	for _, step := range m {
		if s.job.Load() != job {
			return nil
		}
		if step.Freq <= 0 {
			if err := sleep(ctx, step.Duration); err != nil {
				return err
			}
			continue
		}

		current, sounded, err := s.tone(job, step.Freq)
		if !current {
			return nil
		}
		if err != nil {
			return err
		}
		err = sleep(ctx, step.Duration)
		if sounded {
			if serr := s.silence(job); serr != nil && err == nil {
				err = serr
			}
		}
		if err != nil {
			return err
		}
		if err := sleep(ctx, s.gap); err != nil {
			return err
		}
	}
	return nil
}

// tone writes freq if job is still current and reports whether the output
// was touched. A disabled sequencer writes nothing but still reports the job
// as current.
func (s *Sequencer) tone(job uint64, freq int) (current, sounded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Load() != job {
		return false, false, nil
	}
	if !s.enabled.Load() {
		return true, false, nil
	}
	if err := s.out.Tone(freq, s.volume); err != nil {
		return true, false, fmt.Errorf("tone %d Hz: %w", freq, err)
	}
	return true, true, nil
}

// silence ends a step, unless a newer job already owns the output.
func (s *Sequencer) silence(job uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Load() != job {
		return nil
	}
	return s.out.Silence()
}

// Close silences and releases the output.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	s.job.Add(1)
	s.mu.Unlock()
	return s.out.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Noop is an Output that produces no sound.
type Noop struct{}

func (Noop) Tone(int, int) error { return nil }
func (Noop) Silence() error      { return nil }
func (Noop) Close() error        { return nil }

// Pin drives an active buzzer through a digital line. Active buzzers have a
// fixed pitch, so freq and volume are ignored apart from volume 0.
type Pin struct {
	port port.Port
}

// NewPin returns an Output on p. The output owns p from here on.
func NewPin(p port.Port) *Pin { return &Pin{port: p} }

func (b *Pin) Tone(_, volume int) error {
	if volume == 0 {
		return b.port.Write(port.Low)
	}
	return b.port.Write(port.High)
}

func (b *Pin) Silence() error { return b.port.Write(port.Low) }

func (b *Pin) Close() error {
	b.port.Write(port.Low)
	return b.port.Close()
}

// Config holds buzzer configuration.
type Config struct {
	// Type is "pwm" (hardware PWM), "gpio" (active buzzer) or "none".
	Type    string `yaml:"type"`
	Pin     *int   `yaml:"pin"`
	Volume  *int   `yaml:"volume"`
	GapMs   int    `yaml:"gap_ms"`
	Enabled *bool  `yaml:"enabled"`
}

// DefaultPWMPin is the BCM pin carrying PWM0.
const DefaultPWMPin = 18

// Open builds a sequencer from cfg. Failing to acquire the output is not
// fatal: a warning is logged and the sequencer plays on a Noop output.
// An unknown Type is a configuration error.
func Open(drv port.Driver, cfg Config, log *slog.Logger) (*Sequencer, error) {
	if log == nil {
		log = logging.Discard()
	}
	opts := []Option{WithLogger(log)}
	if cfg.Volume != nil {
		opts = append(opts, WithVolume(*cfg.Volume))
	}
	if cfg.GapMs > 0 {
		opts = append(opts, WithGap(time.Duration(cfg.GapMs)*time.Millisecond))
	}

	var out Output
	var err error
	switch cfg.Type {
	case "", "none":
		out = Noop{}
	case "pwm":
		pin := DefaultPWMPin
		if cfg.Pin != nil {
			pin = *cfg.Pin
		}
		out, err = OpenPWM(uint8(pin))
	case "gpio":
		if cfg.Pin == nil {
			return nil, fmt.Errorf("%w: gpio buzzer needs a pin", ErrConfig)
		}
		var p port.Port
		p, err = drv.Output(*cfg.Pin, port.Low)
		if err == nil {
			out = NewPin(p)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrConfig, cfg.Type)
	}
	if err != nil {
		log.Warn("buzzer output unavailable, playing silently", "type", cfg.Type, "error", err)
		out = Noop{}
	}

	s := New(out, opts...)
	if cfg.Enabled != nil {
		s.enabled.Store(*cfg.Enabled)
	}
	return s, nil
}
