package keypad

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"garagectl/logging"
	"garagectl/port"
)

// DefaultPollInterval is the time between two sweeps of the matrix.
const DefaultPollInterval = 100 * time.Millisecond

// Config holds configuration for the keypad.
type Config struct {
	Type           string     `yaml:"type"` // "matrix" (default), "evdev" or "serial"
	RowPins        []int      `yaml:"row_pins"`
	ColPins        []int      `yaml:"col_pins"`
	Layout         [][]string `yaml:"layout"`
	PollIntervalMs int        `yaml:"poll_interval_ms"`

	// evdev and serial
	Device string `yaml:"device"`

	// evdev only
	KeyMap map[int]string `yaml:"key_map"`

	// serial only
	Baud     int    `yaml:"baud"`
	Encoding string `yaml:"encoding"` // "ascii" (default) or "wiegand4"
}

type position struct {
	row, col int
}

// Scanner polls a key matrix by driving one row high at a time and sampling
// every column.
type Scanner struct {
	log      *slog.Logger
	layout   Layout
	rows     []port.Port
	cols     []port.Port
	interval time.Duration
	subs     subscribers

	pollMu  sync.Mutex
	pressed []position

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScanner validates the layout against the lines. It does not start
// polling; call Start. The scanner owns rows and cols from here on.
func NewScanner(layout Layout, rows, cols []port.Port, opts ...ScannerOption) (*Scanner, error) {
	if len(layout) != len(rows) {
		return nil, fmt.Errorf("%w: layout has %d rows but %d row ports are configured",
			ErrConfig, len(layout), len(rows))
	}
	for i, row := range layout {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("%w: layout row %d has %d keys but %d column ports are configured",
				ErrConfig, i, len(row), len(cols))
		}
	}

	s := &Scanner{
		log:      logging.Discard(),
		layout:   layout,
		rows:     rows,
		cols:     cols,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "keypad")

	if dups := layout.Duplicates(); len(dups) > 0 {
		s.log.Warn("keypad layout contains duplicate keys, sequences using them are ambiguous", "keys", dups)
	}
	return s, nil
}

// OpenScanner requests the row and column lines from drv and builds a
// Scanner from cfg.
func OpenScanner(drv port.Driver, cfg Config, log *slog.Logger) (*Scanner, error) {
	layout := DefaultLayout
	if len(cfg.Layout) > 0 {
		layout = ParseLayout(cfg.Layout)
	}
	// Validate before touching hardware.
	if len(layout) != len(cfg.RowPins) {
		return nil, fmt.Errorf("%w: layout has %d rows but %d row pins are configured",
			ErrConfig, len(layout), len(cfg.RowPins))
	}

	var ports []port.Port
	release := func() {
		for _, p := range ports {
			p.Close()
		}
	}

	rows := make([]port.Port, 0, len(cfg.RowPins))
	for _, pin := range cfg.RowPins {
		p, err := drv.Output(pin, port.Low)
		if err != nil {
			release()
			return nil, fmt.Errorf("keypad row pin %d: %w", pin, err)
		}
		ports = append(ports, p)
		rows = append(rows, p)
	}
	cols := make([]port.Port, 0, len(cfg.ColPins))
	for _, pin := range cfg.ColPins {
		p, err := drv.Input(pin, port.InputOptions{Pull: port.PullDown})
		if err != nil {
			release()
			return nil, fmt.Errorf("keypad col pin %d: %w", pin, err)
		}
		ports = append(ports, p)
		cols = append(cols, p)
	}

	interval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	s, err := NewScanner(layout, rows, cols, WithPollInterval(interval), WithLogger(log))
	if err != nil {
		release()
		return nil, err
	}

	s.log.Info("keypad ready", "layout", layout.String(),
		"row_pins", cfg.RowPins, "col_pins", cfg.ColPins, "poll_interval", s.interval)
	return s, nil
}

// Keys implements Source.Keys.
func (s *Scanner) Keys() []Key {
	return s.layout.Keys()
}

// Subscribe registers fn for every event. Events of one sweep are delivered
// in order on the polling goroutine, so fn must not block.
func (s *Scanner) Subscribe(fn func(Event)) func() {
	return s.subs.add(fn)
}

// Start drives every row low and begins polling. Calling Start on a running
// scanner is a no-op. The poll loop ends when ctx is cancelled or Stop is
// called.
func (s *Scanner) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return nil
	}

	for i, row := range s.rows {
		if err := row.Write(port.Low); err != nil {
			return fmt.Errorf("reset row %d: %w", i, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	return nil
}

func (s *Scanner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Poll(); err != nil {
				s.log.Error("keypad poll failed", "error", err)
			}
		}
	}
}

// Stop halts polling and waits for an in-flight sweep to finish. No events
// are emitted after Stop returns. The scanner may be started again.
func (s *Scanner) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops polling and releases every row and column line.
func (s *Scanner) Close() error {
	s.Stop()
	var firstErr error
	for _, p := range append(append([]port.Port{}, s.rows...), s.cols...) {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Poll performs one sweep of the matrix and emits events if the pressed set
// changed since the previous sweep.
func (s *Scanner) Poll() error {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	current, err := s.sweep()
	if err != nil {
		return err
	}
	if samePositions(s.pressed, current) {
		return nil
	}

	var evts []Event
	for _, p := range s.pressed {
		if !containsPosition(current, p) {
			evts = append(evts, Event{Type: EventReleased, Key: s.key(p)})
		}
	}
	for _, p := range current {
		if !containsPosition(s.pressed, p) {
			evts = append(evts, Event{Type: EventPressed, Key: s.key(p)})
		}
	}
	keys := make([]Key, len(current))
	for i, p := range current {
		keys[i] = s.key(p)
	}
	evts = append(evts, Event{Type: EventCombination, Keys: keys})

	s.pressed = current
	s.subs.emit(evts)
	return nil
}

func (s *Scanner) sweep() ([]position, error) {
	var pressed []position
	for r, row := range s.rows {
		if err := row.Write(port.High); err != nil {
			return nil, fmt.Errorf("drive row %d: %w", r, err)
		}
		for c, col := range s.cols {
			lvl, err := col.Read()
			if err != nil {
				row.Write(port.Low)
				return nil, fmt.Errorf("read col %d: %w", c, err)
			}
			if lvl == port.High {
				pressed = append(pressed, position{r, c})
			}
		}
		if err := row.Write(port.Low); err != nil {
			return nil, fmt.Errorf("release row %d: %w", r, err)
		}
	}
	return pressed, nil
}

func (s *Scanner) key(p position) Key {
	return s.layout[p.row][p.col]
}

func containsPosition(set []position, p position) bool {
	for _, q := range set {
		if q == p {
			return true
		}
	}
	return false
}

func samePositions(a, b []position) bool {
	if len(a) != len(b) {
		return false
	}
	for _, p := range a {
		if !containsPosition(b, p) {
			return false
		}
	}
	return true
}
