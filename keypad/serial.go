package keypad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"

	"garagectl/logging"
)

// DefaultSerialBaud is the rate most Wiegand-to-UART bridges ship with.
const DefaultSerialBaud = 9600

// SerialEncoding selects how a bridge reports a key.
type SerialEncoding string

const (
	// EncodingASCII is one printable character per key.
	EncodingASCII SerialEncoding = "ascii"
	// EncodingWiegand4 is the raw 4-bit burst value: 0-9, 10 for "*" and
	// 11 for "#".
	EncodingWiegand4 SerialEncoding = "wiegand4"
)

const serialKeys = "0123456789*#"

// serialIdle is how long the read loop waits after a read returned nothing.
const serialIdle = 20 * time.Millisecond

// Serial reads a Wiegand keypad through a serial bridge. The bridge only
// reports presses, so each key yields a press followed by a release.
type Serial struct {
	log      *slog.Logger
	port     io.ReadCloser
	encoding SerialEncoding
	subs     subscribers

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// OpenSerial opens the bridge at device. A zero baud selects
// DefaultSerialBaud and an empty encoding selects EncodingASCII.
func OpenSerial(device string, baud int, enc SerialEncoding, log *slog.Logger) (*Serial, error) {
	if device == "" {
		return nil, fmt.Errorf("%w: serial keypad needs a device", ErrConfig)
	}
	if baud <= 0 {
		baud = DefaultSerialBaud
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	s, err := NewSerial(p, enc, log)
	if err != nil {
		p.Close()
		return nil, err
	}
	s.log.Info("opened serial keypad", "device", device, "baud", baud, "encoding", s.encoding)
	return s, nil
}

// NewSerial reads key bytes from an already open stream.
func NewSerial(port io.ReadCloser, enc SerialEncoding, log *slog.Logger) (*Serial, error) {
	switch enc {
	case "":
		enc = EncodingASCII
	case EncodingASCII, EncodingWiegand4:
	default:
		return nil, fmt.Errorf("%w: unknown serial encoding %q", ErrConfig, enc)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Serial{
		log:      log.With("component", "keypad"),
		port:     port,
		encoding: enc,
	}, nil
}

// Keys implements Source.Keys.
func (s *Serial) Keys() []Key {
	keys := make([]Key, len(serialKeys))
	for i := range serialKeys {
		keys[i] = Key(serialKeys[i : i+1])
	}
	return keys
}

// Subscribe registers fn for every event.
func (s *Serial) Subscribe(fn func(Event)) func() {
	return s.subs.add(fn)
}

// Start begins reading the bridge.
func (s *Serial) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	return nil
}

func (s *Serial) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 16)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.port.Read(buf)
		for _, b := range buf[:n] {
			if key, ok := s.decode(b); ok {
				s.subs.emit(tap(key))
			}
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, io.EOF):
			// read timeout
		default:
			s.log.Error("serial keypad read failed", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(serialIdle):
		}
	}
}

func (s *Serial) decode(b byte) (Key, bool) {
	if s.encoding == EncodingWiegand4 {
		if int(b) < len(serialKeys) {
			return Key(serialKeys[b : b+1]), true
		}
		return "", false
	}
	switch {
	case b >= '0' && b <= '9', b == '*', b == '#':
		return Key(string(rune(b))), true
	}
	return "", false
}

func tap(key Key) []Event {
	return []Event{
		{Type: EventPressed, Key: key},
		{Type: EventCombination, Keys: []Key{key}},
		{Type: EventReleased, Key: key},
		{Type: EventCombination, Keys: []Key{}},
	}
}

// Stop ends reading.
func (s *Serial) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops reading and closes the port.
func (s *Serial) Close() error {
	s.Stop()
	return s.port.Close()
}
