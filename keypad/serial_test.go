package keypad

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridge replays a fixed byte stream, then behaves like an idle port.
type bridge struct {
	mu     sync.Mutex
	r      *bytes.Reader
	err    error
	closed bool
}

func newBridge(data []byte) *bridge {
	return &bridge{r: bytes.NewReader(data)}
}

func (b *bridge) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.r.Len() == 0 && b.err != nil {
		return 0, b.err
	}
	return b.r.Read(p)
}

func (b *bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type pressRecorder struct {
	mu   sync.Mutex
	keys []Key
	all  []Event
}

func (r *pressRecorder) record(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, evt)
	if evt.Type == EventPressed {
		r.keys = append(r.keys, evt.Key)
	}
}

func (r *pressRecorder) pressed() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Key(nil), r.keys...)
}

func TestSerialASCII(t *testing.T) {
	b := newBridge([]byte("12\r\n*\x02#x0"))
	s, err := NewSerial(b, "", nil)
	require.NoError(t, err)

	var rec pressRecorder
	s.Subscribe(rec.record)
	require.NoError(t, s.Start(context.Background()))

	want := []Key{"1", "2", "*", "#", "0"}
	require.Eventually(t, func() bool {
		return len(rec.pressed()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.pressed())

	require.NoError(t, s.Close())
	assert.True(t, b.closed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []Event{
		{Type: EventPressed, Key: "1"},
		{Type: EventCombination, Keys: []Key{"1"}},
		{Type: EventReleased, Key: "1"},
		{Type: EventCombination, Keys: []Key{}},
	}, rec.all[:4])
}

func TestSerialWiegand4(t *testing.T) {
	b := newBridge([]byte{0x00, 0x07, 0x0a, 0x0b, 0x0c, 0x31})
	s, err := NewSerial(b, EncodingWiegand4, nil)
	require.NoError(t, err)

	var rec pressRecorder
	s.Subscribe(rec.record)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	want := []Key{"0", "7", "*", "#"}
	require.Eventually(t, func() bool {
		return len(rec.pressed()) == len(want)
	}, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Equal(t, want, rec.pressed())
}

func TestSerialReadError(t *testing.T) {
	b := newBridge([]byte("5"))
	b.err = errors.New("device unplugged")
	s, err := NewSerial(b, EncodingASCII, nil)
	require.NoError(t, err)

	var rec pressRecorder
	s.Subscribe(rec.record)
	require.NoError(t, s.Start(context.Background()))

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit on error")
	}
	assert.Equal(t, []Key{"5"}, rec.pressed())
	s.Stop()
}

func TestSerialConfig(t *testing.T) {
	_, err := NewSerial(io.NopCloser(bytes.NewReader(nil)), "morse", nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = OpenSerial("", 0, "", nil)
	assert.ErrorIs(t, err, ErrConfig)

	s, err := NewSerial(io.NopCloser(bytes.NewReader(nil)), "", nil)
	require.NoError(t, err)
	assert.Equal(t, EncodingASCII, s.encoding)
	assert.Len(t, s.Keys(), 12)
	assert.Equal(t, Key("#"), s.Keys()[11])
}
