package indicator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagectl/port"
)

func fastGPIO(failed port.Port, doors map[string]port.Port) *GPIO {
	g := NewGPIO(failed, doors)
	g.granted = 20 * time.Millisecond
	g.blinkOn = 5 * time.Millisecond
	g.blinkOff = 5 * time.Millisecond
	return g
}

func TestGPIOGranted(t *testing.T) {
	left := port.NewSim(port.Low, true)
	right := port.NewSim(port.Low, true)
	g := fastGPIO(nil, map[string]port.Port{"left": left, "right": right})

	start := time.Now()
	require.NoError(t, g.Granted(context.Background(), "left"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, []port.Level{port.High, port.Low}, left.History())
	assert.Empty(t, right.History())

	// Unknown doors and a missing failed LED are skipped.
	assert.NoError(t, g.Granted(context.Background(), "side"))
	assert.NoError(t, g.Denied(context.Background()))
}

func TestGPIODenied(t *testing.T) {
	failed := port.NewSim(port.Low, true)
	g := fastGPIO(failed, nil)

	require.NoError(t, g.Denied(context.Background()))
	want := []port.Level{}
	for i := 0; i < DeniedBlinks; i++ {
		want = append(want, port.High, port.Low)
	}
	assert.Equal(t, want, failed.History())
}

func TestGPIOCancelled(t *testing.T) {
	led := port.NewSim(port.Low, true)
	g := NewGPIO(nil, map[string]port.Port{"main": led})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Granted(ctx, "main")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, port.Low, led.Level())
}

func TestGPIORelease(t *testing.T) {
	failed := port.NewSim(port.Low, true)
	led := port.NewSim(port.Low, true)
	g := NewGPIO(failed, map[string]port.Port{"main": led})
	require.NoError(t, g.Release())
	assert.True(t, failed.Closed())
	assert.True(t, led.Closed())
}

func TestNewFromConfig(t *testing.T) {
	ind, err := New(port.NewSimDriver(), Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Noop{}, ind)

	drv := port.NewSimDriver()
	pin := 13
	ind, err = New(drv, Config{FailedLedPin: &pin, DoorPins: map[string]int{"left": 26, "right": 19}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GPIO{}, ind)
	for _, p := range []int{13, 19, 26} {
		require.NotNil(t, drv.Pin(p), "pin %d", p)
	}

	require.NoError(t, ind.Release())
	assert.True(t, drv.Pin(26).Closed())
}

func TestNewReleasesOnError(t *testing.T) {
	drv := port.NewSimDriver()
	pin := 13
	_, err := New(drv, Config{FailedLedPin: &pin, DoorPins: map[string]int{"a": 5, "b": 5}}, nil)
	require.ErrorIs(t, err, port.ErrAcquire)
	assert.True(t, drv.Pin(13).Closed())
	assert.True(t, drv.Pin(5).Closed())
}

func newPipe(t *testing.T) (string, *Neopixel) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "neopixel")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	n, err := NewNeopixel(path)
	require.NoError(t, err)
	return path, n
}

func TestNeopixel(t *testing.T) {
	path, n := newPipe(t)

	n.Idle()
	n.SetConnected()
	n.Idle()
	require.NoError(t, n.Granted(context.Background(), "main"))
	require.NoError(t, n.Denied(context.Background()))
	n.ConnectionLost()
	n.Shutdown()
	require.NoError(t, n.Release())
	require.NoError(t, n.Release())
	n.Idle()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		neoConnectionLost+neoNormalIdle+neoAccessGranted+neoAccessDenied+neoConnectionLost+neoTerminated,
		string(got))
}

func TestNeopixelMissingPipe(t *testing.T) {
	_, err := NewNeopixel(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = New(port.NewSimDriver(), Config{NeopixelPipe: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)
}

// fake records calls for Multi.
type fake struct {
	mu      sync.Mutex
	calls   []string
	delay   time.Duration
	connect bool
}

func (f *fake) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fake) Idle()           { f.record("idle") }
func (f *fake) ConnectionLost() { f.record("lost") }
func (f *fake) Shutdown()       { f.record("shutdown") }
func (f *fake) Release() error  { f.record("release"); return nil }
func (f *fake) SetConnected()   { f.record("connected") }

func (f *fake) Granted(ctx context.Context, id string) error {
	time.Sleep(f.delay)
	f.record("granted " + id)
	return nil
}

func (f *fake) Denied(ctx context.Context) error {
	time.Sleep(f.delay)
	f.record("denied")
	return nil
}

func TestMultiRunsConcurrently(t *testing.T) {
	a := &fake{delay: 40 * time.Millisecond}
	b := &fake{delay: 40 * time.Millisecond}
	m := NewMulti(a, b)

	start := time.Now()
	require.NoError(t, m.Granted(context.Background(), "main"))
	assert.Less(t, time.Since(start), 75*time.Millisecond)

	require.NoError(t, m.Denied(context.Background()))
	m.Idle()
	m.SetConnected()
	m.ConnectionLost()
	m.Shutdown()
	require.NoError(t, m.Release())

	want := []string{"granted main", "denied", "idle", "connected", "lost", "shutdown", "release"}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
}

func TestMultiFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neopixel")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	pin := 13

	ind, err := New(port.NewSimDriver(), Config{FailedLedPin: &pin, NeopixelPipe: path}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Multi{}, ind)
	require.NoError(t, ind.Release())
}
