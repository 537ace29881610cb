package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagectl/keypad"
)

const window = 60 * time.Millisecond

// fakeSource stands in for the keypad scanner.
type fakeSource struct {
	mu   sync.Mutex
	keys []keypad.Key
	subs map[int]func(keypad.Event)
	next int
}

func newFakeSource(keys ...keypad.Key) *fakeSource {
	return &fakeSource{keys: keys, subs: make(map[int]func(keypad.Event))}
}

func (f *fakeSource) Keys() []keypad.Key { return f.keys }

func (f *fakeSource) Subscribe(fn func(keypad.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) press(keys ...keypad.Key) {
	for _, k := range keys {
		f.mu.Lock()
		fns := make([]func(keypad.Event), 0, len(f.subs))
		for _, fn := range f.subs {
			fns = append(fns, fn)
		}
		f.mu.Unlock()
		for _, fn := range fns {
			fn(keypad.Event{Type: keypad.EventPressed, Key: k})
			fn(keypad.Event{Type: keypad.EventCombination, Keys: []keypad.Key{k}})
			fn(keypad.Event{Type: keypad.EventReleased, Key: k})
		}
	}
}

func keys(s string) []keypad.Key {
	out := make([]keypad.Key, len(s))
	for i, r := range s {
		out[i] = keypad.Key(string(r))
	}
	return out
}

type collector struct {
	ch chan Event
}

func newCollector(l *Lock) *collector {
	c := &collector{ch: make(chan Event, 32)}
	l.Subscribe(func(e Event) { c.ch <- e })
	return c
}

func (c *collector) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-c.ch:
		return e
	case <-time.After(10 * window):
		t.Fatal("timed out waiting for lock event")
		return Event{}
	}
}

func (c *collector) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e := <-c.ch:
		t.Fatalf("unexpected event %v", e.Type)
	case <-time.After(d):
	}
}

func newTestLock(t *testing.T, codes ...Code) (*Lock, *fakeSource, *collector) {
	t.Helper()
	src := newFakeSource(keypad.DefaultLayout.Keys()...)
	l, err := New(src, codes, WithInactivityWindow(window))
	require.NoError(t, err)
	t.Cleanup(l.Stop)
	return l, src, newCollector(l)
}

func TestNewRejectsUnknownKeys(t *testing.T) {
	src := newFakeSource("2", "24")
	_, err := New(src, []Code{ParseCode([]string{"2", "23", "p"})})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "[2,23,p]")
	assert.Zero(t, src.subscribers(), "a rejected lock must not attach")
}

func TestNewRejectsWhenOnlyOneCodeIsUnknown(t *testing.T) {
	src := newFakeSource("2", "24")
	_, err := New(src, []Code{
		ParseCode([]string{"24", "2", "2"}),
		ParseCode([]string{"2", "23", "p"}),
	})
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "[2,23,p]")
}

func TestUnlocked(t *testing.T) {
	code := Code(keys("007*"))
	l, src, c := newTestLock(t, code)

	src.press(keys("007*")...)
	assert.Equal(t, StateAccumulating, l.State())

	in := c.next(t)
	assert.Equal(t, EventInput, in.Type)
	assert.Equal(t, keys("007*"), in.Attempt)

	un := c.next(t)
	assert.Equal(t, EventUnlocked, un.Type)
	assert.Equal(t, code, un.Code)
	assert.Equal(t, StateIdle, l.State())
}

func TestFailed(t *testing.T) {
	_, src, c := newTestLock(t, Code(keys("007*")))

	src.press(keys("876")...)

	assert.Equal(t, EventInput, c.next(t).Type)
	assert.Equal(t, EventFailed, c.next(t).Type)
	c.none(t, 2*window)
}

func TestPrefixDoesNotResolveEarly(t *testing.T) {
	_, src, c := newTestLock(t, Code(keys("12")))

	src.press(keys("1")...)
	time.Sleep(window / 3)
	src.press(keys("2")...)
	time.Sleep(window / 3)
	src.press(keys("3")...)

	in := c.next(t)
	assert.Equal(t, keys("123"), in.Attempt, "presses within the window extend the attempt")
	assert.Equal(t, EventFailed, c.next(t).Type)
}

func TestLongerSequenceFails(t *testing.T) {
	_, src, c := newTestLock(t, Code(keys("12")))
	src.press(keys("121")...)
	c.next(t)
	assert.Equal(t, EventFailed, c.next(t).Type)
}

func TestAttemptsAreIndependent(t *testing.T) {
	code := Code(keys("159"))
	_, src, c := newTestLock(t, code)

	for i := 0; i < 2; i++ {
		src.press(keys("44")...)
		c.next(t)
		assert.Equal(t, EventFailed, c.next(t).Type)

		src.press(keys("159")...)
		in := c.next(t)
		assert.Equal(t, keys("159"), in.Attempt, "no residue from the failed attempt")
		assert.Equal(t, EventUnlocked, c.next(t).Type)
	}
}

func TestMultipleCodes(t *testing.T) {
	left := Code(keys("007*"))
	right := Code(keys("007#"))
	_, src, c := newTestLock(t, left, right)

	src.press(keys("007#")...)
	c.next(t)
	un := c.next(t)
	assert.Equal(t, right, un.Code)
}

func TestStopCancelsPendingResolution(t *testing.T) {
	l, src, c := newTestLock(t, Code(keys("1")))

	src.press(keys("1")...)
	l.Stop()
	assert.Equal(t, StateIdle, l.State())
	assert.Zero(t, src.subscribers())

	src.press(keys("1")...)
	l.Press("1")
	c.none(t, 3*window)
}

func TestIgnoresNonPressEvents(t *testing.T) {
	l, src, c := newTestLock(t, Code(keys("1")))
	for _, fn := range src.subs {
		fn(keypad.Event{Type: keypad.EventReleased, Key: "1"})
		fn(keypad.Event{Type: keypad.EventCombination, Keys: keys("1")})
	}
	assert.Equal(t, StateIdle, l.State())
	c.none(t, 2*window)
}

func TestCodeHelpers(t *testing.T) {
	c := ParseCode([]string{"0", "0", "7", "*"})
	assert.True(t, c.Equal(keys("007*")))
	assert.False(t, c.Equal(keys("007")))
	assert.False(t, c.Equal(keys("700*")))
	assert.Equal(t, "[0,0,7,*]", c.String())
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "unlocked", EventUnlocked.String())
}
