package main

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagectl/controller"
	"garagectl/door"
	"garagectl/indicator"
	"garagectl/logging"
	"garagectl/mqtt"
)

type message struct {
	topic    string
	payload  string
	retained bool
}

type fakeBroker struct {
	mu         sync.Mutex
	published  []message
	subscribed []string
}

func (b *fakeBroker) Subscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topic)
	return nil
}

func (b *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, message{topic, string(payload), retained})
	return nil
}

func (b *fakeBroker) messages() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.published...)
}

type fakeGarage struct {
	mu       sync.Mutex
	states   map[string]door.State
	toggled  []string
	listener func(id string, closed bool)
	detached bool
}

func newFakeGarage() *fakeGarage {
	return &fakeGarage{states: map[string]door.State{"main": door.Closed, "side": door.Open}}
}

func (g *fakeGarage) Doors() []controller.DoorInfo {
	return []controller.DoorInfo{{ID: "main", Name: "Main door"}, {ID: "side", Name: "side"}}
}

func (g *fakeGarage) DoorState(id string) (door.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[id]
	if !ok {
		return door.Unknown, controller.ErrUnknownDoor
	}
	return st, nil
}

func (g *fakeGarage) Trigger(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.toggled = append(g.toggled, id)
	return nil
}

func (g *fakeGarage) OnDoorStateChanged(fn func(id string, closed bool)) func() {
	g.listener = fn
	return func() { g.detached = true }
}

func (g *fakeGarage) toggles() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.toggled...)
}

type fakeIndicator struct {
	indicator.Noop
	mu    sync.Mutex
	calls []string
}

func (f *fakeIndicator) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeIndicator) Idle()           { f.record("idle") }
func (f *fakeIndicator) ConnectionLost() { f.record("lost") }
func (f *fakeIndicator) SetConnected()   { f.record("connected") }

func newTestHost(t *testing.T) (*host, *fakeGarage, *fakeBroker, *fakeIndicator) {
	t.Helper()
	g := newFakeGarage()
	b := &fakeBroker{}
	ind := &fakeIndicator{}
	h := newHost(g, ind, mqtt.NewTopics("garagectl", "test"), logging.Discard())
	h.broker = b
	return h, g, b, ind
}

func TestHostOnConnect(t *testing.T) {
	h, _, b, ind := newTestHost(t)

	h.handlers().OnConnect()

	assert.Equal(t, []string{"connected", "idle"}, ind.calls)
	assert.Equal(t, []string{"garagectl/test/door/+/set"}, b.subscribed)

	msgs := b.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, message{"garagectl/test/status", "online", true}, msgs[0])
	assert.Equal(t, "garagectl/test/door/main/state", msgs[1].topic)
	assert.True(t, msgs[1].retained)
	assert.Equal(t, "garagectl/test/door/side/state", msgs[2].topic)

	var st mqtt.DoorState
	require.NoError(t, json.Unmarshal([]byte(msgs[1].payload), &st))
	assert.Equal(t, mqtt.DoorState{Door: "main", Name: "Main door", Closed: true, State: "CLOSED"}, st)
	require.NoError(t, json.Unmarshal([]byte(msgs[2].payload), &st))
	assert.Equal(t, mqtt.DoorState{Door: "side", Name: "side", Closed: false, State: "OPEN"}, st)
}

func TestHostOnDisconnect(t *testing.T) {
	h, _, _, ind := newTestHost(t)
	h.handlers().OnDisconnect()
	assert.Equal(t, []string{"lost"}, ind.calls)
}

func TestHostStateChanged(t *testing.T) {
	h, g, b, _ := newTestHost(t)
	require.NotNil(t, g.listener)

	g.mu.Lock()
	g.states["main"] = door.Open
	g.mu.Unlock()
	g.listener("main", false)

	msgs := b.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "garagectl/test/door/main/state", msgs[0].topic)
	assert.JSONEq(t, `{"door":"main","name":"Main door","closed":false,"state":"OPEN"}`, msgs[0].payload)

	h.broker = nil
	g.listener("main", false)
	assert.Len(t, b.messages(), 1)
}

func TestHostOnMessage(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    []string
	}{
		{name: "toggle", topic: "garagectl/test/door/main/set", payload: "toggle", want: []string{"main"}},
		{name: "open closed door", topic: "garagectl/test/door/main/set", payload: "OPEN", want: []string{"main"}},
		{name: "open open door", topic: "garagectl/test/door/side/set", payload: "open"},
		{name: "close closed door", topic: "garagectl/test/door/main/set", payload: " close "},
		{name: "close open door", topic: "garagectl/test/door/side/set", payload: "close", want: []string{"side"}},
		{name: "unknown door", topic: "garagectl/test/door/attic/set", payload: "toggle"},
		{name: "bad command", topic: "garagectl/test/door/main/set", payload: "explode"},
		{name: "other topic", topic: "garagectl/other/door/main/set", payload: "toggle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, g, _, _ := newTestHost(t)
			h.handlers().OnMessage(tt.topic, []byte(tt.payload))

			if len(tt.want) == 0 {
				time.Sleep(20 * time.Millisecond)
				assert.Empty(t, g.toggles())
				return
			}
			require.Eventually(t, func() bool {
				return len(g.toggles()) == len(tt.want)
			}, time.Second, 5*time.Millisecond)
			assert.Equal(t, tt.want, g.toggles())
		})
	}
}

func TestHostClose(t *testing.T) {
	h, g, b, _ := newTestHost(t)
	h.close()

	assert.True(t, g.detached)
	assert.Equal(t, []message{{"garagectl/test/status", "offline", true}}, b.messages())
}

func TestHostWithoutBroker(t *testing.T) {
	h, _, _, ind := newTestHost(t)
	h.broker = nil

	h.handlers().OnConnect()
	h.close()
	assert.Equal(t, []string{"connected", "idle"}, ind.calls)
}
