package main

import (
	"log/slog"

	"garagectl/controller"
	"garagectl/door"
	"garagectl/indicator"
	"garagectl/mqtt"
)

// broker is the part of mqtt.Client the host bridge uses.
type broker interface {
	Subscribe(topic string) error
	Publish(topic string, payload []byte, retained bool) error
}

// garage is the part of the controller exposed to the host.
type garage interface {
	Doors() []controller.DoorInfo
	DoorState(id string) (door.State, error)
	Trigger(id string) error
	OnDoorStateChanged(fn func(id string, closed bool)) func()
}

// host bridges door state and commands between the controller and a home
// automation host over MQTT.
type host struct {
	log    *slog.Logger
	garage garage
	ind    indicator.Indicator
	topics mqtt.Topics
	broker broker
	detach func()
}

func newHost(g garage, ind indicator.Indicator, topics mqtt.Topics, log *slog.Logger) *host {
	h := &host{
		log:    log.With("component", "host"),
		garage: g,
		ind:    ind,
		topics: topics,
	}
	h.detach = g.OnDoorStateChanged(func(id string, _ bool) { h.publishState(id) })
	return h
}

// handlers returns the MQTT callbacks of the bridge.
func (h *host) handlers() mqtt.Handlers {
	return mqtt.Handlers{
		OnConnect:    h.onConnect,
		OnDisconnect: h.onDisconnect,
		OnMessage:    h.onMessage,
	}
}

func (h *host) onConnect() {
	if c, ok := h.ind.(indicator.Connector); ok {
		c.SetConnected()
	}
	h.ind.Idle()

	if h.broker == nil {
		return
	}
	if err := h.broker.Publish(h.topics.Status(), []byte(mqtt.Online), true); err != nil {
		h.log.Error("publish status failed", "error", err)
	}
	if err := h.broker.Subscribe(h.topics.DoorSetFilter()); err != nil {
		h.log.Error("subscribe failed", "error", err)
	}
	for _, d := range h.garage.Doors() {
		h.publishState(d.ID)
	}
}

func (h *host) onDisconnect() {
	h.ind.ConnectionLost()
}

func (h *host) onMessage(topic string, payload []byte) {
	id, ok := h.topics.ParseDoorSet(topic)
	if !ok {
		h.log.Debug("ignoring message", "topic", topic)
		return
	}
	cmd, err := mqtt.ParseCommand(payload)
	if err != nil {
		h.log.Warn("bad door command", "door", id, "error", err)
		return
	}

	st, err := h.garage.DoorState(id)
	if err != nil {
		h.log.Warn("command for unknown door", "door", id)
		return
	}
	if (cmd == mqtt.CommandOpen && st == door.Open) || (cmd == mqtt.CommandClose && st == door.Closed) {
		h.log.Info("door already in requested state", "door", id, "command", cmd.String())
		return
	}

	h.log.Info("door command from host", "door", id, "command", cmd.String())
	if err := h.garage.Trigger(id); err != nil {
		h.log.Error("door command failed", "door", id, "error", err)
	}
}

func (h *host) publishState(id string) {
	if h.broker == nil {
		return
	}
	st, err := h.garage.DoorState(id)
	if err != nil {
		return
	}
	name := id
	for _, d := range h.garage.Doors() {
		if d.ID == id {
			name = d.Name
		}
	}
	payload := mqtt.DoorState{Door: id, Name: name, Closed: st == door.Closed, State: st.String()}.Marshal()
	if err := h.broker.Publish(h.topics.DoorState(id), payload, true); err != nil {
		h.log.Warn("publish door state failed", "door", id, "error", err)
	}
}

// close announces the shutdown and stops forwarding state.
func (h *host) close() {
	h.detach()
	if h.broker != nil {
		if err := h.broker.Publish(h.topics.Status(), []byte(mqtt.Offline), true); err != nil {
			h.log.Debug("publish offline failed", "error", err)
		}
	}
}
