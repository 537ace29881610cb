package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultPrefix is the first topic level of every topic.
const DefaultPrefix = "garagectl"

// Topics builds the topic names of one controller instance.
type Topics struct {
	base string
}

// NewTopics returns topics under <prefix>/<clientID>. An empty prefix
// selects DefaultPrefix.
func NewTopics(prefix, clientID string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{base: prefix + "/" + clientID}
}

// Status carries "online" or "offline".
func (t Topics) Status() string { return t.base + "/status" }

// DoorState is the retained state topic of a door.
func (t Topics) DoorState(doorID string) string { return t.base + "/door/" + doorID + "/state" }

// DoorSet is the command topic of a door.
func (t Topics) DoorSet(doorID string) string { return t.base + "/door/" + doorID + "/set" }

// DoorSetFilter matches the command topics of every door.
func (t Topics) DoorSetFilter() string { return t.base + "/door/+/set" }

// ParseDoorSet returns the door id of a command topic.
func (t Topics) ParseDoorSet(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.base+"/door/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Status payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// DoorState is the JSON payload of a door state topic.
type DoorState struct {
	Door   string `json:"door"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
	State  string `json:"state"`
}

// Marshal encodes s.
func (s DoorState) Marshal() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Command is a door command received on a set topic.
type Command int

const (
	CommandToggle Command = iota
	CommandOpen
	CommandClose
)

func (c Command) String() string {
	switch c {
	case CommandToggle:
		return "toggle"
	case CommandOpen:
		return "open"
	case CommandClose:
		return "close"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// ParseCommand parses a set payload. Case and surrounding space are ignored.
func ParseCommand(payload []byte) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "toggle":
		return CommandToggle, nil
	case "open":
		return CommandOpen, nil
	case "close":
		return CommandClose, nil
	default:
		return 0, fmt.Errorf("unknown door command %q", payload)
	}
}
