package keypad

import "sort"

// DefaultKeyMap maps Linux input key codes of a numeric keypad (and the
// top-row digits) to keys.
var DefaultKeyMap = map[int]Key{
	82: "0", 79: "1", 80: "2", 81: "3", 75: "4", 76: "5", 77: "6", 71: "7", 72: "8", 73: "9",
	11: "0", 2: "1", 3: "2", 4: "3", 5: "4", 6: "5", 7: "6", 8: "7", 9: "8", 10: "9",
	55: "*", // KEY_KPASTERISK
	96: "#", // KEY_KPENTER
	28: "#", // KEY_ENTER
}

// ParseKeyMap converts a config key map. An empty map yields DefaultKeyMap.
func ParseKeyMap(m map[int]string) map[int]Key {
	if len(m) == 0 {
		return DefaultKeyMap
	}
	out := make(map[int]Key, len(m))
	for code, k := range m {
		out[code] = Key(k)
	}
	return out
}

// keySet returns the distinct keys of a key map in a stable order.
func keySet(m map[int]Key) []Key {
	seen := make(map[Key]bool)
	var keys []Key
	for _, k := range m {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// heldKeys tracks keys held on a device and turns raw key transitions into
// events. Codes mapping to the same key are tracked separately.
type heldKeys struct {
	keyMap map[int]Key
	held   []int
}

// transition returns the events for a key code going down (value 1) or up
// (value 0). Auto-repeat (value 2) and unmapped codes yield nothing.
func (h *heldKeys) transition(code int, value int32) []Event {
	key, ok := h.keyMap[code]
	if !ok {
		return nil
	}

	switch value {
	case 1:
		for _, c := range h.held {
			if c == code {
				return nil
			}
		}
		h.held = append(h.held, code)
		return []Event{{Type: EventPressed, Key: key}, h.combination()}
	case 0:
		for i, c := range h.held {
			if c == code {
				h.held = append(h.held[:i], h.held[i+1:]...)
				return []Event{{Type: EventReleased, Key: key}, h.combination()}
			}
		}
	}
	return nil
}

func (h *heldKeys) combination() Event {
	keys := make([]Key, len(h.held))
	for i, c := range h.held {
		keys[i] = h.keyMap[c]
	}
	return Event{Type: EventCombination, Keys: keys}
}
