package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"garagectl/buzzer"
	"garagectl/controller"
	"garagectl/door"
	"garagectl/indicator"
	"garagectl/keypad"
	"garagectl/logging"
	"garagectl/mqtt"
	"garagectl/port"
)

// ErrConfig is wrapped by every error Validate returns.
var ErrConfig = errors.New("configuration errors")

// Config is the main configuration structure for garagectl.
type Config struct {
	// MQTT connection settings for the home automation host
	MQTT        mqtt.Config `yaml:"mqtt"`
	TopicPrefix string      `yaml:"topic_prefix"`

	// GPIO driver selection
	GPIO port.Config `yaml:"gpio"`

	// Keypad configuration
	Keypad keypad.Config `yaml:"keypad"`

	// Doors, each with its own code
	Doors []door.Config `yaml:"doors"`

	// Special codes and the lock's inactivity window
	Lock controller.Config `yaml:",inline"`

	// Defaults for every door, overridable per door
	EnginePulseMs   int `yaml:"engine_pulse_ms"`
	MaxSensorWaitMs int `yaml:"max_sensor_wait_ms"`

	// Buzzer configuration
	Buzzer buzzer.Config `yaml:"buzzer"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	Logging logging.Config `yaml:"logging"`
}

// LoadConfig reads path, fills in defaults, applies environment overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDoorDefaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	layout := make([][]string, len(keypad.DefaultLayout))
	for i, row := range keypad.DefaultLayout {
		for _, k := range row {
			layout[i] = append(layout[i], string(k))
		}
	}

	return &Config{
		TopicPrefix: mqtt.DefaultPrefix,
		GPIO: port.Config{
			Driver: "gpiocdev",
			Chip:   "gpiochip0",
		},
		Keypad: keypad.Config{
			Type:           "matrix",
			Layout:         layout,
			PollIntervalMs: int(keypad.DefaultPollInterval.Milliseconds()),
		},
		Lock: controller.Config{
			ToggleSoundCode:    codeStrings(controller.DefaultToggleSoundCode),
			MelodyCode:         codeStrings(controller.DefaultMelodyCode),
			InactivityWindowMs: 1000,
		},
		EnginePulseMs:   int(door.DefaultEnginePulse.Milliseconds()),
		MaxSensorWaitMs: int(door.DefaultMaxSensorWait.Milliseconds()),
		Buzzer: buzzer.Config{
			GapMs: int(buzzer.DefaultGap.Milliseconds()),
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

func codeStrings[T ~string](keys []T) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// applyDoorDefaults copies the global timings into doors that leave them
// unset.
func (c *Config) applyDoorDefaults() {
	for i := range c.Doors {
		d := &c.Doors[i]
		if d.EnginePulseMs == 0 {
			d.EnginePulseMs = c.EnginePulseMs
		}
		if d.MaxSensorWaitMs == 0 {
			d.MaxSensorWaitMs = c.MaxSensorWaitMs
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
// Environment variables follow the pattern: GARAGECTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GARAGECTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("GARAGECTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("GARAGECTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("GARAGECTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if len(c.Doors) == 0 {
		add("at least one door is required")
	}
	for _, d := range c.Doors {
		if err := d.Validate(); err != nil {
			add("%v", err)
		}
		if len(d.Code) == 0 && d.ID != "" {
			add("door %q has no code", d.ID)
		}
	}

	switch c.Keypad.Type {
	case "", "matrix":
		if len(c.Keypad.RowPins) == 0 || len(c.Keypad.ColPins) == 0 {
			add("keypad.row_pins and keypad.col_pins are required")
		}
		if len(c.Keypad.Layout) != len(c.Keypad.RowPins) {
			add("keypad.layout has %d rows but %d row pins are configured", len(c.Keypad.Layout), len(c.Keypad.RowPins))
		}
		for i, row := range c.Keypad.Layout {
			if len(row) != len(c.Keypad.ColPins) {
				add("keypad.layout row %d has %d keys but %d col pins are configured", i, len(row), len(c.Keypad.ColPins))
			}
		}
	case "evdev":
		if c.Keypad.Device == "" {
			add("keypad.device is required for an evdev keypad")
		}
	case "serial":
		if c.Keypad.Device == "" {
			add("keypad.device is required for a serial keypad")
		}
		switch keypad.SerialEncoding(c.Keypad.Encoding) {
		case "", keypad.EncodingASCII, keypad.EncodingWiegand4:
		default:
			add("keypad.encoding %q is unknown", c.Keypad.Encoding)
		}
		if c.Keypad.Baud < 0 {
			add("keypad.baud must not be negative")
		}
	default:
		add("keypad.type %q is unknown", c.Keypad.Type)
	}

	if c.Lock.InactivityWindowMs < 0 || c.EnginePulseMs < 0 || c.MaxSensorWaitMs < 0 || c.Keypad.PollIntervalMs < 0 {
		add("durations must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is unknown", c.Logging.Level)
	}

	for pin, users := range c.pinUsers() {
		if len(users) > 1 {
			add("pin %d is used by %s", pin, strings.Join(users, " and "))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfig, strings.Join(errs, "; "))
	}
	return nil
}

// pinUsers maps every configured pin to the names of its users.
func (c *Config) pinUsers() map[int][]string {
	users := make(map[int][]string)
	use := func(pin *int, name string) {
		if pin != nil {
			users[*pin] = append(users[*pin], name)
		}
	}

	if c.Keypad.Type == "" || c.Keypad.Type == "matrix" {
		for i, p := range c.Keypad.RowPins {
			use(&p, fmt.Sprintf("keypad row %d", i))
		}
		for i, p := range c.Keypad.ColPins {
			use(&p, fmt.Sprintf("keypad col %d", i))
		}
	}
	for _, d := range c.Doors {
		use(d.EnginePin, fmt.Sprintf("door %q engine", d.ID))
		if d.Sensors != nil {
			use(d.Sensors.OpenedPin, fmt.Sprintf("door %q opened sensor", d.ID))
			use(d.Sensors.ClosedPin, fmt.Sprintf("door %q closed sensor", d.ID))
		}
		use(d.LedPin, fmt.Sprintf("door %q led", d.ID))
		use(d.ButtonPin, fmt.Sprintf("door %q button", d.ID))
	}
	use(c.Indicator.FailedLedPin, "failed led")
	if c.Buzzer.Type == "gpio" || c.Buzzer.Type == "pwm" {
		pin := c.Buzzer.Pin
		if pin == nil && c.Buzzer.Type == "pwm" {
			def := buzzer.DefaultPWMPin
			pin = &def
		}
		use(pin, "buzzer")
	}
	return users
}

// doorPins returns the LED pin of every door that has one.
func (c *Config) doorPins() map[string]int {
	pins := make(map[string]int)
	for _, d := range c.Doors {
		if d.LedPin != nil {
			pins[d.ID] = *d.LedPin
		}
	}
	return pins
}
