package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagectl/controller"
	"garagectl/logging"
	"garagectl/port"
)

func TestRunFlags(t *testing.T) {
	assert.NoError(t, run([]string{"--version"}))
	assert.NoError(t, run([]string{"-h"}))

	err := run([]string{"extra"})
	assert.ErrorContains(t, err, "unexpected argument: extra")

	err = run([]string{"--no-such-flag"})
	assert.Error(t, err)

	err = run([]string{"--cfg", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "reading config file")
}

const appConfig = testConfig + `
indicator:
  failed_led_pin: 12
`

func TestNewApp(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, appConfig))
	require.NoError(t, err)
	button := 25
	cfg.Doors[1].ButtonPin = &button

	a, err := newApp(cfg, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, []controller.DoorInfo{{ID: "main", Name: "Main door"}, {ID: "side", Name: "side"}}, a.ctl.Doors())
	assert.Len(t, a.buttons, 1)
	assert.False(t, a.mqtt.IsEnabled())
	assert.Nil(t, a.host.broker)

	closed, err := a.ctl.IsDoorClosed("main")
	require.NoError(t, err)
	assert.False(t, closed, "idle normally closed sensors read as open")
	closed, err = a.ctl.IsDoorClosed("side")
	require.NoError(t, err)
	assert.True(t, closed)

	sim, ok := a.drv.(*port.SimDriver)
	require.True(t, ok)
	for _, pin := range []int{5, 6, 13, 19, 26, 16, 20, 17, 22, 27, 23, 24, 12, 25} {
		require.NotNil(t, sim.Pin(pin), "pin %d", pin)
	}

	a.close()
	for _, pin := range []int{5, 26, 17, 22, 23, 24, 12, 25} {
		assert.True(t, sim.Pin(pin).Closed(), "pin %d", pin)
	}
}

func TestBuildControllerReleasesOnError(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, appConfig))
	require.NoError(t, err)
	cfg.Doors[1].Code = cfg.Doors[0].Code

	drv := port.NewSimDriver()
	_, _, err = buildController(drv, cfg, logging.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, controller.ErrConfig))

	for _, pin := range []int{5, 26, 17, 22, 23, 24, 12} {
		assert.True(t, drv.Pin(pin).Closed(), "pin %d", pin)
	}
}

func TestOpenKeysUnknownSerialDevice(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, appConfig))
	require.NoError(t, err)
	cfg.Keypad.Type = "serial"
	cfg.Keypad.Device = filepath.Join(t.TempDir(), "ttyUSB9")

	_, err = openKeys(port.NewSimDriver(), cfg.Keypad, logging.Discard())
	assert.ErrorContains(t, err, "open serial")
}
