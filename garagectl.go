package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"garagectl/buzzer"
	"garagectl/controller"
	"garagectl/door"
	"garagectl/indicator"
	"garagectl/keypad"
	"garagectl/lock"
	"garagectl/logging"
	"garagectl/mqtt"
	"garagectl/port"
)

var myBuild = "dev"

// app holds the running process and everything it has acquired.
type app struct {
	log     *slog.Logger
	drv     port.Driver
	ctl     *controller.Controller
	ind     indicator.Indicator
	buttons []*door.Button
	host    *host
	mqtt    *mqtt.Client
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var cfgPath, toggle string
	var showVersion bool

	flagSet := pflag.NewFlagSet("garagectl", pflag.ContinueOnError)
	flagSet.StringVar(&cfgPath, "cfg", "garagectl.yaml", "config file")
	flagSet.StringVar(&toggle, "toggle", "", "open or close the given door once and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("garagectl build %s\n", myBuild)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, myBuild)
	log.Info("starting garagectl", "config", cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if toggle != "" {
		return a.ctl.OpenCloseDoor(ctx, toggle)
	}
	return a.run(ctx)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `garagectl runs a keypad operated garage door controller.

Usage:
  garagectl [flags]

Flags:
%s`, flagSet.FlagUsages())
}

// newApp acquires the hardware and builds the controller and the host
// bridge. Everything acquired is released again on error.
func newApp(cfg *Config, log *slog.Logger) (*app, error) {
	drv, err := port.Open(cfg.GPIO)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, drv: drv}

	a.ctl, a.ind, err = buildController(drv, cfg, log)
	if err != nil {
		drv.Close()
		return nil, err
	}

	for _, dc := range cfg.Doors {
		id := dc.ID
		b, err := door.OpenButton(drv, dc, func() {
			log.Info("door button pressed", "door", id)
			if err := a.ctl.Trigger(id); err != nil {
				log.Error("button trigger failed", "door", id, "error", err)
			}
		})
		if err != nil {
			a.close()
			return nil, err
		}
		if b != nil {
			a.buttons = append(a.buttons, b)
		}
	}

	clientID := cfg.MQTT.ResolveClientID()
	topics := mqtt.NewTopics(cfg.TopicPrefix, clientID)
	a.host = newHost(a.ctl, a.ind, topics, log)
	a.mqtt, err = mqtt.New(cfg.MQTT, clientID,
		&mqtt.Will{Topic: topics.Status(), Payload: mqtt.Offline},
		a.host.handlers(), log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init mqtt: %w", err)
	}
	if a.mqtt.IsEnabled() {
		a.host.broker = a.mqtt
	}
	return a, nil
}

// buildController opens every component named in cfg and hands them to a
// new controller.
func buildController(drv port.Driver, cfg *Config, log *slog.Logger) (*controller.Controller, indicator.Indicator, error) {
	var release []func() error
	fail := func(err error) (*controller.Controller, indicator.Indicator, error) {
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
		return nil, nil, err
	}

	keys, err := openKeys(drv, cfg.Keypad, log)
	if err != nil {
		return fail(fmt.Errorf("init keypad: %w", err))
	}
	release = append(release, keys.Close)

	doors := make([]controller.Door, 0, len(cfg.Doors))
	for _, dc := range cfg.Doors {
		act, err := door.OpenActuator(drv, dc, log)
		if err != nil {
			return fail(fmt.Errorf("init door: %w", err))
		}
		release = append(release, act.Close)
		doors = append(doors, controller.Door{
			ID:       dc.ID,
			Name:     dc.DisplayName(),
			Code:     lock.ParseCode(dc.Code),
			Actuator: act,
		})
	}

	seq, err := buzzer.Open(drv, cfg.Buzzer, log)
	if err != nil {
		return fail(fmt.Errorf("init buzzer: %w", err))
	}
	release = append(release, seq.Close)

	indCfg := cfg.Indicator
	indCfg.DoorPins = cfg.doorPins()
	ind, err := indicator.New(drv, indCfg, log)
	if err != nil {
		return fail(fmt.Errorf("init indicator: %w", err))
	}
	release = append(release, ind.Release)
	ind.ConnectionLost() // Start with connection lost state

	opts := append(cfg.Lock.Options(), controller.WithLogger(log))
	ctl, err := controller.New(keys, doors, seq, ind, opts...)
	if err != nil {
		return fail(err)
	}
	return ctl, ind, nil
}

func openKeys(drv port.Driver, cfg keypad.Config, log *slog.Logger) (controller.KeySource, error) {
	switch cfg.Type {
	case "evdev":
		ev, err := keypad.OpenEvdev(cfg.Device, keypad.ParseKeyMap(cfg.KeyMap), log)
		if err != nil {
			return nil, err
		}
		return ev, nil
	case "serial":
		s, err := keypad.OpenSerial(cfg.Device, cfg.Baud, keypad.SerialEncoding(cfg.Encoding), log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	sc, err := keypad.OpenScanner(drv, cfg, log)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// run starts the controller and the host connection and blocks until ctx
// is done.
func (a *app) run(ctx context.Context) error {
	if err := a.ctl.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := a.mqtt.Connect(); err != nil {
			a.log.Error("MQTT connect failed", "error", err)
		}
	}()

	<-ctx.Done()
	a.log.Info("shutting down")
	return nil
}

// close releases everything newApp acquired.
func (a *app) close() {
	if a.host != nil {
		a.host.close()
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	for _, b := range a.buttons {
		if err := b.Close(); err != nil {
			a.log.Warn("release button failed", "error", err)
		}
	}
	if a.ctl != nil {
		if err := a.ctl.Close(); err != nil {
			a.log.Warn("release failed", "error", err)
		}
	}
	if err := a.drv.Close(); err != nil {
		a.log.Warn("close gpio driver failed", "error", err)
	}
	a.log.Info("shutdown complete")
}
