package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/config"
	"github.com/sweeney/relay-clock/internal/cycle"
	"github.com/sweeney/relay-clock/internal/display"
	"github.com/sweeney/relay-clock/internal/flags"
	"github.com/sweeney/relay-clock/internal/gpio"
	"github.com/sweeney/relay-clock/internal/power"
	"github.com/sweeney/relay-clock/internal/provision"
	"github.com/sweeney/relay-clock/internal/relay"
	"github.com/sweeney/relay-clock/internal/rtc"
)

// device is the assembled clock.
type device struct {
	inputs  gpio.Inputs
	outputs gpio.Outputs
	rtc     *rtc.RTC
	flags   *flags.Store
	power   *power.Manager
	seq     *cycle.Sequencer
}

// openDevice opens the GPIO chip and the state file named by cfg.
func openDevice(cfg *config.Config, clock clockwork.Clock) (*device, error) {
	r, err := rtc.Open(clock, rtc.FileBackup{Path: cfg.Paths.StateFile})
	if err != nil {
		return nil, fmt.Errorf("open rtc: %w", err)
	}

	pinout := cfg.GPIO.Pinout()
	in, err := gpio.NewRealInputs(pinout)
	if err != nil {
		return nil, fmt.Errorf("init gpio inputs: %w", err)
	}
	out, err := gpio.NewRealOutputs(pinout)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("init gpio outputs: %w", err)
	}

	return newDevice(cfg, clock, clock.Sleep, r, in, out,
		power.FileStandbyFlag{Path: cfg.Paths.StandbyFile},
		provision.FileSource{Path: cfg.Paths.ProvisionFile}), nil
}

// newDevice wires the cycle around already opened peripherals. sleep paces
// the relay pulses.
func newDevice(cfg *config.Config, clock clockwork.Clock, sleep func(time.Duration), r *rtc.RTC, in gpio.Inputs, out gpio.Outputs, standby power.StandbyFlag, src provision.Source) *device {
	driver := relay.New(out, cfg.Timing.Relay(), sleep)
	d := &device{
		inputs:  in,
		outputs: out,
		rtc:     r,
		flags:   flags.New(r),
		power:   power.NewManager(standby, r, clock),
	}
	d.seq = cycle.New(cycle.Deps{
		Inputs:    in,
		Renderer:  display.NewRenderer(driver),
		RTC:       r,
		Flags:     d.flags,
		Power:     d.power,
		Provision: src,
		Clock:     clock,
	}, cfg.Sequencer())
	return d
}

// Close releases the GPIO lines.
func (d *device) Close() error {
	return errors.Join(d.outputs.Close(), d.inputs.Close())
}
