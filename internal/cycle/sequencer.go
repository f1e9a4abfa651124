// Package cycle runs the power-state sequence of one wake: decide between a
// cold boot and a wake from standby, update the digits, apply any DST
// correction, arm the next minute's alarm and go back to standby.
package cycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/display"
	"github.com/sweeney/relay-clock/internal/flags"
	"github.com/sweeney/relay-clock/internal/gpio"
	"github.com/sweeney/relay-clock/internal/logic"
	"github.com/sweeney/relay-clock/internal/power"
	"github.com/sweeney/relay-clock/internal/provision"
	"github.com/sweeney/relay-clock/internal/rtc"
)

// DefaultHaltPolls is how many consecutive polls button 1 must read held
// at boot to halt the clock.
const DefaultHaltPolls = 10

// DefaultProvisionPoll is the provisioning readiness poll interval.
const DefaultProvisionPoll = 500 * time.Millisecond

// Config tunes the sequencer.
type Config struct {
	DST           []logic.DSTEntry
	PlugPolls     int
	HaltPolls     int
	ProvisionPoll time.Duration
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		DST:           logic.DefaultDSTTable,
		PlugPolls:     logic.DefaultPlugPolls,
		HaltPolls:     DefaultHaltPolls,
		ProvisionPoll: DefaultProvisionPoll,
	}
}

// Deps are the peripherals a cycle drives.
type Deps struct {
	Inputs    gpio.Inputs
	Renderer  *display.Renderer
	RTC       *rtc.RTC
	Flags     *flags.Store
	Power     *power.Manager
	Provision provision.Source
	Clock     clockwork.Clock
}

// Sequencer executes wake cycles.
type Sequencer struct {
	d   Deps
	cfg Config
}

// New creates a Sequencer. Zero config fields take their defaults.
func New(d Deps, cfg Config) *Sequencer {
	def := DefaultConfig()
	if cfg.DST == nil {
		cfg.DST = def.DST
	}
	if cfg.PlugPolls <= 0 {
		cfg.PlugPolls = def.PlugPolls
	}
	if cfg.HaltPolls <= 0 {
		cfg.HaltPolls = def.HaltPolls
	}
	if cfg.ProvisionPoll <= 0 {
		cfg.ProvisionPoll = def.ProvisionPoll
	}
	return &Sequencer{d: d, cfg: cfg}
}

// Run executes one wake cycle and leaves the clock in standby with the next
// minute alarm armed. A halted clock blocks until ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context) (Report, error) {
	rep := Report{Start: s.d.Clock.Now(), DST: logic.DSTNone}
	if s.haltRequested() {
		rep.Mode = Halted
		rep.enter(Halted)
		log.Printf("cycle: button 1 held at boot, halting")
		<-ctx.Done()
		rep.End = s.d.Clock.Now()
		return rep, nil
	}

	woke, err := s.d.Power.WokeFromStandby()
	if err != nil {
		log.Printf("cycle: read standby flag: %v (treating as power-on)", err)
	}
	if woke {
		rep.Mode = WarmWake
		rep.enter(WarmWake)
		if s.d.RTC.MissedAlarm() {
			log.Printf("cycle: slept through a wake, relatching")
			s.setRelatch()
		}
	} else {
		rep.Mode = ColdBoot
		rep.enter(ColdBoot)
		if err := s.coldBoot(ctx); err != nil {
			rep.End = s.d.Clock.Now()
			return rep, err
		}
	}

	rep.enter(RunningCycle)
	s.update(&rep)
	s.correctDST(&rep)

	rep.enter(Sleeping)
	if err := s.d.RTC.ArmMinuteAlarm(); err != nil {
		rep.End = s.d.Clock.Now()
		return rep, err
	}
	if err := s.d.Power.EnterDeepestSleep(); err != nil {
		rep.End = s.d.Clock.Now()
		return rep, fmt.Errorf("enter standby: %w", err)
	}
	rep.End = s.d.Clock.Now()
	return rep, nil
}

func (s *Sequencer) haltRequested() bool {
	for i := 0; i < s.cfg.HaltPolls; i++ {
		held, err := s.d.Inputs.ButtonPressed(gpio.Button1)
		if err != nil || !held {
			return false
		}
	}
	return true
}

// coldBoot runs only at true power-on: the relays are in an unknown state
// and the calendar must be loaded from the provisioning tool.
func (s *Sequencer) coldBoot(ctx context.Context) error {
	if _, err := s.d.Renderer.RenderAll(logic.Uniform(logic.GlyphHyphen), logic.AllUnknown()); err != nil {
		log.Printf("cycle: draw boot pattern: %v", err)
	}
	if err := s.d.RTC.InitializeCalendar(ctx, s.d.Provision, s.d.Clock, s.cfg.ProvisionPoll); err != nil {
		return fmt.Errorf("initialize calendar: %w", err)
	}
	log.Printf("cycle: calendar loaded: %s", s.d.RTC.ReadCalendar())
	s.setRelatch()
	return nil
}

// update reads the time and brings the relays to it.
func (s *Sequencer) update(rep *Report) {
	rep.Calendar = s.d.RTC.ReadCalendar()
	rep.Sample = rep.Calendar.Sample()

	if s.unplugged() {
		rep.Unplugged = true
		rep.Priors = logic.AllUnknown()
		log.Printf("cycle: unplugged at %s, skipping relays", rep.Sample)
		s.setRelatch()
		return
	}

	full, err := s.d.Flags.Consume(flags.ForceFullRelatch)
	if err != nil {
		log.Printf("cycle: consume relatch flag: %v", err)
	}
	rep.FullRelatch = full
	if full {
		rep.Priors = logic.AllUnknown()
	} else {
		rep.Priors = logic.EstimatePrevious(rep.Sample)
	}

	res, err := s.d.Renderer.RenderAll(rep.Sample, rep.Priors)
	rep.Pulses = res
	if err != nil {
		rep.RenderError = err.Error()
		log.Printf("cycle: %v", err)
		s.setRelatch()
	}
}

// unplugged polls the power-presence line. A read error counts as absent.
func (s *Sequencer) unplugged() bool {
	d := logic.NewPlugDebouncer(s.cfg.PlugPolls)
	for !d.Settled() {
		present, err := s.d.Inputs.PowerPresent()
		if err != nil {
			log.Printf("cycle: read plug detect: %v", err)
			present = false
		}
		d.Process(present)
	}
	return d.Unplugged()
}

func (s *Sequencer) setRelatch() {
	if err := s.d.Flags.Set(flags.ForceFullRelatch); err != nil {
		log.Printf("cycle: set relatch flag: %v", err)
	}
}

// correctDST applies the daylight-saving step at the transition instant.
// The check runs on unplugged cycles too. Once a date's correction has
// completed, later cycles reading 01:59 that day (restarts, one-shot runs)
// leave the calendar alone.
func (s *Sequencer) correctDST(rep *Report) {
	if !logic.IsTransitionInstant(rep.Sample) {
		return
	}
	cal := s.d.RTC.ReadCalendar()
	if s.d.RTC.DSTDone(cal) {
		rep.DST = logic.DSTNone
		return
	}
	if horizon := logic.DSTHorizon(s.cfg.DST); cal.Year > horizon {
		rep.BeyondDSTHorizon = true
		log.Printf("cycle: year %02d is past the DST table (last %02d), no correction", cal.Year, horizon)
	}

	action := logic.DecideDST(s.cfg.DST, cal, s.d.Flags.IsSet(flags.RepeatedHour))
	rep.DST = action
	if action == logic.DSTNone {
		return
	}

	sess := s.d.RTC.Unlock()
	switch action {
	case logic.DSTAddHour:
		sess.AddHour()
		sess.MarkDSTDone(cal)
	case logic.DSTSubHour:
		sess.SetRepeatedHour(true)
		sess.SubHour()
	case logic.DSTSecondPass:
		sess.SetRepeatedHour(false)
		sess.MarkDSTDone(cal)
	}
	if err := sess.Lock(); err != nil {
		log.Printf("cycle: apply %s: %v", action, err)
	}
	log.Printf("cycle: DST %s applied on %s", action, cal)

	// The face still shows 01:59, which is not the numeric predecessor of
	// the next minute after an hour change.
	if action == logic.DSTAddHour || action == logic.DSTSubHour {
		s.setRelatch()
	}
}
