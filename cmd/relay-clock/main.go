// Command relay-clock drives a four-digit latching-relay clock. Each wake
// cycle reads the RTC, moves only the relays that must change and goes back
// to standby until the next minute.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sweeney/relay-clock/internal/config"
	"github.com/sweeney/relay-clock/internal/cycle"
	"github.com/sweeney/relay-clock/internal/flags"
	"github.com/sweeney/relay-clock/internal/journal"
	"github.com/sweeney/relay-clock/internal/logic"
	"github.com/sweeney/relay-clock/internal/metrics"
	"github.com/sweeney/relay-clock/internal/mqtt"
	"github.com/sweeney/relay-clock/internal/power"
	"github.com/sweeney/relay-clock/internal/provision"
	"github.com/sweeney/relay-clock/internal/rtc"
	"github.com/sweeney/relay-clock/internal/status"
	"github.com/sweeney/relay-clock/internal/web"
)

// journalRetention is how long cycle history is kept.
const journalRetention = 90 * 24 * time.Hour

// provisionTimeLayout is the --time format of the provision command.
const provisionTimeLayout = "2006-01-02T15:04:05"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (empty for built-in defaults)",
		Sources: cli.EnvVars("RELAY_CLOCK_CONFIG"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "relay-clock",
		Usage: "Drive a latching-relay clock from a software RTC",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run wake cycles until interrupted",
				Flags:  []cli.Flag{configFlag()},
				Action: runDaemon,
			},
			{
				Name:   "cycle",
				Usage:  "Run one wake cycle and exit",
				Flags:  []cli.Flag{configFlag()},
				Action: runCycle,
			},
			{
				Name:  "provision",
				Usage: "Write the provisioning record read at power-on",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "time",
						Usage: "Wall-clock time to load as " + provisionTimeLayout + " (default: now)",
					},
					&cli.IntFlag{
						Name:  "calibration",
						Usage: fmt.Sprintf("RTC smooth calibration in ticks per 32 s [%d, %d]", provision.MinCalibration, provision.MaxCalibration),
					},
				},
				Action: runProvision,
			},
			{
				Name:   "print-state",
				Usage:  "Print the RTC, persistent flags and standby flag",
				Flags:  []cli.Flag{configFlag()},
				Action: runPrintState,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the config file and points the log at it.
func loadConfig(cmd *cli.Command) (*config.Config, func(), error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogging(cfg.Log), nil
}

// setupLogging sends the standard logger to a rotated file when one is
// configured. The returned func closes it.
func setupLogging(c config.LogConfig) func() {
	if c.File == "" {
		return func() {}
	}
	lj := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
	log.SetOutput(lj)
	return func() {
		log.SetOutput(os.Stderr)
		lj.Close()
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		StateFile: cfg.Paths.StateFile,
		Broker:    cfg.MQTT.Broker,
		HTTPAddr:  cfg.HTTP.Addr,
		PlugPolls: cfg.Timing.PlugPolls,
		PulseMs:   int64(cfg.Timing.PulseMs),
		DSTUntil:  logic.DSTHorizon(cfg.DSTTable()),
	}
}

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	clock := clockwork.NewRealClock()
	dev, err := openDevice(cfg, clock)
	if err != nil {
		return err
	}
	defer dev.Close()

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Options())
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	sc := statusConfig(cfg)
	l := &loop{
		dev:        dev,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    status.NewTracker(clock, sc),
		clock:      clock,
	}

	var history web.History
	if cfg.Paths.Journal != "" {
		store, err := journal.Open(cfg.Paths.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		l.journal = store
		history = store
	}

	startup := mqtt.SystemEvent{
		Timestamp: clock.Now(),
		Event:     "STARTUP",
		Retained:  true,
		Config: &mqtt.SystemConfig{
			Broker:    sc.Broker,
			StateFile: sc.StateFile,
			PlugPolls: sc.PlugPolls,
			PulseMs:   sc.PulseMs,
			DSTUntil:  sc.DSTUntil,
		},
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, l.tracker, history)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: state=%s plug_polls=%d pulse=%dms broker=%s dst_until=%02d",
		sc.StateFile, sc.PlugPolls, sc.PulseMs, sc.Broker, sc.DSTUntil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(ctx, l, sigCh)
}

// recorder is the part of the journal the loop writes to.
type recorder interface {
	Record(rep cycle.Report) error
	Prune(cutoff time.Time) (int64, error)
}

// loop runs wake cycles back to back, waiting on the RTC alarm in between.
type loop struct {
	dev        *device
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	journal    recorder // nil when disabled
	clock      clockwork.Clock
}

// runLoop runs cycles until a signal arrives or a cycle fails, then
// publishes SHUTDOWN.
func runLoop(ctx context.Context, l *loop, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reason := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	err := l.cycles(ctx)

	event := mqtt.SystemEvent{
		Timestamp: l.clock.Now(),
		Event:     "SHUTDOWN",
		Retained:  true,
	}
	select {
	case event.Reason = <-reason:
	default:
		event.Reason = "CONTEXT"
		if err != nil {
			event.Reason = "ERROR"
		}
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
	return err
}

func (l *loop) cycles(ctx context.Context) error {
	for {
		rep, err := l.dev.seq.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("run cycle: %w", err)
		}
		l.record(rep)
		if rep.Mode == cycle.Halted {
			return nil
		}

		if next, ok := l.dev.rtc.NextAlarm(); ok {
			l.tracker.SetNextWake(next)
		}
		if err := l.dev.power.WaitForWake(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for wake: %w", err)
		}
	}
}

// record hands a finished cycle to every consumer. None of them can fail
// the clock.
func (l *loop) record(rep cycle.Report) {
	log.Printf("cycle: %s shows %s pulses=%d dst=%s", rep.PathString(), rep.Sample, rep.Pulses.Total(), rep.DST)

	l.tracker.Record(rep)
	metrics.Observe(rep)

	if l.journal != nil {
		if err := l.journal.Record(rep); err != nil {
			log.Printf("journal: record cycle: %v", err)
		}
		// Once a day, at the first cycle past midnight.
		if rep.Calendar.Hour == 0 && rep.Calendar.Minute == 0 {
			n, err := l.journal.Prune(l.clock.Now().Add(-journalRetention))
			if err != nil {
				log.Printf("journal: prune: %v", err)
			} else if n > 0 {
				log.Printf("journal: pruned %d cycles", n)
			}
		}
	}

	if err := l.publisher.Publish(rep); err != nil {
		log.Printf("publish error: %v", err)
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runCycle runs a single wake cycle. The next wake is left to an external
// timer.
func runCycle(ctx context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	dev, err := openDevice(cfg, clock)
	if err != nil {
		return err
	}
	defer dev.Close()

	rep, err := dev.seq.Run(ctx)
	if err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}
	metrics.Observe(rep)

	if cfg.Paths.Journal != "" {
		store, err := journal.Open(cfg.Paths.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Record(rep); err != nil {
			log.Printf("journal: record cycle: %v", err)
		}
	}

	printReport(os.Stdout, rep, dev.rtc)
	return nil
}

func printReport(w io.Writer, rep cycle.Report, r *rtc.RTC) {
	fmt.Fprintf(w, "Mode: %s\n", rep.Mode)
	fmt.Fprintf(w, "Path: %s\n", rep.PathString())
	if rep.Mode == cycle.Halted {
		return
	}
	fmt.Fprintf(w, "Calendar: %s\n", rep.Calendar)
	if rep.Unplugged {
		fmt.Fprintf(w, "Display: %s (unplugged, relays not driven)\n", rep.Sample)
	} else {
		fmt.Fprintf(w, "Display: %s (%d pulses, full relatch %v)\n", rep.Sample, rep.Pulses.Total(), rep.FullRelatch)
	}
	fmt.Fprintf(w, "DST: %s\n", rep.DST)
	if rep.RenderError != "" {
		fmt.Fprintf(w, "Render error: %s\n", rep.RenderError)
	}
	if next, ok := r.NextAlarm(); ok {
		fmt.Fprintf(w, "Next wake: %s\n", next.Format(time.RFC3339))
	}
}

func runProvision(ctx context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	f, err := provisionFields(cmd.String("time"), cmd.Int("calibration"), time.Now())
	if err != nil {
		return err
	}
	if err := provision.Write(cfg.Paths.ProvisionFile, f); err != nil {
		return fmt.Errorf("write provisioning file: %w", err)
	}
	cal, _ := f.Calendar()
	fmt.Printf("provisioned %s calibration %d -> %s\n", cal, f.Calibration, cfg.Paths.ProvisionFile)
	return nil
}

// provisionFields builds the record for the given --time value, or now when
// it is empty.
func provisionFields(at string, calibration int64, now time.Time) (provision.Fields, error) {
	t := now
	if at != "" {
		var err error
		t, err = time.ParseInLocation(provisionTimeLayout, at, time.Local)
		if err != nil {
			return provision.Fields{}, fmt.Errorf("parse --time: %w", err)
		}
	}
	if t.Year() < 2000 || t.Year() > 2099 {
		return provision.Fields{}, fmt.Errorf("year %d outside 2000-2099", t.Year())
	}
	if calibration < provision.MinCalibration || calibration > provision.MaxCalibration {
		return provision.Fields{}, fmt.Errorf("calibration %d out of range [%d, %d]",
			calibration, provision.MinCalibration, provision.MaxCalibration)
	}
	return provision.FromCalendar(logic.CalendarOf(t), int32(calibration)), nil
}

func runPrintState(ctx context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	r, err := rtc.Open(clockwork.NewRealClock(), rtc.FileBackup{Path: cfg.Paths.StateFile})
	if err != nil {
		return fmt.Errorf("open rtc: %w", err)
	}
	return printState(os.Stdout, r, power.FileStandbyFlag{Path: cfg.Paths.StandbyFile})
}

func printState(w io.Writer, r *rtc.RTC, standby power.StandbyFlag) error {
	cal, err := r.ReadCalendarChecked()
	switch {
	case errors.Is(err, rtc.ErrNotInitialized):
		fmt.Fprintf(w, "RTC: not initialized\n")
	case err != nil:
		return fmt.Errorf("read rtc: %w", err)
	default:
		fmt.Fprintf(w, "RTC: %s (display %s)\n", cal, cal.Sample())
	}
	fmt.Fprintf(w, "Calibration: %d\n", r.Calibration())

	st := flags.New(r)
	for _, f := range []flags.Flag{flags.ForceFullRelatch, flags.RepeatedHour} {
		fmt.Fprintf(w, "%s: %v\n", f, st.IsSet(f))
	}

	if next, ok := r.NextAlarm(); ok {
		fmt.Fprintf(w, "Next alarm: %s\n", next.Format(time.RFC3339))
	} else {
		fmt.Fprintf(w, "Next alarm: none\n")
	}
	if r.MissedAlarm() {
		fmt.Fprintf(w, "Missed wake: next cycle relatches\n")
	}

	set, err := standby.IsSet()
	if err != nil {
		return fmt.Errorf("read standby flag: %w", err)
	}
	fmt.Fprintf(w, "Standby: %v\n", set)
	return nil
}
