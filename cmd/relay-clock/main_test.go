package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/config"
	"github.com/sweeney/relay-clock/internal/cycle"
	"github.com/sweeney/relay-clock/internal/display"
	"github.com/sweeney/relay-clock/internal/gpio"
	"github.com/sweeney/relay-clock/internal/journal"
	"github.com/sweeney/relay-clock/internal/logic"
	"github.com/sweeney/relay-clock/internal/mqtt"
	"github.com/sweeney/relay-clock/internal/power"
	"github.com/sweeney/relay-clock/internal/provision"
	"github.com/sweeney/relay-clock/internal/rtc"
	"github.com/sweeney/relay-clock/internal/status"
)

var epoch = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

type testRig struct {
	clock   clockwork.FakeClock
	in      *gpio.FakeInputs
	out     *gpio.FakeOutputs
	rtc     *rtc.RTC
	standby *power.MemStandbyFlag
	src     *provision.MemSource
	pub     *mqtt.FakePublisher
	journal *journal.Store
	loop    *loop
}

func newRig(t *testing.T, cal logic.Calendar) *testRig {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	r, err := rtc.Open(clock, &rtc.MemBackup{})
	if err != nil {
		t.Fatal(err)
	}
	store, err := journal.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	rig := &testRig{
		clock:   clock,
		in:      gpio.NewFakeInputs(true),
		out:     gpio.NewFakeOutputs(),
		rtc:     r,
		standby: &power.MemStandbyFlag{},
		src:     &provision.MemSource{Fields: provision.FromCalendar(cal, 0)},
		pub:     mqtt.NewFakePublisher(),
		journal: store,
	}
	dev := newDevice(config.Default(), clock, func(time.Duration) {}, r, rig.in, rig.out, rig.standby, rig.src)
	rig.loop = &loop{
		dev:        dev,
		publisher:  rig.pub,
		mqttStatus: rig.pub,
		tracker:    status.NewTracker(clock, status.Config{PlugPolls: 10}),
		journal:    store,
		clock:      clock,
	}
	return rig
}

// warm leaves the clock in standby with the previous minute latched.
func (rig *testRig) warm(t *testing.T) {
	t.Helper()
	if err := rig.rtc.InitializeCalendar(context.Background(), rig.src, rig.clock, time.Second); err != nil {
		t.Fatal(err)
	}
	rig.standby.Value = true
	prev, ok := logic.PriorSample(logic.EstimatePrevious(rig.rtc.ReadCurrentTime()))
	if !ok {
		t.Fatal("no previous minute")
	}
	for i, g := range prev {
		for _, seg := range logic.Segments {
			rig.out.Latched[i][seg] = g.Segments().On(seg)
		}
	}
}

func (rig *testRig) start() (chan<- os.Signal, <-chan error) {
	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- runLoop(context.Background(), rig.loop, sig) }()
	return sig, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

func TestRunLoopWarmCycles(t *testing.T) {
	rig := newRig(t, logic.Calendar{Year: 25, Month: 4, Day: 2, Hour: 10, Minute: 30})
	rig.warm(t)
	sig, done := rig.start()

	rig.clock.BlockUntil(1) // standing by for 10:31
	rig.clock.Advance(time.Minute)
	rig.clock.BlockUntil(1) // standing by for 10:32
	sig <- syscall.SIGTERM
	if err := wait(t, done); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(rig.pub.Reports) != 2 {
		t.Fatalf("reports: got %d, want 2", len(rig.pub.Reports))
	}
	first, second := rig.pub.Reports[0], rig.pub.Reports[1]
	if first.Mode != cycle.WarmWake || first.Sample.String() != "10:30" {
		t.Errorf("first cycle: %s %s", first.Mode, first.Sample)
	}
	if second.Sample.String() != "10:31" || second.Pulses != (display.Result{0, 0, 0, 4}) {
		t.Errorf("second cycle: %s pulses %v", second.Sample, second.Pulses)
	}

	snap := rig.loop.tracker.Snapshot()
	if snap.Counts.Cycles != 2 || snap.Face() != "10:31" {
		t.Errorf("tracker: cycles=%d face=%s", snap.Counts.Cycles, snap.Face())
	}
	if want := epoch.Add(2 * time.Minute); !snap.NextWake.Equal(want) {
		t.Errorf("next wake: got %v, want %v", snap.NextWake, want)
	}
	if !snap.MQTTConnected {
		t.Error("tracker should reflect MQTT connection")
	}

	entries, err := rig.journal.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Displayed != "10:31" {
		t.Errorf("journal: %+v", entries)
	}

	last := rig.pub.SystemEvents[len(rig.pub.SystemEvents)-1]
	if last.Event != "SHUTDOWN" || last.Reason != "SIGTERM" || !last.Retained {
		t.Errorf("shutdown event: %+v", last)
	}
}

func TestRunLoopColdBootThenWarm(t *testing.T) {
	rig := newRig(t, logic.Calendar{Year: 25, Month: 4, Day: 2, Hour: 7, Minute: 5, Second: 30})
	sig, done := rig.start()

	rig.clock.BlockUntil(1)
	rig.clock.Advance(30 * time.Second)
	rig.clock.BlockUntil(1)
	sig <- syscall.SIGINT
	if err := wait(t, done); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(rig.pub.Reports) != 2 {
		t.Fatalf("reports: got %d, want 2", len(rig.pub.Reports))
	}
	cold, warm := rig.pub.Reports[0], rig.pub.Reports[1]
	if cold.Mode != cycle.ColdBoot || !cold.FullRelatch {
		t.Errorf("cold boot: mode=%s full=%v", cold.Mode, cold.FullRelatch)
	}
	if warm.Mode != cycle.WarmWake || warm.FullRelatch || warm.Sample.String() != "07:06" {
		t.Errorf("warm wake: mode=%s full=%v shows %s", warm.Mode, warm.FullRelatch, warm.Sample)
	}
	if got := rig.pub.SystemEvents[len(rig.pub.SystemEvents)-1].Reason; got != "SIGINT" {
		t.Errorf("shutdown reason: got %s", got)
	}
}

func TestRunLoopPublishErrorDoesNotStopClock(t *testing.T) {
	rig := newRig(t, logic.Calendar{Year: 25, Month: 4, Day: 2, Hour: 10, Minute: 30})
	rig.warm(t)
	rig.pub.PublishError = errors.New("broker down")
	sig, done := rig.start()

	rig.clock.BlockUntil(1)
	rig.clock.Advance(time.Minute)
	rig.clock.BlockUntil(1)
	sig <- syscall.SIGTERM
	if err := wait(t, done); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if got := rig.loop.tracker.Snapshot().Counts.Cycles; got != 2 {
		t.Errorf("cycles: got %d, want 2", got)
	}
}

func TestRunLoopCycleError(t *testing.T) {
	rig := newRig(t, logic.Calendar{Year: 25, Month: 4, Day: 2, Hour: 10, Minute: 30})
	rig.standby.Err = errors.New("read-only filesystem")
	_, done := rig.start()

	err := wait(t, done)
	if err == nil || !strings.Contains(err.Error(), "enter standby") {
		t.Fatalf("expected standby error, got %v", err)
	}
	if len(rig.pub.Reports) != 0 {
		t.Error("a failed cycle must not be published")
	}
	if got := rig.pub.SystemEvents[0].Reason; got != "ERROR" {
		t.Errorf("shutdown reason: got %s", got)
	}
}

func TestRunLoopHalted(t *testing.T) {
	rig := newRig(t, logic.Calendar{Year: 25, Month: 4, Day: 2, Hour: 10, Minute: 30})
	rig.warm(t)
	rig.in.Buttons[gpio.Button1] = []bool{true}
	sig, done := rig.start()

	sig <- syscall.SIGTERM
	if err := wait(t, done); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if len(rig.pub.Reports) != 1 || rig.pub.Reports[0].Mode != cycle.Halted {
		t.Fatalf("reports: %+v", rig.pub.Reports)
	}
	if rig.out.Pulses() != 0 {
		t.Errorf("halted clock drove %d relays", rig.out.Pulses())
	}
	if got := rig.loop.tracker.Snapshot().Face(); got != "--:--" {
		t.Errorf("face: got %s", got)
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %s, want %s", tt.sig, got, tt.want)
		}
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://192.168.1.200:1883"
	cfg.DST = append(cfg.DST, config.DSTEntry{Year: 31, Month: 3, Day: 9, Direction: "FORWARD"})

	sc := statusConfig(cfg)
	if sc.Broker != "tcp://192.168.1.200:1883" || sc.PulseMs != 10 || sc.PlugPolls != 10 {
		t.Errorf("status config: %+v", sc)
	}
	if sc.DSTUntil != 31 {
		t.Errorf("DSTUntil: got %d, want 31", sc.DSTUntil)
	}
}

func TestProvisionFields(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 59, 58, 0, time.Local)

	f, err := provisionFields("", 0, now)
	if err != nil {
		t.Fatalf("now: %v", err)
	}
	cal, err := f.Calendar()
	if err != nil || cal != (logic.Calendar{Year: 25, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 58}) {
		t.Errorf("now: got %+v (%v)", cal, err)
	}
	if !f.IsReady() {
		t.Error("record must be marked ready")
	}

	f, err = provisionFields("2026-03-08T01:58:30", -100, now)
	if err != nil {
		t.Fatalf("explicit: %v", err)
	}
	cal, _ = f.Calendar()
	if cal.Hour != 1 || cal.Minute != 58 || cal.Second != 30 || f.Calibration != -100 {
		t.Errorf("explicit: got %+v calib %d", cal, f.Calibration)
	}

	for _, tt := range []struct {
		at    string
		calib int64
	}{
		{"2026-03-08 01:58:30", 0},
		{"1999-12-31T23:59:59", 0},
		{"", 513},
		{"", -512},
	} {
		if _, err := provisionFields(tt.at, tt.calib, now); err == nil {
			t.Errorf("provisionFields(%q, %d): expected error", tt.at, tt.calib)
		}
	}
}

func TestPrintStateUninitialized(t *testing.T) {
	r, err := rtc.Open(clockwork.NewFakeClockAt(epoch), &rtc.MemBackup{})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := printState(&buf, r, &power.MemStandbyFlag{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"RTC: not initialized", "Next alarm: none", "Standby: false"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStateAfterCycle(t *testing.T) {
	rig := newRig(t, logic.Calendar{Year: 25, Month: 4, Day: 2, Hour: 10, Minute: 30})
	rig.warm(t)
	rep, err := rig.loop.dev.seq.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printState(&buf, rig.rtc, rig.standby); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"RTC: 25-04-02 10:30:00 (display 10:30)",
		"FORCE_FULL_RELATCH: false",
		"REPEATED_HOUR: false",
		"Next alarm: " + epoch.Add(time.Minute).Format(time.RFC3339),
		"Standby: true",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printReport(&buf, rep, rig.rtc)
	for _, want := range []string{"Mode: WARM_WAKE", "Display: 10:30 (5 pulses, full relatch false)", "DST: NONE"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report missing %q:\n%s", want, buf.String())
		}
	}
}

func TestPrintStateStandbyError(t *testing.T) {
	r, _ := rtc.Open(clockwork.NewFakeClockAt(epoch), &rtc.MemBackup{})
	err := printState(&bytes.Buffer{}, r, &power.MemStandbyFlag{Err: errors.New("permission denied")})
	if err == nil || !strings.Contains(err.Error(), "standby flag") {
		t.Errorf("got %v", err)
	}
}
