package power

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/logic"
	"github.com/sweeney/relay-clock/internal/provision"
	"github.com/sweeney/relay-clock/internal/rtc"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newRTC(t *testing.T, clock clockwork.Clock, cal logic.Calendar) *rtc.RTC {
	t.Helper()
	r, err := rtc.Open(clock, &rtc.MemBackup{})
	if err != nil {
		t.Fatal(err)
	}
	src := &provision.MemSource{Fields: provision.FromCalendar(cal, 0)}
	if err := r.InitializeCalendar(context.Background(), src, clock, time.Second); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestFileStandbyFlag(t *testing.T) {
	f := FileStandbyFlag{Path: filepath.Join(t.TempDir(), "relay-clock", "standby")}

	set, err := f.IsSet()
	if err != nil || set {
		t.Fatalf("fresh flag: set=%v err=%v", set, err)
	}
	if err := f.Set(); err != nil {
		t.Fatal(err)
	}
	if set, _ := f.IsSet(); !set {
		t.Error("expected set")
	}
	if err := f.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := f.Clear(); err != nil {
		t.Errorf("clearing a clear flag: %v", err)
	}
}

func TestWokeFromStandbyClears(t *testing.T) {
	flag := &MemStandbyFlag{}
	m := NewManager(flag, nil, clockwork.NewFakeClock())

	if woke, _ := m.WokeFromStandby(); woke {
		t.Error("no flag must read as power-on")
	}

	m.EnterDeepestSleep()
	woke, err := m.WokeFromStandby()
	if err != nil || !woke {
		t.Fatalf("got %v, %v", woke, err)
	}
	if flag.Value {
		t.Error("flag must be cleared after reading")
	}
	if woke, _ := m.WokeFromStandby(); woke {
		t.Error("flag must read once")
	}
}

func TestWokeFromStandbyError(t *testing.T) {
	m := NewManager(&MemStandbyFlag{Err: errors.New("io")}, nil, clockwork.NewFakeClock())
	woke, err := m.WokeFromStandby()
	if err == nil || woke {
		t.Errorf("got %v, %v", woke, err)
	}
}

func TestWaitForWakeNoAlarm(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	r := newRTC(t, clock, logic.Calendar{Year: 24, Month: 6, Day: 1, Hour: 8})
	m := NewManager(&MemStandbyFlag{}, r, clock)

	if err := m.WaitForWake(context.Background()); !errors.Is(err, ErrNoAlarm) {
		t.Errorf("expected ErrNoAlarm, got %v", err)
	}
}

func TestWaitForWakeAtMinute(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	r := newRTC(t, clock, logic.Calendar{Year: 24, Month: 6, Day: 1, Hour: 8, Minute: 15, Second: 40})
	r.ArmMinuteAlarm()
	m := NewManager(&MemStandbyFlag{}, r, clock)

	done := make(chan error, 1)
	go func() { done <- m.WaitForWake(context.Background()) }()

	clock.BlockUntil(1)
	clock.Advance(19 * time.Second)
	select {
	case <-done:
		t.Fatal("woke before the alarm")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not wake at the alarm")
	}

	if r.AlarmPending() {
		t.Error("wake handler must clear the alarm flag")
	}
	if got := r.ReadCurrentTime().String(); got != "08:16" {
		t.Errorf("woke at %s, want 08:16", got)
	}
}

func TestWaitForWakeCancelled(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	r := newRTC(t, clock, logic.Calendar{Year: 24, Month: 6, Day: 1})
	r.ArmMinuteAlarm()
	m := NewManager(&MemStandbyFlag{}, r, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.WaitForWake(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
