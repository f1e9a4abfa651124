package rtc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/logic"
	"github.com/sweeney/relay-clock/internal/provision"
)

var hostEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func openRTC(t *testing.T) (*RTC, clockwork.FakeClock, *MemBackup) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(hostEpoch)
	backup := &MemBackup{}
	r, err := Open(clock, backup)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return r, clock, backup
}

func loadCalendar(t *testing.T, r *RTC, c logic.Calendar, calib int32) {
	t.Helper()
	src := &provision.MemSource{Fields: provision.FromCalendar(c, calib)}
	if err := r.InitializeCalendar(context.Background(), src, clockwork.NewFakeClock(), time.Second); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func TestOpenFresh(t *testing.T) {
	r, _, _ := openRTC(t)
	if r.Initialized() {
		t.Error("fresh domain must not be initialized")
	}
	if _, err := r.ReadCalendarChecked(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if got := r.ReadCurrentTime().String(); got != "00:00" {
		t.Errorf("reset time: got %s, want 00:00", got)
	}
}

func TestInitializeCalendar(t *testing.T) {
	r, clock, backup := openRTC(t)
	want := logic.Calendar{Year: 24, Month: 3, Day: 10, Hour: 1, Minute: 58, Second: 30}
	loadCalendar(t, r, want, 0)

	if !r.Initialized() {
		t.Error("expected initialized")
	}
	if got := r.ReadCalendar(); got != want {
		t.Errorf("calendar: got %s, want %s", got, want)
	}
	if backup.Saves != 1 || !backup.Domain.Initialized {
		t.Errorf("expected one save of an initialized domain, got %d", backup.Saves)
	}

	clock.Advance(90 * time.Second)
	if got := r.ReadCurrentTime().String(); got != "02:00" {
		t.Errorf("after 90s: got %s, want 02:00", got)
	}
}

func TestInitializeCalendarCancelled(t *testing.T) {
	r, _, _ := openRTC(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.InitializeCalendar(ctx, &provision.MemSource{}, clockwork.NewFakeClock(), time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if r.Initialized() {
		t.Error("cancelled init must leave the calendar unset")
	}
}

func TestWrongKeyIgnoresWrites(t *testing.T) {
	r, _, backup := openRTC(t)

	s := r.Unlock()
	r.WriteProtect(0x00)
	s.SetTamperFlag(true)
	s.AddHour()
	if err := s.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if r.TamperFlag() {
		t.Error("write after bad key must be ignored")
	}
	if backup.Saves != 0 {
		t.Errorf("expected no save, got %d", backup.Saves)
	}
}

func TestKeysOutOfOrder(t *testing.T) {
	r, _, _ := openRTC(t)
	r.WriteProtect(UnlockKey2)
	r.WriteProtect(UnlockKey1)
	if r.writable() {
		t.Error("reversed keys must not unlock")
	}
	r.WriteProtect(UnlockKey2)
	r.dbp = true
	if !r.writable() {
		t.Error("0xCA then 0x53 must unlock")
	}
}

func TestClosedSessionIgnoresWrites(t *testing.T) {
	r, _, _ := openRTC(t)
	s := r.Unlock()
	if err := s.Lock(); err != nil {
		t.Fatal(err)
	}
	s.SetRepeatedHour(true)
	if r.RepeatedHour() {
		t.Error("write on locked session must be ignored")
	}
	if err := s.Lock(); err != nil {
		t.Errorf("second lock: %v", err)
	}
}

func TestSetCalendarRequiresInitMode(t *testing.T) {
	r, _, _ := openRTC(t)
	s := r.Unlock()
	if err := s.SetCalendar(logic.Calendar{Year: 24, Month: 1, Day: 1, Hour: 5}); err != nil {
		t.Fatal(err)
	}
	s.Lock()
	if r.Initialized() {
		t.Error("calendar write outside init mode must be ignored")
	}
}

func TestLockSavesOnlyOnChange(t *testing.T) {
	r, _, backup := openRTC(t)

	s := r.Unlock()
	s.SetTamperFlag(true)
	s.Lock()
	if backup.Saves != 1 {
		t.Fatalf("expected 1 save, got %d", backup.Saves)
	}

	s = r.Unlock()
	s.SetTamperFlag(true)
	s.Lock()
	if backup.Saves != 1 {
		t.Errorf("unchanged write must not save, got %d", backup.Saves)
	}
}

func TestLockSaveError(t *testing.T) {
	r, _, backup := openRTC(t)
	backup.SaveErr = errors.New("disk full")

	s := r.Unlock()
	s.SetRepeatedHour(true)
	if err := s.Lock(); err == nil {
		t.Error("expected save error")
	}
}

func TestCalibrationRegister(t *testing.T) {
	tests := []struct {
		calb int32
		calr uint32
	}{
		{0, 0},
		{-42, 42},
		{-511, 511},
		{1, CALP | 511},
		{100, CALP | 412},
		{512, CALP},
	}
	for _, tt := range tests {
		if got := calibrationRegister(tt.calb); got != tt.calr {
			t.Errorf("calibrationRegister(%d) = %#x, want %#x", tt.calb, got, tt.calr)
		}
		if got := netTicks(tt.calr); got != int(tt.calb) {
			t.Errorf("netTicks(%#x) = %d, want %d", tt.calr, got, tt.calb)
		}
	}
}

func TestCalibrationRate(t *testing.T) {
	tests := []struct {
		calb  int32
		drift time.Duration
	}{
		{512, 16 * time.Second},
		{-256, -8 * time.Second},
		{0, 0},
	}
	for _, tt := range tests {
		r, clock, _ := openRTC(t)
		start := logic.Calendar{Year: 24, Month: 1, Day: 1}
		loadCalendar(t, r, start, tt.calb)
		if r.Calibration() != int(tt.calb) {
			t.Errorf("Calibration() = %d, want %d", r.Calibration(), tt.calb)
		}

		// 2^15 s of host time is 2^30 ticks: net correction 2^10 windows.
		clock.Advance(32768 * time.Second)
		want := start.Time().Add(32768*time.Second + tt.drift)
		if got := r.ReadCalendar().Time(); !got.Equal(want) {
			t.Errorf("calb %d: got %v, want %v", tt.calb, got, want)
		}
	}
}

func TestHourAdjust(t *testing.T) {
	r, _, _ := openRTC(t)
	loadCalendar(t, r, logic.Calendar{Year: 24, Month: 3, Day: 10, Hour: 1, Minute: 59}, 0)

	s := r.Unlock()
	s.AddHour()
	s.Lock()
	if got := r.ReadCurrentTime().String(); got != "02:59" {
		t.Errorf("after ADD1H: got %s", got)
	}

	s = r.Unlock()
	s.SubHour()
	s.SubHour()
	s.Lock()
	if got := r.ReadCurrentTime().String(); got != "00:59" {
		t.Errorf("after two SUB1H: got %s", got)
	}
}

func TestArmMinuteAlarm(t *testing.T) {
	r, _, _ := openRTC(t)
	loadCalendar(t, r, logic.Calendar{Year: 24, Month: 6, Day: 1, Hour: 10, Minute: 30, Second: 15}, 0)

	if _, ok := r.NextAlarm(); ok {
		t.Error("alarm must be disabled before arming")
	}
	if err := r.ArmMinuteAlarm(); err != nil {
		t.Fatal(err)
	}

	a := r.Alarm()
	if !a.Enabled || !a.InterruptEnabled {
		t.Errorf("alarm not enabled: %+v", a)
	}
	if a.Mask != MaskDate|MaskHours|MaskMinutes || a.Second != 0 {
		t.Errorf("unexpected alarm config: %+v", a)
	}

	at, ok := r.NextAlarm()
	if !ok {
		t.Fatal("expected next alarm")
	}
	if want := hostEpoch.Add(45 * time.Second); !at.Equal(want) {
		t.Errorf("next alarm at %v, want %v", at, want)
	}
}

func TestNextAlarmOnBoundary(t *testing.T) {
	r, _, _ := openRTC(t)
	loadCalendar(t, r, logic.Calendar{Year: 24, Month: 6, Day: 1, Hour: 10, Minute: 31}, 0)
	r.ArmMinuteAlarm()

	at, _ := r.NextAlarm()
	if want := hostEpoch.Add(time.Minute); !at.Equal(want) {
		t.Errorf("at :00 the next match is a minute away: got %v, want %v", at, want)
	}
}

func TestWakeLandsOnTheMinute(t *testing.T) {
	for _, calib := range []int32{-511, -100, -7, -1, 0, 1, 100, 512} {
		t.Run(fmt.Sprint(calib), func(t *testing.T) {
			r, clock, _ := openRTC(t)
			loadCalendar(t, r, logic.Calendar{Year: 24, Month: 11, Day: 3, Hour: 1, Minute: 2, Second: 17}, calib)
			want := logic.SampleOf(1, 2)
			for i := 0; i < 300; i++ {
				if err := r.ArmMinuteAlarm(); err != nil {
					t.Fatal(err)
				}
				at, ok := r.NextAlarm()
				if !ok {
					t.Fatal("no alarm")
				}
				if !at.After(clock.Now()) {
					t.Fatalf("wake %d at %v is not after now %v", i, at, clock.Now())
				}
				clock.Advance(at.Sub(clock.Now()))

				next, ok := logic.NextMinute(want)
				if !ok {
					t.Fatal("no next minute")
				}
				want = next
				cal := r.ReadCalendar()
				if got := r.ReadCurrentTime(); got != want || cal.Second != 0 {
					t.Fatalf("wake %d: calendar %s, want %s:00", i, cal, want)
				}
				if over := r.now().Sub(cal.Time()); over > time.Microsecond {
					t.Fatalf("wake %d landed %v past the minute", i, over)
				}
			}
		})
	}
}

func TestRearmKeepsAlarm(t *testing.T) {
	r, _, backup := openRTC(t)
	loadCalendar(t, r, logic.Calendar{Year: 24, Month: 6, Day: 1}, 0)
	r.ArmMinuteAlarm()
	saves := backup.Saves

	r.ArmMinuteAlarm()
	// Disable and re-enable both change the register.
	if backup.Saves != saves+1 {
		t.Errorf("saves: got %d, want %d", backup.Saves, saves+1)
	}
	if !r.Alarm().Enabled {
		t.Error("alarm must stay armed")
	}
}

func TestMissedAlarm(t *testing.T) {
	r, clock, _ := openRTC(t)
	loadCalendar(t, r, logic.Calendar{Year: 24, Month: 6, Day: 1, Hour: 10, Minute: 30, Second: 5}, 0)
	if r.MissedAlarm() {
		t.Error("disarmed alarm cannot be missed")
	}
	r.ArmMinuteAlarm()

	tests := []struct {
		advance time.Duration
		want    bool
	}{
		{55 * time.Second, false}, // 10:31:00, the wake itself
		{59 * time.Second, false}, // 10:31:59
		{time.Second, true},       // 10:32:00, one wake went by
		{10 * time.Minute, true},
	}
	for _, tt := range tests {
		clock.Advance(tt.advance)
		if got := r.MissedAlarm(); got != tt.want {
			t.Errorf("at %s: missed %v, want %v", r.ReadCalendar(), got, tt.want)
		}
	}

	r.ArmMinuteAlarm()
	if r.MissedAlarm() {
		t.Error("re-arming must reset the check")
	}
}

func TestAlarmFlag(t *testing.T) {
	r, _, _ := openRTC(t)
	r.RaiseAlarm()
	if !r.AlarmPending() {
		t.Error("expected pending alarm")
	}
	r.ClearAlarmFlag()
	if r.AlarmPending() {
		t.Error("expected cleared alarm")
	}
}

func TestFileBackupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "rtc.json")
	b := FileBackup{Path: path}

	d, err := b.Load()
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if d.Initialized {
		t.Error("missing file must load as a fresh domain")
	}

	want := Domain{
		Initialized: true,
		Base:        time.Date(2024, 11, 3, 1, 59, 0, 0, time.UTC),
		Reference:   hostEpoch,
		CALR:        CALP | 412,
		BKP:         true,
		Alarm:       AlarmA{Enabled: true, InterruptEnabled: true, Mask: MaskDate | MaskHours | MaskMinutes},
		ArmedAt:     time.Date(2024, 11, 3, 1, 58, 0, 0, time.UTC),
	}
	if err := b.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := b.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Base.Equal(want.Base) || !got.Reference.Equal(want.Reference) || !got.ArmedAt.Equal(want.ArmedAt) {
		t.Errorf("times: got %v/%v/%v", got.Base, got.Reference, got.ArmedAt)
	}
	got.Base, got.Reference, got.ArmedAt = want.Base, want.Reference, want.ArmedAt
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtc.json")
	clock := clockwork.NewFakeClockAt(hostEpoch)

	r, err := Open(clock, FileBackup{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	loadCalendar(t, r, logic.Calendar{Year: 24, Month: 6, Day: 1, Hour: 9}, -100)
	s := r.Unlock()
	s.SetTamperFlag(true)
	s.Lock()

	clock.Advance(10 * time.Minute)
	r2, err := Open(clock, FileBackup{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Initialized() || !r2.TamperFlag() || r2.Calibration() != -100 {
		t.Errorf("state lost across reopen: %+v", r2.Domain())
	}
	if got := r2.ReadCurrentTime().String(); got != "09:09" {
		t.Errorf("got %s, want 09:09", got)
	}
}
