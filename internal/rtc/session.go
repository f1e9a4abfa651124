package rtc

import (
	"fmt"
	"time"

	"github.com/sweeney/relay-clock/internal/logic"
)

// Write-protection keys. The order is a contract with the peripheral: a
// wrong key re-arms protection and later writes are silently dropped.
const (
	UnlockKey1 byte = 0xCA
	UnlockKey2 byte = 0x53
	LockKey1   byte = 0xFE
	LockKey2   byte = 0x64
)

// WriteProtect writes one key to the write-protection register.
func (r *RTC) WriteProtect(key byte) {
	switch {
	case key == UnlockKey1:
		r.wpr = wprFirstKey
	case key == UnlockKey2 && r.wpr == wprFirstKey:
		r.wpr = wprUnlocked
	default:
		r.wpr = wprLocked
	}
}

func (r *RTC) writable() bool {
	return r.dbp && r.wpr == wprUnlocked
}

// Session is an unlocked configuration bracket. Every register write goes
// through a Session; Lock ends it. Writes on an ended session, or on a
// peripheral that did not accept the keys, are ignored like the hardware
// ignores them.
type Session struct {
	r      *RTC
	closed bool
}

// Unlock enables backup-domain access and writes the unlock keys.
func (r *RTC) Unlock() *Session {
	r.dbp = true
	r.WriteProtect(UnlockKey1)
	r.WriteProtect(UnlockKey2)
	return &Session{r: r}
}

func (s *Session) ok() bool {
	return !s.closed && s.r.writable()
}

func (s *Session) mark() {
	s.r.dirty = true
}

// Lock writes the lock keys, drops backup-domain access and persists any
// change. Locking twice is a no-op.
func (s *Session) Lock() error {
	if s.closed {
		return nil
	}
	s.closed = true
	r := s.r
	r.WriteProtect(LockKey1)
	r.WriteProtect(LockKey2)
	r.dbp = false

	if !r.dirty {
		return nil
	}
	if err := r.backup.Save(r.dom); err != nil {
		return fmt.Errorf("save backup domain: %w", err)
	}
	r.dirty = false
	return nil
}

// EnterInit stops the calendar for loading (ISR.INIT).
func (s *Session) EnterInit() {
	if !s.ok() {
		return
	}
	s.r.initMode = true
}

// ExitInit restarts the calendar.
func (s *Session) ExitInit() {
	if !s.ok() {
		return
	}
	s.r.initMode = false
}

// SetCalendar loads the date and time registers. Only effective in
// initialization mode.
func (s *Session) SetCalendar(c logic.Calendar) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("set calendar: %w", err)
	}
	if !s.ok() || !s.r.initMode {
		return nil
	}
	s.r.dom.Base = c.Time()
	s.r.dom.Reference = s.r.hostNow()
	s.r.dom.Initialized = true
	s.mark()
	return nil
}

// SetCalibration selects the correction mode by sign: a positive value
// uses CALP (add 512) with CALM = 512-c, otherwise CALM = -c.
func (s *Session) SetCalibration(c int32) {
	if !s.ok() {
		return
	}
	reg := calibrationRegister(c)
	if reg == s.r.dom.CALR {
		return
	}
	s.r.rebase()
	s.r.dom.CALR = reg
	s.mark()
}

// AddHour adds one hour to the calendar (CR.ADD1H).
func (s *Session) AddHour() {
	if !s.ok() {
		return
	}
	s.r.dom.Base = s.r.dom.Base.Add(time.Hour)
	s.mark()
}

// SubHour subtracts one hour from the calendar (CR.SUB1H).
func (s *Session) SubHour() {
	if !s.ok() {
		return
	}
	s.r.dom.Base = s.r.dom.Base.Add(-time.Hour)
	s.mark()
}

// SetRepeatedHour writes the BKP bit.
func (s *Session) SetRepeatedHour(v bool) {
	if !s.ok() || s.r.dom.BKP == v {
		return
	}
	s.r.dom.BKP = v
	s.mark()
}

// MarkDSTDone records that the DST correction of c's date has completed.
func (s *Session) MarkDSTDone(c logic.Calendar) {
	d := dateOf(c)
	if !s.ok() || s.r.dom.DSTDone.Equal(d) {
		return
	}
	s.r.dom.DSTDone = d
	s.mark()
}

// SetTamperFlag writes the TAMPTS bit.
func (s *Session) SetTamperFlag(v bool) {
	if !s.ok() || s.r.dom.TAMPTS == v {
		return
	}
	s.r.dom.TAMPTS = v
	s.mark()
}

// DisableAlarm clears ALRAE so alarm A may be reconfigured.
func (s *Session) DisableAlarm() {
	if !s.ok() || !s.r.dom.Alarm.Enabled {
		return
	}
	s.r.dom.Alarm.Enabled = false
	s.mark()
}

// ConfigureAlarm writes the alarm A match fields. The alarm must be disabled.
func (s *Session) ConfigureAlarm(a AlarmA) {
	if !s.ok() || s.r.dom.Alarm.Enabled {
		return
	}
	a.Enabled = false
	if a == s.r.dom.Alarm {
		return
	}
	s.r.dom.Alarm = a
	s.mark()
}

// EnableAlarm sets ALRAE and ALRAIE and stamps the arming instant.
func (s *Session) EnableAlarm() {
	if !s.ok() {
		return
	}
	a := s.r.dom.Alarm
	if a.Enabled && a.InterruptEnabled {
		return
	}
	s.r.dom.Alarm.Enabled = true
	s.r.dom.Alarm.InterruptEnabled = true
	s.r.dom.ArmedAt = s.r.now()
	s.mark()
}
