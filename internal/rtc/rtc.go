// Package rtc models the real-time clock peripheral: a calendar kept in the
// battery-backed domain, a smooth-calibration register, alarm A and the
// write-protection keys that guard every configuration write.
//
// Host time comes from an injected clockwork.Clock; the calendar is derived
// from it through the calibration rate, and the register state is persisted
// through a Backup when a configuration session is locked.
package rtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/logic"
)

// ErrNotInitialized is returned by ReadCalendarChecked before the first
// cold boot has loaded a calendar.
var ErrNotInitialized = errors.New("rtc: calendar not initialized")

// resetCalendar is the calendar value of a never-initialized RTC.
var resetCalendar = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type wprState int

const (
	wprLocked wprState = iota
	wprFirstKey
	wprUnlocked
)

// RTC is the time-keeping peripheral. It is owned by a single goroutine.
type RTC struct {
	clock  clockwork.Clock
	backup Backup

	dom   Domain
	dirty bool

	wpr      wprState
	dbp      bool // backup-domain write access (PWR_CR.DBP)
	initMode bool

	alarmFlag bool
}

// Open loads the backup domain.
func Open(clock clockwork.Clock, backup Backup) (*RTC, error) {
	dom, err := backup.Load()
	if err != nil {
		return nil, fmt.Errorf("load backup domain: %w", err)
	}
	r := &RTC{clock: clock, backup: backup, dom: dom}
	if dom.Base.IsZero() {
		r.dom.Base = resetCalendar
		r.dom.Reference = r.hostNow()
	}
	return r, nil
}

func (r *RTC) hostNow() time.Time {
	return r.clock.Now().UTC().Round(0)
}

// rate returns the calibration correction as a fraction: CALP adds 512
// ticks and CALM subtracts CALM ticks per 2^20 ticks (32 s at 32768 Hz).
func (r *RTC) rate() float64 {
	return float64(netTicks(r.dom.CALR)) / float64(1<<20)
}

func (r *RTC) now() time.Time {
	return r.calendarAt(r.hostNow())
}

// calendarAt returns the calendar value the RTC shows at host instant h.
func (r *RTC) calendarAt(h time.Time) time.Time {
	elapsed := h.Sub(r.dom.Reference)
	corrected := elapsed + time.Duration(float64(elapsed)*r.rate())
	return r.dom.Base.Add(corrected)
}

// rebase folds elapsed time into Base so later changes to the rate or the
// calendar do not apply retroactively.
func (r *RTC) rebase() {
	r.dom.Base = r.now()
	r.dom.Reference = r.hostNow()
}

// Initialized reports whether a calendar was ever loaded.
func (r *RTC) Initialized() bool {
	return r.dom.Initialized
}

// ReadCalendar returns the current calendar. No side effects.
func (r *RTC) ReadCalendar() logic.Calendar {
	return logic.CalendarOf(r.now())
}

// ReadCalendarChecked is ReadCalendar for callers that must not act on
// the reset value.
func (r *RTC) ReadCalendarChecked() (logic.Calendar, error) {
	if !r.dom.Initialized {
		return logic.Calendar{}, ErrNotInitialized
	}
	return r.ReadCalendar(), nil
}

// ReadCurrentTime returns the displayed-time sample. No side effects.
func (r *RTC) ReadCurrentTime() logic.Sample {
	return r.ReadCalendar().Sample()
}

// RepeatedHour returns the BKP bit.
func (r *RTC) RepeatedHour() bool {
	return r.dom.BKP
}

// DSTDone reports whether the DST correction of c's date has completed.
func (r *RTC) DSTDone(c logic.Calendar) bool {
	return r.dom.DSTDone.Equal(dateOf(c))
}

func dateOf(c logic.Calendar) time.Time {
	return time.Date(2000+c.Year, time.Month(c.Month), c.Day, 0, 0, 0, 0, time.UTC)
}

// TamperFlag returns the TAMPTS bit.
func (r *RTC) TamperFlag() bool {
	return r.dom.TAMPTS
}

// CALR returns the raw calibration register.
func (r *RTC) CALR() uint32 {
	return r.dom.CALR
}

// Calibration returns the net correction in ticks per 32 s window.
func (r *RTC) Calibration() int {
	return netTicks(r.dom.CALR)
}

// Alarm returns the alarm A configuration.
func (r *RTC) Alarm() AlarmA {
	return r.dom.Alarm
}

// Domain returns a copy of the register state.
func (r *RTC) Domain() Domain {
	return r.dom
}
