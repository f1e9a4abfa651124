package rtc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/provision"
)

// Calibration register layout.
const (
	CALP uint32 = 1 << 15
	CALM uint32 = 0x1FF
)

// calibrationRegister encodes a net correction c in ticks per 2^20.
func calibrationRegister(c int32) uint32 {
	if c > 0 {
		return CALP | (uint32(512-c) & CALM)
	}
	return uint32(-c) & CALM
}

func netTicks(calr uint32) int {
	n := -int(calr & CALM)
	if calr&CALP != 0 {
		n += 512
	}
	return n
}

// NextAlarm returns the host instant at which alarm A next matches, or false
// when the alarm or its interrupt is disabled.
func (r *RTC) NextAlarm() (time.Time, bool) {
	a := r.dom.Alarm
	if !a.Enabled || !a.InterruptEnabled {
		return time.Time{}, false
	}

	now := r.now()
	cand, ok := nextMatch(a, now)
	if !ok {
		return time.Time{}, false
	}

	// Convert the calendar delta back to host time, rounding up, then walk
	// forward until the calendar has reached the match.
	delta := cand.Sub(now)
	at := r.hostNow().Add(time.Duration(math.Ceil(float64(delta) / (1 + r.rate()))))
	for i := 0; i < 64; i++ {
		short := cand.Sub(r.calendarAt(at))
		if short <= 0 {
			break
		}
		at = at.Add(short)
	}
	return at, true
}

// MissedAlarm reports whether alarm A has matched more than once since it
// was armed: at least one wake went by with nothing running.
func (r *RTC) MissedAlarm() bool {
	a := r.dom.Alarm
	if !a.Enabled || r.dom.ArmedAt.IsZero() {
		return false
	}
	first, ok := nextMatch(a, r.dom.ArmedAt)
	if !ok {
		return false
	}
	second, ok := nextMatch(a, first)
	return ok && !r.now().Before(second)
}

// nextMatch returns the first calendar second after from that matches a.
func nextMatch(a AlarmA, from time.Time) (time.Time, bool) {
	cand := from.Truncate(time.Second).Add(time.Second)
	// Every unmasked field combination recurs within a month plus a day.
	limit := cand.AddDate(0, 1, 1)
	for ; cand.Before(limit); cand = cand.Add(time.Second) {
		if alarmMatches(a, cand) {
			return cand, true
		}
	}
	return time.Time{}, false
}

func alarmMatches(a AlarmA, t time.Time) bool {
	if a.Mask&MaskSeconds == 0 && t.Second() != a.Second {
		return false
	}
	if a.Mask&MaskMinutes == 0 && t.Minute() != a.Minute {
		return false
	}
	if a.Mask&MaskHours == 0 && t.Hour() != a.Hour {
		return false
	}
	if a.Mask&MaskDate == 0 && t.Day() != a.Day {
		return false
	}
	return true
}

// RaiseAlarm sets the alarm A pending flag (ISR.ALRAF).
func (r *RTC) RaiseAlarm() {
	r.alarmFlag = true
}

// AlarmPending reports whether alarm A has fired and not been cleared.
func (r *RTC) AlarmPending() bool {
	return r.alarmFlag
}

// ClearAlarmFlag acknowledges alarm A. It is the whole job of the wake
// interrupt handler.
func (r *RTC) ClearAlarmFlag() {
	r.alarmFlag = false
}

// ArmMinuteAlarm programs alarm A to fire whenever seconds read zero, and
// enables its interrupt.
func (r *RTC) ArmMinuteAlarm() error {
	s := r.Unlock()
	s.DisableAlarm()
	s.ConfigureAlarm(AlarmA{
		InterruptEnabled: r.dom.Alarm.InterruptEnabled,
		Mask:             MaskDate | MaskHours | MaskMinutes,
		Second:           0,
	})
	s.EnableAlarm()
	if err := s.Lock(); err != nil {
		return fmt.Errorf("arm minute alarm: %w", err)
	}
	return nil
}

// InitializeCalendar waits for the provisioning record and loads it: the
// calendar inside an initialization bracket, then the calibration.
func (r *RTC) InitializeCalendar(ctx context.Context, src provision.Source, clock clockwork.Clock, poll time.Duration) error {
	f, err := provision.WaitReady(ctx, src, clock, poll)
	if err != nil {
		return err
	}
	// WaitReady only returns validated records.
	cal, err := f.Calendar()
	if err != nil {
		return fmt.Errorf("provisioned calendar: %w", err)
	}

	s := r.Unlock()
	s.EnterInit()
	if err := s.SetCalendar(cal); err != nil {
		return errors.Join(err, s.Lock())
	}
	s.ExitInit()
	s.SetCalibration(f.Calibration)
	if err := s.Lock(); err != nil {
		return fmt.Errorf("initialize calendar: %w", err)
	}
	if c, ok := src.(provision.Consumer); ok {
		if err := c.Consume(); err != nil {
			log.Printf("rtc: %v", err)
		}
	}
	return nil
}
