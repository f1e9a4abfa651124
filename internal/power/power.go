// Package power manages the standby state of the clock: the flag that tells a
// wake from standby apart from a power-on, entering standby at the end of a
// cycle and waiting for the RTC alarm that ends it.
package power

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/rtc"
)

// ErrNoAlarm is returned by WaitForWake when no wake source is armed.
var ErrNoAlarm = errors.New("power: no wake alarm armed")

// StandbyFlag is the wake-from-standby marker. It must not survive loss of
// main power.
type StandbyFlag interface {
	IsSet() (bool, error)
	Set() error
	Clear() error
}

// FileStandbyFlag keeps the flag as a marker file. Place it on a tmpfs such
// as /run so a power cycle clears it.
type FileStandbyFlag struct {
	Path string
}

// IsSet reports whether the marker exists.
func (f FileStandbyFlag) IsSet() (bool, error) {
	_, err := os.Stat(f.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat standby flag: %w", err)
}

// Set creates the marker.
func (f FileStandbyFlag) Set() error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create standby dir: %w", err)
	}
	if err := os.WriteFile(f.Path, nil, 0o644); err != nil {
		return fmt.Errorf("set standby flag: %w", err)
	}
	return nil
}

// Clear removes the marker.
func (f FileStandbyFlag) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear standby flag: %w", err)
	}
	return nil
}

// MemStandbyFlag is an in-memory StandbyFlag for tests.
type MemStandbyFlag struct {
	Value bool
	Err   error
}

func (m *MemStandbyFlag) IsSet() (bool, error) { return m.Value, m.Err }

func (m *MemStandbyFlag) Set() error {
	if m.Err != nil {
		return m.Err
	}
	m.Value = true
	return nil
}

func (m *MemStandbyFlag) Clear() error {
	if m.Err != nil {
		return m.Err
	}
	m.Value = false
	return nil
}

// Manager ties the standby flag to the RTC wake alarm.
type Manager struct {
	flag  StandbyFlag
	rtc   *rtc.RTC
	clock clockwork.Clock
}

// NewManager creates a Manager.
func NewManager(flag StandbyFlag, r *rtc.RTC, clock clockwork.Clock) *Manager {
	return &Manager{flag: flag, rtc: r, clock: clock}
}

// WokeFromStandby reads and clears the standby flag. An unreadable flag is
// treated as a power-on, which costs a reprovisioning wait but never shows a
// wrong time.
func (m *Manager) WokeFromStandby() (bool, error) {
	set, err := m.flag.IsSet()
	if err != nil {
		return false, err
	}
	if !set {
		return false, nil
	}
	if err := m.flag.Clear(); err != nil {
		return true, err
	}
	return true, nil
}

// EnterDeepestSleep marks the standby flag. The caller then waits for the
// wake alarm or exits and leaves the wake to an external timer.
func (m *Manager) EnterDeepestSleep() error {
	return m.flag.Set()
}

// WaitForWake blocks until the RTC alarm fires, then runs the alarm
// interrupt handler.
func (m *Manager) WaitForWake(ctx context.Context) error {
	at, ok := m.rtc.NextAlarm()
	if !ok {
		return ErrNoAlarm
	}
	d := at.Sub(m.clock.Now())
	if d < 0 {
		d = 0
	}
	log.Printf("power: standby for %v", d.Round(time.Millisecond))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
	}
	m.rtc.RaiseAlarm()
	m.handleAlarm()
	return nil
}

// handleAlarm is the wake interrupt: acknowledge the alarm and nothing else.
func (m *Manager) handleAlarm() {
	m.rtc.ClearAlarmFlag()
}
