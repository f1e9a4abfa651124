// Package flags holds the persistent one-bit flags that must survive standby
// and loss of main power. They live in spare bits of the RTC backup domain.
package flags

import (
	"errors"
	"fmt"

	"github.com/sweeney/relay-clock/internal/rtc"
)

// Flag names a persistent bit.
type Flag int

const (
	// ForceFullRelatch: the displayed segments cannot be trusted and the
	// next render must drive all of them.
	ForceFullRelatch Flag = iota
	// RepeatedHour: the clock is inside the repeated hour of a fall-back.
	RepeatedHour
)

func (f Flag) String() string {
	switch f {
	case ForceFullRelatch:
		return "FORCE_FULL_RELATCH"
	case RepeatedHour:
		return "REPEATED_HOUR"
	}
	return fmt.Sprintf("Flag(%d)", int(f))
}

// Store reads and writes flags through the RTC's write-protected registers.
type Store struct {
	rtc *rtc.RTC
}

// New returns a Store over r.
func New(r *rtc.RTC) *Store {
	return &Store{rtc: r}
}

// IsSet reads the flag. No side effects.
func (s *Store) IsSet(f Flag) bool {
	switch f {
	case ForceFullRelatch:
		return s.rtc.TamperFlag()
	case RepeatedHour:
		return s.rtc.RepeatedHour()
	}
	return false
}

// Set sets the flag. Setting a set flag does nothing.
func (s *Store) Set(f Flag) error {
	if s.IsSet(f) {
		return nil
	}
	return s.write(f, true)
}

// Clear clears the flag.
func (s *Store) Clear(f Flag) error {
	if !s.IsSet(f) {
		return nil
	}
	return s.write(f, false)
}

// Consume reports whether the flag was set and clears it.
func (s *Store) Consume(f Flag) (bool, error) {
	if !s.IsSet(f) {
		return false, nil
	}
	if err := s.write(f, false); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) write(f Flag, v bool) error {
	sess := s.rtc.Unlock()
	switch f {
	case ForceFullRelatch:
		sess.SetTamperFlag(v)
	case RepeatedHour:
		sess.SetRepeatedHour(v)
	default:
		return errors.Join(fmt.Errorf("unknown flag %v", f), sess.Lock())
	}
	if err := sess.Lock(); err != nil {
		return fmt.Errorf("write %v: %w", f, err)
	}
	return nil
}
