// Package provision carries the initial calendar from the provisioning tool
// to the first cold boot.
//
// The tool writes the date and time as tens/units digit pairs, a signed
// calibration value and finally a readiness flag. The clock spins until the
// flag is observed; nothing else needs to run meanwhile.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/relay-clock/internal/logic"
)

// Calibration limits: CALP adds 512 ticks, CALM subtracts up to 511.
const (
	MinCalibration = -511
	MaxCalibration = 512
)

// Fields is the provisioning record. Ready must be written last.
type Fields struct {
	Ready       uint8 `yaml:"ready_set"`
	Calibration int32 `yaml:"calb"`
	YearTens    uint8 `yaml:"yr_t"`
	YearUnits   uint8 `yaml:"yr_o"`
	MonthTens   uint8 `yaml:"mo_t"`
	MonthUnits  uint8 `yaml:"mo_o"`
	DayTens     uint8 `yaml:"dy_t"`
	DayUnits    uint8 `yaml:"dy_o"`
	HourTens    uint8 `yaml:"hr_t"`
	HourUnits   uint8 `yaml:"hr_o"`
	MinuteTens  uint8 `yaml:"mn_t"`
	MinuteUnits uint8 `yaml:"mn_o"`
	SecondTens  uint8 `yaml:"sc_t"`
	SecondUnits uint8 `yaml:"sc_o"`
}

// FromCalendar splits a calendar into digit pairs and marks the record ready.
func FromCalendar(c logic.Calendar, calibration int32) Fields {
	return Fields{
		Ready:       1,
		Calibration: calibration,
		YearTens:    uint8(c.Year / 10),
		YearUnits:   uint8(c.Year % 10),
		MonthTens:   uint8(c.Month / 10),
		MonthUnits:  uint8(c.Month % 10),
		DayTens:     uint8(c.Day / 10),
		DayUnits:    uint8(c.Day % 10),
		HourTens:    uint8(c.Hour / 10),
		HourUnits:   uint8(c.Hour % 10),
		MinuteTens:  uint8(c.Minute / 10),
		MinuteUnits: uint8(c.Minute % 10),
		SecondTens:  uint8(c.Second / 10),
		SecondUnits: uint8(c.Second % 10),
	}
}

// IsReady reports whether the readiness flag has been written.
func (f Fields) IsReady() bool {
	return f.Ready != 0
}

// Calendar joins the digit pairs and validates the result.
func (f Fields) Calendar() (logic.Calendar, error) {
	digits := []uint8{
		f.YearTens, f.YearUnits, f.MonthTens, f.MonthUnits, f.DayTens, f.DayUnits,
		f.HourTens, f.HourUnits, f.MinuteTens, f.MinuteUnits, f.SecondTens, f.SecondUnits,
	}
	for _, d := range digits {
		if d > 9 {
			return logic.Calendar{}, fmt.Errorf("digit %d is not decimal", d)
		}
	}
	c := logic.Calendar{
		Year:   int(f.YearTens)*10 + int(f.YearUnits),
		Month:  int(f.MonthTens)*10 + int(f.MonthUnits),
		Day:    int(f.DayTens)*10 + int(f.DayUnits),
		Hour:   int(f.HourTens)*10 + int(f.HourUnits),
		Minute: int(f.MinuteTens)*10 + int(f.MinuteUnits),
		Second: int(f.SecondTens)*10 + int(f.SecondUnits),
	}
	if err := c.Validate(); err != nil {
		return logic.Calendar{}, fmt.Errorf("invalid calendar: %w", err)
	}
	return c, nil
}

// Validate checks the calendar digits and the calibration range.
func (f Fields) Validate() error {
	if _, err := f.Calendar(); err != nil {
		return err
	}
	if f.Calibration < MinCalibration || f.Calibration > MaxCalibration {
		return fmt.Errorf("calibration %d out of range [%d, %d]", f.Calibration, MinCalibration, MaxCalibration)
	}
	return nil
}

// Source reads the current provisioning record.
type Source interface {
	Read() (Fields, error)
}

// FileSource reads the record from a YAML file. A missing file reads as
// "not ready".
type FileSource struct {
	Path string
}

// Read loads the record.
func (s FileSource) Read() (Fields, error) {
	var f Fields
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read provisioning file %s: %w", s.Path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse provisioning file %s: %w", s.Path, err)
	}
	return f, nil
}

// Consumer is a Source whose record can be discarded once loaded, so a
// later power-on waits for fresh fields instead of reusing stale ones.
type Consumer interface {
	Consume() error
}

// Consume removes the file. An already missing file is not an error.
func (s FileSource) Consume() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove provisioning file %s: %w", s.Path, err)
	}
	return nil
}

// Write stores the record atomically so a reader never sees the readiness
// flag before the fields.
func Write(path string, f Fields) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validate provisioning fields: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode provisioning fields: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create provisioning dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write provisioning file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename provisioning file: %w", err)
	}
	return nil
}

// MemSource is an in-memory Source for tests.
type MemSource struct {
	Fields Fields
	Err    error
	Reads  int
}

// Read returns the stored record.
func (m *MemSource) Read() (Fields, error) {
	m.Reads++
	return m.Fields, m.Err
}

// WaitReady spins until a valid record with the readiness flag set is
// observed and returns it. A ready but invalid record is logged and, when
// src is a Consumer, discarded; the wait then goes on for a corrected one.
// There is no timeout: the provisioning tool is expected to write the
// fields eventually, and nothing else runs meanwhile. Only cancellation of
// ctx (process shutdown) ends the wait early.
func WaitReady(ctx context.Context, src Source, clock clockwork.Clock, poll time.Duration) (Fields, error) {
	logged := false
	var rejected Fields
	for {
		f, err := src.Read()
		switch {
		case err != nil:
			log.Printf("provision: %v", err)
		case f.IsReady():
			verr := f.Validate()
			if verr == nil {
				return f, nil
			}
			if f != rejected {
				log.Printf("provision: rejecting record: %v", verr)
				rejected = f
			}
			if c, ok := src.(Consumer); ok {
				if err := c.Consume(); err != nil {
					log.Printf("provision: %v", err)
				}
			}
		case !logged:
			log.Printf("provision: waiting for provisioning fields")
			logged = true
		}

		select {
		case <-ctx.Done():
			return Fields{}, fmt.Errorf("waiting for provisioning: %w", ctx.Err())
		case <-clock.After(poll):
		}
	}
}
