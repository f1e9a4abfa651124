package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Alarm mask bits: a set bit excludes that field from the comparison.
const (
	MaskSeconds uint8 = 1 << iota
	MaskMinutes
	MaskHours
	MaskDate
)

// AlarmA is the alarm A configuration.
type AlarmA struct {
	Enabled          bool  `json:"enabled"`
	InterruptEnabled bool  `json:"interrupt_enabled"`
	Mask             uint8 `json:"mask"`
	Day              int   `json:"day"`
	Hour             int   `json:"hour"`
	Minute           int   `json:"minute"`
	Second           int   `json:"second"`
}

// Domain is the battery-backed register state. It survives standby and
// loss of main power; it is the only durable state of the clock.
type Domain struct {
	Initialized bool `json:"initialized"`
	// Base is the calendar value (as UTC wall clock) at host instant Reference.
	Base      time.Time `json:"base"`
	Reference time.Time `json:"reference"`
	// CALR holds the CALP bit and the 9-bit CALM field.
	CALR uint32 `json:"calr"`
	// BKP marks the repeated DST hour.
	BKP bool `json:"bkp"`
	// TAMPTS is unused for tamper detection and serves as the relatch flag.
	TAMPTS bool   `json:"tampts"`
	Alarm  AlarmA `json:"alarm"`
	// ArmedAt is the calendar value when alarm A was last enabled.
	ArmedAt time.Time `json:"armed_at"`
	// DSTDone is the calendar date whose DST correction has completed.
	DSTDone time.Time `json:"dst_done"`
}

// Backup persists the domain.
type Backup interface {
	Load() (Domain, error)
	Save(Domain) error
}

// FileBackup stores the domain as JSON. A missing file is a fresh domain.
type FileBackup struct {
	Path string
}

// Load reads the domain.
func (b FileBackup) Load() (Domain, error) {
	var d Domain
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("read state file %s: %w", b.Path, err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse state file %s: %w", b.Path, err)
	}
	return d, nil
}

// Save writes the domain via a temporary file and rename, so a power cut
// leaves either the old or the new state.
func (b FileBackup) Save(d Domain) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.Path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.Path), ".rtc-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.Path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// MemBackup keeps the domain in memory, for tests and simulation.
type MemBackup struct {
	Domain  Domain
	Saves   int
	SaveErr error
}

// Load returns the stored domain.
func (m *MemBackup) Load() (Domain, error) {
	return m.Domain, nil
}

// Save stores the domain.
func (m *MemBackup) Save(d Domain) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Domain = d
	m.Saves++
	return nil
}
