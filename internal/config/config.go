// Package config loads the relay-clock YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/relay-clock/internal/cycle"
	"github.com/sweeney/relay-clock/internal/gpio"
	"github.com/sweeney/relay-clock/internal/logic"
	"github.com/sweeney/relay-clock/internal/mqtt"
	"github.com/sweeney/relay-clock/internal/relay"
)

// Config is the daemon configuration.
type Config struct {
	GPIO   GPIOConfig   `yaml:"gpio"`
	Timing TimingConfig `yaml:"timing"`
	Paths  PathsConfig  `yaml:"paths"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	HTTP   HTTPConfig   `yaml:"http"`
	Log    LogConfig    `yaml:"log"`
	// DST entries are appended to the built-in table.
	DST []DSTEntry `yaml:"dst"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.GPIO.Validate(); err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	for i := range c.DST {
		if err := c.DST[i].Validate(); err != nil {
			return fmt.Errorf("dst[%d]: %w", i, err)
		}
	}
	return nil
}

// GPIOConfig maps the board onto one GPIO chip. Segments is indexed
// [position][segment A..G]; leave it empty for the reference wiring.
type GPIOConfig struct {
	Chip       string  `yaml:"chip"`
	Segments   [][]int `yaml:"segments"`
	Coil       int     `yaml:"coil"`
	Plug       int     `yaml:"plug"`
	Buttons    []int   `yaml:"buttons"`
	PlugPullUp bool    `yaml:"plug_pull_up"`
}

// Validate validates the GPIO configuration.
func (c *GPIOConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Chip, validation.Required),
		validation.Field(&c.Segments, validation.When(len(c.Segments) > 0, validation.Length(logic.Positions, logic.Positions))),
		validation.Field(&c.Coil, validation.Min(0)),
		validation.Field(&c.Plug, validation.Min(0)),
		validation.Field(&c.Buttons, validation.Required, validation.Length(gpio.ButtonCount, gpio.ButtonCount)),
	); err != nil {
		return err
	}
	for pos, segs := range c.Segments {
		if len(segs) != logic.SegmentCount {
			return fmt.Errorf("segments[%d]: want %d offsets, got %d", pos, logic.SegmentCount, len(segs))
		}
	}

	seen := make(map[int]bool)
	for _, line := range c.Pinout().Lines() {
		if line < 0 {
			return fmt.Errorf("negative line offset %d", line)
		}
		if seen[line] {
			return fmt.Errorf("line %d assigned twice", line)
		}
		seen[line] = true
	}
	return nil
}

// Pinout converts the configuration to a gpio.Pinout.
func (c GPIOConfig) Pinout() gpio.Pinout {
	p := gpio.DefaultPinout()
	p.Chip = c.Chip
	p.Coil = c.Coil
	p.Plug = c.Plug
	p.PlugPullUp = c.PlugPullUp
	copy(p.Buttons[:], c.Buttons)
	for pos, segs := range c.Segments {
		if pos >= logic.Positions {
			break
		}
		copy(p.Segments[pos][:], segs)
	}
	return p
}

// TimingConfig holds relay pulse timing and poll counts.
type TimingConfig struct {
	SettleMs        int `yaml:"settle_ms"`
	PulseMs         int `yaml:"pulse_ms"`
	GapMs           int `yaml:"gap_ms"`
	PlugPolls       int `yaml:"plug_polls"`
	HaltPolls       int `yaml:"halt_polls"`
	ProvisionPollMs int `yaml:"provision_poll_ms"`
}

// Validate validates the timing configuration.
func (c *TimingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SettleMs, validation.Min(0), validation.Max(100)),
		validation.Field(&c.PulseMs, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.GapMs, validation.Min(0), validation.Max(1000)),
		validation.Field(&c.PlugPolls, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.HaltPolls, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.ProvisionPollMs, validation.Required, validation.Min(10)),
	)
}

// Relay returns the relay pulse timing.
func (c TimingConfig) Relay() relay.Timing {
	return relay.Timing{
		Settle: time.Duration(c.SettleMs) * time.Millisecond,
		Pulse:  time.Duration(c.PulseMs) * time.Millisecond,
		Gap:    time.Duration(c.GapMs) * time.Millisecond,
	}
}

// PathsConfig locates durable and volatile state.
type PathsConfig struct {
	// StateFile holds the battery-backed RTC domain.
	StateFile string `yaml:"state_file"`
	// StandbyFile marks standby entry. It must live on a filesystem that a
	// power cycle clears.
	StandbyFile   string `yaml:"standby_file"`
	ProvisionFile string `yaml:"provision_file"`
	// Journal is the SQLite cycle history; empty disables it.
	Journal string `yaml:"journal"`
}

// Validate validates the paths configuration.
func (c *PathsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.StateFile, validation.Required),
		validation.Field(&c.StandbyFile, validation.Required),
		validation.Field(&c.ProvisionFile, validation.Required),
	); err != nil {
		return err
	}
	if c.StateFile == c.StandbyFile {
		return errors.New("state_file and standby_file must differ")
	}
	return nil
}

// MQTTConfig configures publishing. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// Validate validates the MQTT configuration.
func (c *MQTTConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClientID, validation.When(c.Broker != "", validation.Required)),
		validation.Field(&c.BufferSize, validation.Min(1)),
	)
}

// Options returns the publisher options.
func (c MQTTConfig) Options() mqtt.Options {
	return mqtt.Options{Broker: c.Broker, ClientID: c.ClientID, BufferSize: c.BufferSize}
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures log output. An empty file logs to stderr.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.When(c.File != "", validation.Required, validation.Min(1))),
		validation.Field(&c.MaxBackups, validation.Min(0)),
	)
}

// DSTEntry is one extra transition date. Year is two-digit.
type DSTEntry struct {
	Year      int    `yaml:"year"`
	Month     int    `yaml:"month"`
	Day       int    `yaml:"day"`
	Direction string `yaml:"direction"`
}

// Validate validates a DST entry.
func (e *DSTEntry) Validate() error {
	if err := validation.ValidateStruct(e,
		validation.Field(&e.Year, validation.Min(0), validation.Max(99)),
		validation.Field(&e.Month, validation.Required, validation.Min(1), validation.Max(12)),
		validation.Field(&e.Day, validation.Required, validation.Min(1), validation.Max(31)),
		validation.Field(&e.Direction, validation.Required, validation.In(string(logic.Forward), string(logic.Backward))),
	); err != nil {
		return err
	}
	cal := logic.Calendar{Year: e.Year, Month: e.Month, Day: e.Day, Hour: logic.TransitionHour, Minute: logic.TransitionMinute}
	if err := cal.Validate(); err != nil {
		return err
	}
	return nil
}

// DSTTable returns the built-in table followed by the configured entries.
func (c *Config) DSTTable() []logic.DSTEntry {
	table := make([]logic.DSTEntry, 0, len(logic.DefaultDSTTable)+len(c.DST))
	table = append(table, logic.DefaultDSTTable...)
	for _, e := range c.DST {
		table = append(table, logic.DSTEntry{
			Year:      e.Year,
			Month:     e.Month,
			Day:       e.Day,
			Direction: logic.Direction(e.Direction),
		})
	}
	return table
}

// Sequencer returns the sequencer settings.
func (c *Config) Sequencer() cycle.Config {
	return cycle.Config{
		DST:           c.DSTTable(),
		PlugPolls:     c.Timing.PlugPolls,
		HaltPolls:     c.Timing.HaltPolls,
		ProvisionPoll: time.Duration(c.Timing.ProvisionPollMs) * time.Millisecond,
	}
}

// Default returns the configuration for the reference board.
func Default() *Config {
	p := gpio.DefaultPinout()
	return &Config{
		GPIO: GPIOConfig{
			Chip:    p.Chip,
			Coil:    p.Coil,
			Plug:    p.Plug,
			Buttons: p.Buttons[:],
		},
		Timing: TimingConfig{
			SettleMs:        int(relay.DefaultTiming.Settle / time.Millisecond),
			PulseMs:         int(relay.DefaultTiming.Pulse / time.Millisecond),
			GapMs:           int(relay.DefaultTiming.Gap / time.Millisecond),
			PlugPolls:       logic.DefaultPlugPolls,
			HaltPolls:       cycle.DefaultHaltPolls,
			ProvisionPollMs: int(cycle.DefaultProvisionPoll / time.Millisecond),
		},
		Paths: PathsConfig{
			StateFile:     "/var/lib/relay-clock/rtc.json",
			StandbyFile:   "/run/relay-clock/standby",
			ProvisionFile: "/var/lib/relay-clock/provision.yaml",
			Journal:       "/var/lib/relay-clock/cycles.db",
		},
		MQTT: MQTTConfig{
			ClientID:   "relay-clock",
			BufferSize: mqtt.DefaultBufferSize,
		},
		HTTP: HTTPConfig{Addr: ":80"},
		Log:  LogConfig{MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Load reads filename over the defaults, expanding ${VAR} references
// first. An empty filename returns the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", filename, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
