// Package status provides a thread-safe status tracker for the relay-clock daemon.
// It is written by the cycle loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/relay-clock/internal/cycle"
	"github.com/sweeney/relay-clock/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	StateFile string
	Broker    string
	HTTPAddr  string
	PlugPolls int
	PulseMs   int64
	DSTUntil  int // last two-digit year in the DST table
}

// Counts accumulates cycle outcomes since the daemon started.
type Counts struct {
	Cycles        int
	ColdBoots     int
	WarmWakes     int
	Unplugged     int
	FullRelatches int
	Pulses        int
	DST           int
	RenderErrors  int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Last          *cycle.Report
	NextWake      time.Time
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Face returns the time the relays were last driven to, or "--:--".
func (s Snapshot) Face() string {
	if s.Last == nil || s.Last.Unplugged || s.Last.Mode == cycle.Halted {
		return "--:--"
	}
	return s.Last.Sample.String()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	snap  Snapshot
}

// NewTracker creates a Tracker with the given config.
func NewTracker(clock clockwork.Clock, cfg Config) *Tracker {
	return &Tracker{
		clock: clock,
		snap: Snapshot{
			StartTime: clock.Now(),
			Config:    cfg,
		},
	}
}

// Record stores a finished cycle and updates the counts.
func (t *Tracker) Record(rep cycle.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := rep
	r.Path = append([]cycle.State(nil), rep.Path...)
	t.snap.Last = &r

	c := &t.snap.Counts
	c.Cycles++
	switch rep.Mode {
	case cycle.ColdBoot:
		c.ColdBoots++
	case cycle.WarmWake:
		c.WarmWakes++
	}
	if rep.Unplugged {
		c.Unplugged++
	}
	if rep.FullRelatch {
		c.FullRelatches++
	}
	if rep.DST != "" && rep.DST != logic.DSTNone {
		c.DST++
	}
	if rep.RenderError != "" {
		c.RenderErrors++
	}
	c.Pulses += rep.Pulses.Total()
}

// SetNextWake records when the next alarm is due.
func (t *Tracker) SetNextWake(at time.Time) {
	t.mu.Lock()
	t.snap.NextWake = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}
