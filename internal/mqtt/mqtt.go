// Package mqtt publishes wake-cycle reports and daemon lifecycle events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/relay-clock/internal/cycle"
)

// Topic is the MQTT topic for cycle reports.
const Topic = "clock/relay/cycles"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "clock/relay/system"

// Publisher publishes to MQTT.
type Publisher interface {
	// Publish sends a cycle report to the broker.
	// Returns error if publishing fails (should not stop the clock).
	Publish(rep cycle.Report) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (STARTUP, SHUTDOWN, OFFLINE, RECONNECTED).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string        // e.g. "SIGTERM" (shutdown only)
	Config    *SystemConfig // startup only
	Retained  bool
}

// SystemConfig is the daemon configuration announced at startup.
type SystemConfig struct {
	Broker    string `json:"broker"`
	StateFile string `json:"state_file"`
	PlugPolls int    `json:"plug_polls"`
	PulseMs   int64  `json:"pulse_ms"`
	DSTUntil  int    `json:"dst_until"`
}

// Payload is the cycle report message.
type Payload struct {
	Cycle CyclePayload `json:"cycle"`
}

// CyclePayload contains the cycle details.
type CyclePayload struct {
	Timestamp   string `json:"timestamp"`
	Mode        string `json:"mode"`
	Path        string `json:"path"`
	Displayed   string `json:"displayed"`
	Calendar    string `json:"calendar"`
	Pulses      [4]int `json:"pulses"`
	Unplugged   bool   `json:"unplugged"`
	FullRelatch bool   `json:"full_relatch"`
	DST         string `json:"dst"`
	PastDST     bool   `json:"beyond_dst_horizon,omitempty"`
	RenderError string `json:"render_error,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// FormatPayload creates the JSON payload for a cycle report.
func FormatPayload(rep cycle.Report) ([]byte, error) {
	payload := Payload{
		Cycle: CyclePayload{
			Timestamp:   rep.Start.UTC().Format(time.RFC3339),
			Mode:        string(rep.Mode),
			Path:        rep.PathString(),
			Displayed:   rep.Sample.String(),
			Calendar:    rep.Calendar.String(),
			Pulses:      rep.Pulses,
			Unplugged:   rep.Unplugged,
			FullRelatch: rep.FullRelatch,
			DST:         string(rep.DST),
			PastDST:     rep.BeyondDSTHorizon,
			RenderError: rep.RenderError,
			DurationMs:  rep.Duration().Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the system event message.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string        `json:"timestamp"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	Config    *SystemConfig `json:"config,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
		},
	}
	return json.Marshal(payload)
}
