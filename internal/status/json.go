package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Face          string     `json:"face"`
	LastCycle     *CycleJSON `json:"last_cycle,omitempty"`
	NextWake      string     `json:"next_wake,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"cycle_counts"`
	Config        ConfigJSON `json:"config"`
}

// CycleJSON summarises the last cycle.
type CycleJSON struct {
	Mode        string `json:"mode"`
	Calendar    string `json:"calendar"`
	Pulses      int    `json:"pulses"`
	Unplugged   bool   `json:"unplugged"`
	FullRelatch bool   `json:"full_relatch"`
	DST         string `json:"dst"`
	PastDST     bool   `json:"beyond_dst_horizon,omitempty"`
	At          string `json:"at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of cycle counts.
type CountsJSON struct {
	Cycles        int `json:"cycles"`
	ColdBoots     int `json:"cold_boots"`
	WarmWakes     int `json:"warm_wakes"`
	Unplugged     int `json:"unplugged"`
	FullRelatches int `json:"full_relatches"`
	Pulses        int `json:"pulses"`
	DST           int `json:"dst_corrections"`
	RenderErrors  int `json:"render_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	StateFile string `json:"state_file"`
	Broker    string `json:"broker"`
	HTTPAddr  string `json:"http_addr"`
	PlugPolls int    `json:"plug_polls"`
	PulseMs   int64  `json:"pulse_ms"`
	DSTUntil  int    `json:"dst_until"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Face:          snap.Face(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON(snap.Counts),
		Config: ConfigJSON{
			StateFile: snap.Config.StateFile,
			Broker:    snap.Config.Broker,
			HTTPAddr:  snap.Config.HTTPAddr,
			PlugPolls: snap.Config.PlugPolls,
			PulseMs:   snap.Config.PulseMs,
			DSTUntil:  snap.Config.DSTUntil,
		},
	}
	if !snap.NextWake.IsZero() {
		inner.NextWake = snap.NextWake.UTC().Format(time.RFC3339)
	}
	if last := snap.Last; last != nil {
		inner.LastCycle = &CycleJSON{
			Mode:        string(last.Mode),
			Calendar:    last.Calendar.String(),
			Pulses:      last.Pulses.Total(),
			Unplugged:   last.Unplugged,
			FullRelatch: last.FullRelatch,
			DST:         string(last.DST),
			PastDST:     last.BeyondDSTHorizon,
			At:          last.Start.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
