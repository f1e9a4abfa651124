package cycle

import (
	"strings"
	"time"

	"github.com/sweeney/relay-clock/internal/display"
	"github.com/sweeney/relay-clock/internal/logic"
)

// State is a step of the power-state machine.
type State string

const (
	ColdBoot     State = "COLD_BOOT"
	WarmWake     State = "WARM_WAKE"
	RunningCycle State = "RUNNING_CYCLE"
	Sleeping     State = "SLEEPING"
	Halted       State = "HALTED"
)

// Report describes one wake cycle.
type Report struct {
	// Mode is ColdBoot, WarmWake or Halted.
	Mode State
	// Path lists the states entered, in order.
	Path []State

	Calendar logic.Calendar
	Sample   logic.Sample
	Priors   [logic.Positions]logic.Prior
	Pulses   display.Result

	Unplugged   bool
	FullRelatch bool
	RenderError string

	DST              logic.DSTAction
	BeyondDSTHorizon bool

	Start time.Time
	End   time.Time
}

func (r *Report) enter(s State) {
	r.Path = append(r.Path, s)
}

// Duration returns how long the cycle ran.
func (r Report) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// PathString joins the state path with arrows.
func (r Report) PathString() string {
	parts := make([]string, len(r.Path))
	for i, s := range r.Path {
		parts[i] = string(s)
	}
	return strings.Join(parts, "->")
}
