// Package relay fires single latching-relay coils.
//
// The COILP line switches 28 pairs of opposed solid-state switches that act
// as H-bridges, so its level selects the direction of the current pulse
// through whichever coil is sunk next. The segment lines drive Darlington
// arrays that sink the coil current.
package relay

import (
	"fmt"
	"time"

	"github.com/sweeney/relay-clock/internal/gpio"
	"github.com/sweeney/relay-clock/internal/logic"
)

// Timing is the pulse sequence for one coil.
type Timing struct {
	// Settle is the wait after switching the direction line.
	Settle time.Duration
	// Pulse is how long the coil is energised.
	Pulse time.Duration
	// Gap is the pause after each pulse. The supply could fire every coil
	// at once; the gap produces the audible click cadence.
	Gap time.Duration
}

// DefaultTiming matches the relays on the reference board.
var DefaultTiming = Timing{
	Settle: 1 * time.Millisecond,
	Pulse:  10 * time.Millisecond,
	Gap:    25 * time.Millisecond,
}

// Driver pulses individual segment relays.
type Driver struct {
	out    gpio.Outputs
	timing Timing
	sleep  func(time.Duration)
	pulses int
}

// New creates a Driver. sleep is usually clock.Sleep; tests pass a recorder.
func New(out gpio.Outputs, timing Timing, sleep func(time.Duration)) *Driver {
	return &Driver{out: out, timing: timing, sleep: sleep}
}

// Pulse latches one segment on or off. The direction line is driven
// immediately before every pulse; it is shared by all 28 coils.
func (d *Driver) Pulse(pos logic.Position, seg logic.Segment, on bool) error {
	if err := d.out.SetDirection(on); err != nil {
		return fmt.Errorf("set direction for %d%s: %w", pos, seg, err)
	}
	d.sleep(d.timing.Settle)

	highErr := d.out.SetSegment(pos, seg, true)
	if highErr == nil {
		d.sleep(d.timing.Pulse)
	}
	// Always release the sink, even if raising it failed.
	lowErr := d.out.SetSegment(pos, seg, false)
	d.sleep(d.timing.Gap)

	if highErr != nil {
		return fmt.Errorf("energise %d%s: %w", pos, seg, highErr)
	}
	if lowErr != nil {
		return fmt.Errorf("release %d%s: %w", pos, seg, lowErr)
	}
	d.pulses++
	return nil
}

// Pulses returns the number of successful pulses since creation.
func (d *Driver) Pulses() int {
	return d.pulses
}
