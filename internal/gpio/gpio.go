// Package gpio provides GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/relay-clock/internal/logic"

// Button identifies one of the three momentary buttons.
type Button int

const (
	Button1 Button = iota
	Button2
	Button3
)

// ButtonCount is the number of buttons on the board.
const ButtonCount = 3

// Inputs reads the power-presence line and the buttons.
type Inputs interface {
	// PowerPresent reports whether the 5V supply is present.
	PowerPresent() (bool, error)

	// ButtonPressed reports whether the button is held down.
	// Buttons are pulled up, so raw low = pressed.
	ButtonPressed(b Button) (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Outputs drives the relay segment lines and the shared coil direction line.
type Outputs interface {
	// SetDirection sets the coil polarity used by the next segment pulse.
	SetDirection(on bool) error

	// SetSegment drives the sink line of one segment relay.
	SetSegment(pos logic.Position, seg logic.Segment, high bool) error

	// Close releases GPIO resources.
	Close() error
}

// Pinout maps the board onto line offsets of one GPIO chip.
type Pinout struct {
	Chip     string
	Segments [logic.Positions][logic.SegmentCount]int
	Coil     int
	Plug     int
	Buttons  [ButtonCount]int
	// PlugPullUp selects a pull-up bias on the plug-detect line
	// (boards that share the line with a button).
	PlugPullUp bool
}

// DefaultPinout is the wiring of the reference carrier board: positions
// left to right, segments A..G, on consecutive offsets of gpiochip0.
func DefaultPinout() Pinout {
	p := Pinout{
		Chip:    "gpiochip0",
		Coil:    28,
		Plug:    29,
		Buttons: [ButtonCount]int{30, 31, 32},
	}
	for pos := 0; pos < logic.Positions; pos++ {
		for seg := 0; seg < logic.SegmentCount; seg++ {
			p.Segments[pos][seg] = pos*logic.SegmentCount + seg
		}
	}
	return p
}

// Lines returns every offset used by the pinout.
func (p Pinout) Lines() []int {
	lines := make([]int, 0, logic.Positions*logic.SegmentCount+2+ButtonCount)
	for _, pos := range p.Segments {
		lines = append(lines, pos[:]...)
	}
	lines = append(lines, p.Coil, p.Plug)
	lines = append(lines, p.Buttons[:]...)
	return lines
}
