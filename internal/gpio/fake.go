package gpio

import (
	"errors"
	"fmt"

	"github.com/sweeney/relay-clock/internal/logic"
)

// FakeInputs is a test double that returns scripted input values.
type FakeInputs struct {
	// Plug contains scripted power-presence reads. Each call to
	// PowerPresent consumes the next value; the last one repeats.
	Plug []bool

	// Buttons contains scripted reads per button, same rules as Plug.
	// A button without script reads as released.
	Buttons [ButtonCount][]bool

	// PlugReads counts calls to PowerPresent.
	PlugReads int

	// ReadError, if set, will be returned by every read.
	ReadError error

	// Closed tracks if Close was called
	Closed bool

	plugIndex   int
	buttonIndex [ButtonCount]int
}

// NewFakeInputs creates FakeInputs with a scripted plug line.
func NewFakeInputs(plug ...bool) *FakeInputs {
	return &FakeInputs{Plug: plug}
}

// PowerPresent returns the next scripted plug value.
func (f *FakeInputs) PowerPresent() (bool, error) {
	f.PlugReads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Plug) == 0 {
		return false, errors.New("no plug samples configured")
	}
	v := f.Plug[f.plugIndex]
	if f.plugIndex < len(f.Plug)-1 {
		f.plugIndex++
	}
	return v, nil
}

// ButtonPressed returns the next scripted value for the button.
func (f *FakeInputs) ButtonPressed(b Button) (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if b < 0 || int(b) >= ButtonCount {
		return false, fmt.Errorf("unknown button %d", b)
	}
	script := f.Buttons[b]
	if len(script) == 0 {
		return false, nil
	}
	v := script[f.buttonIndex[b]]
	if f.buttonIndex[b] < len(script)-1 {
		f.buttonIndex[b]++
	}
	return v, nil
}

// Close marks the inputs as closed.
func (f *FakeInputs) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds every script.
func (f *FakeInputs) Reset() {
	f.plugIndex = 0
	f.buttonIndex = [ButtonCount]int{}
	f.PlugReads = 0
	f.Closed = false
}

// Write is one recorded output operation.
type Write struct {
	// Coil is true for a direction-line write.
	Coil  bool
	Pos   logic.Position
	Seg   logic.Segment
	Value bool
}

func (w Write) String() string {
	if w.Coil {
		return fmt.Sprintf("coil=%v", w.Value)
	}
	return fmt.Sprintf("%d%s=%v", w.Pos, w.Seg, w.Value)
}

// FakeOutputs records every write for test assertions.
type FakeOutputs struct {
	Writes []Write

	// Latched holds the last coil value driven through each segment, as
	// the physical relay would retain it.
	Latched [logic.Positions][logic.SegmentCount]bool

	// WriteError, if set, will be returned by every write.
	WriteError error

	// Closed tracks if Close was called
	Closed bool

	coil bool
}

// NewFakeOutputs creates FakeOutputs.
func NewFakeOutputs() *FakeOutputs {
	return &FakeOutputs{}
}

// SetDirection records a coil write.
func (f *FakeOutputs) SetDirection(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.coil = on
	f.Writes = append(f.Writes, Write{Coil: true, Value: on})
	return nil
}

// SetSegment records a segment write. A rising edge latches the relay
// to the current coil direction.
func (f *FakeOutputs) SetSegment(pos logic.Position, seg logic.Segment, high bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, Write{Pos: pos, Seg: seg, Value: high})
	if high {
		f.Latched[pos][seg] = f.coil
	}
	return nil
}

// Close marks the outputs as closed.
func (f *FakeOutputs) Close() error {
	f.Closed = true
	return nil
}

// Pulses returns the number of rising segment edges recorded.
func (f *FakeOutputs) Pulses() int {
	n := 0
	for _, w := range f.Writes {
		if !w.Coil && w.Value {
			n++
		}
	}
	return n
}

// PulsesAt returns the number of rising edges recorded for one position.
func (f *FakeOutputs) PulsesAt(pos logic.Position) int {
	n := 0
	for _, w := range f.Writes {
		if !w.Coil && w.Value && w.Pos == pos {
			n++
		}
	}
	return n
}

// Shown decodes the latched relays of a position back into a glyph.
func (f *FakeOutputs) Shown(pos logic.Position) (logic.Glyph, bool) {
	var p logic.Pattern
	for _, s := range logic.Segments {
		if f.Latched[pos][s] {
			p |= 1 << s
		}
	}
	for g := logic.Glyph(0); g < logic.GlyphCount; g++ {
		if g.Segments() == p {
			return g, true
		}
	}
	return logic.GlyphBlank, false
}

// Reset clears recorded writes but keeps the latched relay state.
func (f *FakeOutputs) Reset() {
	f.Writes = nil
	f.WriteError = nil
	f.Closed = false
}
