//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/relay-clock/internal/logic"
)

// RealInputs reads the plug-detect line and buttons from the GPIO character device.
type RealInputs struct {
	chip    *gpiocdev.Chip
	plug    *gpiocdev.Line
	buttons [ButtonCount]*gpiocdev.Line
}

// NewRealInputs requests the input lines of the pinout.
func NewRealInputs(p Pinout) (*RealInputs, error) {
	chip, err := gpiocdev.NewChip(p.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", p.Chip, err)
	}
	in := &RealInputs{chip: chip}

	bias := gpiocdev.WithPullDown
	if p.PlugPullUp {
		bias = gpiocdev.WithPullUp
	}
	in.plug, err = chip.RequestLine(p.Plug, gpiocdev.AsInput, bias)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("request plug pin %d: %w", p.Plug, err)
	}

	for i, offset := range p.Buttons {
		in.buttons[i], err = chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("request button %d pin %d: %w", i+1, offset, err)
		}
	}
	return in, nil
}

// PowerPresent returns true while the LDO output drives the plug line high.
func (r *RealInputs) PowerPresent() (bool, error) {
	v, err := r.plug.Value()
	if err != nil {
		return false, fmt.Errorf("read plug pin: %w", err)
	}
	return v == 1, nil
}

// ButtonPressed inverts the raw value: raw low = pressed.
func (r *RealInputs) ButtonPressed(b Button) (bool, error) {
	if b < 0 || int(b) >= ButtonCount {
		return false, fmt.Errorf("unknown button %d", b)
	}
	v, err := r.buttons[b].Value()
	if err != nil {
		return false, fmt.Errorf("read button %d: %w", b+1, err)
	}
	return v == 0, nil
}

// Close releases the input lines and the chip.
func (r *RealInputs) Close() error {
	var errs []error
	if r.plug != nil {
		if err := r.plug.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close plug pin: %w", err))
		}
	}
	for i, l := range r.buttons {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button %d: %w", i+1, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutputs drives the 28 segment sink lines and the coil direction line.
type RealOutputs struct {
	chip     *gpiocdev.Chip
	coil     *gpiocdev.Line
	segments [logic.Positions][logic.SegmentCount]*gpiocdev.Line
}

// NewRealOutputs requests every output line of the pinout, initially low.
func NewRealOutputs(p Pinout) (*RealOutputs, error) {
	chip, err := gpiocdev.NewChip(p.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", p.Chip, err)
	}
	out := &RealOutputs{chip: chip}

	out.coil, err = chip.RequestLine(p.Coil, gpiocdev.AsOutput(0))
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("request coil pin %d: %w", p.Coil, err)
	}

	for pos := range p.Segments {
		for seg, offset := range p.Segments[pos] {
			l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
			if err != nil {
				out.Close()
				return nil, fmt.Errorf("request segment %d%s pin %d: %w", pos, logic.Segment(seg), offset, err)
			}
			out.segments[pos][seg] = l
		}
	}
	return out, nil
}

// SetDirection sets the coil polarity line.
func (r *RealOutputs) SetDirection(on bool) error {
	if err := r.coil.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set coil pin: %w", err)
	}
	return nil
}

// SetSegment drives one segment sink line.
func (r *RealOutputs) SetSegment(pos logic.Position, seg logic.Segment, high bool) error {
	if pos < 0 || int(pos) >= logic.Positions || int(seg) >= logic.SegmentCount {
		return fmt.Errorf("no line for segment %d%s", pos, seg)
	}
	if err := r.segments[pos][seg].SetValue(boolToValue(high)); err != nil {
		return fmt.Errorf("set segment %d%s: %w", pos, seg, err)
	}
	return nil
}

// Close drives every line low and returns it to input with pull-down
// (the board's power-on default) so no relay coil is left energised.
func (r *RealOutputs) Close() error {
	var errs []error
	release := func(name string, l *gpiocdev.Line) {
		if l == nil {
			return
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive %s low: %w", name, err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", name, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}

	for pos := range r.segments {
		for seg, l := range r.segments[pos] {
			release(fmt.Sprintf("segment %d%s", pos, logic.Segment(seg)), l)
		}
	}
	release("coil", r.coil)

	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
