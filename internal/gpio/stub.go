//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/relay-clock/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealInputs is not available on non-Linux platforms.
type RealInputs struct{}

// NewRealInputs returns an error on non-Linux platforms.
func NewRealInputs(p Pinout) (*RealInputs, error) {
	return nil, errUnsupported
}

// PowerPresent is not implemented on non-Linux platforms.
func (r *RealInputs) PowerPresent() (bool, error) {
	return false, errUnsupported
}

// ButtonPressed is not implemented on non-Linux platforms.
func (r *RealInputs) ButtonPressed(b Button) (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealInputs) Close() error {
	return nil
}

// RealOutputs is not available on non-Linux platforms.
type RealOutputs struct{}

// NewRealOutputs returns an error on non-Linux platforms.
func NewRealOutputs(p Pinout) (*RealOutputs, error) {
	return nil, errUnsupported
}

// SetDirection is not implemented on non-Linux platforms.
func (r *RealOutputs) SetDirection(on bool) error {
	return errUnsupported
}

// SetSegment is not implemented on non-Linux platforms.
func (r *RealOutputs) SetSegment(pos logic.Position, seg logic.Segment, high bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealOutputs) Close() error {
	return nil
}
