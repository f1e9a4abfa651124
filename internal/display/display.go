// Package display turns glyph changes into the minimum set of relay pulses.
package display

import (
	"errors"
	"fmt"

	"github.com/sweeney/relay-clock/internal/logic"
)

// Actuator fires one segment relay.
type Actuator interface {
	Pulse(pos logic.Position, seg logic.Segment, on bool) error
}

// Renderer draws glyphs onto latching relays. The relays cannot be read
// back, so the caller supplies what it believes each position shows.
type Renderer struct {
	act Actuator
}

// NewRenderer creates a Renderer.
func NewRenderer(act Actuator) *Renderer {
	return &Renderer{act: act}
}

// Render pulses every segment of pos whose state differs between next and
// prev, in order A..G. With an unknown prev every segment is pulsed.
// It returns the number of pulses issued. A failing pulse does not stop the
// remaining segments.
func (r *Renderer) Render(pos logic.Position, next logic.Glyph, prev logic.Prior) (int, error) {
	want := next.Segments()
	old, known := prev.Glyph()
	have := old.Segments()

	var errs []error
	n := 0
	for _, s := range logic.Segments {
		if known && want.On(s) == have.On(s) {
			continue
		}
		if err := r.act.Pulse(pos, s, want.On(s)); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if len(errs) > 0 {
		return n, fmt.Errorf("render %s at position %d: %w", next, pos, errors.Join(errs...))
	}
	return n, nil
}

// Result counts the pulses issued per position.
type Result [logic.Positions]int

// Total returns the pulses issued across all positions.
func (r Result) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// RenderAll renders every position of s against its prior.
func (r *Renderer) RenderAll(s logic.Sample, priors [logic.Positions]logic.Prior) (Result, error) {
	var res Result
	var errs []error
	for i := range s {
		pos := logic.Position(i)
		n, err := r.Render(pos, s[i], priors[i])
		res[i] = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}
