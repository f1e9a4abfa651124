package logic

// DefaultPlugPolls is the number of consecutive "absent" reads that confirm
// the clock is unplugged.
const DefaultPlugPolls = 10

// PlugDebouncer confirms power absence by polling, not by edge.
// A single "present" read settles the question; absence is only believed
// after Polls consecutive "absent" reads.
type PlugDebouncer struct {
	polls   int
	absent  int
	settled bool
	present bool
}

// NewPlugDebouncer creates a debouncer. polls <= 0 selects DefaultPlugPolls.
func NewPlugDebouncer(polls int) *PlugDebouncer {
	if polls <= 0 {
		polls = DefaultPlugPolls
	}
	return &PlugDebouncer{polls: polls}
}

// Process feeds one read of the power-presence line and reports whether the
// outcome is settled. Reads after settling are ignored.
func (d *PlugDebouncer) Process(present bool) bool {
	if d.settled {
		return true
	}
	if present {
		d.settled = true
		d.present = true
		return true
	}
	d.absent++
	if d.absent >= d.polls {
		d.settled = true
	}
	return d.settled
}

// Settled reports whether a decision has been reached.
func (d *PlugDebouncer) Settled() bool {
	return d.settled
}

// Unplugged reports whether absence was confirmed.
func (d *PlugDebouncer) Unplugged() bool {
	return d.settled && !d.present
}

// Polls returns the number of consecutive absent reads required.
func (d *PlugDebouncer) Polls() int {
	return d.polls
}
