package logic

// Direction is the sense of a daylight-saving correction.
type Direction string

const (
	// Forward skips an hour (spring).
	Forward Direction = "FORWARD"
	// Backward repeats an hour (fall).
	Backward Direction = "BACKWARD"
)

// DSTEntry is one transition date. Year is two-digit, as held by the RTC.
type DSTEntry struct {
	Year      int
	Month     int
	Day       int
	Direction Direction
}

// DSTAction is what the DST step asks of the RTC.
type DSTAction string

const (
	DSTNone DSTAction = "NONE"
	// DSTAddHour: jump ahead one hour.
	DSTAddHour DSTAction = "ADD_1H"
	// DSTSubHour: first pass over the repeated hour; set the
	// repeated-hour flag and step back one hour.
	DSTSubHour DSTAction = "SUB_1H"
	// DSTSecondPass: the repeated hour has been lived twice; clear the
	// flag and let time run on.
	DSTSecondPass DSTAction = "SECOND_PASS"
)

// DefaultDSTTable holds the US Pacific transitions. It must be extended by
// hand; past the last year no correction is applied.
var DefaultDSTTable = []DSTEntry{
	{Year: 23, Month: 3, Day: 12, Direction: Forward},
	{Year: 23, Month: 11, Day: 5, Direction: Backward},
	{Year: 24, Month: 3, Day: 10, Direction: Forward},
	{Year: 24, Month: 11, Day: 3, Direction: Backward},
	{Year: 25, Month: 3, Day: 9, Direction: Forward},
	{Year: 25, Month: 11, Day: 2, Direction: Backward},
	{Year: 26, Month: 3, Day: 8, Direction: Forward},
	{Year: 26, Month: 11, Day: 1, Direction: Backward},
	{Year: 27, Month: 3, Day: 14, Direction: Forward},
	{Year: 27, Month: 11, Day: 7, Direction: Backward},
	{Year: 28, Month: 3, Day: 12, Direction: Forward},
	{Year: 28, Month: 11, Day: 5, Direction: Backward},
	{Year: 29, Month: 3, Day: 11, Direction: Forward},
	{Year: 29, Month: 11, Day: 4, Direction: Backward},
	{Year: 30, Month: 3, Day: 10, Direction: Forward},
	{Year: 30, Month: 11, Day: 3, Direction: Backward},
}

// Transition hour and minute: corrections are applied while the clock reads 01:59.
const (
	TransitionHour   = 1
	TransitionMinute = 59
)

// IsTransitionInstant reports whether s reads 01:59.
func IsTransitionInstant(s Sample) bool {
	h, m, ok := s.Clock()
	return ok && h == TransitionHour && m == TransitionMinute
}

// LookupDST returns the entry matching the calendar date, if any.
func LookupDST(table []DSTEntry, cal Calendar) (DSTEntry, bool) {
	for _, e := range table {
		if e.Year == cal.Year && e.Month == cal.Month && e.Day == cal.Day {
			return e, true
		}
	}
	return DSTEntry{}, false
}

// DecideDST returns the correction for cal. It does not check the time of
// day; callers only consult it at the transition instant.
func DecideDST(table []DSTEntry, cal Calendar, repeatedHour bool) DSTAction {
	e, ok := LookupDST(table, cal)
	if !ok {
		return DSTNone
	}
	if e.Direction == Forward {
		return DSTAddHour
	}
	if repeatedHour {
		return DSTSecondPass
	}
	return DSTSubHour
}

// DSTHorizon returns the last two-digit year covered by the table, or -1
// for an empty table.
func DSTHorizon(table []DSTEntry) int {
	last := -1
	for _, e := range table {
		if e.Year > last {
			last = e.Year
		}
	}
	return last
}
