// Package logic contains the pure decision logic of the relay clock.
// This package has NO external dependencies (no GPIO, RTC, MQTT, OS, or time.Sleep).
// Calendar values are always passed in explicitly.
package logic

import (
	"fmt"
	"time"
)

// Segment identifies one of the 7 relay segments of a digit.
//
// Layout as viewed from the front of the board:
//
//	|-E-|
//	F   D
//	|-G-|
//	A   C
//	|-B-|
type Segment uint8

const (
	SegA Segment = iota
	SegB
	SegC
	SegD
	SegE
	SegF
	SegG
)

// SegmentCount is the number of segments per digit.
const SegmentCount = 7

// Segments lists every segment in actuation order.
var Segments = [SegmentCount]Segment{SegA, SegB, SegC, SegD, SegE, SegF, SegG}

func (s Segment) String() string {
	if s > SegG {
		return fmt.Sprintf("Segment(%d)", uint8(s))
	}
	return string(rune('A' + s))
}

// Pattern is a 7-bit set of segments, bit n = Segment(n).
type Pattern uint8

func segs(list ...Segment) Pattern {
	var p Pattern
	for _, s := range list {
		p |= 1 << s
	}
	return p
}

// On reports whether the segment is set in the pattern.
func (p Pattern) On(s Segment) bool {
	return p&(1<<s) != 0
}

// Glyph is one of the 20 displayable patterns.
type Glyph uint8

const (
	Glyph0 Glyph = iota
	Glyph1
	Glyph2
	Glyph3
	Glyph4
	Glyph5
	Glyph6
	Glyph7
	Glyph8
	Glyph9
	GlyphBlank
	GlyphA
	GlyphC
	GlyphE
	GlyphF
	GlyphH
	GlyphL
	GlyphP
	GlyphU
	GlyphHyphen
)

// GlyphCount is the number of glyphs in the font.
const GlyphCount = 20

var font = [GlyphCount]Pattern{
	Glyph0:      segs(SegA, SegB, SegC, SegD, SegE, SegF),
	Glyph1:      segs(SegC, SegD),
	Glyph2:      segs(SegA, SegB, SegD, SegE, SegG),
	Glyph3:      segs(SegB, SegC, SegD, SegE, SegG),
	Glyph4:      segs(SegC, SegD, SegF, SegG),
	Glyph5:      segs(SegB, SegC, SegE, SegF, SegG),
	Glyph6:      segs(SegA, SegB, SegC, SegE, SegF, SegG),
	Glyph7:      segs(SegC, SegD, SegE),
	Glyph8:      segs(SegA, SegB, SegC, SegD, SegE, SegF, SegG),
	Glyph9:      segs(SegC, SegD, SegE, SegF, SegG),
	GlyphBlank:  0,
	GlyphA:      segs(SegA, SegC, SegD, SegE, SegF, SegG),
	GlyphC:      segs(SegA, SegB, SegE, SegF),
	GlyphE:      segs(SegA, SegB, SegE, SegF, SegG),
	GlyphF:      segs(SegA, SegE, SegF, SegG),
	GlyphH:      segs(SegA, SegC, SegD, SegF, SegG),
	GlyphL:      segs(SegA, SegB, SegF),
	GlyphP:      segs(SegA, SegD, SegE, SegF, SegG),
	GlyphU:      segs(SegA, SegB, SegC, SegD, SegF),
	GlyphHyphen: segs(SegG),
}

var glyphNames = [GlyphCount]string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	" ", "A", "C", "E", "F", "H", "L", "P", "U", "-",
}

// Segments returns the fixed segment pattern of the glyph.
// Out-of-range glyphs render blank.
func (g Glyph) Segments() Pattern {
	if g >= GlyphCount {
		return 0
	}
	return font[g]
}

// Valid reports whether g is a glyph of the font.
func (g Glyph) Valid() bool {
	return g < GlyphCount
}

// Digit returns the numeric value of a numeral glyph.
func (g Glyph) Digit() (int, bool) {
	if g > Glyph9 {
		return 0, false
	}
	return int(g), true
}

func (g Glyph) String() string {
	if g >= GlyphCount {
		return fmt.Sprintf("Glyph(%d)", uint8(g))
	}
	return glyphNames[g]
}

// DigitGlyph returns the numeral glyph for d (0–9).
func DigitGlyph(d int) Glyph {
	if d < 0 || d > 9 {
		return GlyphBlank
	}
	return Glyph(d)
}

// Position is one of the 4 digit slots, 0 = hours tens.
type Position int

// Positions is the number of digit slots.
const Positions = 4

const (
	PosHourTens Position = iota
	PosHourUnits
	PosMinuteTens
	PosMinuteUnits
)

// Sample is the glyph shown (or to be shown) at each position.
type Sample [Positions]Glyph

// SampleOf builds the sample for a 24-hour time.
func SampleOf(hour, minute int) Sample {
	return Sample{
		DigitGlyph(hour / 10),
		DigitGlyph(hour % 10),
		DigitGlyph(minute / 10),
		DigitGlyph(minute % 10),
	}
}

// Uniform returns a sample with the same glyph at every position.
func Uniform(g Glyph) Sample {
	return Sample{g, g, g, g}
}

// Clock returns the hour and minute encoded by the sample.
// ok is false if any position is not a numeral.
func (s Sample) Clock() (hour, minute int, ok bool) {
	var d [Positions]int
	for i, g := range s {
		v, isDigit := g.Digit()
		if !isDigit {
			return 0, 0, false
		}
		d[i] = v
	}
	return d[0]*10 + d[1], d[2]*10 + d[3], true
}

func (s Sample) String() string {
	return s[0].String() + s[1].String() + ":" + s[2].String() + s[3].String()
}

// Prior is the estimated glyph a position showed before this cycle.
// The zero value is Unknown.
type Prior struct {
	glyph Glyph
	known bool
}

// Unknown returns a prior carrying no assumption about the display.
func Unknown() Prior {
	return Prior{}
}

// Known returns a prior for a glyph believed to be latched.
func Known(g Glyph) Prior {
	return Prior{glyph: g, known: true}
}

// Glyph returns the estimated glyph and whether it is known.
func (p Prior) Glyph() (Glyph, bool) {
	return p.glyph, p.known
}

// IsKnown reports whether the prior carries an estimate.
func (p Prior) IsKnown() bool {
	return p.known
}

func (p Prior) String() string {
	if !p.known {
		return "?"
	}
	return p.glyph.String()
}

// AllUnknown returns four unknown priors.
func AllUnknown() [Positions]Prior {
	return [Positions]Prior{}
}

// Calendar is a calendar snapshot as the RTC holds it: a two-digit year
// (2000-based) and wall-clock fields, without any zone information.
type Calendar struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// CalendarOf converts a wall-clock time into calendar fields.
func CalendarOf(t time.Time) Calendar {
	return Calendar{
		Year:   t.Year() % 100,
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// Time returns the calendar as a UTC-labelled wall-clock time.
func (c Calendar) Time() time.Time {
	return time.Date(2000+c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, c.Second, 0, time.UTC)
}

// Sample returns the glyphs for the hour and minute fields.
func (c Calendar) Sample() Sample {
	return SampleOf(c.Hour, c.Minute)
}

// Validate checks that every field is in range for the RTC.
func (c Calendar) Validate() error {
	switch {
	case c.Year < 0 || c.Year > 99:
		return fmt.Errorf("year %d out of range 00-99", c.Year)
	case c.Month < 1 || c.Month > 12:
		return fmt.Errorf("month %d out of range 1-12", c.Month)
	case c.Day < 1 || c.Day > 31:
		return fmt.Errorf("day %d out of range 1-31", c.Day)
	case c.Hour < 0 || c.Hour > 23:
		return fmt.Errorf("hour %d out of range 0-23", c.Hour)
	case c.Minute < 0 || c.Minute > 59:
		return fmt.Errorf("minute %d out of range 0-59", c.Minute)
	case c.Second < 0 || c.Second > 59:
		return fmt.Errorf("second %d out of range 0-59", c.Second)
	}
	if t := c.Time(); t.Day() != c.Day {
		return fmt.Errorf("day %d does not exist in %04d-%02d", c.Day, 2000+c.Year, c.Month)
	}
	return nil
}

func (c Calendar) String() string {
	return fmt.Sprintf("%02d-%02d-%02d %02d:%02d:%02d", c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
}
