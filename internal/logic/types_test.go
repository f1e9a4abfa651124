package logic

import (
	"testing"
	"time"
)

func TestFontSegmentCounts(t *testing.T) {
	// Number of lit segments per glyph, in font order.
	want := [GlyphCount]int{6, 2, 5, 5, 4, 5, 6, 3, 7, 5, 0, 6, 4, 5, 4, 5, 3, 5, 5, 1}

	for g := Glyph(0); g < GlyphCount; g++ {
		n := 0
		for _, s := range Segments {
			if g.Segments().On(s) {
				n++
			}
		}
		if n != want[g] {
			t.Errorf("glyph %q: %d segments lit, want %d", g, n, want[g])
		}
	}
}

func TestFontZeroNine(t *testing.T) {
	zero := Glyph0.Segments()
	nine := Glyph9.Segments()

	diff := map[Segment]bool{SegA: true, SegB: true, SegG: true}
	for _, s := range Segments {
		if (zero.On(s) != nine.On(s)) != diff[s] {
			t.Errorf("segment %s: differs=%v, want %v", s, zero.On(s) != nine.On(s), diff[s])
		}
	}
}

func TestGlyphStrings(t *testing.T) {
	if GlyphHyphen.String() != "-" {
		t.Errorf("hyphen: got %q", GlyphHyphen.String())
	}
	if Glyph(42).Valid() {
		t.Error("glyph 42 should be invalid")
	}
	if Glyph(42).Segments() != 0 {
		t.Error("invalid glyph should render blank")
	}
	if SegG.String() != "G" {
		t.Errorf("segment: got %q", SegG.String())
	}
}

func TestSampleClock(t *testing.T) {
	s := SampleOf(7, 5)
	if s.String() != "07:05" {
		t.Errorf("String: got %q", s.String())
	}
	h, m, ok := s.Clock()
	if !ok || h != 7 || m != 5 {
		t.Errorf("Clock: got %d:%d ok=%v", h, m, ok)
	}
}

func TestPriorZeroValueIsUnknown(t *testing.T) {
	var p Prior
	if p.IsKnown() {
		t.Error("zero Prior should be unknown")
	}
	if g, ok := Known(Glyph0).Glyph(); !ok || g != Glyph0 {
		t.Errorf("Known(0): got %s ok=%v", g, ok)
	}
}

func TestCalendarRoundTrip(t *testing.T) {
	ts := time.Date(2024, time.November, 3, 1, 59, 30, 0, time.UTC)
	c := CalendarOf(ts)
	if c != (Calendar{Year: 24, Month: 11, Day: 3, Hour: 1, Minute: 59, Second: 30}) {
		t.Fatalf("CalendarOf: got %+v", c)
	}
	if !c.Time().Equal(ts) {
		t.Errorf("Time: got %v, want %v", c.Time(), ts)
	}
	if c.Sample() != SampleOf(1, 59) {
		t.Errorf("Sample: got %s", c.Sample())
	}
}

func TestCalendarValidate(t *testing.T) {
	good := Calendar{Year: 24, Month: 2, Day: 29, Hour: 23, Minute: 59, Second: 59}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := []Calendar{
		{Year: 100, Month: 1, Day: 1},
		{Year: 24, Month: 13, Day: 1},
		{Year: 23, Month: 2, Day: 29},
		{Year: 24, Month: 1, Day: 1, Hour: 24},
		{Year: 24, Month: 1, Day: 1, Minute: 60},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("%+v: expected error", c)
		}
	}
}
