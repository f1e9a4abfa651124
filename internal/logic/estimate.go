package logic

// EstimatePrevious reconstructs what the display showed one minute before s,
// without any stored history. The hour pair (positions 0–1) and the minute
// pair (positions 2–3) are decremented with 24-hour / 60-minute wraparound.
//
// The estimate is exact for normal minute advancement. Across a DST
// correction the literal predecessor differs from what was really shown,
// which at worst costs some extra pulses; it never yields a wrong display.
//
// If s holds anything other than numerals, every prior is Unknown.
func EstimatePrevious(s Sample) [Positions]Prior {
	var d [Positions]int
	for i, g := range s {
		v, ok := g.Digit()
		if !ok {
			return AllUnknown()
		}
		d[i] = v
	}

	p := d
	if d[3] > 0 {
		p[3] = d[3] - 1
	} else {
		p[3] = 9
		if d[2] > 0 {
			p[2] = d[2] - 1
		} else {
			p[2] = 5
			if d[1] > 0 {
				p[1] = d[1] - 1
			} else {
				// 00 -> 23, 10 -> 09, 20 -> 19
				switch d[0] {
				case 0:
					p[0], p[1] = 2, 3
				default:
					p[0], p[1] = d[0]-1, 9
				}
			}
		}
	}

	var priors [Positions]Prior
	for i, v := range p {
		priors[i] = Known(DigitGlyph(v))
	}
	return priors
}

// NextMinute returns the sample one minute after s. It is the inverse of
// EstimatePrevious for valid 24-hour times.
func NextMinute(s Sample) (Sample, bool) {
	h, m, ok := s.Clock()
	if !ok {
		return s, false
	}
	m++
	if m == 60 {
		m = 0
		h = (h + 1) % 24
	}
	return SampleOf(h, m), true
}

// PriorSample collapses known priors into a sample. ok is false if any
// prior is Unknown.
func PriorSample(priors [Positions]Prior) (Sample, bool) {
	var s Sample
	for i, p := range priors {
		g, known := p.Glyph()
		if !known {
			return s, false
		}
		s[i] = g
	}
	return s, true
}
