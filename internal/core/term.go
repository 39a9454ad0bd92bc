package core

// ResolveTerm finds the term whose effective range covers the target
// period. Returns nil when the period falls in a gap (paused stretch) or
// before/after every term; callers must treat nil as "payments
// disallowed for this period", not as a fault.
//
// Terms of one commitment are expected not to overlap. Should two terms
// ever cover the same period, the one with the latest EffectiveFrom wins
// (most recently created).
func ResolveTerm(terms []Term, p Period) *Term {
	var match *Term
	for i := range terms {
		t := &terms[i]
		if !t.Covers(p) {
			continue
		}
		if match == nil || t.EffectiveFrom.After(match.EffectiveFrom) {
			match = t
		}
	}
	return match
}

// LatestTerm returns the term with the latest EffectiveFrom, or nil when
// the commitment has no terms. Used as the "most relevant" term for
// display when no term covers today.
func LatestTerm(terms []Term) *Term {
	var latest *Term
	for i := range terms {
		t := &terms[i]
		if latest == nil || t.EffectiveFrom.After(latest.EffectiveFrom) {
			latest = t
		}
	}
	return latest
}
