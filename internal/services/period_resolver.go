package services

import (
	"impegni/internal/core"
)

// ResolveTerm selects the term governing a calendar month from a
// commitment's full term history. The month is canonicalized to its first
// day; a term matches when its inclusive effective range covers that date.
// Among matches the highest version wins, which keeps the result
// deterministic even if overlapping ranges have slipped into the data.
//
// A nil result is not an error: it means the commitment simply does not
// apply that month (paused with no successor covering it).
func ResolveTerm(terms []core.Term, year, month int) *core.Term {
	period := core.NewPeriod(year, month)

	var best *core.Term
	for i := range terms {
		if !terms[i].Covers(period) {
			continue
		}
		if best == nil || terms[i].Version > best.Version {
			best = &terms[i]
		}
	}
	return best
}

// ResolveCurrentTerm resolves the term for "now" rather than a historical
// month. When no term covers today it prefers the nearest strictly-future
// term (a commitment resuming tomorrow stays visible today), and only then
// falls back to the most recent term by version. Callers resolving
// historical months must use ResolveTerm instead; the fallback is not
// valid there.
func ResolveCurrentTerm(terms []core.Term, today core.Date) *core.Term {
	if t := ResolveTerm(terms, today.Year(), today.Month()); t != nil {
		return t
	}

	var next *core.Term
	for i := range terms {
		t := &terms[i]
		if !t.EffectiveFrom.After(today.Time) {
			continue
		}
		switch {
		case next == nil:
			next = t
		case t.EffectiveFrom.Before(next.EffectiveFrom.Time):
			next = t
		case t.EffectiveFrom.Equal(next.EffectiveFrom.Time) && t.Version > next.Version:
			next = t
		}
	}
	if next != nil {
		return next
	}

	var latest *core.Term
	for i := range terms {
		if latest == nil || terms[i].Version > latest.Version {
			latest = &terms[i]
		}
	}
	return latest
}
