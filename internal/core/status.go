package core

import "time"

const (
	LifecycleActive    Lifecycle = "active"
	LifecycleInactive  Lifecycle = "inactive"
	LifecycleCompleted Lifecycle = "completed"
)

// Lifecycle is the coarse state of a commitment: running, paused or
// finished.
type Lifecycle string

// Classify determines the lifecycle of a commitment as of "today".
// It is deterministic for a given (commitment, today) pair and always
// returns exactly one of the three states:
//
//   - no term covers today (gap, or no terms at all) -> inactive
//   - the covering term ended before today            -> inactive
//   - finite term whose installment span is exhausted -> completed
//   - otherwise                                       -> active
func Classify(c Commitment, today time.Time) Lifecycle {
	term := ResolveTerm(c.Terms, PeriodOf(today))
	if term == nil {
		return LifecycleInactive
	}
	if term.EffectiveUntil != nil && term.EffectiveUntil.Before(today) {
		return LifecycleInactive
	}
	if n, ok := term.Installments.Finite(); ok {
		current := PeriodOf(today).MonthsSince(PeriodOf(term.EffectiveFrom)) + 1
		if current > n {
			return LifecycleCompleted
		}
	}
	return LifecycleActive
}
