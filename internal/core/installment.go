package core

import "strconv"

// InstallmentPosition locates one period inside a finite installment
// span: "cuota 6 of 12".
type InstallmentPosition struct {
	Current    int
	Total      int
	TotalLabel string
}

// InstallmentFor computes which installment number a period corresponds
// to under a finite-count term. The first period of the term's
// effective-from month is installment 1; consecutive months increment by
// one. Returns (zero, false) when the term is open-ended or the period
// falls outside [1, installments count].
func InstallmentFor(t Term, p Period) (InstallmentPosition, bool) {
	n, ok := t.Installments.Finite()
	if !ok {
		return InstallmentPosition{}, false
	}
	current := p.MonthsSince(PeriodOf(t.EffectiveFrom)) + 1
	if current < 1 || current > n {
		return InstallmentPosition{}, false
	}
	return InstallmentPosition{
		Current:    current,
		Total:      n,
		TotalLabel: strconv.Itoa(n),
	}, true
}

// ScheduleLabel renders the position of a period within a term for
// display: "6/12" for finite terms inside their span, the frequency
// label ("Monthly", "Quarterly", ...) for open-ended terms, and the
// empty string for a finite term outside its span.
func ScheduleLabel(t Term, p Period) string {
	if t.Installments.IsUnbounded() {
		return t.Frequency.Label()
	}
	pos, ok := InstallmentFor(t, p)
	if !ok {
		return ""
	}
	return strconv.Itoa(pos.Current) + "/" + pos.TotalLabel
}
