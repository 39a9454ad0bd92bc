package core

// PerPeriodAmount computes what is owed for a single period under a
// term, in the term's original currency.
//
// A term flagged IsDividedAmount stores the total to split evenly across
// its installments; anything else stores the per-period amount directly.
// Division is plain floating point: rounding and per-currency formatting
// belong to the display layer.
func PerPeriodAmount(t Term) float64 {
	if n, ok := t.Installments.Finite(); ok && t.IsDividedAmount && n > 1 {
		return t.AmountOriginal / float64(n)
	}
	return t.AmountOriginal
}
