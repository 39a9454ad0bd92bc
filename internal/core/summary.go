package core

import (
	"fmt"
	"time"
)

const (
	StateOverdue    PaymentState = "overdue"
	StatePending    PaymentState = "pending"
	StateOK         PaymentState = "ok"
	StateCompleted  PaymentState = "completed"
	StatePaused     PaymentState = "paused"
	StateTerminated PaymentState = "terminated"
	StateNoPayments PaymentState = "no_payments"
)

// PaymentState is the consolidated financial state of a commitment.
type PaymentState string

// Summary is the read model every card, grid and dashboard view consumes.
// All date and money math for a commitment happens here; the UI layer
// renders these fields verbatim.
type Summary struct {
	CommitmentID string
	Lifecycle    Lifecycle
	State        PaymentState

	// StateDetail is a short human-oriented supplement to State; the
	// source values behind it (DaysOverdue, NextDueDate) are exposed so
	// no caller has to re-derive them.
	StateDetail string
	DaysOverdue int
	NextDueDate *time.Time

	NextPaymentDate *time.Time
	LastPayment     *Payment

	// TotalPaid is the sum of settled payments converted to CLP with
	// each payment's stored rate.
	TotalPaid    float64
	PaymentCount int

	IsInstallmentBased bool
	InstallmentsCount  *int
	PerPeriodAmount    *float64
	Currency           Currency
	ScheduleLabel      string

	// OverdueCount is the number of unpaid past-due periods within the
	// last 12 months (never before the covering term's start).
	OverdueCount int
}

// SummaryOptions carries the ambient inputs of the aggregation: "today",
// an optional rate provider for payments missing a stored rate, and an
// optional commitment-id -> most-recent-payment hint map.
type SummaryOptions struct {
	Now             time.Time
	Rates           RateProvider
	LastPaymentHint map[string]Payment
}

// nextPaymentHorizon bounds the forward scan for the next unpaid period.
const nextPaymentHorizon = 24

// overdueLookback bounds how far back unpaid periods are counted.
const overdueLookback = 12

// Summarize computes the consolidated summary of one commitment from its
// payment history. It never fails: empty payment lists and commitments
// without a covering term degrade to zero totals and nil amounts.
func Summarize(c Commitment, payments []Payment, opts SummaryOptions) Summary {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	currentPeriod := PeriodOf(today)

	s := Summary{
		CommitmentID: c.ID,
		Lifecycle:    Classify(c, today),
	}

	term := ResolveTerm(c.Terms, currentPeriod)
	relevant := term
	if relevant == nil {
		relevant = LatestTerm(c.Terms)
	}

	s.aggregatePayments(c, payments, opts)

	var current *Payment
	for i := range payments {
		if payments[i].Period == currentPeriod {
			current = &payments[i]
			break
		}
	}

	if relevant != nil {
		s.Currency = relevant.CurrencyOriginal
		s.ScheduleLabel = ScheduleLabel(*relevant, currentPeriod)
		if n, ok := relevant.Installments.Finite(); ok {
			s.IsInstallmentBased = true
			s.InstallmentsCount = &n
		}
		amount := PerPeriodAmount(*relevant)
		// Override freezing: a recorded payment's overridden amount wins
		// over the live default so already paid periods never shift.
		if current != nil && current.OverriddenAmount != nil {
			amount = *current.OverriddenAmount
		}
		s.PerPeriodAmount = &amount
	}

	switch s.Lifecycle {
	case LifecycleCompleted:
		s.State = StateCompleted
		s.StateDetail = "All installments settled"
	case LifecycleInactive:
		s.classifyInactive(c, payments)
	default:
		s.classifyActive(c, term, payments, current, today, currentPeriod)
	}

	return s
}

// aggregatePayments fills TotalPaid, PaymentCount and LastPayment.
func (s *Summary) aggregatePayments(c Commitment, payments []Payment, opts SummaryOptions) {
	for i := range payments {
		p := &payments[i]
		if !p.Paid() {
			continue
		}
		s.TotalPaid += AmountInBase(*p, opts.Rates)
		s.PaymentCount++
		if s.LastPayment == nil || p.PaymentDate.After(*s.LastPayment.PaymentDate) {
			s.LastPayment = p
		}
	}
	// The hint map is an optimization, not authoritative: use it only
	// when it agrees on the commitment and the scan found nothing newer.
	if hint, ok := opts.LastPaymentHint[c.ID]; ok && hint.CommitmentID == c.ID && hint.Paid() {
		if s.LastPayment == nil || hint.PaymentDate.After(*s.LastPayment.PaymentDate) {
			h := hint
			s.LastPayment = &h
		}
	}
}

// classifyInactive distinguishes a dormant pause from a deliberate
// termination: payments recorded for periods after the last term's end
// imply the commitment was ended, not paused. Informational only.
func (s *Summary) classifyInactive(c Commitment, payments []Payment) {
	s.State = StatePaused
	s.StateDetail = "Paused"
	last := LatestTerm(c.Terms)
	if last == nil || last.EffectiveUntil == nil {
		return
	}
	end := *last.EffectiveUntil
	for i := range payments {
		if payments[i].Period.Start().After(end) {
			s.State = StateTerminated
			s.StateDetail = "Terminated"
			return
		}
	}
}

func (s *Summary) classifyActive(c Commitment, term *Term, payments []Payment, current *Payment, today time.Time, currentPeriod Period) {
	if term == nil {
		// Lifecycle said active but no term covers the current period;
		// treat as pending with nothing due.
		s.State = StatePending
		return
	}

	due := term.DueDateFor(currentPeriod)
	if current != nil {
		due = current.EffectiveDueDate(*term)
	}

	switch {
	case current != nil && current.Paid():
		s.State = StateOK
		s.StateDetail = "Paid " + current.PaymentDate.Format("2006-01-02")
	case today.After(due):
		s.State = StateOverdue
		s.DaysOverdue = int(today.Sub(due).Hours() / 24)
		s.StateDetail = fmt.Sprintf("%d days overdue", s.DaysOverdue)
	case len(payments) == 0:
		s.State = StateNoPayments
		s.StateDetail = "No payments yet"
	default:
		s.State = StatePending
		s.StateDetail = "Due " + due.Format("2006-01-02")
	}
	if s.State != StateOK {
		d := due
		s.NextDueDate = &d
	}

	s.NextPaymentDate = nextUnpaidDueDate(c, payments, currentPeriod)
	s.OverdueCount = countOverduePeriods(c, payments, term, today, currentPeriod)
}

// nextUnpaidDueDate finds the due date of the earliest period at or
// after the current one that has no settled payment, scanning while some
// term covers the period and stopping at the end of a finite span.
func nextUnpaidDueDate(c Commitment, payments []Payment, from Period) *time.Time {
	byPeriod := make(map[Period]*Payment, len(payments))
	for i := range payments {
		byPeriod[payments[i].Period] = &payments[i]
	}

	p := from
	for i := 0; i < nextPaymentHorizon; i++ {
		t := ResolveTerm(c.Terms, p)
		if t == nil {
			return nil
		}
		if n, ok := t.Installments.Finite(); ok {
			if p.MonthsSince(PeriodOf(t.EffectiveFrom))+1 > n {
				return nil
			}
		}
		pay := byPeriod[p]
		if pay == nil || !pay.Paid() {
			due := t.DueDateFor(p)
			if pay != nil {
				due = pay.EffectiveDueDate(*t)
			}
			return &due
		}
		p = p.Next()
	}
	return nil
}

// countOverduePeriods counts unpaid periods whose due date has passed,
// looking back at most overdueLookback months and never before the
// term's effective start.
func countOverduePeriods(c Commitment, payments []Payment, term *Term, today time.Time, currentPeriod Period) int {
	start := PeriodOf(term.EffectiveFrom)
	if floor := currentPeriod.AddMonths(-(overdueLookback - 1)); start.Before(floor) {
		start = floor
	}

	byPeriod := make(map[Period]*Payment, len(payments))
	for i := range payments {
		byPeriod[payments[i].Period] = &payments[i]
	}

	count := 0
	for p := start; !p.After(currentPeriod); p = p.Next() {
		t := ResolveTerm(c.Terms, p)
		if t == nil {
			continue
		}
		pay := byPeriod[p]
		if pay != nil && pay.Paid() {
			continue
		}
		due := t.DueDateFor(p)
		if pay != nil {
			due = pay.EffectiveDueDate(*t)
		}
		if today.After(due) {
			count++
		}
	}
	return count
}
