package core

import (
	"errors"
	"strings"
	"time"
)

const (
	FlowExpense FlowType = "expense"
	FlowIncome  FlowType = "income"
)

const (
	Monthly    Frequency = "monthly"
	Bimonthly  Frequency = "bimonthly"
	Quarterly  Frequency = "quarterly"
	Semiannual Frequency = "semiannual"
	Annual     Frequency = "annual"
)

type (
	FlowType string

	Frequency string

	// Installments is the installment cardinality of a term: either a
	// finite count or unbounded (open-ended recurring). The zero value is
	// unbounded.
	Installments struct {
		n int
	}

	// Term is one time-bounded version of a commitment's conditions.
	// EffectiveUntil nil means the term is open-ended.
	Term struct {
		ID               string
		CommitmentID     string
		EffectiveFrom    time.Time
		EffectiveUntil   *time.Time
		AmountOriginal   float64
		CurrencyOriginal Currency
		Frequency        Frequency
		Installments     Installments
		DueDayOfMonth    int
		IsDividedAmount  bool
	}

	// Payment records money paid or due for one period of a commitment.
	// PaymentDate nil means the period is still pending.
	Payment struct {
		ID               string
		CommitmentID     string
		TermID           string
		Period           Period
		PaymentDate      *time.Time
		AmountOriginal   float64
		CurrencyOriginal Currency
		FxRateToBase     float64
		OverriddenAmount *float64
		DueDate          *time.Time
		Notes            string
	}

	Category struct {
		ID   string
		Name string
	}

	// Commitment is a recurring or one-off financial obligation with its
	// full term history.
	Commitment struct {
		ID                 string
		Name               string
		CategoryID         string
		Flow               FlowType
		LinkedCommitmentID string
		Terms              []Term
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty commitment name")
	ErrUnknownCurrency  = errors.New("unknown currency")
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrInvalidDueDay    = errors.New("invalid due day of month")
	ErrInvalidTermRange = errors.New("term end precedes term start")
	ErrInvalidFlowType  = errors.New("invalid flow type")
)

// FiniteInstallments returns an installment cardinality of exactly n.
func FiniteInstallments(n int) Installments {
	if n < 1 {
		return Installments{}
	}
	return Installments{n: n}
}

// UnboundedInstallments returns the open-ended cardinality.
func UnboundedInstallments() Installments {
	return Installments{}
}

// Finite returns the installment count and true when the cardinality is
// finite, or (0, false) when unbounded.
func (i Installments) Finite() (int, bool) {
	if i.n < 1 {
		return 0, false
	}
	return i.n, true
}

// IsUnbounded reports whether the cardinality is open-ended.
func (i Installments) IsUnbounded() bool {
	return i.n < 1
}

func (f FlowType) Validate() error {
	switch f {
	case FlowExpense, FlowIncome:
		return nil
	}
	return ErrInvalidFlowType
}

// Months returns how many calendar months one billing period spans.
func (f Frequency) Months() int {
	switch f {
	case Bimonthly:
		return 2
	case Quarterly:
		return 3
	case Semiannual:
		return 6
	case Annual:
		return 12
	default:
		return 1
	}
}

func (f Frequency) Validate() error {
	switch f {
	case Monthly, Bimonthly, Quarterly, Semiannual, Annual:
		return nil
	}
	return ErrUnknownFrequency
}

// Label returns the display label shown in place of an "n/total"
// installment counter for open-ended commitments.
func (f Frequency) Label() string {
	switch f {
	case Bimonthly:
		return "Every 2 months"
	case Quarterly:
		return "Quarterly"
	case Semiannual:
		return "Every 6 months"
	case Annual:
		return "Yearly"
	default:
		return "Monthly"
	}
}

func (t Term) Validate() error {
	if t.EffectiveFrom.IsZero() {
		return errors.New("term start cannot be zero")
	}
	if t.EffectiveUntil != nil && t.EffectiveUntil.Before(t.EffectiveFrom) {
		return ErrInvalidTermRange
	}
	if t.AmountOriginal <= 0 {
		return ErrInvalidAmount
	}
	if err := t.CurrencyOriginal.Validate(); err != nil {
		return err
	}
	if err := t.Frequency.Validate(); err != nil {
		return err
	}
	if t.DueDayOfMonth < 1 || t.DueDayOfMonth > 31 {
		return ErrInvalidDueDay
	}
	return nil
}

// Covers reports whether the term's effective range contains the period.
func (t Term) Covers(p Period) bool {
	start := p.Start()
	if t.EffectiveFrom.After(start) {
		return false
	}
	return t.EffectiveUntil == nil || !t.EffectiveUntil.Before(start)
}

// DueDateFor returns the due date of a period under this term, clamping
// the configured day to the period's month length (day 31 in February
// becomes the 28th or 29th).
func (t Term) DueDateFor(p Period) time.Time {
	day := t.DueDayOfMonth
	if last := p.DaysInMonth(); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}

// Paid reports whether the payment has been settled.
func (p Payment) Paid() bool {
	return p.PaymentDate != nil
}

// EffectiveDueDate returns the payment's own due-date override when set,
// otherwise the term's computed due date for the payment's period.
func (p Payment) EffectiveDueDate(t Term) time.Time {
	if p.DueDate != nil {
		return *p.DueDate
	}
	return t.DueDateFor(p.Period)
}

func (p Payment) Validate() error {
	if p.Period.IsZero() {
		return errors.New("payment period cannot be zero")
	}
	if p.AmountOriginal <= 0 {
		return ErrInvalidAmount
	}
	return p.CurrencyOriginal.Validate()
}

func (c Commitment) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(c.Name) > 200 {
		return errors.New("commitment name too long (max 200 characters)")
	}
	return c.Flow.Validate()
}

// ActiveTerm returns the term covering "today", or nil when today falls
// in a gap or outside all terms.
func (c Commitment) ActiveTerm(today time.Time) *Term {
	return ResolveTerm(c.Terms, PeriodOf(today))
}
