// Package services orchestrates commitment and payment operations across
// storage, exchange rates and the sync queue.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finansheet/internal/core"
)

// Repository is the storage surface the service needs.
type Repository interface {
	CreateCommitment(ctx context.Context, c core.Commitment) error
	GetCommitment(ctx context.Context, id string) (core.Commitment, error)
	ListCommitments(ctx context.Context) ([]core.Commitment, error)
	DeleteCommitment(ctx context.Context, id string) error
	CreateTerm(ctx context.Context, t core.Term) error
	CloseTerm(ctx context.Context, termID string, until time.Time) error
	ShiftTermStart(ctx context.Context, termID string, from time.Time, months int) error
	UpsertPayment(ctx context.Context, p core.Payment) error
	ListPayments(ctx context.Context, commitmentID string) ([]core.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) error
}

// SyncPublisher pushes payment sync messages to the export worker.
type SyncPublisher interface {
	PublishPaymentSync(ctx context.Context, paymentID, commitmentID string) error
}

// ErrNoCoveringTerm is returned when a payment is recorded for a period
// no term covers.
var ErrNoCoveringTerm = errors.New("no term covers the requested period")

// ErrNotWholeMonths is returned when a term reschedule does not move the
// start by whole months.
var ErrNotWholeMonths = errors.New("term start can only move by whole months")

// CommitmentService orchestrates commitment operations across SQLite,
// exchange rates and AMQP.
type CommitmentService struct {
	repo      Repository
	publisher SyncPublisher
	rates     core.RateProvider
}

func NewCommitmentService(repo Repository, publisher SyncPublisher, rates core.RateProvider) *CommitmentService {
	return &CommitmentService{
		repo:      repo,
		publisher: publisher,
		rates:     rates,
	}
}

// NewTermInput is the user-facing shape of a term before IDs are minted.
type NewTermInput struct {
	EffectiveFrom    time.Time
	AmountOriginal   float64
	CurrencyOriginal core.Currency
	Frequency        core.Frequency
	Installments     core.Installments
	DueDayOfMonth    int
	IsDividedAmount  bool
}

// CreateCommitment mints IDs, validates and persists a commitment with
// its initial term.
func (s *CommitmentService) CreateCommitment(ctx context.Context, name, categoryID string, flow core.FlowType, initial NewTermInput) (core.Commitment, error) {
	c := core.Commitment{
		ID:         uuid.NewString(),
		Name:       name,
		CategoryID: categoryID,
		Flow:       flow,
	}
	if err := c.Validate(); err != nil {
		return core.Commitment{}, err
	}

	term := materializeTerm(c.ID, initial)
	if err := term.Validate(); err != nil {
		return core.Commitment{}, err
	}
	c.Terms = []core.Term{term}

	if err := s.repo.CreateCommitment(ctx, c); err != nil {
		return core.Commitment{}, err
	}
	return c, nil
}

// AddTerm appends a new term to a commitment, closing the currently open
// term the day before the new one starts.
func (s *CommitmentService) AddTerm(ctx context.Context, commitmentID string, input NewTermInput) (core.Term, error) {
	c, err := s.repo.GetCommitment(ctx, commitmentID)
	if err != nil {
		return core.Term{}, err
	}

	term := materializeTerm(commitmentID, input)
	if err := term.Validate(); err != nil {
		return core.Term{}, err
	}

	if open := openTerm(c.Terms); open != nil {
		if !term.EffectiveFrom.After(open.EffectiveFrom) {
			return core.Term{}, fmt.Errorf("new term must start after %s", open.EffectiveFrom.Format("2006-01-02"))
		}
		until := term.EffectiveFrom.AddDate(0, 0, -1)
		if err := s.repo.CloseTerm(ctx, open.ID, until); err != nil {
			return core.Term{}, fmt.Errorf("close open term: %w", err)
		}
	}

	if err := s.repo.CreateTerm(ctx, term); err != nil {
		return core.Term{}, err
	}

	slog.InfoContext(ctx, "Term added",
		"commitment_id", commitmentID,
		"term_id", term.ID,
		"effective_from", term.EffectiveFrom.Format("2006-01-02"))
	return term, nil
}

// RescheduleTerm moves a term's start date. Only whole-month moves are
// allowed so the attached payments' periods stay meaningful; the storage
// layer shifts them by the same offset.
func (s *CommitmentService) RescheduleTerm(ctx context.Context, commitmentID, termID string, newStart time.Time) error {
	c, err := s.repo.GetCommitment(ctx, commitmentID)
	if err != nil {
		return err
	}
	var term *core.Term
	for i := range c.Terms {
		if c.Terms[i].ID == termID {
			term = &c.Terms[i]
			break
		}
	}
	if term == nil {
		return fmt.Errorf("term %s not found on commitment %s", termID, commitmentID)
	}

	if newStart.Day() != term.EffectiveFrom.Day() {
		return ErrNotWholeMonths
	}
	months := core.PeriodOf(newStart).MonthsSince(core.PeriodOf(term.EffectiveFrom))
	if months == 0 {
		return nil
	}

	return s.repo.ShiftTermStart(ctx, termID, newStart, months)
}

// RecordPaymentInput is the user-facing shape of a payment record.
type RecordPaymentInput struct {
	CommitmentID string
	Period       core.Period
	PaymentDate  *time.Time
	Amount       *float64 // nil means use the term's per-period default
	DueDate      *time.Time
	Notes        string
}

// RecordPayment resolves the covering term, computes the amount (marking
// a manual amount as an override), captures the exchange rate, persists
// the row and queues it for export.
func (s *CommitmentService) RecordPayment(ctx context.Context, input RecordPaymentInput) (core.Payment, error) {
	c, err := s.repo.GetCommitment(ctx, input.CommitmentID)
	if err != nil {
		return core.Payment{}, err
	}

	term := core.ResolveTerm(c.Terms, input.Period)
	if term == nil {
		return core.Payment{}, ErrNoCoveringTerm
	}

	amount := core.PerPeriodAmount(*term)
	var overridden *float64
	if input.Amount != nil && *input.Amount != amount {
		amount = *input.Amount
		overridden = input.Amount
	}
	if amount <= 0 {
		return core.Payment{}, core.ErrInvalidAmount
	}

	p := core.Payment{
		ID:               uuid.NewString(),
		CommitmentID:     input.CommitmentID,
		TermID:           term.ID,
		Period:           input.Period,
		PaymentDate:      input.PaymentDate,
		AmountOriginal:   amount,
		CurrencyOriginal: term.CurrencyOriginal,
		FxRateToBase:     s.lookupRate(ctx, term.CurrencyOriginal, input),
		OverriddenAmount: overridden,
		DueDate:          input.DueDate,
		Notes:            input.Notes,
	}
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}

	if err := s.repo.UpsertPayment(ctx, p); err != nil {
		return core.Payment{}, fmt.Errorf("save payment: %w", err)
	}

	// Export is best-effort; the worker's pending scan picks up anything
	// the queue misses.
	if s.publisher != nil {
		if err := s.publisher.PublishPaymentSync(ctx, p.ID, p.CommitmentID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish sync message",
				"payment_id", p.ID, "error", err)
		}
	} else {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
	}

	return p, nil
}

// lookupRate freezes the CLP conversion rate at record time. Base
// currency rows carry rate 1; lookup failures leave the rate at zero and
// the aggregator falls back to a live provider.
func (s *CommitmentService) lookupRate(ctx context.Context, currency core.Currency, input RecordPaymentInput) float64 {
	if currency == core.BaseCurrency {
		return 1
	}
	if s.rates == nil {
		return 0
	}
	date := input.Period.Start()
	if input.PaymentDate != nil {
		date = *input.PaymentDate
	}
	rate, err := s.rates.Rate(currency, date)
	if err != nil {
		slog.WarnContext(ctx, "Exchange rate lookup failed",
			"currency", string(currency), "error", err)
		return 0
	}
	return rate
}

// DeletePayment removes a payment record.
func (s *CommitmentService) DeletePayment(ctx context.Context, id string) error {
	return s.repo.DeletePayment(ctx, id)
}

// Summary computes the consolidated summary of one commitment.
func (s *CommitmentService) Summary(ctx context.Context, commitmentID string, now time.Time) (core.Summary, error) {
	c, err := s.repo.GetCommitment(ctx, commitmentID)
	if err != nil {
		return core.Summary{}, err
	}
	payments, err := s.repo.ListPayments(ctx, commitmentID)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(c, payments, core.SummaryOptions{Now: now, Rates: s.rates}), nil
}

// Summaries computes summaries for every commitment passing the
// lifecycle filter.
func (s *CommitmentService) Summaries(ctx context.Context, filter core.LifecycleFilter, now time.Time) ([]core.Summary, error) {
	commitments, err := s.repo.ListCommitments(ctx)
	if err != nil {
		return nil, err
	}
	commitments = core.FilterByLifecycle(commitments, filter, now)

	out := make([]core.Summary, 0, len(commitments))
	for _, c := range commitments {
		payments, err := s.repo.ListPayments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Summarize(c, payments, core.SummaryOptions{Now: now, Rates: s.rates}))
	}
	return out, nil
}

// GetCommitment fetches one commitment with its full term history.
func (s *CommitmentService) GetCommitment(ctx context.Context, id string) (core.Commitment, error) {
	return s.repo.GetCommitment(ctx, id)
}

// ListCommitments fetches every commitment with its terms attached.
func (s *CommitmentService) ListCommitments(ctx context.Context) ([]core.Commitment, error) {
	return s.repo.ListCommitments(ctx)
}

// DeleteCommitment removes a commitment with its terms and payments.
func (s *CommitmentService) DeleteCommitment(ctx context.Context, id string) error {
	return s.repo.DeleteCommitment(ctx, id)
}

// ListCategories fetches all categories.
func (s *CommitmentService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory mints an ID and persists a category.
func (s *CommitmentService) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	if name == "" {
		return core.Category{}, errors.New("empty category name")
	}
	c := core.Category{ID: uuid.NewString(), Name: name}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func materializeTerm(commitmentID string, input NewTermInput) core.Term {
	return core.Term{
		ID:               uuid.NewString(),
		CommitmentID:     commitmentID,
		EffectiveFrom:    input.EffectiveFrom,
		AmountOriginal:   input.AmountOriginal,
		CurrencyOriginal: input.CurrencyOriginal,
		Frequency:        input.Frequency,
		Installments:     input.Installments,
		DueDayOfMonth:    input.DueDayOfMonth,
		IsDividedAmount:  input.IsDividedAmount,
	}
}

// openTerm returns the term without an end date, if any.
func openTerm(terms []core.Term) *core.Term {
	for i := range terms {
		if terms[i].EffectiveUntil == nil {
			return &terms[i]
		}
	}
	return nil
}
