package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finansheet/internal/core"
)

type fakeRepo struct {
	commitments map[string]core.Commitment
	payments    map[string]core.Payment
	categories  []core.Category

	closedTerms map[string]time.Time
	shifts      map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		commitments: make(map[string]core.Commitment),
		payments:    make(map[string]core.Payment),
		closedTerms: make(map[string]time.Time),
		shifts:      make(map[string]int),
	}
}

func (f *fakeRepo) CreateCommitment(_ context.Context, c core.Commitment) error {
	f.commitments[c.ID] = c
	return nil
}

func (f *fakeRepo) GetCommitment(_ context.Context, id string) (core.Commitment, error) {
	c, ok := f.commitments[id]
	if !ok {
		return core.Commitment{}, errors.New("not found")
	}
	return c, nil
}

func (f *fakeRepo) ListCommitments(_ context.Context) ([]core.Commitment, error) {
	var out []core.Commitment
	for _, c := range f.commitments {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) DeleteCommitment(_ context.Context, id string) error {
	delete(f.commitments, id)
	return nil
}

func (f *fakeRepo) CreateTerm(_ context.Context, t core.Term) error {
	c := f.commitments[t.CommitmentID]
	c.Terms = append(c.Terms, t)
	f.commitments[t.CommitmentID] = c
	return nil
}

func (f *fakeRepo) CloseTerm(_ context.Context, termID string, until time.Time) error {
	f.closedTerms[termID] = until
	for id, c := range f.commitments {
		for i := range c.Terms {
			if c.Terms[i].ID == termID {
				u := until
				c.Terms[i].EffectiveUntil = &u
				f.commitments[id] = c
			}
		}
	}
	return nil
}

func (f *fakeRepo) ShiftTermStart(_ context.Context, termID string, from time.Time, months int) error {
	f.shifts[termID] = months
	return nil
}

func (f *fakeRepo) UpsertPayment(_ context.Context, p core.Payment) error {
	f.payments[p.ID] = p
	return nil
}

func (f *fakeRepo) ListPayments(_ context.Context, commitmentID string) ([]core.Payment, error) {
	var out []core.Payment
	for _, p := range f.payments {
		if p.CommitmentID == commitmentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeletePayment(_ context.Context, id string) error {
	delete(f.payments, id)
	return nil
}

func (f *fakeRepo) ListCategories(_ context.Context) ([]core.Category, error) {
	return f.categories, nil
}

func (f *fakeRepo) CreateCategory(_ context.Context, c core.Category) error {
	f.categories = append(f.categories, c)
	return nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) PublishPaymentSync(_ context.Context, paymentID, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, paymentID)
	return nil
}

func monthlyInput() NewTermInput {
	return NewTermInput{
		EffectiveFrom:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		AmountOriginal:   1200000,
		CurrencyOriginal: core.CLP,
		Frequency:        core.Monthly,
		Installments:     core.FiniteInstallments(12),
		DueDayOfMonth:    5,
		IsDividedAmount:  true,
	}
}

func TestCreateCommitment(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, nil)
	ctx := context.Background()

	c, err := svc.CreateCommitment(ctx, "car loan", "", core.FlowExpense, monthlyInput())
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}
	if c.ID == "" {
		t.Error("commitment ID not minted")
	}
	if len(c.Terms) != 1 || c.Terms[0].CommitmentID != c.ID {
		t.Errorf("initial term = %+v, want one term bound to %s", c.Terms, c.ID)
	}
	if _, ok := repo.commitments[c.ID]; !ok {
		t.Error("commitment not persisted")
	}
}

func TestCreateCommitmentValidation(t *testing.T) {
	svc := NewCommitmentService(newFakeRepo(), nil, nil)
	ctx := context.Background()

	if _, err := svc.CreateCommitment(ctx, "", "", core.FlowExpense, monthlyInput()); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("empty name error = %v, want ErrEmptyName", err)
	}

	bad := monthlyInput()
	bad.AmountOriginal = -1
	if _, err := svc.CreateCommitment(ctx, "x", "", core.FlowExpense, bad); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative amount error = %v, want ErrInvalidAmount", err)
	}
}

func TestAddTermClosesOpenTerm(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, nil)
	ctx := context.Background()

	input := monthlyInput()
	input.Installments = core.UnboundedInstallments()
	c, err := svc.CreateCommitment(ctx, "rent", "", core.FlowExpense, input)
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}
	firstTermID := c.Terms[0].ID

	second := monthlyInput()
	second.EffectiveFrom = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	second.AmountOriginal = 550000
	second.Installments = core.UnboundedInstallments()

	term, err := svc.AddTerm(ctx, c.ID, second)
	if err != nil {
		t.Fatalf("AddTerm: %v", err)
	}
	if term.CommitmentID != c.ID {
		t.Errorf("term bound to %s, want %s", term.CommitmentID, c.ID)
	}

	wantUntil := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	if got, ok := repo.closedTerms[firstTermID]; !ok || !got.Equal(wantUntil) {
		t.Errorf("first term closed at %v, want %v", got, wantUntil)
	}
}

func TestAddTermRejectsEarlierStart(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, nil)
	ctx := context.Background()

	input := monthlyInput()
	input.Installments = core.UnboundedInstallments()
	c, err := svc.CreateCommitment(ctx, "rent", "", core.FlowExpense, input)
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	earlier := monthlyInput()
	earlier.EffectiveFrom = time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.AddTerm(ctx, c.ID, earlier); err == nil {
		t.Error("AddTerm accepted a start before the open term")
	}
}

func TestRecordPaymentDefaultAmount(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewCommitmentService(repo, pub, nil)
	ctx := context.Background()

	c, err := svc.CreateCommitment(ctx, "car loan", "", core.FlowExpense, monthlyInput())
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	paid := time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC)
	p, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CommitmentID: c.ID,
		Period:       core.NewPeriod(2024, time.June),
		PaymentDate:  &paid,
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	if p.AmountOriginal != 100000 {
		t.Errorf("AmountOriginal = %v, want divided default 100000", p.AmountOriginal)
	}
	if p.OverriddenAmount != nil {
		t.Errorf("OverriddenAmount = %v, want nil for default amount", p.OverriddenAmount)
	}
	if p.FxRateToBase != 1 {
		t.Errorf("FxRateToBase = %v, want 1 for CLP", p.FxRateToBase)
	}
	if len(pub.published) != 1 || pub.published[0] != p.ID {
		t.Errorf("published = %v, want [%s]", pub.published, p.ID)
	}
}

func TestRecordPaymentOverride(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, nil)
	ctx := context.Background()

	c, err := svc.CreateCommitment(ctx, "car loan", "", core.FlowExpense, monthlyInput())
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	amount := 95000.0
	p, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CommitmentID: c.ID,
		Period:       core.NewPeriod(2024, time.June),
		Amount:       &amount,
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if p.AmountOriginal != 95000 {
		t.Errorf("AmountOriginal = %v, want 95000", p.AmountOriginal)
	}
	if p.OverriddenAmount == nil || *p.OverriddenAmount != 95000 {
		t.Errorf("OverriddenAmount = %v, want 95000", p.OverriddenAmount)
	}
}

func TestRecordPaymentNoCoveringTerm(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, nil)
	ctx := context.Background()

	c, err := svc.CreateCommitment(ctx, "car loan", "", core.FlowExpense, monthlyInput())
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	_, err = svc.RecordPayment(ctx, RecordPaymentInput{
		CommitmentID: c.ID,
		Period:       core.NewPeriod(2023, time.June),
	})
	if !errors.Is(err, ErrNoCoveringTerm) {
		t.Errorf("error = %v, want ErrNoCoveringTerm", err)
	}
}

func TestRecordPaymentCapturesRate(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, core.RateTable{core.USD: 950})
	ctx := context.Background()

	input := monthlyInput()
	input.CurrencyOriginal = core.USD
	input.AmountOriginal = 120
	c, err := svc.CreateCommitment(ctx, "hosting", "", core.FlowExpense, input)
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	p, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CommitmentID: c.ID,
		Period:       core.NewPeriod(2024, time.June),
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if p.FxRateToBase != 950 {
		t.Errorf("FxRateToBase = %v, want captured 950", p.FxRateToBase)
	}
}

func TestRecordPaymentSurvivesPublishFailure(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewCommitmentService(repo, pub, nil)
	ctx := context.Background()

	c, err := svc.CreateCommitment(ctx, "car loan", "", core.FlowExpense, monthlyInput())
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	p, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CommitmentID: c.ID,
		Period:       core.NewPeriod(2024, time.June),
	})
	if err != nil {
		t.Fatalf("RecordPayment should not fail on publish error, got %v", err)
	}
	if _, ok := repo.payments[p.ID]; !ok {
		t.Error("payment not persisted despite publish failure")
	}
}

func TestRescheduleTerm(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, nil)
	ctx := context.Background()

	c, err := svc.CreateCommitment(ctx, "car loan", "", core.FlowExpense, monthlyInput())
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}
	termID := c.Terms[0].ID

	t.Run("whole month shift", func(t *testing.T) {
		newStart := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
		if err := svc.RescheduleTerm(ctx, c.ID, termID, newStart); err != nil {
			t.Fatalf("RescheduleTerm: %v", err)
		}
		if repo.shifts[termID] != 2 {
			t.Errorf("shift = %d months, want 2", repo.shifts[termID])
		}
	})

	t.Run("partial month rejected", func(t *testing.T) {
		newStart := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
		if err := svc.RescheduleTerm(ctx, c.ID, termID, newStart); !errors.Is(err, ErrNotWholeMonths) {
			t.Errorf("error = %v, want ErrNotWholeMonths", err)
		}
	})
}

func TestSummaries(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCommitmentService(repo, nil, nil)
	ctx := context.Background()
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

	active, err := svc.CreateCommitment(ctx, "rent", "", core.FlowExpense, NewTermInput{
		EffectiveFrom:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		AmountOriginal:   500000,
		CurrencyOriginal: core.CLP,
		Frequency:        core.Monthly,
		DueDayOfMonth:    1,
	})
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	ended := monthlyInput()
	ended.EffectiveFrom = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.CreateCommitment(ctx, "old loan", "", core.FlowExpense, ended); err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}

	all, err := svc.Summaries(ctx, core.FilterAll, now)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %d summaries, want 2", len(all))
	}

	activeOnly, err := svc.Summaries(ctx, core.FilterActive, now)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].CommitmentID != active.ID {
		t.Errorf("active = %v, want only %s", activeOnly, active.ID)
	}
}
