package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finansheet/internal/core"
	applog "finansheet/internal/log"
	"finansheet/internal/services"
	"finansheet/internal/storage"
)

type fakeService struct {
	commitments map[string]core.Commitment
	summaries   map[string]core.Summary
	payments    []core.Payment
	categories  []core.Category

	summaryCalls   int
	summariesCalls int
}

func newFakeService() *fakeService {
	return &fakeService{
		commitments: make(map[string]core.Commitment),
		summaries:   make(map[string]core.Summary),
	}
}

func (f *fakeService) CreateCommitment(ctx context.Context, name, categoryID string, flow core.FlowType, initial services.NewTermInput) (core.Commitment, error) {
	if name == "" {
		return core.Commitment{}, core.ErrEmptyName
	}
	if initial.AmountOriginal <= 0 {
		return core.Commitment{}, core.ErrInvalidAmount
	}
	c := core.Commitment{
		ID:         "c-new",
		Name:       name,
		CategoryID: categoryID,
		Flow:       flow,
		Terms: []core.Term{{
			ID:               "t-new",
			CommitmentID:     "c-new",
			EffectiveFrom:    initial.EffectiveFrom,
			AmountOriginal:   initial.AmountOriginal,
			CurrencyOriginal: initial.CurrencyOriginal,
			Frequency:        initial.Frequency,
			Installments:     initial.Installments,
			DueDayOfMonth:    initial.DueDayOfMonth,
			IsDividedAmount:  initial.IsDividedAmount,
		}},
	}
	f.commitments[c.ID] = c
	return c, nil
}

func (f *fakeService) GetCommitment(ctx context.Context, id string) (core.Commitment, error) {
	c, ok := f.commitments[id]
	if !ok {
		return core.Commitment{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeService) ListCommitments(ctx context.Context) ([]core.Commitment, error) {
	out := make([]core.Commitment, 0, len(f.commitments))
	for _, c := range f.commitments {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeService) DeleteCommitment(ctx context.Context, id string) error {
	if _, ok := f.commitments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.commitments, id)
	return nil
}

func (f *fakeService) AddTerm(ctx context.Context, commitmentID string, input services.NewTermInput) (core.Term, error) {
	if _, ok := f.commitments[commitmentID]; !ok {
		return core.Term{}, storage.ErrNotFound
	}
	return core.Term{
		ID:               "t-added",
		CommitmentID:     commitmentID,
		EffectiveFrom:    input.EffectiveFrom,
		AmountOriginal:   input.AmountOriginal,
		CurrencyOriginal: input.CurrencyOriginal,
		Frequency:        input.Frequency,
		Installments:     input.Installments,
		DueDayOfMonth:    input.DueDayOfMonth,
	}, nil
}

func (f *fakeService) RescheduleTerm(ctx context.Context, commitmentID, termID string, newStart time.Time) error {
	if _, ok := f.commitments[commitmentID]; !ok {
		return storage.ErrNotFound
	}
	return nil
}

func (f *fakeService) RecordPayment(ctx context.Context, input services.RecordPaymentInput) (core.Payment, error) {
	if _, ok := f.commitments[input.CommitmentID]; !ok {
		return core.Payment{}, storage.ErrNotFound
	}
	amount := 100000.0
	if input.Amount != nil {
		amount = *input.Amount
	}
	p := core.Payment{
		ID:               "p-new",
		CommitmentID:     input.CommitmentID,
		TermID:           "t-new",
		Period:           input.Period,
		PaymentDate:      input.PaymentDate,
		AmountOriginal:   amount,
		CurrencyOriginal: core.CLP,
		FxRateToBase:     1,
		Notes:            input.Notes,
	}
	f.payments = append(f.payments, p)
	return p, nil
}

func (f *fakeService) DeletePayment(ctx context.Context, id string) error {
	for i, p := range f.payments {
		if p.ID == id {
			f.payments = append(f.payments[:i], f.payments[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeService) Summary(ctx context.Context, commitmentID string, now time.Time) (core.Summary, error) {
	f.summaryCalls++
	s, ok := f.summaries[commitmentID]
	if !ok {
		return core.Summary{}, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeService) Summaries(ctx context.Context, filter core.LifecycleFilter, now time.Time) ([]core.Summary, error) {
	f.summariesCalls++
	out := make([]core.Summary, 0, len(f.summaries))
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return f.categories, nil
}

func (f *fakeService) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	c := core.Category{ID: "cat-new", Name: name}
	f.categories = append(f.categories, c)
	return c, nil
}

func newTestServer(t *testing.T, svc Service) *Server {
	t.Helper()
	logger := applog.New(applog.Config{
		Handler: slog.NewTextHandler(io.Discard, nil),
	})
	srv := NewServer(":0", svc, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, newFakeService())

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := newTestServer(t, newFakeService())

	rr := do(srv, http.MethodGet, "/healthz", "")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q", got)
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("missing Content-Security-Policy header")
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv := newTestServer(t, newFakeService())

	rr := do(srv, http.MethodGet, "/api/commitments?file=../../etc/passwd", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for suspicious query, got %d", rr.Code)
	}
}

func TestCreateCommitment(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc)

	body := `{"name":"Car loan","category_id":"cat-1","flow":"expense","term":{"effective_from":"2024-01-01","amount":1200000,"currency":"CLP","frequency":"monthly","installments":12,"due_day_of_month":5,"is_divided_amount":true}}`
	rr := do(srv, http.MethodPost, "/api/commitments", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var got commitmentPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Name != "Car loan" || len(got.Terms) != 1 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Terms[0].Installments == nil || *got.Terms[0].Installments != 12 {
		t.Fatalf("installments not carried: %+v", got.Terms[0])
	}
}

func TestCreateCommitmentValidation(t *testing.T) {
	srv := newTestServer(t, newFakeService())

	// Empty name
	body := `{"name":"","flow":"expense","term":{"effective_from":"2024-01-01","amount":1000,"currency":"CLP","frequency":"monthly","due_day_of_month":5}}`
	rr := do(srv, http.MethodPost, "/api/commitments", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty name, got %d", rr.Code)
	}

	// Malformed date
	body = `{"name":"x","flow":"expense","term":{"effective_from":"01/01/2024","amount":1000,"currency":"CLP","frequency":"monthly","due_day_of_month":5}}`
	rr = do(srv, http.MethodPost, "/api/commitments", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad date, got %d", rr.Code)
	}

	// Broken JSON
	rr = do(srv, http.MethodPost, "/api/commitments", `{"name":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken JSON, got %d", rr.Code)
	}
}

func TestGetCommitmentNotFound(t *testing.T) {
	srv := newTestServer(t, newFakeService())

	rr := do(srv, http.MethodGet, "/api/commitments/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRecordPayment(t *testing.T) {
	svc := newFakeService()
	svc.commitments["c1"] = core.Commitment{ID: "c1", Name: "Rent"}
	srv := newTestServer(t, svc)

	body := `{"commitment_id":"c1","period":"2024-06","payment_date":"2024-06-05","notes":"june"}`
	rr := do(srv, http.MethodPost, "/api/payments", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var got paymentPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Period != "2024-06" || got.Notes != "june" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	// Bad period format
	rr = do(srv, http.MethodPost, "/api/payments", `{"commitment_id":"c1","period":"June 2024"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad period, got %d", rr.Code)
	}
}

func TestSummaryCaching(t *testing.T) {
	svc := newFakeService()
	svc.commitments["c1"] = core.Commitment{ID: "c1", Name: "Rent"}
	svc.summaries["c1"] = core.Summary{CommitmentID: "c1", State: core.StateOK}
	srv := newTestServer(t, svc)

	for i := 0; i < 3; i++ {
		rr := do(srv, http.MethodGet, "/api/commitments/c1/summary", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
	}
	if svc.summaryCalls != 1 {
		t.Fatalf("expected 1 service call through cache, got %d", svc.summaryCalls)
	}

	// A write invalidates the cached summary
	rr := do(srv, http.MethodPost, "/api/payments", `{"commitment_id":"c1","period":"2024-06"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("payment status=%d", rr.Code)
	}
	rr = do(srv, http.MethodGet, "/api/commitments/c1/summary", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if svc.summaryCalls != 2 {
		t.Fatalf("expected recompute after write, got %d calls", svc.summaryCalls)
	}
}

func TestSummariesFilter(t *testing.T) {
	svc := newFakeService()
	svc.summaries["c1"] = core.Summary{CommitmentID: "c1", Lifecycle: core.LifecycleActive, State: core.StateOK}
	srv := newTestServer(t, svc)

	rr := do(srv, http.MethodGet, "/api/summaries?filter=active", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got []summaryPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].State != "ok" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	rr = do(srv, http.MethodGet, "/api/summaries?filter=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown filter, got %d", rr.Code)
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, newFakeService())

	rr := do(srv, http.MethodPost, "/api/categories", `{"name":"Housing"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = do(srv, http.MethodGet, "/api/categories", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got []categoryPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Housing" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestDeletePayment(t *testing.T) {
	svc := newFakeService()
	svc.commitments["c1"] = core.Commitment{ID: "c1"}
	srv := newTestServer(t, svc)

	rr := do(srv, http.MethodPost, "/api/payments", `{"commitment_id":"c1","period":"2024-06"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("payment status=%d", rr.Code)
	}

	rr = do(srv, http.MethodDelete, "/api/payments/p-new", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = do(srv, http.MethodDelete, "/api/payments/p-new", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing payment, got %d", rr.Code)
	}
}
