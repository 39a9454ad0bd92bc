package http

import (
	"net/http"
	"time"

	"finansheet/internal/core"
	applog "finansheet/internal/log"
	"finansheet/internal/services"
)

// termPayload is the wire shape of a term, both directions.
type termPayload struct {
	ID              string  `json:"id,omitempty"`
	EffectiveFrom   string  `json:"effective_from"`
	EffectiveUntil  *string `json:"effective_until,omitempty"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Frequency       string  `json:"frequency"`
	Installments    *int    `json:"installments,omitempty"`
	DueDayOfMonth   int     `json:"due_day_of_month"`
	IsDividedAmount bool    `json:"is_divided_amount"`
}

type commitmentPayload struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	CategoryID string        `json:"category_id,omitempty"`
	Flow       string        `json:"flow"`
	Terms      []termPayload `json:"terms"`
}

type paymentPayload struct {
	ID               string   `json:"id"`
	CommitmentID     string   `json:"commitment_id"`
	TermID           string   `json:"term_id"`
	Period           string   `json:"period"`
	PaymentDate      *string  `json:"payment_date,omitempty"`
	Amount           float64  `json:"amount"`
	Currency         string   `json:"currency"`
	FxRateToBase     float64  `json:"fx_rate_to_base,omitempty"`
	OverriddenAmount *float64 `json:"overridden_amount,omitempty"`
	DueDate          *string  `json:"due_date,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

type summaryPayload struct {
	CommitmentID       string          `json:"commitment_id"`
	Lifecycle          string          `json:"lifecycle"`
	State              string          `json:"state"`
	StateDetail        string          `json:"state_detail,omitempty"`
	DaysOverdue        int             `json:"days_overdue,omitempty"`
	NextDueDate        *string         `json:"next_due_date,omitempty"`
	NextPaymentDate    *string         `json:"next_payment_date,omitempty"`
	LastPayment        *paymentPayload `json:"last_payment,omitempty"`
	TotalPaid          float64         `json:"total_paid"`
	PaymentCount       int             `json:"payment_count"`
	IsInstallmentBased bool            `json:"is_installment_based"`
	InstallmentsCount  *int            `json:"installments_count,omitempty"`
	PerPeriodAmount    *float64        `json:"per_period_amount,omitempty"`
	Currency           string          `json:"currency,omitempty"`
	ScheduleLabel      string          `json:"schedule_label,omitempty"`
	OverdueCount       int             `json:"overdue_count"`
}

type categoryPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createCommitmentRequest struct {
	Name       string      `json:"name"`
	CategoryID string      `json:"category_id"`
	Flow       string      `json:"flow"`
	Term       termPayload `json:"term"`
}

type recordPaymentRequest struct {
	CommitmentID string   `json:"commitment_id"`
	Period       string   `json:"period"`
	PaymentDate  *string  `json:"payment_date"`
	Amount       *float64 `json:"amount"`
	DueDate      *string  `json:"due_date"`
	Notes        string   `json:"notes"`
}

type rescheduleTermRequest struct {
	NewStart string `json:"new_start"`
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

func termToPayload(t core.Term) termPayload {
	p := termPayload{
		ID:              t.ID,
		EffectiveFrom:   formatDate(t.EffectiveFrom),
		EffectiveUntil:  formatOptionalDate(t.EffectiveUntil),
		Amount:          t.AmountOriginal,
		Currency:        string(t.CurrencyOriginal),
		Frequency:       string(t.Frequency),
		DueDayOfMonth:   t.DueDayOfMonth,
		IsDividedAmount: t.IsDividedAmount,
	}
	if n, ok := t.Installments.Finite(); ok {
		p.Installments = &n
	}
	return p
}

func commitmentToPayload(c core.Commitment) commitmentPayload {
	p := commitmentPayload{
		ID:         c.ID,
		Name:       c.Name,
		CategoryID: c.CategoryID,
		Flow:       string(c.Flow),
		Terms:      make([]termPayload, 0, len(c.Terms)),
	}
	for _, t := range c.Terms {
		p.Terms = append(p.Terms, termToPayload(t))
	}
	return p
}

func paymentToPayload(p core.Payment) paymentPayload {
	return paymentPayload{
		ID:               p.ID,
		CommitmentID:     p.CommitmentID,
		TermID:           p.TermID,
		Period:           p.Period.String(),
		PaymentDate:      formatOptionalDate(p.PaymentDate),
		Amount:           p.AmountOriginal,
		Currency:         string(p.CurrencyOriginal),
		FxRateToBase:     p.FxRateToBase,
		OverriddenAmount: p.OverriddenAmount,
		DueDate:          formatOptionalDate(p.DueDate),
		Notes:            p.Notes,
	}
}

func summaryToPayload(s core.Summary) summaryPayload {
	p := summaryPayload{
		CommitmentID:       s.CommitmentID,
		Lifecycle:          string(s.Lifecycle),
		State:              string(s.State),
		StateDetail:        s.StateDetail,
		DaysOverdue:        s.DaysOverdue,
		NextDueDate:        formatOptionalDate(s.NextDueDate),
		NextPaymentDate:    formatOptionalDate(s.NextPaymentDate),
		TotalPaid:          s.TotalPaid,
		PaymentCount:       s.PaymentCount,
		IsInstallmentBased: s.IsInstallmentBased,
		InstallmentsCount:  s.InstallmentsCount,
		PerPeriodAmount:    s.PerPeriodAmount,
		Currency:           string(s.Currency),
		ScheduleLabel:      s.ScheduleLabel,
		OverdueCount:       s.OverdueCount,
	}
	if s.LastPayment != nil {
		lp := paymentToPayload(*s.LastPayment)
		p.LastPayment = &lp
	}
	return p
}

// termInputFromPayload validates and converts the wire term into the
// service input shape.
func termInputFromPayload(p termPayload) (services.NewTermInput, error) {
	from, err := parseDate(p.EffectiveFrom)
	if err != nil {
		return services.NewTermInput{}, err
	}

	installments := core.UnboundedInstallments()
	if p.Installments != nil {
		installments = core.FiniteInstallments(*p.Installments)
	}

	return services.NewTermInput{
		EffectiveFrom:    from,
		AmountOriginal:   p.Amount,
		CurrencyOriginal: core.Currency(p.Currency),
		Frequency:        core.Frequency(p.Frequency),
		Installments:     installments,
		DueDayOfMonth:    p.DueDayOfMonth,
		IsDividedAmount:  p.IsDividedAmount,
	}, nil
}

func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	commitments, err := s.service.ListCommitments(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List commitments failed", applog.FieldError, err.Error())
		writeServiceError(w, err)
		return
	}

	out := make([]commitmentPayload, 0, len(commitments))
	for _, c := range commitments {
		out = append(out, commitmentToPayload(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req createCommitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, err := termInputFromPayload(req.Term)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid term effective_from date")
		return
	}

	c, err := s.service.CreateCommitment(r.Context(), sanitizeInput(req.Name), req.CategoryID, core.FlowType(req.Flow), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.invalidateSummaries(c.ID)
	writeJSON(w, http.StatusCreated, commitmentToPayload(c))
}

func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetCommitment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commitmentToPayload(c))
}

func (s *Server) handleDeleteCommitment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteCommitment(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	s.invalidateSummaries(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.cachedSummary(r.Context(), r.PathValue("id"), time.Now().UTC())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryToPayload(sum))
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	filter := core.FilterAll
	if v := r.URL.Query().Get("filter"); v != "" {
		filter = core.LifecycleFilter(v)
		if !filter.Validate() {
			writeError(w, http.StatusBadRequest, "unknown filter")
			return
		}
	}

	sums, err := s.cachedSummaries(r.Context(), filter, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Summaries failed",
			"filter", string(filter), applog.FieldError, err.Error())
		writeServiceError(w, err)
		return
	}

	out := make([]summaryPayload, 0, len(sums))
	for _, sum := range sums {
		out = append(out, summaryToPayload(sum))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddTerm(w http.ResponseWriter, r *http.Request) {
	var req termPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, err := termInputFromPayload(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid effective_from date")
		return
	}

	id := r.PathValue("id")
	term, err := s.service.AddTerm(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.invalidateSummaries(id)
	writeJSON(w, http.StatusCreated, termToPayload(term))
}

func (s *Server) handleRescheduleTerm(w http.ResponseWriter, r *http.Request) {
	var req rescheduleTermRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newStart, err := parseDate(req.NewStart)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid new_start date")
		return
	}

	id := r.PathValue("id")
	if err := s.service.RescheduleTerm(r.Context(), id, r.PathValue("termID"), newStart); err != nil {
		writeServiceError(w, err)
		return
	}

	s.invalidateSummaries(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	period, err := parsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid period, expected YYYY-MM")
		return
	}
	paymentDate, err := parseOptionalDate(req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid payment_date")
		return
	}
	dueDate, err := parseOptionalDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid due_date")
		return
	}

	p, err := s.service.RecordPayment(r.Context(), services.RecordPaymentInput{
		CommitmentID: req.CommitmentID,
		Period:       period,
		PaymentDate:  paymentDate,
		Amount:       req.Amount,
		DueDate:      dueDate,
		Notes:        sanitizeInput(req.Notes),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.invalidateSummaries(p.CommitmentID)
	writeJSON(w, http.StatusCreated, paymentToPayload(p))
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePayment(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}

	// The payment row is gone; without its commitment id every cached
	// summary is stale.
	s.summaryCache.DeletePrefix("summary:")
	s.listCache.DeletePrefix("summaries:")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]categoryPayload, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryPayload{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := s.service.CreateCategory(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryPayload{ID: c.ID, Name: c.Name})
}
