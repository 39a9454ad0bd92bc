package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"finansheet/internal/core"
	"finansheet/internal/services"
	"finansheet/internal/storage"
)

const dateLayout = "2006-01-02"

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrNoCoveringTerm),
		errors.Is(err, services.ErrNotWholeMonths),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrUnknownCurrency),
		errors.Is(err, core.ErrUnknownFrequency),
		errors.Is(err, core.ErrInvalidDueDay),
		errors.Is(err, core.ErrInvalidTermRange),
		errors.Is(err, core.ErrInvalidFlowType):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON parses a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(dateStr))
}

// parsePeriod parses a billing period in YYYY-MM format.
func parsePeriod(periodStr string) (core.Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(periodStr))
	if err != nil {
		return core.Period{}, err
	}
	return core.PeriodOf(t), nil
}

// parseOptionalDate parses a nullable date field.
func parseOptionalDate(dateStr *string) (*time.Time, error) {
	if dateStr == nil || strings.TrimSpace(*dateStr) == "" {
		return nil, nil
	}
	t, err := parseDate(*dateStr)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
