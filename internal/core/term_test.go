package core

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func TestResolveTerm(t *testing.T) {
	first := Term{
		ID:            "t1",
		EffectiveFrom: date(2023, time.January, 1),
		EffectiveUntil: func() *time.Time {
			u := date(2023, time.December, 31)
			return &u
		}(),
		AmountOriginal:   50000,
		CurrencyOriginal: CLP,
		Frequency:        Monthly,
		DueDayOfMonth:    5,
	}
	second := Term{
		ID:               "t2",
		EffectiveFrom:    date(2024, time.March, 1),
		AmountOriginal:   60000,
		CurrencyOriginal: CLP,
		Frequency:        Monthly,
		DueDayOfMonth:    5,
	}
	terms := []Term{first, second}

	tests := []struct {
		name   string
		period Period
		wantID string
	}{
		{"inside first term", NewPeriod(2023, time.June), "t1"},
		{"first month of first term", NewPeriod(2023, time.January), "t1"},
		{"last month of first term", NewPeriod(2023, time.December), "t1"},
		{"gap between terms", NewPeriod(2024, time.January), ""},
		{"first month of open-ended term", NewPeriod(2024, time.March), "t2"},
		{"far future under open-ended term", NewPeriod(2030, time.July), "t2"},
		{"before every term", NewPeriod(2022, time.May), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTerm(terms, tt.period)
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("ResolveTerm() = %v, want nil", got.ID)
				}
				return
			}
			if got == nil {
				t.Fatalf("ResolveTerm() = nil, want %s", tt.wantID)
			}
			if got.ID != tt.wantID {
				t.Errorf("ResolveTerm() = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestResolveTermTieBreak(t *testing.T) {
	// Overlapping terms violate the invariant, but the resolver must
	// still pick the most recently created one instead of crashing.
	older := Term{ID: "old", EffectiveFrom: date(2024, time.January, 1)}
	newer := Term{ID: "new", EffectiveFrom: date(2024, time.March, 1)}

	got := ResolveTerm([]Term{older, newer}, NewPeriod(2024, time.June))
	if got == nil || got.ID != "new" {
		t.Fatalf("ResolveTerm() with overlap = %v, want term 'new'", got)
	}
}

func TestResolveTermExactlyOneOrNone(t *testing.T) {
	// Non-overlapping history: every month in the span resolves to at
	// most one term, and that term's range contains the month.
	terms := []Term{
		{ID: "a", EffectiveFrom: date(2023, time.January, 1), EffectiveUntil: datePtr(2023, time.June, 30)},
		{ID: "b", EffectiveFrom: date(2023, time.September, 1), EffectiveUntil: datePtr(2024, time.February, 29)},
		{ID: "c", EffectiveFrom: date(2024, time.June, 1)},
	}

	p := NewPeriod(2023, time.January)
	end := NewPeriod(2029, time.December)
	for !p.After(end) {
		got := ResolveTerm(terms, p)
		if got != nil && !got.Covers(p) {
			t.Fatalf("ResolveTerm(%s) returned term %s not covering the period", p, got.ID)
		}
		p = p.Next()
	}
}

func TestLatestTerm(t *testing.T) {
	if got := LatestTerm(nil); got != nil {
		t.Errorf("LatestTerm(nil) = %v, want nil", got)
	}

	terms := []Term{
		{ID: "a", EffectiveFrom: date(2023, time.January, 1)},
		{ID: "c", EffectiveFrom: date(2024, time.June, 1)},
		{ID: "b", EffectiveFrom: date(2023, time.September, 1)},
	}
	got := LatestTerm(terms)
	if got == nil || got.ID != "c" {
		t.Errorf("LatestTerm() = %v, want 'c'", got)
	}
}

func TestTermDueDateForClampsDay(t *testing.T) {
	term := Term{DueDayOfMonth: 31}

	tests := []struct {
		name   string
		period Period
		want   time.Time
	}{
		{"31-day month", NewPeriod(2024, time.January), date(2024, time.January, 31)},
		{"leap february", NewPeriod(2024, time.February), date(2024, time.February, 29)},
		{"non-leap february", NewPeriod(2023, time.February), date(2023, time.February, 28)},
		{"30-day month", NewPeriod(2024, time.April), date(2024, time.April, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := term.DueDateFor(tt.period); !got.Equal(tt.want) {
				t.Errorf("DueDateFor(%s) = %v, want %v", tt.period, got, tt.want)
			}
		})
	}
}
