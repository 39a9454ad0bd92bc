package core

import (
	"testing"
	"time"
)

func TestFilterByLifecycle(t *testing.T) {
	today := date(2024, time.June, 15)

	running := Commitment{
		ID: "running", Name: "rent", Flow: FlowExpense,
		Terms: []Term{{
			ID: "t1", CommitmentID: "running",
			EffectiveFrom:    date(2024, time.January, 1),
			AmountOriginal:   500000,
			CurrencyOriginal: CLP,
			Frequency:        Monthly,
			DueDayOfMonth:    1,
		}},
	}
	ended := Commitment{
		ID: "ended", Name: "gym", Flow: FlowExpense,
		Terms: []Term{{
			ID: "t1", CommitmentID: "ended",
			EffectiveFrom:    date(2024, time.January, 1),
			EffectiveUntil:   datePtr(2024, time.March, 31),
			AmountOriginal:   30000,
			CurrencyOriginal: CLP,
			Frequency:        Monthly,
			DueDayOfMonth:    1,
		}},
	}
	settled := Commitment{
		ID: "settled", Name: "tv", Flow: FlowExpense,
		Terms: []Term{{
			ID: "t1", CommitmentID: "settled",
			EffectiveFrom:    date(2024, time.January, 1),
			AmountOriginal:   300000,
			CurrencyOriginal: CLP,
			Frequency:        Monthly,
			Installments:     FiniteInstallments(3),
			DueDayOfMonth:    5,
			IsDividedAmount:  true,
		}},
	}
	all := []Commitment{running, ended, settled}

	tests := []struct {
		name   string
		filter LifecycleFilter
		want   []string
	}{
		{"all passes through", FilterAll, []string{"running", "ended", "settled"}},
		{"empty behaves as all", "", []string{"running", "ended", "settled"}},
		{"active keeps only running", FilterActive, []string{"running"}},
		{"paused keeps ended and completed", FilterPaused, []string{"ended", "settled"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByLifecycle(all, tt.filter, today)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d commitments, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestLifecycleFilterValidate(t *testing.T) {
	for _, f := range []LifecycleFilter{FilterAll, FilterActive, FilterPaused, ""} {
		if !f.Validate() {
			t.Errorf("Validate(%q) = false, want true", f)
		}
	}
	if LifecycleFilter("archived").Validate() {
		t.Error("Validate(archived) = true, want false")
	}
}
