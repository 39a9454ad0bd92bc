package core

import (
	"math"
	"testing"
	"time"
)

func TestPerPeriodAmount(t *testing.T) {
	tests := []struct {
		name string
		term Term
		want float64
	}{
		{
			name: "divided total across 12 installments",
			term: Term{
				AmountOriginal:  1200000,
				Installments:    FiniteInstallments(12),
				IsDividedAmount: true,
			},
			want: 100000,
		},
		{
			name: "per-period amount already",
			term: Term{
				AmountOriginal:  45000,
				Installments:    FiniteInstallments(12),
				IsDividedAmount: false,
			},
			want: 45000,
		},
		{
			name: "divided flag on unbounded term is a no-op",
			term: Term{
				AmountOriginal:  45000,
				IsDividedAmount: true,
			},
			want: 45000,
		},
		{
			name: "divided flag with single installment is a no-op",
			term: Term{
				AmountOriginal:  45000,
				Installments:    FiniteInstallments(1),
				IsDividedAmount: true,
			},
			want: 45000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PerPeriodAmount(tt.term); got != tt.want {
				t.Errorf("PerPeriodAmount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPerPeriodAmountRoundTrip(t *testing.T) {
	// For a divided term, per-period * n must reproduce the total within
	// floating-point tolerance.
	for _, n := range []int{2, 3, 7, 12, 48} {
		term := Term{
			EffectiveFrom:   date(2024, time.January, 1),
			AmountOriginal:  999999.99,
			Installments:    FiniteInstallments(n),
			IsDividedAmount: true,
		}
		got := PerPeriodAmount(term) * float64(n)
		if math.Abs(got-term.AmountOriginal) > 1e-6 {
			t.Errorf("n=%d: per-period*n = %v, want %v", n, got, term.AmountOriginal)
		}
	}
}
