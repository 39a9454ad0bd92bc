package core

import (
	"errors"
	"time"
)

// ErrRateUnavailable is returned by rate providers that cannot produce a
// CLP-per-unit rate for the requested currency and date.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// RateProvider supplies CLP-per-unit exchange rates. Implementations are
// external collaborators; the core only reads from them and must
// tolerate failures by falling back to a payment's stored rate.
type RateProvider interface {
	Rate(currency Currency, date time.Time) (float64, error)
}

// RateTable is a fixed in-memory RateProvider, mainly for tests and for
// passing already-fetched rates into the aggregator as a plain value.
type RateTable map[Currency]float64

func (rt RateTable) Rate(c Currency, _ time.Time) (float64, error) {
	if c == BaseCurrency {
		return 1, nil
	}
	rate, ok := rt[c]
	if !ok || rate <= 0 {
		return 0, ErrRateUnavailable
	}
	return rate, nil
}

// AmountInBase converts a payment's amount to CLP using, in order: the
// payment's own stored fx_rate_to_base, the provider (at the payment
// date when known), and finally the raw amount unconverted. Stored rates
// win so historical totals stay stable when live rates move.
func AmountInBase(p Payment, rates RateProvider) float64 {
	if p.CurrencyOriginal == BaseCurrency {
		return p.AmountOriginal
	}
	if p.FxRateToBase > 0 {
		return p.AmountOriginal * p.FxRateToBase
	}
	if rates != nil {
		date := p.Period.Start()
		if p.PaymentDate != nil {
			date = *p.PaymentDate
		}
		if rate, err := rates.Rate(p.CurrencyOriginal, date); err == nil && rate > 0 {
			return p.AmountOriginal * rate
		}
	}
	return p.AmountOriginal
}
