package rates

import (
	"os"
	"strconv"

	"finansheet/internal/core"
)

// StaticFromEnv builds the baseline rate table from FX_RATE_* variables.
// Currencies without a configured rate stay unresolvable and callers
// fall back to the rate stored on each payment.
func StaticFromEnv() core.RateTable {
	table := core.RateTable{}
	for _, currency := range []core.Currency{core.USD, core.EUR, core.UF, core.UTM} {
		if rate := envRate("FX_RATE_" + string(currency)); rate > 0 {
			table[currency] = rate
		}
	}
	return table
}

func envRate(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	rate, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return rate
}
