package rates

import (
	"testing"
	"time"

	"finansheet/internal/core"
)

func TestRateKey(t *testing.T) {
	date := time.Date(2024, time.June, 4, 15, 30, 0, 0, time.UTC)
	if got := rateKey(core.USD, date); got != "fx:USD:2024-06-04" {
		t.Errorf("rateKey = %q, want fx:USD:2024-06-04", got)
	}
}
