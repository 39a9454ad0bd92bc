package sheets

import (
	"context"

	"finansheet/internal/core"
)

// Ports for outbound export adapters.
type (
	// PaymentExporter appends one payment row to the external sheet and
	// returns a reference to where it landed.
	PaymentExporter interface {
		Append(ctx context.Context, p core.Payment) (rowRef string, err error)
	}
)
