// Package ledger defines the ports for exporting payment adjustment
// records to an external audit ledger.
package ledger

import (
	"context"

	"impegni/internal/core"
)

// AdjustmentWriter appends one adjustment row to the ledger and returns
// a backend-specific reference to the written row.
type AdjustmentWriter interface {
	Append(ctx context.Context, a core.PaymentAdjustment) (string, error)
}
