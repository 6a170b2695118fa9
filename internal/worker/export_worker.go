// Package worker contains the audit export worker: it drains payment
// adjustment messages off the queue and appends them to the configured
// ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"impegni/internal/amqp"
	"impegni/internal/ledger"
)

type ExportWorker struct {
	ledger ledger.AdjustmentWriter
}

func NewExportWorker(ledger ledger.AdjustmentWriter) *ExportWorker {
	return &ExportWorker{ledger: ledger}
}

// HandleAdjustmentMessage exports a single adjustment message to the
// ledger. Returning an error makes the consumer nack and requeue the
// delivery, so transient ledger failures are retried.
func (w *ExportWorker) HandleAdjustmentMessage(ctx context.Context, msg *amqp.AdjustmentMessage) error {
	a, err := msg.Adjustment()
	if err != nil {
		return fmt.Errorf("decode adjustment: %w", err)
	}

	ref, err := w.ledger.Append(ctx, a)
	if err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}

	slog.InfoContext(ctx, "Adjustment exported",
		"payment_id", a.PaymentID,
		"reason", a.Reason,
		"ledger_ref", ref)

	return nil
}
