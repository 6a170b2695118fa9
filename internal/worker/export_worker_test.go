package worker

import (
	"context"
	"testing"
	"time"

	"impegni/internal/amqp"
	"impegni/internal/core"
	ledgermem "impegni/internal/ledger/memory"
)

func TestExportWorker_HandleAdjustmentMessage(t *testing.T) {
	l := ledgermem.New()
	w := NewExportWorker(l)

	a := core.PaymentAdjustment{
		PaymentID:          17,
		OriginalPeriodDate: core.NewPeriod(2024, 6),
		NewPeriodDate:      core.NewPeriod(2024, 7),
		OriginalTermID:     2,
		NewTermID:          2,
		Reason:             core.ReasonEffectiveFromChange,
		Actor:              "tester",
		CreatedAt:          time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC),
	}

	if err := w.HandleAdjustmentMessage(context.Background(), amqp.NewAdjustmentMessage(a)); err != nil {
		t.Fatalf("HandleAdjustmentMessage() error = %v", err)
	}

	rows := l.Rows()
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	got := rows[0]
	if got.PaymentID != a.PaymentID {
		t.Errorf("PaymentID = %d, want %d", got.PaymentID, a.PaymentID)
	}
	if !got.NewPeriodDate.Equal(a.NewPeriodDate.Time) {
		t.Errorf("NewPeriodDate = %v, want %v", got.NewPeriodDate, a.NewPeriodDate)
	}
}

func TestExportWorker_RejectsMalformedMessage(t *testing.T) {
	w := NewExportWorker(ledgermem.New())

	msg := &amqp.AdjustmentMessage{
		PaymentID:          1,
		OriginalPeriodDate: "garbage",
		NewPeriodDate:      "2024-07-01",
	}

	if err := w.HandleAdjustmentMessage(context.Background(), msg); err == nil {
		t.Fatal("expected an error for a malformed period date")
	}
}
