package services

import (
	"context"
	"errors"
	"testing"

	"impegni/internal/core"
	"impegni/internal/fx"
	"impegni/internal/storage/memory"
)

func newPaymentFixture(t *testing.T) (*memory.Store, *PaymentService, core.Term) {
	t.Helper()
	store := memory.New()
	rates := fx.NewStaticRates("EUR", map[string]float64{"USD": 0.9})
	svc := NewPaymentService(store, store, store, NewAmountResolver(rates), "EUR")

	ctx := context.Background()
	commitment, err := store.InsertCommitment(ctx, core.Commitment{
		Owner:     "tester",
		Name:      "gym",
		Direction: core.Expense,
	})
	if err != nil {
		t.Fatalf("InsertCommitment() error = %v", err)
	}

	lifecycle := NewLifecycleService(store, store)
	term := core.Term{
		AmountOriginal:   core.Money{Cents: 100000},
		CurrencyOriginal: "USD",
		Frequency:        core.Quarterly,
		EffectiveFrom:    core.NewDate(2024, 1, 1),
	}
	created, err := lifecycle.CreateTerm(ctx, commitment.ID, term)
	if err != nil {
		t.Fatalf("CreateTerm() error = %v", err)
	}
	return store, svc, created
}

func TestRecordPayment(t *testing.T) {
	_, svc, term := newPaymentFixture(t)

	p, err := svc.RecordPayment(context.Background(), 1, 2024, 4, nil)
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if p.TermID != term.ID {
		t.Errorf("payment term = %d, want %d", p.TermID, term.ID)
	}
	if want := core.NewPeriod(2024, 4); !p.PeriodDate.Equal(want.Time) {
		t.Errorf("period date = %s, want %s", p.PeriodDate, want)
	}
	if p.AmountBase.Cents != 90000 {
		t.Errorf("amount = %d cents, want 90000 (converted)", p.AmountBase.Cents)
	}
	if p.AmountOriginal == nil || p.AmountOriginal.Cents != 100000 {
		t.Errorf("original amount = %v, want 100000 cents for foreign currency", p.AmountOriginal)
	}
}

func TestRecordPayment_OffSchedule(t *testing.T) {
	_, svc, _ := newPaymentFixture(t)

	// February is one month after the quarterly anchor.
	_, err := svc.RecordPayment(context.Background(), 1, 2024, 2, nil)
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("RecordPayment() error = %v, want wrapped ErrValidation", err)
	}
}

func TestRecordPayment_UnknownCommitment(t *testing.T) {
	_, svc, _ := newPaymentFixture(t)

	_, err := svc.RecordPayment(context.Background(), 99, 2024, 4, nil)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RecordPayment() error = %v, want wrapped ErrNotFound for unknown commitment", err)
	}
}

func TestRecordPayment_NoCoveringTerm(t *testing.T) {
	_, svc, _ := newPaymentFixture(t)

	_, err := svc.RecordPayment(context.Background(), 1, 2023, 10, nil)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RecordPayment() error = %v, want wrapped ErrNotFound", err)
	}
}

func TestRecordPayment_DuplicatePeriod(t *testing.T) {
	_, svc, _ := newPaymentFixture(t)
	ctx := context.Background()

	if _, err := svc.RecordPayment(ctx, 1, 2024, 4, nil); err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if _, err := svc.RecordPayment(ctx, 1, 2024, 4, nil); err == nil {
		t.Error("RecordPayment() expected error for an already settled period")
	}
}

func TestRecordPayment_AmountOverride(t *testing.T) {
	_, svc, _ := newPaymentFixture(t)

	override := core.Money{Cents: 87500}
	p, err := svc.RecordPayment(context.Background(), 1, 2024, 7, &override)
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if p.AmountBase.Cents != 87500 {
		t.Errorf("amount = %d cents, want the 87500 override", p.AmountBase.Cents)
	}
}
