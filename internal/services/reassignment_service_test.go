package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"impegni/internal/core"
	"impegni/internal/storage/memory"
)

// recordingPaymentStore wraps a PaymentStore and records the order of
// assignment updates, optionally failing specific payment ids.
type recordingPaymentStore struct {
	PaymentStore
	updated []int64
	fail    map[int64]error
}

func (r *recordingPaymentStore) UpdatePaymentAssignment(ctx context.Context, id int64, termID int64, period core.Date) error {
	if err, ok := r.fail[id]; ok {
		return err
	}
	if err := r.PaymentStore.UpdatePaymentAssignment(ctx, id, termID, period); err != nil {
		return err
	}
	r.updated = append(r.updated, id)
	return nil
}

// failingAdjustmentStore rejects every audit write.
type failingAdjustmentStore struct{}

func (failingAdjustmentStore) InsertAdjustment(context.Context, core.PaymentAdjustment) (core.PaymentAdjustment, error) {
	return core.PaymentAdjustment{}, errors.New("audit store unavailable")
}

func (failingAdjustmentStore) AdjustmentsByPayment(context.Context, int64) ([]core.PaymentAdjustment, error) {
	return nil, nil
}

type capturingPublisher struct {
	published []core.PaymentAdjustment
	err       error
}

func (p *capturingPublisher) PublishAdjustment(_ context.Context, a core.PaymentAdjustment) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, a)
	return nil
}

// seedYearOfPayments inserts one payment per month of 2024 for the given
// commitment and term, returning them in insertion order.
func seedYearOfPayments(t *testing.T, store *memory.Store, commitmentID, termID int64) []core.Payment {
	t.Helper()
	ctx := context.Background()
	payments := make([]core.Payment, 0, 12)
	for month := 1; month <= 12; month++ {
		p, err := store.InsertPayment(ctx, core.Payment{
			CommitmentID: commitmentID,
			TermID:       termID,
			PeriodDate:   core.NewPeriod(2024, month),
			AmountBase:   core.Money{Cents: 100000},
		})
		if err != nil {
			t.Fatalf("InsertPayment(month %d) error = %v", month, err)
		}
		payments = append(payments, p)
	}
	return payments
}

func TestReassignPayments_ShiftLater(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	recorder := &recordingPaymentStore{PaymentStore: store}
	svc := NewReassignmentService(store, recorder, store, nil)

	payments := seedYearOfPayments(t, store, 1, 10)

	n := svc.ReassignPayments(ctx, payments, 20,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), "tester")
	if n != 12 {
		t.Fatalf("ReassignPayments() = %d, want 12", n)
	}

	// Moving dates later must process latest-first: the December slot is
	// vacated into free space before November needs it, and so on down.
	if len(recorder.updated) != 12 {
		t.Fatalf("updated %d payments, want 12", len(recorder.updated))
	}
	for i, id := range recorder.updated {
		wantMonth := 12 - i
		want := payments[wantMonth-1].ID
		if id != want {
			t.Fatalf("update %d touched payment %d, want payment %d (month %d)", i, id, want, wantMonth)
		}
	}

	// All twelve now carry dates 2024-02-01 .. 2025-01-01 under term 20.
	moved, err := store.PaymentsByCommitment(ctx, 1)
	if err != nil {
		t.Fatalf("PaymentsByCommitment() error = %v", err)
	}
	byID := make(map[int64]core.Payment, len(moved))
	for _, p := range moved {
		byID[p.ID] = p
	}
	for i, original := range payments {
		got := byID[original.ID]
		want := core.NewPeriod(2024, i+1).AddMonths(1)
		if !got.PeriodDate.Equal(want.Time) {
			t.Errorf("payment %d period = %s, want %s", original.ID, got.PeriodDate, want)
		}
		if got.TermID != 20 {
			t.Errorf("payment %d term = %d, want 20", original.ID, got.TermID)
		}
	}

	// One audit record per payment with matching original/new dates.
	adjustments := store.Adjustments()
	if len(adjustments) != 12 {
		t.Fatalf("adjustment count = %d, want 12", len(adjustments))
	}
	for _, a := range adjustments {
		if !a.NewPeriodDate.Equal(a.OriginalPeriodDate.AddMonths(1).Time) {
			t.Errorf("adjustment for payment %d: %s -> %s, want one month later",
				a.PaymentID, a.OriginalPeriodDate, a.NewPeriodDate)
		}
		if a.OriginalTermID != 10 || a.NewTermID != 20 {
			t.Errorf("adjustment terms = %d -> %d, want 10 -> 20", a.OriginalTermID, a.NewTermID)
		}
		if a.Reason != core.ReasonEffectiveFromChange {
			t.Errorf("adjustment reason = %q", a.Reason)
		}
	}
}

func TestReassignPayments_ShiftEarlier(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	recorder := &recordingPaymentStore{PaymentStore: store}
	svc := NewReassignmentService(store, recorder, store, nil)

	payments := seedYearOfPayments(t, store, 1, 10)

	n := svc.ReassignPayments(ctx, payments, 10,
		core.NewDate(2024, 2, 1), core.NewDate(2024, 1, 1), "tester")
	if n != 12 {
		t.Fatalf("ReassignPayments() = %d, want 12", n)
	}

	// Moving dates earlier processes earliest-first.
	for i, id := range recorder.updated {
		want := payments[i].ID
		if id != want {
			t.Fatalf("update %d touched payment %d, want payment %d", i, id, want)
		}
	}

	moved, _ := store.PaymentsByCommitment(ctx, 1)
	byID := make(map[int64]core.Payment, len(moved))
	for _, p := range moved {
		byID[p.ID] = p
	}
	for i, original := range payments {
		want := core.NewPeriod(2024, i+1).AddMonths(-1)
		if got := byID[original.ID]; !got.PeriodDate.Equal(want.Time) {
			t.Errorf("payment %d period = %s, want %s", original.ID, got.PeriodDate, want)
		}
	}
}

func TestReassignPayments_NoShift(t *testing.T) {
	store := memory.New()
	svc := NewReassignmentService(store, store, store, nil)
	payments := seedYearOfPayments(t, store, 1, 10)

	n := svc.ReassignPayments(context.Background(), payments, 10,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 15), "tester")
	if n != 0 {
		t.Errorf("ReassignPayments() = %d, want 0 for same-month edit", n)
	}
	if len(store.Adjustments()) != 0 {
		t.Error("same-month edit must not write adjustments")
	}
}

func TestReassignPayments_PartialFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	payments := seedYearOfPayments(t, store, 1, 10)

	// Failing January is processed last under a +1 shift, so its failure
	// cannot cascade into other rows' target slots.
	recorder := &recordingPaymentStore{
		PaymentStore: store,
		fail: map[int64]error{
			payments[0].ID: errors.New("row update timeout"),
		},
	}
	svc := NewReassignmentService(store, recorder, store, nil)

	n := svc.ReassignPayments(ctx, payments, 20,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), "tester")
	if n != 11 {
		t.Errorf("ReassignPayments() = %d, want 11 with one failing row", n)
	}

	// The failed row keeps its original assignment.
	got, err := store.GetPayment(ctx, payments[0].ID)
	if err != nil {
		t.Fatalf("GetPayment() error = %v", err)
	}
	if !got.PeriodDate.Equal(payments[0].PeriodDate.Time) || got.TermID != 10 {
		t.Errorf("failed payment %d was mutated: %+v", got.ID, got)
	}
}

func TestReassignPayments_AuditFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	publisher := &capturingPublisher{}
	svc := NewReassignmentService(store, store, failingAdjustmentStore{}, publisher)

	payments := seedYearOfPayments(t, store, 1, 10)

	n := svc.ReassignPayments(ctx, payments, 20,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), "tester")
	if n != 12 {
		t.Errorf("ReassignPayments() = %d, want 12 despite audit failures", n)
	}
	if len(publisher.published) != 0 {
		t.Error("publisher must not receive events for failed audit writes")
	}
}

func TestReassignPayments_PublishesAdjustments(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	publisher := &capturingPublisher{}
	svc := NewReassignmentService(store, store, store, publisher)

	payments := seedYearOfPayments(t, store, 1, 10)

	if n := svc.ReassignPayments(ctx, payments, 20,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), "tester"); n != 12 {
		t.Fatalf("ReassignPayments() = %d, want 12", n)
	}
	if len(publisher.published) != 12 {
		t.Errorf("published %d adjustment events, want 12", len(publisher.published))
	}

	// A broken publisher never blocks the mutation either.
	store2 := memory.New()
	payments2 := seedYearOfPayments(t, store2, 1, 10)
	svc2 := NewReassignmentService(store2, store2, store2, &capturingPublisher{err: fmt.Errorf("broker down")})
	if n := svc2.ReassignPayments(ctx, payments2, 20,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), "tester"); n != 12 {
		t.Errorf("ReassignPayments() = %d, want 12 with failing publisher", n)
	}
}

func TestShiftTermStart(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	lifecycle := NewLifecycleService(store, store)

	term, err := lifecycle.CreateTerm(ctx, 3, monthlyTerm(core.NewDate(2024, 1, 1), 100000))
	if err != nil {
		t.Fatalf("CreateTerm() error = %v", err)
	}
	payments := seedYearOfPayments(t, store, 3, term.ID)

	svc := NewReassignmentService(store, store, store, nil)
	reassigned, affected, err := svc.ShiftTermStart(ctx, term.ID, core.NewDate(2024, 3, 1), "tester")
	if err != nil {
		t.Fatalf("ShiftTermStart() error = %v", err)
	}
	if reassigned != 12 || affected != 12 {
		t.Errorf("ShiftTermStart() = (%d, %d), want (12, 12)", reassigned, affected)
	}

	updated, err := store.GetTerm(ctx, term.ID)
	if err != nil {
		t.Fatalf("GetTerm() error = %v", err)
	}
	if want := core.NewDate(2024, 3, 1); !updated.EffectiveFrom.Equal(want.Time) {
		t.Errorf("term effective from = %s, want %s", updated.EffectiveFrom, want)
	}

	moved, _ := store.PaymentsByTerm(ctx, term.ID)
	byID := make(map[int64]core.Payment, len(moved))
	for _, p := range moved {
		byID[p.ID] = p
	}
	for i, original := range payments {
		want := core.NewPeriod(2024, i+1).AddMonths(2)
		if got := byID[original.ID]; !got.PeriodDate.Equal(want.Time) {
			t.Errorf("payment %d period = %s, want %s", original.ID, got.PeriodDate, want)
		}
	}
}

func TestShiftTermStart_UnknownTerm(t *testing.T) {
	store := memory.New()
	svc := NewReassignmentService(store, store, store, nil)

	_, _, err := svc.ShiftTermStart(context.Background(), 99, core.NewDate(2024, 3, 1), "tester")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("ShiftTermStart() error = %v, want wrapped ErrNotFound", err)
	}
}
