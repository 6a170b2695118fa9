package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"impegni/internal/core"
)

// ReassignmentService moves already-recorded payments when a term's start
// date is edited after the fact: each affected payment's period date is
// shifted by the same number of months and the payment is re-parented to
// the target term, with an audit record written first.
//
// The engine runs against a row-oriented store with no cross-row
// transaction, so a crash mid-run leaves a partially applied state.
// Re-running with the same input converges: already-moved payments are
// simply moved again relative to their current date only if the caller
// recomputes the remaining shift. Partial failure is surfaced through the
// returned count, never through an error.
type ReassignmentService struct {
	terms       TermStore
	payments    PaymentStore
	adjustments AdjustmentStore
	publisher   AdjustmentPublisher // optional
	now         func() time.Time
}

func NewReassignmentService(terms TermStore, payments PaymentStore, adjustments AdjustmentStore, publisher AdjustmentPublisher) *ReassignmentService {
	return &ReassignmentService{
		terms:       terms,
		payments:    payments,
		adjustments: adjustments,
		publisher:   publisher,
		now:         time.Now,
	}
}

// ReassignPayments shifts every payment's period date by the month
// distance between oldFrom and newFrom and re-parents it to newTermID.
// It returns the number of payments successfully updated; callers compare
// that to len(payments) to detect partial failure.
//
// Precondition carried by the processing order: each (commitment, period
// date) pair stays unique at every intermediate step. When dates move
// later, payments are processed latest-first; when they move earlier,
// earliest-first. Either way a payment vacates its slot before any
// not-yet-processed payment needs it. The loop is strictly sequential and
// must not be parallelized.
func (s *ReassignmentService) ReassignPayments(ctx context.Context, payments []core.Payment, newTermID int64, oldFrom, newFrom core.Date, actor string) int {
	shift := core.MonthsBetween(oldFrom.FirstOfMonth(), newFrom.FirstOfMonth())
	if shift == 0 || len(payments) == 0 {
		return 0
	}

	ordered := make([]core.Payment, len(payments))
	copy(ordered, payments)
	sort.Slice(ordered, func(i, j int) bool {
		if shift > 0 {
			return ordered[i].PeriodDate.After(ordered[j].PeriodDate.Time)
		}
		return ordered[i].PeriodDate.Before(ordered[j].PeriodDate.Time)
	})

	slog.InfoContext(ctx, "Reassigning payments",
		"count", len(ordered),
		"month_shift", shift,
		"new_term_id", newTermID)

	reassigned := 0
	for _, p := range ordered {
		newPeriod := p.PeriodDate.AddMonths(shift)

		// Audit first. A failed audit write is logged and does not block
		// the payment update.
		adj := core.PaymentAdjustment{
			PaymentID:          p.ID,
			OriginalPeriodDate: p.PeriodDate,
			NewPeriodDate:      newPeriod,
			OriginalTermID:     p.TermID,
			NewTermID:          newTermID,
			Reason:             core.ReasonEffectiveFromChange,
			Actor:              actor,
			CreatedAt:          s.now().UTC(),
		}
		stored, err := s.adjustments.InsertAdjustment(ctx, adj)
		if err != nil {
			slog.WarnContext(ctx, "Failed to write payment adjustment",
				"payment_id", p.ID,
				"error", err)
		} else {
			s.publish(ctx, stored)
		}

		if err := s.payments.UpdatePaymentAssignment(ctx, p.ID, newTermID, newPeriod); err != nil {
			slog.ErrorContext(ctx, "Failed to reassign payment",
				"payment_id", p.ID,
				"period_date", p.PeriodDate.String(),
				"new_period_date", newPeriod.String(),
				"error", err)
			continue
		}
		reassigned++
	}

	if reassigned < len(ordered) {
		slog.WarnContext(ctx, "Payment reassignment incomplete",
			"reassigned", reassigned,
			"total", len(ordered))
	} else {
		slog.InfoContext(ctx, "Payment reassignment complete",
			"reassigned", reassigned)
	}

	return reassigned
}

// ShiftTermStart edits a term's effective-from date and reassigns the
// payments recorded under it. Returns the reassigned count together with
// the total number of affected payments.
func (s *ReassignmentService) ShiftTermStart(ctx context.Context, termID int64, newFrom core.Date, actor string) (reassigned, affected int, err error) {
	term, err := s.terms.GetTerm(ctx, termID)
	if err != nil {
		return 0, 0, fmt.Errorf("get term %d: %w", termID, err)
	}

	oldFrom := term.EffectiveFrom
	if core.MonthsBetween(oldFrom.FirstOfMonth(), newFrom.FirstOfMonth()) == 0 {
		return 0, 0, nil
	}

	payments, err := s.payments.PaymentsByTerm(ctx, termID)
	if err != nil {
		return 0, 0, fmt.Errorf("list payments for term %d: %w", termID, err)
	}

	if err := s.terms.SetTermEffectiveFrom(ctx, termID, newFrom); err != nil {
		return 0, 0, fmt.Errorf("set effective from: %w", err)
	}

	n := s.ReassignPayments(ctx, payments, termID, oldFrom, newFrom, actor)
	return n, len(payments), nil
}

func (s *ReassignmentService) publish(ctx context.Context, a core.PaymentAdjustment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAdjustment(ctx, a); err != nil {
		slog.WarnContext(ctx, "Failed to publish adjustment event",
			"payment_id", a.PaymentID,
			"error", err)
	}
}
