package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"impegni/internal/core"
)

// PaymentService records settlements of a commitment for a calendar
// period. The recorded base amount is fixed at recording time and is
// never revalued afterwards.
type PaymentService struct {
	commitments  CommitmentStore
	terms        TermStore
	payments     PaymentStore
	amounts      *AmountResolver
	baseCurrency string
}

func NewPaymentService(commitments CommitmentStore, terms TermStore, payments PaymentStore, amounts *AmountResolver, baseCurrency string) *PaymentService {
	return &PaymentService{
		commitments:  commitments,
		terms:        terms,
		payments:     payments,
		amounts:      amounts,
		baseCurrency: strings.ToUpper(baseCurrency),
	}
}

// RecordPayment settles the given month of a commitment. The period is
// canonicalized to the first of the month; the governing term is resolved
// from the commitment's term history and the month must fall on the
// term's recurrence schedule. amountOverride, when non-nil, replaces the
// resolved per-period amount (the user settled a different figure).
//
// The store enforces one payment per (commitment, period date); a
// duplicate insert surfaces as the store's uniqueness error.
func (s *PaymentService) RecordPayment(ctx context.Context, commitmentID int64, year, month int, amountOverride *core.Money) (core.Payment, error) {
	period := core.NewPeriod(year, month)

	if _, err := s.commitments.GetCommitment(ctx, commitmentID); err != nil {
		return core.Payment{}, fmt.Errorf("get commitment: %w", err)
	}

	terms, err := s.terms.TermsByCommitment(ctx, commitmentID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("list terms: %w", err)
	}
	term := ResolveTerm(terms, year, month)
	if term == nil {
		return core.Payment{}, fmt.Errorf("%w: no term covers %s", core.ErrNotFound, period.String())
	}

	due, err := IsPeriodDue(term.Frequency, term.EffectiveFrom, period)
	if err != nil {
		return core.Payment{}, fmt.Errorf("%w: %s", core.ErrValidation, err)
	}
	if !due {
		return core.Payment{}, fmt.Errorf("%w: %s is not on the %s schedule starting %s",
			core.ErrValidation, period.String(), term.Frequency, term.EffectiveFrom.FirstOfMonth().String())
	}

	amount := core.Money{}
	if amountOverride != nil {
		amount = *amountOverride
	} else {
		amount, err = s.amounts.PerPeriodAmount(ctx, *term, true)
		if err != nil {
			return core.Payment{}, fmt.Errorf("resolve amount: %w", err)
		}
	}

	payment := core.Payment{
		CommitmentID: commitmentID,
		TermID:       term.ID,
		PeriodDate:   period,
		AmountBase:   amount,
	}
	if !strings.EqualFold(term.CurrencyOriginal, s.baseCurrency) {
		original := term.AmountOriginal
		payment.AmountOriginal = &original
	}
	if err := payment.Validate(); err != nil {
		return core.Payment{}, fmt.Errorf("%w: %s", core.ErrValidation, err)
	}

	created, err := s.payments.InsertPayment(ctx, payment)
	if err != nil {
		return core.Payment{}, fmt.Errorf("insert payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment recorded",
		"commitment_id", commitmentID,
		"payment_id", created.ID,
		"term_id", term.ID,
		"period_date", period.String(),
		"amount_cents", created.AmountBase.Cents)

	return created, nil
}
