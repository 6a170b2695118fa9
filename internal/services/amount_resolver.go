package services

import (
	"context"
	"fmt"

	"impegni/internal/core"
	"impegni/internal/fx"
)

// AmountResolver computes the amount due for one period under a term.
type AmountResolver struct {
	rates fx.RateSource
}

func NewAmountResolver(rates fx.RateSource) *AmountResolver {
	return &AmountResolver{rates: rates}
}

// PerPeriodAmount returns the base-currency amount due for one period.
// When the term carries a stored base amount and preferBase is set, that
// value is returned directly; otherwise the original amount is converted
// at the live rate.
//
// For a paid period, callers must prefer the payment's stored base amount
// (see SettledAmount) over this recomputation: a settled payment's value
// is fixed at the rate in force when it was recorded.
func (r *AmountResolver) PerPeriodAmount(ctx context.Context, term core.Term, preferBase bool) (core.Money, error) {
	if preferBase && term.AmountBase != nil {
		return *term.AmountBase, nil
	}

	rate, err := r.rates.RateToBase(ctx, term.CurrencyOriginal)
	if err != nil {
		return core.Money{}, fmt.Errorf("rate to base for %s: %w", term.CurrencyOriginal, err)
	}
	return term.AmountOriginal.ConvertAtRate(rate), nil
}

// SettledAmount returns the historically fixed base amount of a recorded
// payment. It never revalues at current rates.
func SettledAmount(p core.Payment) core.Money {
	return p.AmountBase
}
