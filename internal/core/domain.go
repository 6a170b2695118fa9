package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Once         Frequency = "once"
	Monthly      Frequency = "monthly"
	Bimonthly    Frequency = "bimonthly"
	Quarterly    Frequency = "quarterly"
	Semiannually Frequency = "semiannually"
	Annually     Frequency = "annually"
)

const (
	Income  FlowDirection = "income"
	Expense FlowDirection = "expense"
)

// ReasonEffectiveFromChange is the adjustment reason recorded when payments
// are moved because a term's start date was edited retroactively.
const ReasonEffectiveFromChange = "term_effective_from_change"

type (
	// Frequency is how often a commitment falls due, anchored at the
	// owning term's effective-from month.
	Frequency string

	FlowDirection string

	Money struct {
		Cents int64
	}

	// Commitment is a named recurring or one-off financial obligation.
	// Deleting a commitment cascades to its terms and payments.
	Commitment struct {
		ID        int64
		Owner     string
		Name      string
		Category  string
		Direction FlowDirection
	}

	// Term is one version of a commitment's contractual parameters, valid
	// over an inclusive date range. EffectiveUntil nil means open-ended.
	// Per commitment, versions are monotonically increasing from 1 and
	// ranges are expected not to overlap.
	Term struct {
		ID               int64
		CommitmentID     int64
		Version          int
		AmountOriginal   Money
		CurrencyOriginal string
		AmountBase       *Money // nil: derive from AmountOriginal at the live rate
		Frequency        Frequency
		EffectiveFrom    Date
		EffectiveUntil   *Date
	}

	// Payment records a commitment being settled for one period. PeriodDate
	// is canonicalized to the first of the month and is unique per
	// commitment. TermID is the only parent reference that ever moves
	// (see the reassignment service).
	Payment struct {
		ID             int64
		CommitmentID   int64
		TermID         int64
		PeriodDate     Date
		AmountBase     Money
		AmountOriginal *Money
	}

	// PaymentAdjustment is an append-only audit record of one reassignment.
	// It is written before the payment itself is mutated.
	PaymentAdjustment struct {
		ID                 int64
		PaymentID          int64
		OriginalPeriodDate Date
		NewPeriodDate      Date
		OriginalTermID     int64
		NewTermID          int64
		Reason             string
		Actor              string
		CreatedAt          time.Time
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrEmptyName        = errors.New("empty name")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Euros returns the euro value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

func (f Frequency) Validate() error {
	switch f {
	case Once, Monthly, Bimonthly, Quarterly, Semiannually, Annually:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (c Commitment) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(c.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	switch c.Direction {
	case Income, Expense:
	default:
		return errors.New("invalid flow direction")
	}
	return nil
}

// IsOpenEnded reports whether the term has no end date.
func (t Term) IsOpenEnded() bool {
	return t.EffectiveUntil == nil
}

// Covers reports whether the inclusive [EffectiveFrom, EffectiveUntil]
// range contains the given period date.
func (t Term) Covers(period Date) bool {
	if period.Before(t.EffectiveFrom.Time) {
		return false
	}
	if t.EffectiveUntil == nil {
		return true
	}
	return !period.After(t.EffectiveUntil.Time)
}

// Overlaps reports whether two terms' effective ranges intersect.
func (t Term) Overlaps(other Term) bool {
	if t.EffectiveUntil != nil && other.EffectiveFrom.After(t.EffectiveUntil.Time) {
		return false
	}
	if other.EffectiveUntil != nil && t.EffectiveFrom.After(other.EffectiveUntil.Time) {
		return false
	}
	return true
}

func (t Term) Validate() error {
	if err := t.EffectiveFrom.Validate(); err != nil {
		return errors.New("invalid effective from: " + err.Error())
	}
	if t.EffectiveUntil != nil {
		if err := t.EffectiveUntil.Validate(); err != nil {
			return errors.New("invalid effective until: " + err.Error())
		}
		if t.EffectiveUntil.Before(t.EffectiveFrom.Time) {
			return errors.New("effective until precedes effective from")
		}
	}
	if err := t.Frequency.Validate(); err != nil {
		return err
	}
	if err := t.AmountOriginal.Validate(); err != nil {
		return err
	}
	if t.AmountBase != nil {
		if err := t.AmountBase.Validate(); err != nil {
			return err
		}
	}
	if len(t.CurrencyOriginal) != 3 {
		return ErrInvalidCurrency
	}
	return nil
}

func (p Payment) Validate() error {
	if err := p.PeriodDate.Validate(); err != nil {
		return errors.New("invalid period date: " + err.Error())
	}
	if err := p.AmountBase.Validate(); err != nil {
		return err
	}
	if p.AmountOriginal != nil {
		if err := p.AmountOriginal.Validate(); err != nil {
			return err
		}
	}
	if p.CommitmentID == 0 {
		return errors.New("payment without commitment")
	}
	return nil
}

func (a PaymentAdjustment) Validate() error {
	if a.PaymentID == 0 {
		return errors.New("adjustment without payment")
	}
	if err := a.OriginalPeriodDate.Validate(); err != nil {
		return errors.New("invalid original period date: " + err.Error())
	}
	if err := a.NewPeriodDate.Validate(); err != nil {
		return errors.New("invalid new period date: " + err.Error())
	}
	if strings.TrimSpace(a.Reason) == "" {
		return errors.New("empty adjustment reason")
	}
	return nil
}
