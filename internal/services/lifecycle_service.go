package services

import (
	"context"
	"fmt"
	"log/slog"

	"impegni/internal/core"
)

// LifecycleService drives a commitment's term state machine: no terms,
// active (one open term), paused (latest term bounded), active again via
// resume. Reads and writes go through row-level store ports; there is no
// optimistic-concurrency check between the read and the write.
type LifecycleService struct {
	terms    TermStore
	payments PaymentStore
}

func NewLifecycleService(terms TermStore, payments PaymentStore) *LifecycleService {
	return &LifecycleService{
		terms:    terms,
		payments: payments,
	}
}

// CreateTerm persists a new version of the commitment's parameters. The
// version is assigned here: max of the existing versions plus one,
// starting at 1. A term whose effective range overlaps an existing term
// of the same commitment is rejected.
func (s *LifecycleService) CreateTerm(ctx context.Context, commitmentID int64, term core.Term) (core.Term, error) {
	term.CommitmentID = commitmentID
	if err := term.Validate(); err != nil {
		return core.Term{}, fmt.Errorf("%w: %s", core.ErrValidation, err)
	}

	existing, err := s.terms.TermsByCommitment(ctx, commitmentID)
	if err != nil {
		return core.Term{}, fmt.Errorf("list terms: %w", err)
	}

	maxVersion := 0
	for _, t := range existing {
		if t.Version > maxVersion {
			maxVersion = t.Version
		}
		if term.Overlaps(t) {
			return core.Term{}, fmt.Errorf("%w: effective range overlaps term version %d", core.ErrValidation, t.Version)
		}
	}
	term.Version = maxVersion + 1

	created, err := s.terms.InsertTerm(ctx, term)
	if err != nil {
		return core.Term{}, fmt.Errorf("insert term: %w", err)
	}

	slog.InfoContext(ctx, "Term created",
		"commitment_id", commitmentID,
		"term_id", created.ID,
		"version", created.Version,
		"effective_from", created.EffectiveFrom.String(),
		"frequency", created.Frequency)

	return created, nil
}

// PauseCommitment closes coverage after lastMonth: the term covering
// that month gets its effective-until set to the last calendar day of
// lastMonth. Terms starting after lastMonth are never touched, so
// pausing inside a coverage gap fails with ErrNotFound.
func (s *LifecycleService) PauseCommitment(ctx context.Context, commitmentID int64, lastMonth core.Date) (core.Term, error) {
	period := lastMonth.FirstOfMonth()

	terms, err := s.terms.TermsByCommitment(ctx, commitmentID)
	if err != nil {
		return core.Term{}, fmt.Errorf("list terms: %w", err)
	}

	var target *core.Term
	for i := range terms {
		t := &terms[i]
		if t.EffectiveFrom.After(period.Time) {
			// A term starting after the pause month cannot be bounded
			// by it; doing so would end it before its own start.
			continue
		}
		if t.EffectiveUntil != nil && t.EffectiveUntil.Before(period.Time) {
			continue
		}
		if target == nil || t.Version > target.Version {
			target = t
		}
	}
	if target == nil {
		return core.Term{}, fmt.Errorf("%w: no term covers %s", core.ErrNotFound, period.String())
	}

	until := lastMonth.EndOfMonth()
	if err := s.terms.SetTermEffectiveUntil(ctx, target.ID, until); err != nil {
		return core.Term{}, fmt.Errorf("set effective until: %w", err)
	}
	target.EffectiveUntil = &until

	slog.InfoContext(ctx, "Commitment paused",
		"commitment_id", commitmentID,
		"term_id", target.ID,
		"version", target.Version,
		"effective_until", until.String())

	return *target, nil
}

// ResumeCommitment creates a new term after a pause. The new term's
// effective-from must fall strictly after the latest term's
// effective-until; on success the term is created through CreateTerm and
// gets the next version number.
func (s *LifecycleService) ResumeCommitment(ctx context.Context, commitmentID int64, term core.Term) (core.Term, error) {
	terms, err := s.terms.TermsByCommitment(ctx, commitmentID)
	if err != nil {
		return core.Term{}, fmt.Errorf("list terms: %w", err)
	}
	if len(terms) == 0 {
		return core.Term{}, fmt.Errorf("%w: commitment %d has no term to resume from", core.ErrNotFound, commitmentID)
	}

	var latest core.Term
	for _, t := range terms {
		if t.Version > latest.Version {
			latest = t
		}
	}
	if latest.EffectiveUntil == nil {
		return core.Term{}, fmt.Errorf("%w: latest term is open-ended, commitment is not paused", core.ErrValidation)
	}
	if !term.EffectiveFrom.After(latest.EffectiveUntil.Time) {
		return core.Term{}, fmt.Errorf("%w: effective from %s must be after %s",
			core.ErrValidation, term.EffectiveFrom.String(), latest.EffectiveUntil.String())
	}

	return s.CreateTerm(ctx, commitmentID, term)
}

// HasPaymentsInRange reports whether any recorded payment of the
// commitment falls inside the inclusive period range. Read-only; used by
// callers to warn before shrinking a term's coverage.
func (s *LifecycleService) HasPaymentsInRange(ctx context.Context, commitmentID int64, from, until core.Date) (bool, error) {
	payments, err := s.payments.PaymentsByCommitment(ctx, commitmentID)
	if err != nil {
		return false, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range payments {
		if p.PeriodDate.Before(from.Time) || p.PeriodDate.After(until.Time) {
			continue
		}
		return true, nil
	}
	return false, nil
}

// HasTermsInRange reports whether any other term of the commitment
// intersects the inclusive date range. excludeTermID skips the term being
// edited.
func (s *LifecycleService) HasTermsInRange(ctx context.Context, commitmentID int64, from, until core.Date, excludeTermID int64) (bool, error) {
	terms, err := s.terms.TermsByCommitment(ctx, commitmentID)
	if err != nil {
		return false, fmt.Errorf("list terms: %w", err)
	}
	span := core.Term{EffectiveFrom: from, EffectiveUntil: &until}
	for _, t := range terms {
		if t.ID == excludeTermID {
			continue
		}
		if span.Overlaps(t) {
			return true, nil
		}
	}
	return false, nil
}
