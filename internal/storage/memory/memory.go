// Package memory provides an in-process store implementing the services'
// row-level ports. It backs tests and the memory data backend, and it
// enforces the same per-row constraints as the SQLite store, including
// the one-payment-per-(commitment, period) uniqueness rule.
package memory

import (
	"context"
	"fmt"
	"sync"

	"impegni/internal/core"
)

type Store struct {
	mu          sync.Mutex
	nextID      int64
	commitments map[int64]core.Commitment
	terms       map[int64]core.Term
	payments    map[int64]core.Payment
	adjustments []core.PaymentAdjustment
}

func New() *Store {
	return &Store{
		commitments: make(map[int64]core.Commitment),
		terms:       make(map[int64]core.Term),
		payments:    make(map[int64]core.Payment),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) GetCommitment(_ context.Context, id int64) (core.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commitments[id]
	if !ok {
		return core.Commitment{}, fmt.Errorf("commitment %d: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) InsertCommitment(_ context.Context, c core.Commitment) (core.Commitment, error) {
	if err := c.Validate(); err != nil {
		return core.Commitment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.commitments[c.ID] = c
	return c, nil
}

// DeleteCommitment removes the commitment together with its terms and
// payments.
func (s *Store) DeleteCommitment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commitments[id]; !ok {
		return fmt.Errorf("commitment %d: %w", id, core.ErrNotFound)
	}
	delete(s.commitments, id)
	for tid, t := range s.terms {
		if t.CommitmentID == id {
			delete(s.terms, tid)
		}
	}
	for pid, p := range s.payments {
		if p.CommitmentID == id {
			delete(s.payments, pid)
		}
	}
	return nil
}

func (s *Store) GetTerm(_ context.Context, id int64) (core.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terms[id]
	if !ok {
		return core.Term{}, fmt.Errorf("term %d: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) TermsByCommitment(_ context.Context, commitmentID int64) ([]core.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Term
	for _, t := range s.terms {
		if t.CommitmentID == commitmentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) InsertTerm(_ context.Context, t core.Term) (core.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.terms[t.ID] = t
	return t, nil
}

func (s *Store) SetTermEffectiveUntil(_ context.Context, id int64, until core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terms[id]
	if !ok {
		return fmt.Errorf("term %d: %w", id, core.ErrNotFound)
	}
	t.EffectiveUntil = &until
	s.terms[id] = t
	return nil
}

func (s *Store) SetTermEffectiveFrom(_ context.Context, id int64, from core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terms[id]
	if !ok {
		return fmt.Errorf("term %d: %w", id, core.ErrNotFound)
	}
	t.EffectiveFrom = from
	s.terms[id] = t
	return nil
}

func (s *Store) GetPayment(_ context.Context, id int64) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return core.Payment{}, fmt.Errorf("payment %d: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) PaymentsByCommitment(_ context.Context, commitmentID int64) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Payment
	for _, p := range s.payments {
		if p.CommitmentID == commitmentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) PaymentsByTerm(_ context.Context, termID int64) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Payment
	for _, p := range s.payments {
		if p.TermID == termID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) InsertPayment(_ context.Context, p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder := s.periodHolder(p.CommitmentID, p.PeriodDate, 0); holder != 0 {
		return core.Payment{}, fmt.Errorf("period %s already settled for commitment %d", p.PeriodDate, p.CommitmentID)
	}
	p.ID = s.id()
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePaymentAssignment(_ context.Context, id int64, termID int64, period core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return fmt.Errorf("payment %d: %w", id, core.ErrNotFound)
	}
	if holder := s.periodHolder(p.CommitmentID, period, id); holder != 0 {
		return fmt.Errorf("period %s already held by payment %d", period, holder)
	}
	p.TermID = termID
	p.PeriodDate = period
	s.payments[id] = p
	return nil
}

// periodHolder returns the id of the payment occupying a commitment's
// period slot, or 0. Callers hold s.mu.
func (s *Store) periodHolder(commitmentID int64, period core.Date, exclude int64) int64 {
	for pid, other := range s.payments {
		if pid == exclude {
			continue
		}
		if other.CommitmentID == commitmentID && other.PeriodDate.Equal(period.Time) {
			return pid
		}
	}
	return 0
}

func (s *Store) InsertAdjustment(_ context.Context, a core.PaymentAdjustment) (core.PaymentAdjustment, error) {
	if err := a.Validate(); err != nil {
		return core.PaymentAdjustment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	s.adjustments = append(s.adjustments, a)
	return a, nil
}

func (s *Store) AdjustmentsByPayment(_ context.Context, paymentID int64) ([]core.PaymentAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.PaymentAdjustment
	for _, a := range s.adjustments {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Adjustments returns every audit record in insertion order.
func (s *Store) Adjustments() []core.PaymentAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.PaymentAdjustment, len(s.adjustments))
	copy(out, s.adjustments)
	return out
}
