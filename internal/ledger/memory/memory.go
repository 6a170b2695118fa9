// Package memory is an in-memory ledger writer used for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"impegni/internal/core"
)

type Ledger struct {
	mu   sync.Mutex
	rows []core.PaymentAdjustment
}

func New() *Ledger {
	return &Ledger{}
}

// Append stores the adjustment and returns a synthetic row reference.
func (l *Ledger) Append(_ context.Context, a core.PaymentAdjustment) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, a)
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

// Rows returns a copy of everything written so far.
func (l *Ledger) Rows() []core.PaymentAdjustment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.PaymentAdjustment(nil), l.rows...)
}
