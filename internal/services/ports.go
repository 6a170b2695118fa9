package services

import (
	"context"

	"impegni/internal/core"
)

// Store ports consumed by the services. Every method is a single-row
// operation against the backing store; no multi-row transaction is
// available at this layer, so bulk flows (see ReassignmentService) must
// stay correct one row at a time.
type (
	CommitmentStore interface {
		GetCommitment(ctx context.Context, id int64) (core.Commitment, error)
		InsertCommitment(ctx context.Context, c core.Commitment) (core.Commitment, error)
		// DeleteCommitment cascades to the commitment's terms and payments.
		DeleteCommitment(ctx context.Context, id int64) error
	}

	TermStore interface {
		GetTerm(ctx context.Context, id int64) (core.Term, error)
		TermsByCommitment(ctx context.Context, commitmentID int64) ([]core.Term, error)
		InsertTerm(ctx context.Context, t core.Term) (core.Term, error)
		SetTermEffectiveUntil(ctx context.Context, id int64, until core.Date) error
		SetTermEffectiveFrom(ctx context.Context, id int64, from core.Date) error
	}

	PaymentStore interface {
		GetPayment(ctx context.Context, id int64) (core.Payment, error)
		PaymentsByCommitment(ctx context.Context, commitmentID int64) ([]core.Payment, error)
		PaymentsByTerm(ctx context.Context, termID int64) ([]core.Payment, error)
		InsertPayment(ctx context.Context, p core.Payment) (core.Payment, error)
		// UpdatePaymentAssignment moves a payment to a new term and period
		// date. The (commitment, period date) uniqueness constraint is
		// checked by the store per row.
		UpdatePaymentAssignment(ctx context.Context, id int64, termID int64, period core.Date) error
	}

	AdjustmentStore interface {
		InsertAdjustment(ctx context.Context, a core.PaymentAdjustment) (core.PaymentAdjustment, error)
		AdjustmentsByPayment(ctx context.Context, paymentID int64) ([]core.PaymentAdjustment, error)
	}

	// AdjustmentPublisher mirrors adjustment records to the async audit
	// pipeline. Publishing is best-effort and never blocks a mutation.
	AdjustmentPublisher interface {
		PublishAdjustment(ctx context.Context, a core.PaymentAdjustment) error
	}
)
