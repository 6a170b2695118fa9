package amqp

import (
	"encoding/json"
	"time"

	"impegni/internal/core"
)

// AdjustmentMessage carries one payment adjustment to the audit export
// worker. It is the full record, not just an ID: adjustments are
// append-only, so the worker never needs to re-read the database.
type AdjustmentMessage struct {
	PaymentID          int64     `json:"payment_id"`
	OriginalPeriodDate string    `json:"original_period_date"`
	NewPeriodDate      string    `json:"new_period_date"`
	OriginalTermID     int64     `json:"original_term_id"`
	NewTermID          int64     `json:"new_term_id"`
	Reason             string    `json:"reason"`
	Actor              string    `json:"actor"`
	CreatedAt          time.Time `json:"created_at"`
	Timestamp          time.Time `json:"timestamp"`
}

func NewAdjustmentMessage(a core.PaymentAdjustment) *AdjustmentMessage {
	return &AdjustmentMessage{
		PaymentID:          a.PaymentID,
		OriginalPeriodDate: a.OriginalPeriodDate.String(),
		NewPeriodDate:      a.NewPeriodDate.String(),
		OriginalTermID:     a.OriginalTermID,
		NewTermID:          a.NewTermID,
		Reason:             a.Reason,
		Actor:              a.Actor,
		CreatedAt:          a.CreatedAt,
		Timestamp:          time.Now(),
	}
}

// Adjustment converts the message back into the domain record.
func (m *AdjustmentMessage) Adjustment() (core.PaymentAdjustment, error) {
	original, err := core.ParseDate(m.OriginalPeriodDate)
	if err != nil {
		return core.PaymentAdjustment{}, err
	}
	updated, err := core.ParseDate(m.NewPeriodDate)
	if err != nil {
		return core.PaymentAdjustment{}, err
	}
	return core.PaymentAdjustment{
		PaymentID:          m.PaymentID,
		OriginalPeriodDate: original,
		NewPeriodDate:      updated,
		OriginalTermID:     m.OriginalTermID,
		NewTermID:          m.NewTermID,
		Reason:             m.Reason,
		Actor:              m.Actor,
		CreatedAt:          m.CreatedAt,
	}, nil
}

func (m *AdjustmentMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AdjustmentMessageFromJSON(data []byte) (*AdjustmentMessage, error) {
	var msg AdjustmentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
